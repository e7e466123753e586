package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"civic-reports/internal/models"
	"civic-reports/internal/repository"
	"civic-reports/internal/storage/minio"
	"civic-reports/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	cacheTTL    = 10 * time.Minute
	linkExpiry  = 15 * time.Minute
	readTimeout = 10 * time.Second
)

type IssueResponse struct {
	models.IssueRecord
	DownloadURL  string `json:"downloadUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

type Summary struct {
	Total      int                        `json:"total"`
	ByCategory map[models.Category]int    `json:"byCategory"`
	ByStatus   map[models.IssueStatus]int `json:"byStatus"`
}

func (h *Handler) GetIssue(c *gin.Context) {
	issueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid issue ID format", "VALIDATION_ERROR")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	cacheKey := models.IssueCacheKey(issueID)
	record, cached := h.cachedIssue(ctx, cacheKey)
	if !cached {
		record, err = h.issues.Get(ctx, issueID)
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "Issue not found", "NOT_FOUND")
			return
		}
		if err != nil {
			log.Printf("Failed to load issue %s: %v", issueID, err)
			writeError(c, err)
			return
		}
		if h.cache != nil {
			if data, err := json.Marshal(record); err == nil {
				if err := h.cache.Set(ctx, cacheKey, string(data), cacheTTL); err != nil {
					log.Printf("Warning: failed to cache issue %s: %v", issueID, err)
				}
			}
		}
	}

	if email := c.GetString(security.EmailKey); email != "" && email != record.ReporterKey {
		fail(c, http.StatusNotFound, "Issue not found", "NOT_FOUND")
		return
	}

	// presigned links expire, so they are never cached
	response := IssueResponse{IssueRecord: *record}
	if h.links != nil && record.FinalImageURL != "" {
		if objectName, ok := h.links.ObjectNameFromURL(record.FinalImageURL); ok {
			link, err := h.links.GetFileLink(ctx, objectName, linkExpiry)
			if err == nil {
				response.DownloadURL = link
			}
		}
		response.ThumbnailURL = h.thumbnailLink(ctx, record)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": response})
}

// thumbnailLink returns a presigned link to the worker's thumbnail, or "" while
// it has not been rendered yet.
func (h *Handler) thumbnailLink(ctx context.Context, record *models.IssueRecord) string {
	objectName := minio.ObjectName(models.ThumbnailObject(record.Category, record.ReporterKey, record.ID))
	exists, err := h.links.Exists(ctx, objectName)
	if err != nil {
		log.Printf("Warning: failed to check thumbnail for issue %s: %v", record.ID, err)
		return ""
	}
	if !exists {
		return ""
	}
	link, err := h.links.GetFileLink(ctx, objectName, linkExpiry)
	if err != nil {
		log.Printf("Warning: failed to sign thumbnail for issue %s: %v", record.ID, err)
		return ""
	}
	return link
}

func (h *Handler) cachedIssue(ctx context.Context, key string) (*models.IssueRecord, bool) {
	if h.cache == nil {
		return nil, false
	}
	raw, err := h.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var record models.IssueRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, false
	}
	return &record, true
}

// Dashboard lists the reporter's issues newest first with per-category and
// per-status counts.
func (h *Handler) Dashboard(c *gin.Context) {
	reporter := reporterKey(c, c.Query("reporterKey"))
	if reporter == "" {
		fail(c, http.StatusBadRequest, "Reporter not found in request", "VALIDATION_ERROR")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	records, err := h.issues.ListByReporter(ctx, reporter)
	if err != nil {
		log.Printf("Dashboard fetch for %q failed: %v", reporter, err)
		if errors.Is(err, repository.ErrUnavailable) {
			writeError(c, err)
			return
		}
		fail(c, http.StatusInternalServerError, "Failed to fetch dashboard data", "DATABASE_ERROR")
		return
	}
	if records == nil {
		records = []models.IssueRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Dashboard data fetched successfully",
		"data": gin.H{
			"summary":    summarize(records),
			"complaints": records,
		},
	})
}

func summarize(records []models.IssueRecord) Summary {
	s := Summary{
		Total:      len(records),
		ByCategory: make(map[models.Category]int),
		ByStatus: map[models.IssueStatus]int{
			models.IssueStatusPending:    0,
			models.IssueStatusInProgress: 0,
			models.IssueStatusResolved:   0,
			models.IssueStatusRejected:   0,
		},
	}
	for _, category := range models.Categories() {
		s.ByCategory[category] = 0
	}
	for _, r := range records {
		s.ByCategory[r.Category]++
		s.ByStatus[r.Status]++
	}
	return s
}
