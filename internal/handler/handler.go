package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"civic-reports/internal/ingest"
	"civic-reports/internal/models"
	"civic-reports/internal/repository"

	"github.com/gin-gonic/gin"
)

type submitter interface {
	Submit(ctx context.Context, sub models.Submission) (*ingest.Response, error)
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type linker interface {
	ObjectNameFromURL(objectURL string) (string, bool)
	GetFileLink(ctx context.Context, objectName string, expires time.Duration) (string, error)
	Exists(ctx context.Context, objectName string) (bool, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Pipeline submitter
	Issues   repository.Repository
	Cache    cache
	Links    linker
	Checks   map[string]HealthCheck
}

type Handler struct {
	pipeline submitter
	issues   repository.Repository
	cache    cache
	links    linker
	checks   map[string]HealthCheck
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		pipeline: deps.Pipeline,
		issues:   deps.Issues,
		cache:    deps.Cache,
		links:    deps.Links,
		checks:   deps.Checks,
	}
}

// Register mounts every route. auth may be nil to accept unauthenticated
// submissions.
func (h *Handler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	r.Use(cors())
	r.GET("/health", h.Health)

	protected := r.Group("/api/v1", limitBody(MaxRequestSize))
	if auth != nil {
		protected.Use(auth)
	}
	for _, category := range models.Categories() {
		protected.POST("/"+routeName(category), h.SubmitIssue(category))
	}
	protected.POST("/auth/verify", h.VerifyToken)
	protected.GET("/issues/:id", h.GetIssue)
	protected.GET("/dashboard", h.Dashboard)
}

func routeName(category models.Category) string {
	switch category {
	case models.CategoryPothole:
		return "pothole"
	case models.CategoryStreetLight:
		return "street-light"
	case models.CategoryGarbage:
		return "garbage"
	case models.CategoryBrokenSign:
		return "broken-sign"
	case models.CategoryFallenTree:
		return "fallen-tree"
	case models.CategoryGraffiti:
		return "graffiti"
	}
	panic("handler: no route for category " + string(category))
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func fail(c *gin.Context, status int, message, code string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
		"error":   code,
	})
}

// writeError maps pipeline and repository errors onto status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ingest.ErrValidation):
		fail(c, http.StatusBadRequest, validationMessage(err), "VALIDATION_ERROR")
	case errors.Is(err, repository.ErrUnavailable):
		fail(c, http.StatusServiceUnavailable, "Database connection not available", "DATABASE_UNAVAILABLE")
	case errors.Is(err, ingest.ErrStorage):
		fail(c, http.StatusInternalServerError, "Failed to upload image to storage", "UPLOAD_ERROR")
	case errors.Is(err, ingest.ErrPersistence):
		fail(c, http.StatusInternalServerError, "Failed to save record to database", "DATABASE_ERROR")
	default:
		fail(c, http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
	}
}

func validationMessage(err error) string {
	var ingestErr *ingest.Error
	if errors.As(err, &ingestErr) && ingestErr.Err != nil {
		return ingestErr.Err.Error()
	}
	return "Missing required fields"
}
