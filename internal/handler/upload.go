package handler

import (
	"fmt"
	"log"
	"net/http"

	"civic-reports/internal/models"
	"civic-reports/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// MaxRequestSize bounds a submission body; base64 inflates a 10MB image to ~13.4MB.
const MaxRequestSize = 20 << 20

type SubmitRequest struct {
	ReporterKey     string                  `json:"reporterKey"`
	Email           string                  `json:"email"`
	Content         string                  `json:"content"`
	Description     string                  `json:"description"`
	City            string                  `json:"city"`
	District        string                  `json:"district"`
	Coordinates     *models.Coordinates     `json:"coordinates"`
	LocationDetails *models.LocationDetails `json:"locationDetails"`
}

// SubmitIssue returns the handler for one category's submission route.
func (h *Handler) SubmitIssue(category models.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			fail(c, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
			return
		}

		sub := models.Submission{
			ReporterKey:     reporterKey(c, req.ReporterKey, req.Email),
			Category:        category,
			Content:         req.Content,
			Description:     req.Description,
			City:            req.City,
			District:        req.District,
			Coordinates:     req.Coordinates,
			LocationDetails: req.LocationDetails,
		}

		resp, err := h.pipeline.Submit(c.Request.Context(), sub)
		if err != nil {
			log.Printf("Submission to %s failed: %v", category, err)
			writeError(c, err)
			return
		}

		message := fmt.Sprintf("%s posted successfully", category)
		if resp.MLDetection != nil {
			message += " with ML analysis"
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": message,
			"data":    resp,
		})
	}
}

// VerifyToken echoes the reporter identity the auth middleware established.
func (h *Handler) VerifyToken(c *gin.Context) {
	email := c.GetString(security.EmailKey)
	if email == "" {
		fail(c, http.StatusUnauthorized, "No token provided", "UNAUTHORIZED")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Token verified",
		"data":    gin.H{"email": email},
	})
}

// reporterKey prefers the verified token identity over body fields.
func reporterKey(c *gin.Context, candidates ...string) string {
	if email := c.GetString(security.EmailKey); email != "" {
		return email
	}
	for _, k := range candidates {
		if k != "" {
			return k
		}
	}
	return ""
}
