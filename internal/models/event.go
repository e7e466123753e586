package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueCreatedEvent is published once an issue record has been persisted.
type IssueCreatedEvent struct {
	IssueID       uuid.UUID `json:"issueId"`
	Category      Category  `json:"category"`
	ReporterKey   string    `json:"reporterKey"`
	FinalImageURL string    `json:"finalImageUrl"`
	CreatedAt     time.Time `json:"createdAt"`
}

func NewIssueCreatedEvent(record *IssueRecord) IssueCreatedEvent {
	return IssueCreatedEvent{
		IssueID:       record.ID,
		Category:      record.Category,
		ReporterKey:   record.ReporterKey,
		FinalImageURL: record.FinalImageURL,
		CreatedAt:     record.CreatedAt,
	}
}

// IssueCacheKey is the read-cache key for one issue.
func IssueCacheKey(id uuid.UUID) string {
	return "issue:" + id.String()
}

// ThumbnailObject is where the thumbnail for an issue is written.
func ThumbnailObject(category Category, reporterKey string, id uuid.UUID) (namespace, key string) {
	return string(category) + "_Thumbnail", reporterKey + "/" + id.String() + ".jpg"
}
