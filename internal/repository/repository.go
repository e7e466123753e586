package repository

import (
	"context"
	"errors"

	"civic-reports/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no issue has the requested ID.
	ErrNotFound = errors.New("issue not found")

	// ErrUnavailable is returned while the backing store cannot be reached.
	ErrUnavailable = errors.New("issue store unavailable")
)

// Repository persists issue records. Implementations are safe for
// concurrent use.
type Repository interface {
	Create(ctx context.Context, record *models.IssueRecord) (*models.IssueRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*models.IssueRecord, error)
	ListByReporter(ctx context.Context, reporterKey string) ([]models.IssueRecord, error)
}
