package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"civic-reports/pkg/database/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type downPool struct {
	reported []error
}

func (d *downPool) Conn() (*pgxpool.Pool, error) { return nil, postgres.ErrNotConnected }

func (d *downPool) ReportFailure(err error) { d.reported = append(d.reported, err) }

func TestPostgresUnavailableWhileDisconnected(t *testing.T) {
	repo := NewPostgres(&downPool{})
	ctx := context.Background()

	if _, err := repo.Create(ctx, sampleRecord("a@example.com", time.Now().UTC())); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Create: expected ErrUnavailable, got %v", err)
	}
	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Get: expected ErrUnavailable, got %v", err)
	}
	if _, err := repo.ListByReporter(ctx, "a@example.com"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ListByReporter: expected ErrUnavailable, got %v", err)
	}
}
