package repository

import (
	"context"
	"errors"
	"fmt"

	"civic-reports/internal/models"
	"civic-reports/pkg/database/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const issueColumns = `id, category, reporter_key, description, status, original_image_url, final_image_url, content_id,
	city, district, latitude, longitude, road_name, state, country, postal_code, neighborhood, landmark,
	formatted_address, place_id, place_types, ml_detections, ml_priority, ml_confidence, total_detections,
	created_at, updated_at`

type poolSource interface {
	Conn() (*pgxpool.Pool, error)
	ReportFailure(err error)
}

type Postgres struct {
	pools poolSource
}

func NewPostgres(pools poolSource) *Postgres {
	return &Postgres{pools: pools}
}

func (p *Postgres) Create(ctx context.Context, record *models.IssueRecord) (*models.IssueRecord, error) {
	pool, err := p.pools.Conn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	cols, err := toColumns(record)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27)
	`
	_, err = pool.Exec(ctx, query,
		record.ID, string(record.Category), record.ReporterKey, record.Description, string(record.Status),
		record.OriginalImageURL, record.FinalImageURL, record.ContentID,
		record.City, record.District, record.Latitude, record.Longitude,
		record.RoadName, record.State, record.Country, record.PostalCode, record.Neighborhood, record.Landmark,
		record.FormattedAddress, record.PlaceID, cols.placeTypes, cols.detections,
		record.Priority, record.AvgConfidence, record.TotalDetections,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return nil, p.fail("insert issue", err)
	}
	return record, nil
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*models.IssueRecord, error) {
	pool, err := p.pools.Conn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	row := pool.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	record, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, p.fail("get issue", err)
	}
	return record, nil
}

func (p *Postgres) ListByReporter(ctx context.Context, reporterKey string) ([]models.IssueRecord, error) {
	pool, err := p.pools.Conn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rows, err := pool.Query(ctx, `SELECT `+issueColumns+` FROM issues WHERE reporter_key = $1 ORDER BY created_at DESC`, reporterKey)
	if err != nil {
		return nil, p.fail("list issues", err)
	}
	defer rows.Close()

	var records []models.IssueRecord
	for rows.Next() {
		record, err := scanIssue(rows)
		if err != nil {
			return nil, p.fail("scan issue", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, p.fail("list issues", err)
	}
	return records, nil
}

func (p *Postgres) fail(op string, err error) error {
	if postgres.IsConnectionError(err) {
		p.pools.ReportFailure(err)
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func scanIssue(row pgx.Row) (*models.IssueRecord, error) {
	var (
		record     models.IssueRecord
		category   string
		status     string
		placeTypes *string
		detections *string
	)
	err := row.Scan(
		&record.ID, &category, &record.ReporterKey, &record.Description, &status,
		&record.OriginalImageURL, &record.FinalImageURL, &record.ContentID,
		&record.City, &record.District, &record.Latitude, &record.Longitude,
		&record.RoadName, &record.State, &record.Country, &record.PostalCode, &record.Neighborhood, &record.Landmark,
		&record.FormattedAddress, &record.PlaceID, &placeTypes, &detections,
		&record.Priority, &record.AvgConfidence, &record.TotalDetections,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Category = models.Category(category)
	record.Status = models.IssueStatus(status)
	record.PlaceTypes = models.DecodeJSONColumn[string](placeTypes)
	record.Detections = models.DecodeJSONColumn[models.Detection](detections)
	return &record, nil
}
