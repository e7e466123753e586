package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"civic-reports/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type issueRow struct {
	ID               string  `gorm:"primaryKey;size:36"`
	Category         string  `gorm:"index;not null"`
	ReporterKey      string  `gorm:"index:idx_issues_reporter_created,priority:1;not null"`
	Description      *string
	Status           string `gorm:"not null;default:Pending"`
	OriginalImageURL string `gorm:"not null"`
	FinalImageURL    string `gorm:"not null"`
	ContentID        *string
	City             string  `gorm:"not null"`
	District         string  `gorm:"not null"`
	Latitude         float64 `gorm:"not null"`
	Longitude        float64 `gorm:"not null"`
	RoadName         *string
	State            *string
	Country          *string
	PostalCode       *string
	Neighborhood     *string
	Landmark         *string
	FormattedAddress *string
	PlaceID          *string
	PlaceTypes       *string
	MLDetections     *string `gorm:"column:ml_detections"`
	MLPriority       *string `gorm:"column:ml_priority"`
	MLConfidence     *float64 `gorm:"column:ml_confidence"`
	TotalDetections  *int
	CreatedAt        time.Time `gorm:"index:idx_issues_reporter_created,priority:2"`
	UpdatedAt        time.Time
}

func (issueRow) TableName() string { return "issues" }

// SQLite stores issues in an embedded database file. It backs local
// development and tests.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&issueRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	log.Printf("SQLite issue store ready at %s", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Create(ctx context.Context, record *models.IssueRecord) (*models.IssueRecord, error) {
	row, err := toRow(record)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to insert issue: %w", err)
	}
	return record, nil
}

func (s *SQLite) Get(ctx context.Context, id uuid.UUID) (*models.IssueRecord, error) {
	var row issueRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return fromRow(row)
}

func (s *SQLite) ListByReporter(ctx context.Context, reporterKey string) ([]models.IssueRecord, error) {
	var rows []issueRow
	err := s.db.WithContext(ctx).
		Where("reporter_key = ?", reporterKey).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	records := make([]models.IssueRecord, 0, len(rows))
	for _, row := range rows {
		record, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(record *models.IssueRecord) (issueRow, error) {
	cols, err := toColumns(record)
	if err != nil {
		return issueRow{}, err
	}
	return issueRow{
		ID:               record.ID.String(),
		Category:         string(record.Category),
		ReporterKey:      record.ReporterKey,
		Description:      record.Description,
		Status:           string(record.Status),
		OriginalImageURL: record.OriginalImageURL,
		FinalImageURL:    record.FinalImageURL,
		ContentID:        record.ContentID,
		City:             record.City,
		District:         record.District,
		Latitude:         record.Latitude,
		Longitude:        record.Longitude,
		RoadName:         record.RoadName,
		State:            record.State,
		Country:          record.Country,
		PostalCode:       record.PostalCode,
		Neighborhood:     record.Neighborhood,
		Landmark:         record.Landmark,
		FormattedAddress: record.FormattedAddress,
		PlaceID:          record.PlaceID,
		PlaceTypes:       cols.placeTypes,
		MLDetections:     cols.detections,
		MLPriority:       record.Priority,
		MLConfidence:     record.AvgConfidence,
		TotalDetections:  record.TotalDetections,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}, nil
}

func fromRow(row issueRow) (*models.IssueRecord, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid issue id %q: %w", row.ID, err)
	}
	return &models.IssueRecord{
		ID:               id,
		Category:         models.Category(row.Category),
		ReporterKey:      row.ReporterKey,
		Description:      row.Description,
		Status:           models.IssueStatus(row.Status),
		OriginalImageURL: row.OriginalImageURL,
		FinalImageURL:    row.FinalImageURL,
		ContentID:        row.ContentID,
		City:             row.City,
		District:         row.District,
		Latitude:         row.Latitude,
		Longitude:        row.Longitude,
		RoadName:         row.RoadName,
		State:            row.State,
		Country:          row.Country,
		PostalCode:       row.PostalCode,
		Neighborhood:     row.Neighborhood,
		Landmark:         row.Landmark,
		FormattedAddress: row.FormattedAddress,
		PlaceID:          row.PlaceID,
		PlaceTypes:       models.DecodeJSONColumn[string](row.PlaceTypes),
		Detections:       models.DecodeJSONColumn[models.Detection](row.MLDetections),
		Priority:         row.MLPriority,
		AvgConfidence:    row.MLConfidence,
		TotalDetections:  row.TotalDetections,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}
