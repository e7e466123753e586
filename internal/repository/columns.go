package repository

import (
	"fmt"

	"civic-reports/internal/models"
)

// jsonColumns are the list-valued fields stored as JSON text.
type jsonColumns struct {
	placeTypes *string
	detections *string
}

func toColumns(record *models.IssueRecord) (jsonColumns, error) {
	placeTypes, err := models.EncodeJSONColumn(record.PlaceTypes)
	if err != nil {
		return jsonColumns{}, fmt.Errorf("failed to encode place types: %w", err)
	}
	detections, err := models.EncodeJSONColumn(record.Detections)
	if err != nil {
		return jsonColumns{}, fmt.Errorf("failed to encode detections: %w", err)
	}
	return jsonColumns{placeTypes: placeTypes, detections: detections}, nil
}
