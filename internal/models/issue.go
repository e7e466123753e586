package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryPothole     Category = "Pothole"
	CategoryStreetLight Category = "StreetLight"
	CategoryGarbage     Category = "Garbage"
	CategoryBrokenSign  Category = "BrokenSign"
	CategoryFallenTree  Category = "FallenTree"
	CategoryGraffiti    Category = "Graffiti"
)

// Categories lists every accepted issue category in route order.
func Categories() []Category {
	return []Category{
		CategoryPothole,
		CategoryStreetLight,
		CategoryGarbage,
		CategoryBrokenSign,
		CategoryFallenTree,
		CategoryGraffiti,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "Pending"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusResolved   IssueStatus = "Resolved"
	IssueStatusRejected   IssueStatus = "Rejected"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocationDetails struct {
	RoadName         string   `json:"roadName,omitempty"`
	State            string   `json:"state,omitempty"`
	Country          string   `json:"country,omitempty"`
	PostalCode       string   `json:"postalCode,omitempty"`
	Neighborhood     string   `json:"neighborhood,omitempty"`
	Landmark         string   `json:"landmark,omitempty"`
	FormattedAddress string   `json:"formattedAddress,omitempty"`
	PlaceID          string   `json:"placeId,omitempty"`
	PlaceTypes       []string `json:"placeTypes,omitempty"`
}

// Submission is one inbound report. Content holds the base64 image, optionally
// carrying a data URL prefix.
type Submission struct {
	ReporterKey     string
	Category        Category
	Content         string
	Description     string
	City            string
	District        string
	Coordinates     *Coordinates
	LocationDetails *LocationDetails
}

type Detection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

type DetectionResult struct {
	Detections      []Detection
	Priority        string
	TotalDetections int
	AnnotatedImage  string
}

// AverageConfidence returns the mean confidence, or nil when there are no detections.
func AverageConfidence(detections []Detection) *float64 {
	if len(detections) == 0 {
		return nil
	}
	var sum float64
	for _, d := range detections {
		sum += d.Confidence
	}
	avg := sum / float64(len(detections))
	return &avg
}

type IssueRecord struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	Category         Category    `json:"category" db:"category"`
	ReporterKey      string      `json:"reporterKey" db:"reporter_key"`
	Description      *string     `json:"description,omitempty" db:"description"`
	Status           IssueStatus `json:"status" db:"status"`
	OriginalImageURL string      `json:"originalImageUrl" db:"original_image_url"`
	FinalImageURL    string      `json:"finalImageUrl" db:"final_image_url"`
	ContentID        *string     `json:"contentId,omitempty" db:"content_id"`

	City             string   `json:"city" db:"city"`
	District         string   `json:"district" db:"district"`
	Latitude         float64  `json:"latitude" db:"latitude"`
	Longitude        float64  `json:"longitude" db:"longitude"`
	RoadName         *string  `json:"roadName,omitempty" db:"road_name"`
	State            *string  `json:"state,omitempty" db:"state"`
	Country          *string  `json:"country,omitempty" db:"country"`
	PostalCode       *string  `json:"postalCode,omitempty" db:"postal_code"`
	Neighborhood     *string  `json:"neighborhood,omitempty" db:"neighborhood"`
	Landmark         *string  `json:"landmark,omitempty" db:"landmark"`
	FormattedAddress *string  `json:"formattedAddress,omitempty" db:"formatted_address"`
	PlaceID          *string  `json:"placeId,omitempty" db:"place_id"`
	PlaceTypes       []string `json:"placeTypes,omitempty" db:"place_types"`

	Detections      []Detection `json:"mlDetections,omitempty" db:"ml_detections"`
	Priority        *string     `json:"mlPriority,omitempty" db:"ml_priority"`
	AvgConfidence   *float64    `json:"mlConfidence,omitempty" db:"ml_confidence"`
	TotalDetections *int        `json:"totalDetections,omitempty" db:"total_detections"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// EncodeJSONColumn serializes a slice for a nullable text column. A nil slice
// yields nil; an empty one yields "[]".
func EncodeJSONColumn[T any](values []T) (*string, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// DecodeJSONColumn is the inverse of EncodeJSONColumn. Malformed column data
// decodes to nil rather than failing the whole read.
func DecodeJSONColumn[T any](raw *string) []T {
	if raw == nil || *raw == "" {
		return nil
	}
	var values []T
	if err := json.Unmarshal([]byte(*raw), &values); err != nil {
		return nil
	}
	return values
}

// NullableString maps "" to nil for optional text columns.
func NullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
