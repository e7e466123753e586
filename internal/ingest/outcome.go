package ingest

import (
	"errors"

	"civic-reports/internal/metrics"
	"civic-reports/internal/models"
)

type Destination string

const (
	DestinationBlob         Destination = "durable_store"
	DestinationContentStore Destination = "content_store"
	DestinationDetector     Destination = "ml_detector"
	DestinationAnnotated    Destination = "annotated_upload"
	DestinationEvents       Destination = "issue_event"
)

type Status string

const (
	StatusOK       Status = metrics.OutcomeOK
	StatusDegraded Status = metrics.OutcomeDegraded
	StatusSkipped  Status = metrics.OutcomeSkipped
	StatusFailed   Status = metrics.OutcomeFailed
)

// Outcome is the result of one pipeline step. Degraded and skipped steps keep
// their reason in Err instead of aborting the submission.
type Outcome[T any] struct {
	Destination Destination
	Status      Status
	Value       T
	Err         error
}

func succeeded[T any](dest Destination, v T) Outcome[T] {
	return Outcome[T]{Destination: dest, Status: StatusOK, Value: v}
}

func degraded[T any](dest Destination, err error) Outcome[T] {
	return Outcome[T]{Destination: dest, Status: StatusDegraded, Err: err}
}

func skipped[T any](dest Destination, reason string) Outcome[T] {
	return Outcome[T]{Destination: dest, Status: StatusSkipped, Err: errors.New(reason)}
}

func failed[T any](dest Destination, err error) Outcome[T] {
	return Outcome[T]{Destination: dest, Status: StatusFailed, Err: err}
}

// Get returns the value and whether the step succeeded.
func (o Outcome[T]) Get() (T, bool) {
	return o.Value, o.Status == StatusOK
}

func (o Outcome[T]) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Steps collects the outcome of every step run for one submission.
type Steps struct {
	Blob         Outcome[string]
	ContentStore Outcome[string]
	Detection    Outcome[*models.DetectionResult]
	Annotated    Outcome[string]
	Event        Outcome[struct{}]
}
