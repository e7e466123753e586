package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSubmission("Pothole", "success", 120*time.Millisecond)
	m.ObserveSubmission("Pothole", "success", 80*time.Millisecond)
	m.ObserveStep("ml_detection", OutcomeDegraded)
	m.ObserveBlobAttempt()
	m.ObserveBlobAttempt()
	m.ObserveBlobAttempt()

	if got := testutil.ToFloat64(m.Submissions.WithLabelValues("Pothole", "success")); got != 2 {
		t.Fatalf("expected 2 submissions, got %v", got)
	}
	if got := testutil.ToFloat64(m.Steps.WithLabelValues("ml_detection", OutcomeDegraded)); got != 1 {
		t.Fatalf("expected 1 degraded step, got %v", got)
	}
	if got := testutil.ToFloat64(m.BlobAttempts); got != 3 {
		t.Fatalf("expected 3 blob attempts, got %v", got)
	}
	if n := testutil.CollectAndCount(m.Duration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission("Graffiti", "success", time.Second)
	m.ObserveStep("content_store", OutcomeOK)
	m.ObserveBlobAttempt()
}
