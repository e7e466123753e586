package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Step outcomes recorded by the ingestion pipeline.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	Submissions  *prometheus.CounterVec
	Steps        *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	BlobAttempts prometheus.Counter
}

// New creates the pipeline collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_ingest_submissions_total",
			Help: "Issue submissions by category and result.",
		}, []string{"category", "result"}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_ingest_step_total",
			Help: "Pipeline step executions by outcome.",
		}, []string{"step", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civic_ingest_duration_seconds",
			Help:    "Time spent ingesting one submission.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"category"}),
		BlobAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "civic_blob_put_attempts_total",
			Help: "Blob store put attempts, including retries.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Submissions, m.Steps, m.Duration, m.BlobAttempts)
	}
	return m
}

func (m *Metrics) ObserveSubmission(category, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(category, result).Inc()
	m.Duration.WithLabelValues(category).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStep(step, outcome string) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) ObserveBlobAttempt() {
	if m == nil {
		return
	}
	m.BlobAttempts.Inc()
}
