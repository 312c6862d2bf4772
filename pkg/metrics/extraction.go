package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Extraction outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeRetrySuccess = "retry_success"
	OutcomeParseFailure = "parse_failure"
	OutcomeUpstreamFail = "upstream_failure"
)

// ExtractionMetrics records receipt extraction calls.
type ExtractionMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewExtractionMetrics registers the extraction metrics on the provided registerer.
func NewExtractionMetrics(reg prometheus.Registerer) *ExtractionMetrics {
	if reg == nil {
		return &ExtractionMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_extraction_duration_seconds",
		Help:    "Duration of receipt extraction requests in seconds, retries included.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_extractions_total",
		Help: "Receipt extraction results by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, outcomes)
	return &ExtractionMetrics{
		duration: duration,
		outcomes: outcomes,
	}
}

// Observe records one extraction with its outcome.
func (m *ExtractionMetrics) Observe(outcome string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.outcomes.WithLabelValues(outcome).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
