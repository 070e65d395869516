package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	results  *prometheus.CounterVec
	retries  *prometheus.CounterVec
	attempts prometheus.Histogram
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_pipeline_results_total",
				Help: "Finished pipeline executions by status and failure reason.",
			},
			[]string{"status", "reason"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_pipeline_retries_total",
				Help: "Retries of external calls by stage.",
			},
			[]string{"stage"},
		),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_pipeline_attempts",
			Help:    "External call attempts per execution.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receipt_pipeline_duration_seconds",
				Help:    "Wall time of a pipeline execution.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
			},
			[]string{"status"},
		),
	}
	for _, c := range []prometheus.Collector{m.results, m.retries, m.attempts, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(r PipelineResult) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(string(r.Status), string(r.FailureReason)).Inc()
	m.attempts.Observe(float64(r.Attempts))
	m.duration.WithLabelValues(string(r.Status)).Observe(r.Duration.Seconds())
}

func (m *Metrics) retry(stage constants.Stage) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(stage)).Inc()
}
