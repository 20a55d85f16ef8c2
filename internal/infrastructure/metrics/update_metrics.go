package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UpdateMetrics contains Prometheus metrics for directory user updates.
type UpdateMetrics struct {
	UpdatesTotal   *prometheus.CounterVec
	UpdateDuration *prometheus.HistogramVec
	BatchInFlight  prometheus.Gauge
}

// NewUpdateMetrics creates and registers update metrics with the given registerer.
func NewUpdateMetrics(registerer prometheus.Registerer) *UpdateMetrics {
	metrics := &UpdateMetrics{
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aduser_user_updates_total",
				Help: "Total number of user update invocations by outcome",
			},
			[]string{"outcome"}, // submitted/failed/aborted/what_if/secret_error
		),
		UpdateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aduser_user_update_duration_seconds",
				Help:    "Time from invocation to outcome, including confirmation",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		BatchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aduser_batch_updates_in_flight",
			Help: "Number of batch updates currently running",
		}),
	}

	registerer.MustRegister(
		metrics.UpdatesTotal,
		metrics.UpdateDuration,
		metrics.BatchInFlight,
	)

	return metrics
}

// ObserveUpdate records one finished invocation.
func (m *UpdateMetrics) ObserveUpdate(outcome string, duration time.Duration) {
	m.UpdatesTotal.WithLabelValues(outcome).Inc()
	m.UpdateDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
