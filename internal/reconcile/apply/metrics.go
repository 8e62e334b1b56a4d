package apply

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/report"
)

// Metrics holds the Prometheus collectors of the apply stage.
type Metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	duration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "n8nctl",
				Name:      "operations_total",
				Help:      "Total number of reconciliation operations by outcome",
			},
			[]string{"kind", "entity", "status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "n8nctl",
				Name:      "operation_failures_total",
				Help:      "Total number of failed operations by failure class",
			},
			[]string{"kind", "entity", "class"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "n8nctl",
				Name:      "operation_attempts_total",
				Help:      "Total number of remote calls issued, retries included",
			},
			[]string{"kind", "entity"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "n8nctl",
				Name:      "operation_duration_seconds",
				Help:      "Duration of attempted operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "entity"},
		),
	}

	registry.MustRegister(m.operations, m.failures, m.attempts, m.duration)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile writes the metrics in the node-exporter textfile format.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func (m *Metrics) observe(out report.Outcome) {
	if m == nil {
		return
	}
	kind, ent := string(out.Operation.Kind), string(out.Operation.Ref.Kind)
	m.operations.WithLabelValues(kind, ent, string(out.Status)).Inc()
	if out.Status == report.StatusFailed {
		m.failures.WithLabelValues(kind, ent, out.Reason).Inc()
	}
	if out.Attempts > 0 {
		m.attempts.WithLabelValues(kind, ent).Add(float64(out.Attempts))
		m.duration.WithLabelValues(kind, ent).Observe(out.Duration.Seconds())
	}
}
