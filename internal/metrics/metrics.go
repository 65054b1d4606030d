// Package metrics exposes Prometheus counters for migration activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "casemigrate"

// Metrics holds all Prometheus metrics for a migration process
type Metrics struct {
	BatchesTotal       *prometheus.CounterVec
	ItemsReceivedTotal *prometheus.CounterVec
	ItemsStoredTotal   *prometheus.CounterVec
	ShallowSessions    *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metrics and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Migration batches closed, by resource type and final status.",
		}, []string{"resource", "status"}),
		ItemsReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_received_total",
			Help:      "Items returned by the remote API.",
		}, []string{"resource"}),
		ItemsStoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_stored_total",
			Help:      "Items written to the local store.",
		}, []string{"resource"}),
		ShallowSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shallow_sessions_total",
			Help:      "Shallow session ids seen during generation, by outcome.",
		}, []string{"outcome"}),
		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Sampled records verified against the source, by result.",
		}, []string{"resource", "status"}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.BatchesTotal,
		m.ItemsReceivedTotal,
		m.ItemsStoredTotal,
		m.ShallowSessions,
		m.VerificationsTotal,
	)
	return m
}

// WriteTextfile dumps the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// The helpers below are nil-safe so callers can run without metrics.

func (m *Metrics) ObserveBatch(resource, status string, received, stored int) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(resource, status).Inc()
	m.ItemsReceivedTotal.WithLabelValues(resource).Add(float64(received))
	m.ItemsStoredTotal.WithLabelValues(resource).Add(float64(stored))
}

func (m *Metrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.ShallowSessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerification(resource, status string) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(resource, status).Inc()
}
