// Package metrics exposes Prometheus metrics for ingestion, classification
// and the periodic cycles. All record methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meteornet"

// Metrics contains all server metrics
type Metrics struct {
	registry *prometheus.Registry

	IngestTotal         *prometheus.CounterVec
	ClassificationTotal *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	CycleDuration       *prometheus.HistogramVec
	CycleErrors         *prometheus.CounterVec
	PrunedBatches       prometheus.Counter
	DatabaseHealthy     prometheus.Gauge
}

// New creates the metrics and registers them on a fresh registry together
// with the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "requests_total",
				Help:      "Station requests by operation and result",
			},
			[]string{"operation", "result"},
		),

		ClassificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "status",
				Name:      "classifications_total",
				Help:      "Station classifications by resulting status",
			},
			[]string{"status"},
		),

		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "status",
				Name:      "notifications_total",
				Help:      "Escalation notifications by result",
			},
			[]string{"result"},
		),

		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of one periodic cycle run",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"cycle"},
		),

		CycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "errors_total",
				Help:      "Failed units of work per cycle",
			},
			[]string{"cycle"},
		),

		PrunedBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retention",
				Name:      "pruned_batches_total",
				Help:      "Measurement batches deleted by retention",
			},
		),

		DatabaseHealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "database",
				Name:      "healthy",
				Help:      "Database health check status (0=unhealthy, 1=healthy)",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.IngestTotal,
		m.ClassificationTotal,
		m.NotificationsTotal,
		m.CycleDuration,
		m.CycleErrors,
		m.PrunedBatches,
		m.DatabaseHealthy,
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIngest counts one station request
func (m *Metrics) RecordIngest(operation, result string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(operation, result).Inc()
}

// RecordClassification counts one classification
func (m *Metrics) RecordClassification(status string) {
	if m == nil {
		return
	}
	m.ClassificationTotal.WithLabelValues(status).Inc()
}

// RecordNotification counts one notification attempt
func (m *Metrics) RecordNotification(sent bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !sent {
		result = "failed"
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

// RecordCycle records the duration of one cycle run
func (m *Metrics) RecordCycle(cycle string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.WithLabelValues(cycle).Observe(duration.Seconds())
}

// RecordCycleError counts a failed unit of work
func (m *Metrics) RecordCycleError(cycle string) {
	if m == nil {
		return
	}
	m.CycleErrors.WithLabelValues(cycle).Inc()
}

// RecordPruned adds to the pruned batch counter
func (m *Metrics) RecordPruned(n int64) {
	if m == nil {
		return
	}
	m.PrunedBatches.Add(float64(n))
}

// RecordDatabaseHealth updates the database health gauge
func (m *Metrics) RecordDatabaseHealth(healthy bool) {
	if m == nil {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.DatabaseHealthy.Set(value)
}
