package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ciboard"

// Metrics contains the request and backend metrics of the API. All record
// methods are safe to call on a nil receiver so that components can run
// without a registry in tests.
type Metrics struct {
	GraphQLRequests   *prometheus.CounterVec
	GraphQLDuration   *prometheus.HistogramVec
	BackendRequests   *prometheus.CounterVec
	BackendDuration   *prometheus.HistogramVec
	SwallowedErrors   *prometheus.CounterVec
	IntegrityFailures *prometheus.CounterVec
	BackendHealth     *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		GraphQLRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "requests_total",
				Help:      "Total number of GraphQL requests",
			},
			[]string{"operation", "status"},
		),

		GraphQLDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "request_duration_seconds",
				Help:      "GraphQL request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		BackendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Total number of calls to upstream backends",
			},
			[]string{"backend", "status"},
		),

		BackendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Upstream backend call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),

		SwallowedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "swallowed_errors_total",
				Help:      "Backend failures converted to null field values",
			},
			[]string{"field"},
		),

		IntegrityFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "data_integrity_failures_total",
				Help:      "Documents skipped because of missing or malformed fields",
			},
			[]string{"kind"},
		),

		BackendHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "healthy",
				Help:      "Backend health (0=unhealthy, 1=healthy)",
			},
			[]string{"backend"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.GraphQLRequests,
		m.GraphQLDuration,
		m.BackendRequests,
		m.BackendDuration,
		m.SwallowedErrors,
		m.IntegrityFailures,
		m.BackendHealth,
	}
}

// RecordRequest records one GraphQL request
func (m *Metrics) RecordRequest(operation string, failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "anonymous"
	}
	m.GraphQLRequests.WithLabelValues(operation, statusLabel(failed)).Inc()
	m.GraphQLDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveBackend records one upstream call started at start
func (m *Metrics) ObserveBackend(backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.BackendRequests.WithLabelValues(backend, statusLabel(err != nil)).Inc()
	m.BackendDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

// RecordSwallowed counts a backend failure contained at field level
func (m *Metrics) RecordSwallowed(field string) {
	if m == nil {
		return
	}
	m.SwallowedErrors.WithLabelValues(field).Inc()
}

// RecordIntegrityFailure counts a skipped malformed document
func (m *Metrics) RecordIntegrityFailure(kind string) {
	if m == nil {
		return
	}
	m.IntegrityFailures.WithLabelValues(kind).Inc()
}

// RecordBackendHealth updates a backend health gauge
func (m *Metrics) RecordBackendHealth(backend string, healthy bool) {
	if m == nil {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.BackendHealth.WithLabelValues(backend).Set(value)
}

func statusLabel(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
