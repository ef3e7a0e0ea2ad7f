// Package monitoring exposes Prometheus metrics for the persistence engine:
// per-kind operation counts and latencies recorded by an instrumented
// provider, REST request counts, and item/size gauges refreshed from
// provider statistics at scrape time.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"persistence-engine/internal/storage"
)

const namespace = "persistence"

// Metrics contains application-specific metrics
type Metrics struct {
	registry *prometheus.Registry

	// Storage metrics
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
	items      *prometheus.GaugeVec
	size       *prometheus.GaugeVec
	healthy    *prometheus.GaugeVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Provider operations by kind, operation and result.",
		}, []string{"kind", "operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Provider operation latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind", "operation"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Payload bytes saved and loaded, by kind.",
		}, []string{"kind", "direction"}),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items",
			Help:      "Stored items per kind at the last scrape.",
		}, []string{"kind"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "size_bytes",
			Help:      "Stored bytes per kind at the last scrape.",
		}, []string{"kind"}),
		healthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_healthy",
			Help:      "1 when the provider reported itself healthy at the last scrape.",
		}, []string{"kind"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "REST requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "REST request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.operations, m.duration, m.bytes,
		m.items, m.size, m.healthy,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOperation counts one provider operation and records its latency.
func (m *Metrics) ObserveOperation(kind storage.Kind, operation string, result storage.Result, d time.Duration) {
	m.operations.WithLabelValues(kind.String(), operation, result.String()).Inc()
	m.duration.WithLabelValues(kind.String(), operation).Observe(d.Seconds())
}

// ObserveBytes adds n payload bytes moving in direction ("in" or "out").
func (m *Metrics) ObserveBytes(kind storage.Kind, direction string, n int) {
	if n > 0 {
		m.bytes.WithLabelValues(kind.String(), direction).Add(float64(n))
	}
}

// UpdateStatistics refreshes the per-kind gauges.
func (m *Metrics) UpdateStatistics(stats map[storage.Kind]storage.Statistics) {
	for kind, s := range stats {
		m.items.WithLabelValues(kind.String()).Set(float64(s.ItemCount))
		m.size.WithLabelValues(kind.String()).Set(float64(s.TotalSizeBytes))
		healthy := 0.0
		if s.Healthy {
			healthy = 1
		}
		m.healthy.WithLabelValues(kind.String()).Set(healthy)
	}
}
