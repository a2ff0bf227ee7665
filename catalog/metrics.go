package catalog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the catalog client.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	EntriesFetched  prometheus.Counter
	ConflictsTotal  prometheus.Counter
	RefreshTotal    *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total HTTP requests issued by the catalog client.",
		},
		[]string{"operation"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "HTTP request latency for catalog requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	entriesFetched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_entries_fetched_total",
			Help: "Total number of catalog entries received.",
		},
	)
	conflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_conflicts_total",
			Help: "Total number of rejected If-Match preconditions.",
		},
	)
	refreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_token_refresh_total",
			Help: "Total number of token refresh attempts by result.",
		},
		[]string{"result"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_errors_total",
			Help: "Total number of catalog client errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, entriesFetched, conflicts, refreshes, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		EntriesFetched:  entriesFetched,
		ConflictsTotal:  conflicts,
		RefreshTotal:    refreshes,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests total counter for an operation.
func (m *Metrics) IncRequest(operation string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddEntries counts entries received from the backend.
func (m *Metrics) AddEntries(n int) {
	if m == nil {
		return
	}
	m.EntriesFetched.Add(float64(n))
}

// IncConflict counts a rejected precondition.
func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.ConflictsTotal.Inc()
}

// IncRefresh counts a token refresh attempt.
func (m *Metrics) IncRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(result).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
