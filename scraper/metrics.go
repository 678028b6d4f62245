package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	RecordsTotal     *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	DiagnosticsTotal prometheus.Counter
	SessionsLive     prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total page navigations issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "Page load latency for scraper navigations.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Total validated records extracted, by entity type.",
		},
		[]string{"entity"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	diagnostics := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_diagnostics_total",
			Help: "Total diagnostic artifacts captured on transient failures.",
		},
	)
	sessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_sessions_live",
			Help: "Browser sessions currently alive in the pool.",
		},
	)

	registry.MustRegister(requests, requestDuration, records, retries, errorsTotal, diagnostics, sessions)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		RecordsTotal:     records,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		DiagnosticsTotal: diagnostics,
		SessionsLive:     sessions,
	}
}

// IncRequest increments the navigations counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records one page load duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddRecords counts validated records for an entity type.
func (m *Metrics) AddRecords(entity string, n int) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(entity).Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncDiagnostics counts one captured diagnostic artifact.
func (m *Metrics) IncDiagnostics() {
	if m == nil {
		return
	}
	m.DiagnosticsTotal.Inc()
}

// SetSessionsLive reflects the pool's live-session count.
func (m *Metrics) SetSessionsLive(n int) {
	if m == nil {
		return
	}
	m.SessionsLive.Set(float64(n))
}
