package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the ingestion pipeline.
type Metrics struct {
	FetchRequests *prometheus.CounterVec   // labels: provider, outcome={success,error}
	FetchDuration *prometheus.HistogramVec // labels: provider

	ReadingsSubmitted *prometheus.CounterVec // labels: provider
	ReadingsInserted  *prometheus.CounterVec // labels: provider
	ReadingsDuplicate *prometheus.CounterVec // labels: provider
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the metrics on a caller-supplied registry;
// tests use this to avoid duplicate-registration panics.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envirodash",
			Name:      "fetch_requests_total",
			Help:      "Upstream fetch attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "envirodash",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"provider"}),
		ReadingsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envirodash",
			Name:      "readings_submitted_total",
			Help:      "Normalized readings submitted to the writer.",
		}, []string{"provider"}),
		ReadingsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envirodash",
			Name:      "readings_inserted_total",
			Help:      "Readings actually inserted (new rows).",
		}, []string{"provider"}),
		ReadingsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envirodash",
			Name:      "readings_duplicate_total",
			Help:      "Readings skipped because their (sensor, timestamp) key already existed.",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.ReadingsSubmitted,
		m.ReadingsInserted,
		m.ReadingsDuplicate,
	)
	return m
}

// ObserveFetch records one upstream fetch attempt.
func (m *Metrics) ObserveFetch(provider string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.FetchRequests.WithLabelValues(provider, outcome).Inc()
	m.FetchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObservePersist records the outcome of one write batch.
func (m *Metrics) ObservePersist(provider string, submitted, inserted int) {
	m.ReadingsSubmitted.WithLabelValues(provider).Add(float64(submitted))
	m.ReadingsInserted.WithLabelValues(provider).Add(float64(inserted))
	if submitted > inserted {
		m.ReadingsDuplicate.WithLabelValues(provider).Add(float64(submitted - inserted))
	}
}
