package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion producer.
type Metrics struct {
	FeaturesFetched  *prometheus.CounterVec // labels: source
	FeaturesAccepted *prometheus.CounterVec // labels: source
	FeaturesRejected *prometheus.CounterVec // labels: source, reason={quality,timestamp}
	APIRequests      *prometheus.CounterVec // labels: source, outcome={success,http_error,transport_error}
	RunsTotal        *prometheus.CounterVec // labels: source, outcome={success,failure}
	DeltasWritten    *prometheus.CounterVec // labels: source
	NotifyErrors     *prometheus.CounterVec // labels: source

	RunDuration *prometheus.HistogramVec // labels: source
	Watermark   *prometheus.GaugeVec     // labels: source; unix seconds

	ProducerRunning prometheus.Gauge
}

// NewMetrics creates and registers all producer metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FeaturesFetched,
		m.FeaturesAccepted,
		m.FeaturesRejected,
		m.APIRequests,
		m.RunsTotal,
		m.DeltasWritten,
		m.NotifyErrors,
		m.RunDuration,
		m.Watermark,
		m.ProducerRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeaturesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flume_producer",
			Name:      "features_fetched_total",
			Help:      "Total features returned by the upstream API.",
		}, []string{"source"}),
		FeaturesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flume_producer",
			Name:      "features_accepted_total",
			Help:      "Total features accepted as new and written to a delta artifact.",
		}, []string{"source"}),
		FeaturesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flume_producer",
			Name:      "features_rejected_total",
			Help:      "Total features rejected, by reason.",
		}, []string{"source", "reason"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flume_producer",
			Name:      "api_requests_total",
			Help:      "Upstream page requests, by outcome.",
		}, []string{"source", "outcome"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flume_producer",
			Name:      "source_runs_total",
			Help:      "Per-source ingestion runs, by outcome.",
		}, []string{"source", "outcome"}),
		DeltasWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flume_producer",
			Name:      "delta_artifacts_written_total",
			Help:      "Delta artifacts written to the object store.",
		}, []string{"source"}),
		NotifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flume_producer",
			Name:      "notify_errors_total",
			Help:      "Failures publishing accepted features to the broker.",
		}, []string{"source"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flume_producer",
			Name:      "run_duration_seconds",
			Help:      "Duration of one source's fetch-filter-write cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		Watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flume_producer",
			Name:      "watermark_timestamp_seconds",
			Help:      "Global watermark per source as unix seconds.",
		}, []string{"source"}),
		ProducerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flume_producer",
			Name:      "running",
			Help:      "1 while an ingestion run is in progress.",
		}),
	}
}
