// Package metrics provides Prometheus metrics for the exporter.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the exporter.
type Metrics struct {
	// Batch metrics
	RowsQueried   *prometheus.CounterVec
	RowsSubmitted *prometheus.CounterVec
	RowsFailed    *prometheus.CounterVec
	RowsSkipped   *prometheus.CounterVec
	RowsDeferred  *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec

	// Remote metrics
	SubmitDuration *prometheus.HistogramVec

	// Ledger metrics
	LedgerAppends prometheus.Counter
	LedgerErrors  prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var (
	defaultMetrics *Metrics
	initOnce       sync.Once
)

// Init initializes the global metrics. Later calls return the first instance.
func Init(namespace string) *Metrics {
	initOnce.Do(func() {
		defaultMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer), namespace)
	})
	return defaultMetrics
}

// NewWithRegistry builds metrics registered on reg. Used by tests.
func NewWithRegistry(reg prometheus.Registerer, namespace string) *Metrics {
	return newMetrics(promauto.With(reg), namespace)
}

func newMetrics(f promauto.Factory, namespace string) *Metrics {
	if namespace == "" {
		namespace = "aef_export"
	}

	return &Metrics{
		RowsQueried: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_queried_total",
				Help:      "Total number of coverage rows returned for AOI batches",
			},
			[]string{"job_name"},
		),
		RowsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_submitted_total",
				Help:      "Total number of rows submitted and recorded in the ledger",
			},
			[]string{"job_name"},
		),
		RowsFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_failed_total",
				Help:      "Total number of rows that failed submission or recording",
			},
			[]string{"job_name", "kind"},
		),
		RowsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_skipped_total",
				Help:      "Total number of rows skipped because the output already exists",
			},
			[]string{"job_name"},
		),
		RowsDeferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_deferred_total",
				Help:      "Total number of rows deferred by admission control",
			},
			[]string{"job_name"},
		),
		BatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of AOI batch runs",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
			},
			[]string{"state"},
		),
		SubmitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submit_duration_seconds",
				Help:      "Latency of export submissions to the remote service",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"kind"},
		),
		LedgerAppends: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_appends_total",
				Help:      "Total number of ledger records written",
			},
		),
		LedgerErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_errors_total",
				Help:      "Total number of failed ledger writes",
			},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// AddRowsQueried adds to the rows queried counter.
func (m *Metrics) AddRowsQueried(jobName string, n int) {
	m.RowsQueried.WithLabelValues(jobName).Add(float64(n))
}

// IncRowsSubmitted increments the rows submitted counter.
func (m *Metrics) IncRowsSubmitted(jobName string) {
	m.RowsSubmitted.WithLabelValues(jobName).Inc()
}

// IncRowsFailed increments the rows failed counter for an error kind.
func (m *Metrics) IncRowsFailed(jobName, kind string) {
	m.RowsFailed.WithLabelValues(jobName, kind).Inc()
}

// IncRowsSkipped increments the rows skipped counter.
func (m *Metrics) IncRowsSkipped(jobName string) {
	m.RowsSkipped.WithLabelValues(jobName).Inc()
}

// AddRowsDeferred adds to the rows deferred counter.
func (m *Metrics) AddRowsDeferred(jobName string, n int) {
	m.RowsDeferred.WithLabelValues(jobName).Add(float64(n))
}

// ObserveBatchDuration records a batch run's duration by final state.
func (m *Metrics) ObserveBatchDuration(state string, seconds float64) {
	m.BatchDuration.WithLabelValues(state).Observe(seconds)
}

// ObserveSubmitDuration records a remote submission's latency.
func (m *Metrics) ObserveSubmitDuration(kind string, seconds float64) {
	m.SubmitDuration.WithLabelValues(kind).Observe(seconds)
}

// IncLedgerAppends increments the ledger appends counter.
func (m *Metrics) IncLedgerAppends() {
	m.LedgerAppends.Inc()
}

// IncLedgerErrors increments the ledger errors counter.
func (m *Metrics) IncLedgerErrors() {
	m.LedgerErrors.Inc()
}
