// Package metrics provides Prometheus metrics for the elocheck ranking
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the ranking engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Core business metrics
	comparisonsProcessed prometheus.Counter
	comparisonsRejected  *prometheus.CounterVec
	pairSelections       *prometheus.CounterVec
	pairExhausted        *prometheus.CounterVec
	ratingUpdateLatency  prometheus.Histogram

	// Percentile refresh metrics
	percentileRefreshes       *prometheus.CounterVec
	percentileRefreshDuration prometheus.Histogram

	// Refresh queue metrics
	refreshQueueSize        prometheus.Gauge
	refreshQueueCapacity    prometheus.Gauge
	refreshQueueUtilization prometheus.Gauge
	refreshQueueEnqueues    prometheus.Counter
	refreshQueueDequeues    prometheus.Counter
	refreshQueueErrors      prometheus.Counter

	// Worker metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Recalculation metrics
	recalcRecordsReplayed prometheus.Counter
	recalcRecordsSkipped  prometheus.Counter
	recalcDuration        prometheus.Histogram
	recalcLastUnix        prometheus.Gauge

	// Repository metrics
	repositoryShardCount    prometheus.Gauge
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// HTTP performance metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "elocheck",
		subsystem:        "ranking",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // metric registration is inherently long
	auto := promauto.With(m.registry)

	m.comparisonsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "comparisons_processed_total",
		Help:      "Total number of comparison submissions successfully applied",
	})

	m.comparisonsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "comparisons_rejected_total",
		Help:      "Total number of comparison submissions rejected, by reason",
	}, []string{"reason"})

	m.pairSelections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pair_selections_total",
		Help:      "Total number of pairs served, by selection phase",
	}, []string{"phase"})

	m.pairExhausted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pair_exhausted_total",
		Help:      "Total number of exhausted selection results, by reason",
	}, []string{"reason"})

	m.ratingUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_update_latency_milliseconds",
		Help:      "Histogram of end-to-end comparison submission latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.percentileRefreshes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "percentile_refreshes_total",
		Help:      "Total number of cohort percentile refreshes, by cohort",
	}, []string{"cohort"})

	m.percentileRefreshDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "percentile_refresh_duration_milliseconds",
		Help:      "Histogram of cohort percentile refresh duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.refreshQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_size",
		Help:      "Current number of queued cohort refresh jobs",
	})

	m.refreshQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_capacity",
		Help:      "Configured capacity of the refresh queue",
	})

	m.refreshQueueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_utilization",
		Help:      "Refresh queue fill ratio (0-1)",
	})

	m.refreshQueueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_enqueues_total",
		Help:      "Total number of refresh jobs enqueued",
	})

	m.refreshQueueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_dequeues_total",
		Help:      "Total number of refresh jobs dequeued",
	})

	m.refreshQueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_errors_total",
		Help:      "Total number of refresh enqueue failures",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Number of refresh workers running",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Histogram of refresh job processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of refresh job failures",
	})

	m.recalcRecordsReplayed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_records_replayed_total",
		Help:      "Total number of log records replayed by batch recalculation",
	})

	m.recalcRecordsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_records_skipped_total",
		Help:      "Total number of log records skipped by batch recalculation",
	})

	m.recalcDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_duration_milliseconds",
		Help:      "Histogram of full recalculation duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.recalcLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_last_unix",
		Help:      "Unix timestamp of the last completed recalculation",
	})

	m.repositoryShardCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_shard_count",
		Help:      "Number of shards in the rating store",
	})

	m.repositoryRecordsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_records_total",
		Help:      "Number of items tracked in the rating store",
	})

	m.repositoryUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_update_latency_milliseconds",
		Help:      "Histogram of rating store update latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.repositoryQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_query_latency_milliseconds",
		Help:      "Histogram of rating store query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Total errors by component and type",
	}, []string{"component", "error_type"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_endpoint_total",
		Help:      "Total errors by HTTP endpoint",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current heap allocation in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})
}

// Package-level helpers against the global manager.

// RecordComparisonProcessed increments the processed-comparison counter.
func RecordComparisonProcessed() {
	globalManager.comparisonsProcessed.Inc()
}

// RecordComparisonRejected increments the rejected-comparison counter.
func RecordComparisonRejected(reason string) {
	globalManager.comparisonsRejected.WithLabelValues(reason).Inc()
}

// RecordPairSelection increments the pair-served counter for a phase.
func RecordPairSelection(phase string) {
	globalManager.pairSelections.WithLabelValues(phase).Inc()
}

// RecordPairExhausted increments the exhausted counter for a reason.
func RecordPairExhausted(reason string) {
	globalManager.pairExhausted.WithLabelValues(reason).Inc()
}

// RecordRatingUpdateLatency records submission latency in milliseconds.
func RecordRatingUpdateLatency(latencyMs float64) {
	globalManager.ratingUpdateLatency.Observe(latencyMs)
}

// RecordPercentileRefresh increments the refresh counter for a cohort.
func RecordPercentileRefresh(cohort string) {
	globalManager.percentileRefreshes.WithLabelValues(cohort).Inc()
}

// RecordPercentileRefreshDuration records refresh duration in milliseconds.
func RecordPercentileRefreshDuration(durationMs float64) {
	globalManager.percentileRefreshDuration.Observe(durationMs)
}

// UpdateRefreshQueueSize sets the current refresh queue depth.
func UpdateRefreshQueueSize(size int) {
	globalManager.refreshQueueSize.Set(float64(size))
}

// UpdateRefreshQueueCapacity sets the configured queue capacity.
func UpdateRefreshQueueCapacity(capacity int) {
	globalManager.refreshQueueCapacity.Set(float64(capacity))
}

// UpdateRefreshQueueUtilization sets the queue fill ratio.
func UpdateRefreshQueueUtilization(utilization float64) {
	globalManager.refreshQueueUtilization.Set(utilization)
}

// RecordRefreshQueueEnqueue increments the enqueue counter.
func RecordRefreshQueueEnqueue() {
	globalManager.refreshQueueEnqueues.Inc()
}

// RecordRefreshQueueDequeue increments the dequeue counter.
func RecordRefreshQueueDequeue() {
	globalManager.refreshQueueDequeues.Inc()
}

// RecordRefreshQueueError increments the enqueue-failure counter.
func RecordRefreshQueueError() {
	globalManager.refreshQueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running refresh workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records refresh job latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker failure counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordRecalcRecordsReplayed adds replayed records to the counter.
func RecordRecalcRecordsReplayed(n int) {
	globalManager.recalcRecordsReplayed.Add(float64(n))
}

// RecordRecalcRecordsSkipped adds skipped records to the counter.
func RecordRecalcRecordsSkipped(n int) {
	globalManager.recalcRecordsSkipped.Add(float64(n))
}

// RecordRecalcDuration records the full rebuild duration in milliseconds.
func RecordRecalcDuration(durationMs float64) {
	globalManager.recalcDuration.Observe(durationMs)
}

// UpdateRecalcLastUnix sets the timestamp of the last completed rebuild.
func UpdateRecalcLastUnix(unix int64) {
	globalManager.recalcLastUnix.Set(float64(unix))
}

// UpdateRepositoryShardCount sets the store shard count.
func UpdateRepositoryShardCount(count int) {
	globalManager.repositoryShardCount.Set(float64(count))
}

// UpdateRepositoryRecordsTotal sets the tracked-item gauge.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryUpdateLatency records store update latency in milliseconds.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records store query latency in milliseconds.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent increments the per-component error counter.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint increments the per-endpoint error counter.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom registry serving /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
