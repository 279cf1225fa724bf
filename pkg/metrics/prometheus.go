// Package metrics provides Prometheus metrics for the leaderboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the leaderboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Write path
	upserts             *prometheus.CounterVec
	leaderboardsCreated prometheus.Counter
	deletes             *prometheus.CounterVec
	accountsPurged      prometheus.Counter
	expiredSwept        prometheus.Counter

	// Read path
	queries                  *prometheus.CounterVec
	queryErrors              *prometheus.CounterVec
	queryLatency             *prometheus.HistogramVec
	aggregateClusterFailures prometheus.Counter
	aggregateClusters        prometheus.Histogram

	// Purge pipeline
	purgeQueueSize       prometheus.Gauge
	purgeQueueCapacity   prometheus.Gauge
	purgeEnqueueErrors   *prometheus.CounterVec
	purgeEventsDuplicate prometheus.Counter
	workerErrors         prometheus.Counter
	workerLatency        prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "anthill",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

func (m *Manager) counter(n, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(n, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(n, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(n, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(n, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.upserts = m.counterVec("upserts_total", "Entry upserts by outcome (inserted, updated)", "result")
	m.leaderboardsCreated = m.counter("leaderboards_created_total", "Leaderboards created lazily on first write")
	m.deletes = m.counterVec("deletes_total", "Deletions by target (entry, leaderboard)", "target")
	m.accountsPurged = m.counter("accounts_purged_total", "Accounts removed through account-deletion events")
	m.expiredSwept = m.counter("expired_entries_swept_total", "Expired entries physically removed by the sweeper")

	m.queries = m.counterVec("queries_total", "Ranked queries by kind", "kind")
	m.queryErrors = m.counterVec("query_errors_total", "Failed ranked queries by kind", "kind")
	m.queryLatency = m.histogramVec("query_latency_milliseconds", "Ranked query latency in milliseconds", "kind")
	m.aggregateClusterFailures = m.counter("aggregate_cluster_failures_total", "Clusters omitted from an all-clusters listing because their scan failed")
	m.aggregateClusters = m.histogram("aggregate_clusters", "Number of clusters scanned per all-clusters listing",
		[]float64{1, 2, 5, 10, 25, 50, 100, 250, 500})

	m.purgeQueueSize = m.gauge("purge_queue_size", "Pending account-deletion events")
	m.purgeQueueCapacity = m.gauge("purge_queue_capacity", "Capacity of the account-deletion event queue")
	m.purgeEnqueueErrors = m.counterVec("purge_enqueue_errors_total", "Rejected account-deletion events by reason", "reason")
	m.purgeEventsDuplicate = m.counter("purge_events_duplicate_total", "Account-deletion events skipped as duplicates")
	m.workerErrors = m.counter("worker_errors_total", "Account-deletion events that failed to apply")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time to apply one account-deletion event", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and error type",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordUpsert counts an upsert; inserted distinguishes a new row from an update.
func RecordUpsert(inserted bool) {
	if inserted {
		globalManager.upserts.WithLabelValues("inserted").Inc()
		return
	}
	globalManager.upserts.WithLabelValues("updated").Inc()
}

// RecordLeaderboardCreated counts a lazily created leaderboard.
func RecordLeaderboardCreated() {
	globalManager.leaderboardsCreated.Inc()
}

// RecordDelete counts a deletion of the given target.
func RecordDelete(target string) {
	globalManager.deletes.WithLabelValues(target).Inc()
}

// RecordAccountsPurged adds n purged accounts.
func RecordAccountsPurged(n int) {
	globalManager.accountsPurged.Add(float64(n))
}

// RecordExpiredSwept adds n swept rows.
func RecordExpiredSwept(n int64) {
	globalManager.expiredSwept.Add(float64(n))
}

// RecordQuery records a ranked query of kind with its latency.
func RecordQuery(kind string, latencyMs float64, err error) {
	globalManager.queries.WithLabelValues(kind).Inc()
	globalManager.queryLatency.WithLabelValues(kind).Observe(latencyMs)
	if err != nil {
		globalManager.queryErrors.WithLabelValues(kind).Inc()
	}
}

// RecordAggregate records an all-clusters listing over clusters with failed omitted.
func RecordAggregate(clusters, failed int) {
	globalManager.aggregateClusters.Observe(float64(clusters))
	globalManager.aggregateClusterFailures.Add(float64(failed))
}

// UpdatePurgeQueueSize sets the pending purge event count.
func UpdatePurgeQueueSize(size int) {
	globalManager.purgeQueueSize.Set(float64(size))
}

// UpdatePurgeQueueCapacity sets the purge queue capacity.
func UpdatePurgeQueueCapacity(capacity int) {
	globalManager.purgeQueueCapacity.Set(float64(capacity))
}

// RecordPurgeEnqueueError counts a rejected purge event.
func RecordPurgeEnqueueError(reason string) {
	globalManager.purgeEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordPurgeDuplicate counts a purge event skipped as already seen.
func RecordPurgeDuplicate() {
	globalManager.purgeEventsDuplicate.Inc()
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
