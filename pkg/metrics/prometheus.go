// Package metrics provides Prometheus metrics for the tierlearn analytics service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Tracking
	trackingEvents   *prometheus.CounterVec
	firstEngagements *prometheus.CounterVec
	completions      *prometheus.CounterVec
	trackingLatency  prometheus.Histogram

	// Document store
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec

	// Content repository and derived views
	countFallbacks     *prometheus.CounterVec
	tierFilterExcluded *prometheus.CounterVec
	feedFailures       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueueErrors      *prometheus.CounterVec
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tierlearn",
		subsystem:        "analytics",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.trackingEvents = m.counterVec("tracking_events_total",
		"Tracking events by content type and outcome (processed, failed, duplicate)",
		"content_type", "outcome")
	m.firstEngagements = m.counterVec("first_engagements_total",
		"First interactions with a content item", "content_type")
	m.completions = m.counterVec("completions_total",
		"Completion gates crossed (video >90%, course 100%, test passed, blog read, call attended)",
		"content_type")
	m.trackingLatency = m.histogram("tracking_latency_milliseconds",
		"Latency of applying one tracking event to the analytics record")

	m.storeOperations = m.counterVec("store_operations_total",
		"Document store operations by operation and result", "op", "result")
	m.storeLatency = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_latency_milliseconds",
		Help:        "Document store operation latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"op"})
	m.breakerState = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_breaker_state",
		Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		ConstLabels: m.customLabels,
	}, []string{"name"})

	m.countFallbacks = m.counterVec("count_fallbacks_total",
		"Content counts served from a fallback path (scan or constant)", "content_type", "stage")
	m.tierFilterExcluded = m.counterVec("tier_filter_excluded_total",
		"Interacted items excluded from a tier view because their lookup failed", "content_type")
	m.feedFailures = m.counterVec("feed_failures_total",
		"Isolated content feed fetch failures", "content_type")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("queue_size", "Tracking events waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Tracking queue capacity")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total",
		"Rejected enqueues by reason", "reason")
	m.workerCount = m.gauge("worker_count", "Number of tracking workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one tracking event")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordTrackingEvent counts a tracking event outcome for a content type.
func RecordTrackingEvent(contentType, outcome string) {
	globalManager.trackingEvents.WithLabelValues(contentType, outcome).Inc()
}

// RecordFirstEngagement counts a first interaction with an item.
func RecordFirstEngagement(contentType string) {
	globalManager.firstEngagements.WithLabelValues(contentType).Inc()
}

// RecordCompletion counts a crossed completion gate.
func RecordCompletion(contentType string) {
	globalManager.completions.WithLabelValues(contentType).Inc()
}

// RecordTrackingLatency records the time spent applying a tracking event.
func RecordTrackingLatency(latencyMs float64) {
	globalManager.trackingLatency.Observe(latencyMs)
}

// RecordStoreOperation records one document store call.
func RecordStoreOperation(op, result string, latencyMs float64) {
	globalManager.storeOperations.WithLabelValues(op, result).Inc()
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateBreakerState publishes the numeric state of a named circuit breaker.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCountFallback counts a content count served by a fallback stage.
func RecordCountFallback(contentType, stage string) {
	globalManager.countFallbacks.WithLabelValues(contentType, stage).Inc()
}

// RecordTierFilterExcluded counts an item dropped from a tier view.
func RecordTierFilterExcluded(contentType string) {
	globalManager.tierFilterExcluded.WithLabelValues(contentType).Inc()
}

// RecordFeedFailure counts an isolated feed fetch failure.
func RecordFeedFailure(contentType string) {
	globalManager.feedFailures.WithLabelValues(contentType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RefreshInterval returns how often process gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
