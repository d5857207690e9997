// Package metrics provides Prometheus metrics for the swish shot service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the swish service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion
	eventsReceived  *prometheus.CounterVec
	eventsDuplicate prometheus.Counter
	decodeErrors    *prometheus.CounterVec
	busConnected    prometheus.Gauge

	// Correlation
	anomalies       *prometheus.CounterVec
	shotsEmitted    *prometheus.CounterVec
	attemptsExpired *prometheus.CounterVec
	classifierState prometheus.Gauge
	releaseToApex   prometheus.Histogram
	dispatchLatency prometheus.Histogram

	// Persistence
	storageLatency prometheus.Histogram
	storageErrors  prometheus.Counter
	storageRetries prometheus.Counter
	deadLetters    prometheus.Gauge
	queryLatency   prometheus.Histogram

	// Broadcast
	broadcastMessages prometheus.Counter
	broadcastErrors   prometheus.Counter
	observers         prometheus.Gauge

	// Queues, labelled by queue name
	queueSize          *prometheus.GaugeVec
	queueCapacity      *prometheus.GaugeVec
	queueEnqueue       *prometheus.CounterVec
	queueDequeue       *prometheus.CounterVec
	queueEnqueueErrors *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

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
		namespace:        "swish",
		subsystem:        "shots",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.eventsReceived = m.counterVec("events_received_total", "Bus messages received, by event kind", "kind")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Bus redeliveries dropped before correlation")
	m.decodeErrors = m.counterVec("decode_errors_total", "Inbound payloads that failed to decode, by event kind", "kind")
	m.busConnected = m.gauge("bus_connected", "1 while the MQTT subscription is connected")

	m.anomalies = m.counterVec("anomalies_total", "Structurally valid events dropped in an unexpected state", "type")
	m.shotsEmitted = m.counterVec("emitted_total", "Shot records emitted by the classifier", "classification", "scored")
	m.attemptsExpired = m.counterVec("attempts_expired_total", "Attempts closed by the time window", "reason")
	m.classifierState = m.gauge("classifier_state", "Current classifier state (0 idle, 1 awaiting apex, 2 awaiting score)")
	m.releaseToApex = m.histogram("release_to_apex_milliseconds", "Elapsed time between release and jump apex",
		[]float64{50, 100, 150, 200, 250, 300, 400, 500, 750, 1000, 1500})
	m.dispatchLatency = m.histogram("dispatch_latency_milliseconds", "Time spent handling one inbound message", m.histogramBuckets)

	m.storageLatency = m.histogram("storage_latency_milliseconds", "Shot persistence latency", m.histogramBuckets)
	m.storageErrors = m.counter("storage_errors_total", "Shot records that could not be persisted")
	m.storageRetries = m.counter("storage_retries_total", "Persistence retries")
	m.deadLetters = m.gauge("dead_letters", "Unpersisted shot records retained for the operator")
	m.queryLatency = m.histogram("query_latency_milliseconds", "Recent-shots query latency", m.histogramBuckets)

	m.broadcastMessages = m.counter("broadcast_messages_total", "Shot messages delivered to observers")
	m.broadcastErrors = m.counter("broadcast_errors_total", "Failed broadcast attempts")
	m.observers = m.gauge("observers", "Connected live observers")

	m.queueSize = m.gaugeVec("queue_size", "Current queue length", "queue")
	m.queueCapacity = m.gaugeVec("queue_capacity", "Maximum queue capacity", "queue")
	m.queueEnqueue = m.counterVec("queue_enqueue_total", "Items enqueued", "queue")
	m.queueDequeue = m.counterVec("queue_dequeue_total", "Items dequeued", "queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected enqueues", "queue", "reason")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordEventReceived counts one inbound bus message of the given kind.
func RecordEventReceived(kind string) {
	globalManager.eventsReceived.WithLabelValues(kind).Inc()
}

// RecordEventDuplicate counts a dropped bus redelivery.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordDecodeError counts a malformed payload.
func RecordDecodeError(kind string) {
	globalManager.decodeErrors.WithLabelValues(kind).Inc()
}

// UpdateBusConnected flips the bus connection gauge.
func UpdateBusConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	globalManager.busConnected.Set(v)
}

// RecordAnomaly counts an event dropped by the classifier.
func RecordAnomaly(anomalyType string) {
	globalManager.anomalies.WithLabelValues(anomalyType).Inc()
}

// RecordShotEmitted counts a finalized shot record.
func RecordShotEmitted(classification string, scored bool) {
	globalManager.shotsEmitted.WithLabelValues(classification, strconv.FormatBool(scored)).Inc()
}

// RecordAttemptExpired counts an attempt closed by its time window.
func RecordAttemptExpired(reason string) {
	globalManager.attemptsExpired.WithLabelValues(reason).Inc()
}

// UpdateClassifierState publishes the classifier state ordinal.
func UpdateClassifierState(state int) {
	globalManager.classifierState.Set(float64(state))
}

// RecordReleaseToApex observes the release-to-apex interval.
func RecordReleaseToApex(elapsedMs float64) {
	globalManager.releaseToApex.Observe(elapsedMs)
}

// RecordDispatchLatency observes time spent on one inbound message.
func RecordDispatchLatency(latencyMs float64) {
	globalManager.dispatchLatency.Observe(latencyMs)
}

// RecordStorageLatency observes one save call.
func RecordStorageLatency(latencyMs float64) {
	globalManager.storageLatency.Observe(latencyMs)
}

// RecordStorageError counts a record that could not be persisted.
func RecordStorageError() {
	globalManager.storageErrors.Inc()
}

// RecordStorageRetry counts a persistence retry.
func RecordStorageRetry() {
	globalManager.storageRetries.Inc()
}

// UpdateDeadLetters sets the number of retained unpersisted records.
func UpdateDeadLetters(count int) {
	globalManager.deadLetters.Set(float64(count))
}

// RecordQueryLatency observes one recent-shots query.
func RecordQueryLatency(latencyMs float64) {
	globalManager.queryLatency.Observe(latencyMs)
}

// RecordBroadcastMessages counts messages handed to observers.
func RecordBroadcastMessages(n int) {
	globalManager.broadcastMessages.Add(float64(n))
}

// RecordBroadcastError counts a failed broadcast.
func RecordBroadcastError() {
	globalManager.broadcastErrors.Inc()
}

// UpdateObservers sets the connected observer count.
func UpdateObservers(count int) {
	globalManager.observers.Set(float64(count))
}

// UpdateQueueSize sets the current length of a queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// UpdateQueueCapacity sets the capacity of a queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue(queue string) {
	globalManager.queueEnqueue.WithLabelValues(queue).Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue(queue string) {
	globalManager.queueDequeue.WithLabelValues(queue).Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(queue, reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(queue, reason).Inc()
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
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
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
