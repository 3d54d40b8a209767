// Package metrics provides Prometheus metrics for the geoasistencia attendance engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the attendance engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Location pipeline
	fixesReceived   *prometheus.CounterVec
	signalLost      *prometheus.CounterVec
	signalAvailable prometheus.Gauge
	insideGeofence  prometheus.Gauge
	distanceToSite  prometheus.Gauge

	// Session
	sessionOpen     prometheus.Gauge
	edges           *prometheus.CounterVec
	autoClose       *prometheus.CounterVec
	marksSubmitted  *prometheus.CounterVec
	markResults     *prometheus.CounterVec
	markRejections  *prometheus.CounterVec
	historyRefresh  *prometheus.CounterVec
	submitLatency   prometheus.Histogram
	eventLatency    prometheus.Histogram
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

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
		namespace:        "geoasistencia",
		subsystem:        "attendance",
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

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.fixesReceived = auto.NewCounterVec(m.counterOpts("fixes_received_total",
		"Location fixes received by outcome (accepted, stale, inaccurate, invalid, dropped)"),
		[]string{"outcome"})
	m.signalLost = auto.NewCounterVec(m.counterOpts("signal_lost_total",
		"Location source failures by reason"),
		[]string{"reason"})
	m.signalAvailable = auto.NewGauge(m.gaugeOpts("signal_available",
		"1 while the location source is delivering fixes"))
	m.insideGeofence = auto.NewGauge(m.gaugeOpts("inside_geofence",
		"1 while the last fix lies inside the selected site"))
	m.distanceToSite = auto.NewGauge(m.gaugeOpts("distance_to_site_meters",
		"Distance from the last fix to the selected site's center"))

	m.sessionOpen = auto.NewGauge(m.gaugeOpts("session_open",
		"1 while the attendance session is open"))
	m.edges = auto.NewCounterVec(m.counterOpts("edges_total",
		"Falling edges observed by kind"),
		[]string{"edge"})
	m.autoClose = auto.NewCounterVec(m.counterOpts("auto_close_total",
		"Automatic closure decisions by outcome"),
		[]string{"outcome"})
	m.marksSubmitted = auto.NewCounterVec(m.counterOpts("marks_submitted_total",
		"Marks sent to the gateway by type and origin"),
		[]string{"type", "origin"})
	m.markResults = auto.NewCounterVec(m.counterOpts("mark_results_total",
		"Settled submissions by type and result"),
		[]string{"type", "result"})
	m.markRejections = auto.NewCounterVec(m.counterOpts("mark_rejections_total",
		"Manual marks refused before submission by reason"),
		[]string{"reason"})
	m.historyRefresh = auto.NewCounterVec(m.counterOpts("history_refresh_total",
		"History refreshes by result"),
		[]string{"result"})
	m.submitLatency = auto.NewHistogram(m.histogramOpts("submission_latency_milliseconds",
		"Time from submission to gateway answer in milliseconds",
		[]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}))
	m.eventLatency = auto.NewHistogram(m.histogramOpts("event_processing_latency_milliseconds",
		"Time spent applying one event in milliseconds",
		m.histogramBuckets))
	m.gatewayRequests = auto.NewCounterVec(m.counterOpts("gateway_requests_total",
		"Gateway calls by operation and outcome"),
		[]string{"operation", "outcome"})
	m.gatewayLatency = auto.NewHistogramVec(m.histogramOpts("gateway_latency_milliseconds",
		"Gateway call latency in milliseconds",
		[]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}),
		[]string{"operation"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current number of pending events"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))
	m.queueEnqueue = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of events enqueued"))
	m.queueDequeue = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Total number of events dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total",
		"Events that could not be enqueued by reason"),
		[]string{"reason"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds",
		m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"),
		[]string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Location pipeline.

// RecordFix counts a fix by outcome.
func RecordFix(outcome string) {
	globalManager.fixesReceived.WithLabelValues(outcome).Inc()
}

// RecordSignalLost counts a location source failure.
func RecordSignalLost(reason string) {
	globalManager.signalLost.WithLabelValues(reason).Inc()
}

// UpdateLocation sets the signal and containment gauges.
// distance is ignored when negative.
func UpdateLocation(signal, inside bool, distance float64) {
	globalManager.signalAvailable.Set(boolGauge(signal))
	globalManager.insideGeofence.Set(boolGauge(inside))
	if distance >= 0 {
		globalManager.distanceToSite.Set(distance)
	}
}

// Session.

// UpdateSessionOpen sets the session gauge.
func UpdateSessionOpen(open bool) {
	globalManager.sessionOpen.Set(boolGauge(open))
}

// RecordEdge counts a falling edge.
func RecordEdge(edge string) {
	globalManager.edges.WithLabelValues(edge).Inc()
}

// RecordAutoClose counts an automatic closure decision.
func RecordAutoClose(outcome string) {
	globalManager.autoClose.WithLabelValues(outcome).Inc()
}

// RecordMarkSubmitted counts a mark handed to the gateway.
func RecordMarkSubmitted(markType string, automatic bool) {
	origin := "manual"
	if automatic {
		origin = "auto"
	}
	globalManager.marksSubmitted.WithLabelValues(markType, origin).Inc()
}

// RecordMarkResult counts a settled submission.
func RecordMarkResult(markType, result string) {
	globalManager.markResults.WithLabelValues(markType, result).Inc()
}

// RecordMarkRejected counts a refused manual mark.
func RecordMarkRejected(reason string) {
	globalManager.markRejections.WithLabelValues(reason).Inc()
}

// RecordHistoryRefresh counts a history refresh.
func RecordHistoryRefresh(result string) {
	globalManager.historyRefresh.WithLabelValues(result).Inc()
}

// RecordSubmissionLatency records submission latency in milliseconds.
func RecordSubmissionLatency(latencyMs float64) {
	globalManager.submitLatency.Observe(latencyMs)
}

// RecordEventProcessingLatency records the time spent applying one event.
func RecordEventProcessingLatency(latencyMs float64) {
	globalManager.eventLatency.Observe(latencyMs)
}

// RecordGatewayRequest counts a gateway call and records its latency.
func RecordGatewayRequest(operation, outcome string, latencyMs float64) {
	globalManager.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	globalManager.gatewayLatency.WithLabelValues(operation).Observe(latencyMs)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError counts an event that could not be enqueued.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

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
