package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// FramesProcessed counts frames that completed detection, per camera
	FramesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_frames_processed_total", Help: "Frames processed per camera source."},
		[]string{"source"},
	)
	// FramesDropped counts frames evicted by full queues, per camera
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_frames_dropped_total", Help: "Frames dropped by full queues per camera source."},
		[]string{"source"},
	)
	// DetectionFailures counts frames discarded because detection errored
	DetectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_detection_failures_total", Help: "Detection failures per camera source."},
		[]string{"source"},
	)
	// ActiveSources gauges the number of registered camera feeds
	ActiveSources = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "feed_active_sources", Help: "Registered camera feed sources."},
	)

	// OptimizeDuration records route optimization wall time in seconds
	OptimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimize_duration_seconds", Help: "Route optimization duration in seconds.", Buckets: prometheus.DefBuckets},
	)
	// OptimizeRequests counts optimization outcomes by status
	OptimizeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_requests_total", Help: "Route optimization requests by resulting status."},
		[]string{"status"},
	)

	// AlertDeliveries counts alert webhook delivery outcomes by event type and status
	AlertDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alert_deliveries_total", Help: "Alert deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// AlertLatency tracks alert delivery latencies in milliseconds
	AlertLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "alert_delivery_latency_ms", Help: "Alert delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(FramesProcessed)
		Registry.MustRegister(FramesDropped)
		Registry.MustRegister(DetectionFailures)
		Registry.MustRegister(ActiveSources)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(OptimizeRequests)
		Registry.MustRegister(AlertDeliveries)
		Registry.MustRegister(AlertLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
