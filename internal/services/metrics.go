package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application. All
// methods tolerate a nil receiver so wiring metrics stays optional.
type Metrics struct {
	// Orchestration metrics
	ContextRequests prometheus.Counter
	ContextLatency  prometheus.Histogram
	ContextDegraded prometheus.Counter

	// Session cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Background task metrics
	TaskStatus *prometheus.CounterVec
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		ContextRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recall_context_requests_total",
			Help: "Total number of context orchestration requests",
		}),

		ContextLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recall_context_request_duration_seconds",
			Help:    "Context orchestration latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 25, 30}, // pipeline deadline is 25s
		}),

		ContextDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recall_context_degraded_total",
			Help: "Total number of requests served by a degraded path",
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recall_session_cache_hits_total",
			Help: "Total number of session cache hits",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recall_session_cache_misses_total",
			Help: "Total number of session cache misses",
		}),

		TaskStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_background_tasks_total",
			Help: "Total number of background task status transitions",
		}, []string{"status"}),
	}

	return metrics
}

// ObserveRequest records a context orchestration request
func (m *Metrics) ObserveRequest() {
	if m == nil {
		return
	}
	m.ContextRequests.Inc()
}

// ObserveLatency records how long orchestration took
func (m *Metrics) ObserveLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ContextLatency.Observe(d.Seconds())
}

// ObserveDegraded records a request served by a degraded path
func (m *Metrics) ObserveDegraded() {
	if m == nil {
		return
	}
	m.ContextDegraded.Inc()
}

// ObserveCacheHit records a session cache hit
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObserveCacheMiss records a session cache miss
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// ObserveTaskStatus records a background task status transition
func (m *Metrics) ObserveTaskStatus(status string) {
	if m == nil {
		return
	}
	m.TaskStatus.WithLabelValues(status).Inc()
}
