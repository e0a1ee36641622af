package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
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

	// OptimizationRuns counts engine calls by operation and final status
	OptimizationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_runs_total", Help: "Engine runs by operation and status."},
		[]string{"operation", "status"},
	)
	OptimizationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimization_duration_seconds", Help: "Engine run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120}},
		[]string{"operation"},
	)
	OptimizationIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimization_iterations", Help: "Search iterations per run.", Buckets: prometheus.ExponentialBuckets(1, 4, 8)},
		[]string{"operation"},
	)
	// PoolingOpportunities counts opportunities returned by the matcher
	PoolingOpportunities = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pooling_opportunities_total", Help: "Pooling opportunities found."},
	)
	// Savings accumulates estimated savings in currency units
	Savings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_savings_total", Help: "Estimated savings versus shipping individually."},
		[]string{"operation"},
	)
	ColumnsGenerated = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "colgen_pool_size", Help: "Column pool size at the end of a run.", Buckets: prometheus.ExponentialBuckets(4, 2, 10)},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers every collector on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(OptimizationRuns, OptimizationDuration, OptimizationIterations)
		Registry.MustRegister(PoolingOpportunities, Savings, ColumnsGenerated)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveRun records one finished engine call.
func ObserveRun(operation, status string, elapsed time.Duration, iterations int) {
	OptimizationRuns.WithLabelValues(operation, status).Inc()
	OptimizationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	OptimizationIterations.WithLabelValues(operation).Observe(float64(iterations))
}
