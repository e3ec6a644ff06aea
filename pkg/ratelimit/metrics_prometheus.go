package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// This implementation provides observability for admission control with:
//   - Request counters (allowed/denied) by limiter type and key
//   - Check duration histograms
//   - Backoff application counters and duration histograms
//   - Active key gauges for memory monitoring
//   - Eviction counters
//
// All metrics use a custom registry for better testability and isolation.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// requestsTotal tracks total admission checks by limiter type, status,
	// and key.
	// Labels:
	//   - limiter_type: "ip", "endpoint", "form", ...
	//   - status: "allowed" or "denied"
	//   - key: the rate limit key that was checked
	requestsTotal *prometheus.CounterVec

	// checkDuration tracks the duration of admission check operations.
	//
	// Buckets are optimized for fast in-memory checks (<5ms target).
	checkDuration *prometheus.HistogramVec

	// backoffDuration tracks the backoff durations applied to keys.
	backoffDuration *prometheus.HistogramVec

	// activeKeys tracks the current number of tracked keys.
	activeKeys *prometheus.GaugeVec

	// evictionsTotal tracks the total number of evicted keys.
	evictionsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with a
// custom registry.
//
// Using a custom registry (instead of the global prometheus.DefaultRegisterer)
// provides:
//   - Better testability (isolated metrics per test)
//   - No metric conflicts when running multiple instances
//   - Explicit metric lifecycle management
//
// The registry can be passed to promhttp.HandlerFor() to expose metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_requests_total",
			Help: "Total admission checks by limiter type, status, and key",
		},
		[]string{"limiter_type", "status", "key"},
	)

	checkDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_check_duration_seconds",
			Help:    "Duration of admission check operations",
			Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"limiter_type"},
	)

	backoffDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_backoff_duration_seconds",
			Help:    "Backoff durations applied to keys that exceeded their limit",
			Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"limiter_type"},
	)

	activeKeys := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratelimit_active_keys",
			Help: "Current number of tracked keys by limiter type",
		},
		[]string{"limiter_type"},
	)

	evictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_evictions_total",
			Help: "Total evicted keys by limiter type",
		},
		[]string{"limiter_type"},
	)

	registry.MustRegister(
		requestsTotal,
		checkDuration,
		backoffDuration,
		activeKeys,
		evictionsTotal,
	)

	return &PrometheusMetrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		checkDuration:   checkDuration,
		backoffDuration: backoffDuration,
		activeKeys:      activeKeys,
		evictionsTotal:  evictionsTotal,
	}
}

// Registry returns the Prometheus registry containing all rate limit metrics.
//
// This can be used with promhttp.HandlerFor() to expose metrics:
//
//	metrics := NewPrometheusMetrics()
//	http.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAllowed records an admission check that allowed the request.
func (m *PrometheusMetrics) RecordAllowed(limiterType, key string) {
	m.requestsTotal.WithLabelValues(limiterType, "allowed", key).Inc()
}

// RecordDenied records an admission check that denied the request.
func (m *PrometheusMetrics) RecordDenied(limiterType, key string) {
	m.requestsTotal.WithLabelValues(limiterType, "denied", key).Inc()
}

// RecordBackoff records that a key entered (or escalated) backoff.
func (m *PrometheusMetrics) RecordBackoff(limiterType string, backoff time.Duration) {
	m.backoffDuration.WithLabelValues(limiterType).Observe(backoff.Seconds())
}

// RecordCheckDuration records the duration of an admission check.
//
// Durations above 10ms indicate contention on the counter mutex and are
// worth alerting on.
func (m *PrometheusMetrics) RecordCheckDuration(limiterType string, duration time.Duration) {
	m.checkDuration.WithLabelValues(limiterType).Observe(duration.Seconds())
}

// SetActiveKeys records the current number of tracked keys.
//
// This metric is useful for monitoring memory usage and triggering alerts
// when approaching capacity (e.g., >80% of max keys).
func (m *PrometheusMetrics) SetActiveKeys(limiterType string, count int) {
	m.activeKeys.WithLabelValues(limiterType).Set(float64(count))
}

// RecordEviction records that keys were evicted from the counter.
//
// High eviction rates may indicate a DoS attack with many unique keys or
// an undersized MaxKeys configuration.
func (m *PrometheusMetrics) RecordEviction(limiterType string, count int) {
	m.evictionsTotal.WithLabelValues(limiterType).Add(float64(count))
}
