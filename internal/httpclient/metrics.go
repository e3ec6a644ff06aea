package httpclient

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// AttemptMetrics records the lifecycle of one logical request, including
// the retries the client absorbed internally.
type AttemptMetrics struct {
	RequestID      string
	Endpoint       string
	Method         string
	StartedAt      time.Time
	EndedAt        time.Time
	RetryCount     int
	WasRateLimited bool
	Succeeded      bool
}

// metricsStore keeps per-request attempt metrics for a retention window.
// Entries older than the window are swept periodically; the store is not
// a durable audit log.
type metricsStore struct {
	mu      sync.Mutex
	entries map[string]*AttemptMetrics
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		entries: make(map[string]*AttemptMetrics),
	}
}

// begin creates a new entry and returns its request id.
func (s *metricsStore) begin(method, endpoint string, now time.Time) string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &AttemptMetrics{
		RequestID: id,
		Endpoint:  endpoint,
		Method:    method,
		StartedAt: now,
	}
	return id
}

// finish closes an entry with the final outcome.
func (s *metricsStore) finish(id string, now time.Time, retryCount int, rateLimited, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	entry.EndedAt = now
	entry.RetryCount = retryCount
	entry.WasRateLimited = rateLimited
	entry.Succeeded = succeeded
}

// snapshot returns copies of all entries.
func (s *metricsStore) snapshot() []AttemptMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AttemptMetrics, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	return out
}

// clearOld removes entries that started before now-maxAge.
// Returns the number of removed entries.
func (s *metricsStore) clearOld(maxAge time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if now.Sub(entry.StartedAt) > maxAge {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// PrometheusMetrics exposes client request outcomes on a dedicated
// registry so tests and multiple clients never collide on collector
// registration.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewPrometheusMetrics creates the collector set on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpclient_requests_total",
			Help: "Total outbound requests by method and final status class.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httpclient_request_duration_seconds",
			Help:    "Outbound request duration including internal retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpclient_retries_total",
			Help: "Retry attempts absorbed inside the client, by method.",
		}, []string{"method"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpclient_rate_limited_total",
			Help: "Requests denied by the pre-flight rate gate.",
		}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.retriesTotal, m.rateLimited)
	return m
}

// Registry returns the dedicated registry for exposition.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) observeRequest(method string, statusCode int, duration time.Duration, retries int) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode/100) + "xx"
	}
	m.requestsTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
	if retries > 0 {
		m.retriesTotal.WithLabelValues(method).Add(float64(retries))
	}
}

func (m *PrometheusMetrics) observeRateLimited() {
	m.rateLimited.Inc()
}
