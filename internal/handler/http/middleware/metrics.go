package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// MetricsSnapshot is a read-only copy of the cumulative security counters.
type MetricsSnapshot struct {
	TotalRequests        int64
	BlockedRequests      int64
	XSSAttempts          int64
	SQLInjectionAttempts int64
	CSRFFailures         int64
	RateLimitHits        int64
	LastReset            time.Time
}

// SecurityMetrics tracks pipeline outcomes two ways: cumulative in-memory
// counters that reset hourly (the snapshot callers poll), and prometheus
// counters on a dedicated registry that never reset.
type SecurityMetrics struct {
	mu       sync.Mutex
	counters MetricsSnapshot

	registry      *prometheus.Registry
	requestsTotal prometheus.Counter
	blockedTotal  *prometheus.CounterVec

	scheduler *cron.Cron
	logger    *slog.Logger
}

// NewSecurityMetrics creates the metrics set and starts the hourly reset
// of the in-memory counters. Call Stop to halt the reset schedule.
func NewSecurityMetrics(logger *slog.Logger) *SecurityMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()

	m := &SecurityMetrics{
		counters: MetricsSnapshot{LastReset: time.Now()},
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edge_security_requests_total",
			Help: "Total requests inspected by the security pipeline.",
		}),
		blockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_security_blocked_total",
			Help: "Requests blocked by the security pipeline, by stage.",
		}, []string{"stage"}),
		logger: logger,
	}
	registry.MustRegister(m.requestsTotal, m.blockedTotal)

	m.scheduler = cron.New()
	_, err := m.scheduler.AddFunc("@every 1h", m.Reset)
	if err != nil {
		logger.Error("failed to schedule metrics reset", slog.String("error", err.Error()))
	} else {
		m.scheduler.Start()
	}
	return m
}

// Registry returns the dedicated prometheus registry for exposition.
func (m *SecurityMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Stop halts the hourly reset schedule.
func (m *SecurityMetrics) Stop() {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
}

// RecordRequest counts an inspected request.
func (m *SecurityMetrics) RecordRequest() {
	m.requestsTotal.Inc()
	m.mu.Lock()
	m.counters.TotalRequests++
	m.mu.Unlock()
}

// RecordBlocked counts a blocked request attributed to a pipeline stage.
func (m *SecurityMetrics) RecordBlocked(stage string) {
	m.blockedTotal.WithLabelValues(stage).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.BlockedRequests++
	switch stage {
	case stageXSSScan:
		m.counters.XSSAttempts++
	case stageSQLiScan:
		m.counters.SQLInjectionAttempts++
	case stageCSRFCheck:
		m.counters.CSRFFailures++
	case stageRateLimit:
		m.counters.RateLimitHits++
	}
}

// Snapshot returns a copy of the in-memory counters.
func (m *SecurityMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

// Reset zeroes the in-memory counters. Prometheus counters are cumulative
// by contract and are not touched.
func (m *SecurityMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = MetricsSnapshot{LastReset: time.Now()}
	m.logger.Debug("security metrics reset")
}
