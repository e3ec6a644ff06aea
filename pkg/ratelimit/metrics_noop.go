package ratelimit

import "time"

// NoOpMetrics is a Metrics implementation that discards all measurements.
//
// This implementation is used when metrics collection is disabled or for
// testing where metric output is irrelevant. All methods are no-ops.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// RecordAllowed does nothing.
func (m *NoOpMetrics) RecordAllowed(limiterType, key string) {}

// RecordDenied does nothing.
func (m *NoOpMetrics) RecordDenied(limiterType, key string) {}

// RecordBackoff does nothing.
func (m *NoOpMetrics) RecordBackoff(limiterType string, backoff time.Duration) {}

// RecordCheckDuration does nothing.
func (m *NoOpMetrics) RecordCheckDuration(limiterType string, duration time.Duration) {}

// SetActiveKeys does nothing.
func (m *NoOpMetrics) SetActiveKeys(limiterType string, count int) {}

// RecordEviction does nothing.
func (m *NoOpMetrics) RecordEviction(limiterType string, count int) {}
