// Package ratelimit provides framework-agnostic request admission control.
//
// The package implements a keyed window counter with escalating exponential
// backoff, plus the utilities commonly needed around it: throttle and
// debounce wrappers, and a bounded, paced FIFO request queue. It is designed
// to be reusable across different contexts (HTTP middleware, outbound
// clients, background jobs) and carries no storage or transport dependency.
package ratelimit

import (
	"time"
)

// Metrics defines the interface for recording rate limiting metrics.
//
// Implementations can use Prometheus, StatsD, or custom metrics systems.
type Metrics interface {
	// RecordAllowed records an admission check that allowed the request.
	//
	// Parameters:
	//   - limiterType: Type of rate limiter (e.g., "ip", "endpoint", "form")
	//   - key: The rate limit key that was checked
	RecordAllowed(limiterType, key string)

	// RecordDenied records an admission check that denied the request.
	//
	// Parameters:
	//   - limiterType: Type of rate limiter (e.g., "ip", "endpoint", "form")
	//   - key: The rate limit key that was checked
	RecordDenied(limiterType, key string)

	// RecordBackoff records that a key entered (or escalated) backoff.
	//
	// Parameters:
	//   - limiterType: Type of rate limiter
	//   - backoff: Duration of the backoff that was applied
	RecordBackoff(limiterType string, backoff time.Duration)

	// RecordCheckDuration records the duration of an admission check.
	//
	// Parameters:
	//   - limiterType: Type of rate limiter
	//   - duration: Time taken to perform the check
	RecordCheckDuration(limiterType string, duration time.Duration)

	// SetActiveKeys records the current number of tracked keys.
	//
	// Parameters:
	//   - limiterType: Type of rate limiter
	//   - count: Number of active keys
	SetActiveKeys(limiterType string, count int)

	// RecordEviction records that keys were evicted to bound memory.
	//
	// Parameters:
	//   - limiterType: Type of rate limiter
	//   - count: Number of keys evicted
	RecordEviction(limiterType string, count int)
}

// Clock provides an abstraction for time operations to enable testing.
//
// This interface allows for dependency injection of time functions,
// making it easy to test time-dependent behavior with fake clocks.
type Clock interface {
	// Now returns the current time.
	//
	// Production implementations should return time.Now().
	// Test implementations can return fixed or controlled times.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
