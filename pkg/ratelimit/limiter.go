package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds construction options for RateLimiter.
type Config struct {
	// Window holds the default admission parameters, used when a check
	// does not supply its own WindowConfig.
	Window WindowConfig

	// Counter holds options for the underlying KeyedWindowCounter.
	Counter CounterConfig

	// CleanupInterval is how often stale records are swept.
	// Zero disables the background sweep. Default: 5 minutes
	CleanupInterval time.Duration

	// CleanupMaxAge removes records untouched for longer than this.
	// Default: 1 hour
	CleanupMaxAge time.Duration
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Window:          DefaultWindowConfig(),
		CleanupInterval: 5 * time.Minute,
		CleanupMaxAge:   1 * time.Hour,
	}
}

// RateLimiter is the top-level admission controller.
//
// It wraps a KeyedWindowCounter with a default configuration, success and
// failure feedback, and a scheduled sweep of stale records. Construct one
// long-lived instance per concern and inject it at call sites; the package
// deliberately exposes no global instance.
type RateLimiter struct {
	counter  *KeyedWindowCounter
	defaults WindowConfig

	cleanupMaxAge time.Duration
	scheduler     *cron.Cron
}

// New creates a RateLimiter and starts its background cleanup schedule
// (unless CleanupInterval is zero). Call Stop to halt the schedule.
func New(config Config) *RateLimiter {
	if config.CleanupMaxAge <= 0 {
		config.CleanupMaxAge = 1 * time.Hour
	}

	l := &RateLimiter{
		counter:       NewKeyedWindowCounter(config.Counter),
		defaults:      config.Window.withDefaults(),
		cleanupMaxAge: config.CleanupMaxAge,
	}

	if config.CleanupInterval > 0 {
		l.scheduler = cron.New()
		_, err := l.scheduler.AddFunc(fmt.Sprintf("@every %s", config.CleanupInterval), func() {
			l.Cleanup()
		})
		if err != nil {
			// The cron expression is generated from a valid duration, so
			// this only fires on a programming error.
			slog.Error("failed to schedule rate limit cleanup",
				slog.String("error", err.Error()))
		} else {
			l.scheduler.Start()
		}
	}

	return l
}

// Allow checks the key against the limiter's default window parameters.
func (l *RateLimiter) Allow(key string) *Decision {
	return l.counter.IsAllowed(key, l.defaults)
}

// AllowWithConfig checks the key against caller-supplied window parameters.
// Zero-value fields in config fall back to package defaults.
func (l *RateLimiter) AllowWithConfig(key string, config WindowConfig) *Decision {
	return l.counter.IsAllowed(key, config)
}

// RecordSuccess clears any active backoff for the key. A successful
// pass-through exonerates prior violations without resetting the window.
func (l *RateLimiter) RecordSuccess(key string) {
	l.counter.RecordSuccess(key)
}

// RecordFailure escalates the key's count, accelerating future backoff.
func (l *RateLimiter) RecordFailure(key string) {
	l.counter.RecordFailure(key)
}

// Cleanup sweeps records untouched for longer than the configured max age.
// Returns the number of records removed.
func (l *RateLimiter) Cleanup() int {
	return l.counter.Cleanup(l.cleanupMaxAge)
}

// KeyCount returns the number of keys currently tracked.
func (l *RateLimiter) KeyCount() int {
	return l.counter.KeyCount()
}

// Stop halts the background cleanup schedule. Safe to call when no
// schedule is running.
func (l *RateLimiter) Stop() {
	if l.scheduler != nil {
		l.scheduler.Stop()
	}
}

// LimitExceededError is returned by guarded functions when admission is
// denied. It carries the full decision so callers can surface RetryAfter.
type LimitExceededError struct {
	Decision *Decision
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry after %s",
		e.Decision.Key, e.Decision.RetryAfter)
}

// RetryAfter returns the duration the caller should wait before retrying.
func (e *LimitExceededError) RetryAfter() time.Duration {
	return e.Decision.RetryAfter
}

// Guard wraps fn with an admission check against the limiter.
//
// This is the explicit composition point for rate-limited operations:
// take a function and a config, get back a guarded function. Denied calls
// fail fast with *LimitExceededError and never invoke fn; outcomes feed
// back into the limiter so failing callers back off harder.
func Guard[T any](limiter *RateLimiter, key string, config WindowConfig, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var zero T

		decision := limiter.AllowWithConfig(key, config)
		if decision.IsDenied() {
			return zero, &LimitExceededError{Decision: decision}
		}

		result, err := fn(ctx)
		if err != nil {
			limiter.RecordFailure(key)
			return zero, err
		}

		limiter.RecordSuccess(key)
		return result, nil
	}
}
