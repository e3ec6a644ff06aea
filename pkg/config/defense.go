package config

import (
	"log/slog"
	"time"

	"edgeguard/pkg/ratelimit"
)

// LoadRateLimitConfig loads admission-control configuration from
// environment variables.
//
// Invalid values log a warning and fall back to safe defaults instead of
// failing startup; rate limiting misconfiguration should degrade, not
// take the process down.
//
// Environment variables:
//   - RATELIMIT_MAX_REQUESTS: Requests allowed per window (default: 100)
//   - RATELIMIT_WINDOW: Window duration (default: 1m)
//   - RATELIMIT_BACKOFF_MULTIPLIER: Backoff escalation base (default: 2.0)
//   - RATELIMIT_MAX_BACKOFF: Backoff cap (default: 5m)
//   - RATELIMIT_MAX_KEYS: Maximum tracked keys (default: 10000)
//   - RATELIMIT_CLEANUP_INTERVAL: Stale record sweep interval (default: 5m)
//   - RATELIMIT_CLEANUP_MAX_AGE: Stale record max age (default: 1h)
func LoadRateLimitConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()

	maxRequests := GetEnvInt("RATELIMIT_MAX_REQUESTS", cfg.Window.MaxRequests)
	if maxRequests <= 0 {
		slog.Warn("invalid RATELIMIT_MAX_REQUESTS, using default",
			slog.Int("value", maxRequests),
			slog.Int("default", cfg.Window.MaxRequests))
	} else {
		cfg.Window.MaxRequests = maxRequests
	}

	window := GetEnvDuration("RATELIMIT_WINDOW", cfg.Window.Window)
	if err := ValidatePositiveDuration(window); err != nil {
		slog.Warn("invalid RATELIMIT_WINDOW, using default",
			slog.String("value", window.String()),
			slog.String("error", err.Error()))
	} else {
		cfg.Window.Window = window
	}

	multiplier := GetEnvFloat("RATELIMIT_BACKOFF_MULTIPLIER", cfg.Window.BackoffMultiplier)
	if multiplier < 1.0 {
		slog.Warn("invalid RATELIMIT_BACKOFF_MULTIPLIER, using default",
			slog.Float64("value", multiplier),
			slog.Float64("default", cfg.Window.BackoffMultiplier))
	} else {
		cfg.Window.BackoffMultiplier = multiplier
	}

	maxBackoff := GetEnvDuration("RATELIMIT_MAX_BACKOFF", cfg.Window.MaxBackoff)
	if err := ValidatePositiveDuration(maxBackoff); err != nil {
		slog.Warn("invalid RATELIMIT_MAX_BACKOFF, using default",
			slog.String("value", maxBackoff.String()),
			slog.String("error", err.Error()))
	} else {
		cfg.Window.MaxBackoff = maxBackoff
	}

	cfg.Counter.MaxKeys = GetEnvInt("RATELIMIT_MAX_KEYS", 10000)

	cleanupInterval := GetEnvDuration("RATELIMIT_CLEANUP_INTERVAL", cfg.CleanupInterval)
	if err := ValidateDurationRange(cleanupInterval, 10*time.Second, 24*time.Hour); err != nil {
		slog.Warn("invalid RATELIMIT_CLEANUP_INTERVAL, using default",
			slog.String("value", cleanupInterval.String()),
			slog.String("error", err.Error()))
	} else {
		cfg.CleanupInterval = cleanupInterval
	}

	cleanupMaxAge := GetEnvDuration("RATELIMIT_CLEANUP_MAX_AGE", cfg.CleanupMaxAge)
	if err := ValidatePositiveDuration(cleanupMaxAge); err != nil {
		slog.Warn("invalid RATELIMIT_CLEANUP_MAX_AGE, using default",
			slog.String("value", cleanupMaxAge.String()),
			slog.String("error", err.Error()))
	} else {
		cfg.CleanupMaxAge = cleanupMaxAge
	}

	return cfg
}
