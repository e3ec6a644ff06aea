package ratelimit

import (
	"fmt"
	"time"
)

// WindowConfig contains the per-key admission parameters.
//
// The counter enforces MaxRequests per Window. Requests beyond the limit
// place the key into backoff: the lockout duration grows geometrically with
// each excess request (Window * BackoffMultiplier^n) and is capped at
// MaxBackoff so a sustained abuser is punished harder than a single burst
// without the lockout growing without bound.
type WindowConfig struct {
	// MaxRequests is the maximum number of requests allowed per window.
	// Default: 100
	MaxRequests int

	// Window is the duration of the quota period. The window resets
	// entirely when it expires rather than rolling continuously.
	// Default: 1 minute
	Window time.Duration

	// BackoffMultiplier is the base of the geometric backoff escalation.
	// Default: 2.0
	BackoffMultiplier float64

	// MaxBackoff caps the computed backoff duration.
	// Default: 5 minutes
	MaxBackoff time.Duration
}

// DefaultWindowConfig returns the default admission parameters.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxRequests:       100,
		Window:            1 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Minute,
	}
}

// Validate checks the configuration for invalid values.
func (c WindowConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	if c.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be >= 1.0, got %v", c.BackoffMultiplier)
	}
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("max backoff must be positive, got %v", c.MaxBackoff)
	}
	return nil
}

// withDefaults returns a copy of the configuration with zero values
// replaced by defaults. Constructors apply this so callers can set only
// the fields they care about.
func (c WindowConfig) withDefaults() WindowConfig {
	d := DefaultWindowConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.BackoffMultiplier < 1.0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// CounterConfig holds construction options for KeyedWindowCounter.
type CounterConfig struct {
	// MaxKeys bounds the number of tracked keys. When the limit is
	// reached, the least recently seen keys are evicted.
	// Default: 10000
	MaxKeys int

	// Clock provides time operations for testing.
	// Default: SystemClock
	Clock Clock

	// Metrics records admission outcomes.
	// Default: NoOpMetrics
	Metrics Metrics

	// LimiterType labels this counter in logs and metrics.
	// Examples: "ip", "endpoint", "form". Default: "default"
	LimiterType string
}

// withDefaults returns a copy of the configuration with defaults applied.
func (c CounterConfig) withDefaults() CounterConfig {
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	if c.Clock == nil {
		c.Clock = &SystemClock{}
	}
	if c.Metrics == nil {
		c.Metrics = NewNoOpMetrics()
	}
	if c.LimiterType == "" {
		c.LimiterType = "default"
	}
	return c
}
