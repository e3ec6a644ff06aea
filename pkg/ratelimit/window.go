package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// windowRecord tracks the admission state for a single key.
//
// Invariant: backoffUntil, when set, is never before lastSeen.
type windowRecord struct {
	count        int
	windowStart  time.Time
	lastSeen     time.Time
	backoffUntil time.Time // zero when no backoff is active
}

// KeyedWindowCounter is a thread-safe per-key request counter with
// escalating exponential backoff.
//
// Each key owns a fixed-duration window: the first request starts the
// window, requests beyond MaxRequests within it are denied, and every
// excess request escalates a geometric lockout capped at MaxBackoff.
// When the window expires the key starts fresh.
//
// Features:
//   - Clock skew protection to handle system time changes
//   - LRU-style eviction to bound memory (least recently seen key)
//   - Cleanup of records untouched beyond a max age
//
// State is in-memory only and is deliberately forgotten on process
// restart; that staleness is an accepted tradeoff for simplicity.
type KeyedWindowCounter struct {
	mu      sync.Mutex
	records map[string]*windowRecord

	maxKeys     int
	clock       Clock
	metrics     Metrics
	limiterType string
}

// NewKeyedWindowCounter creates a new counter with the given options.
// Zero-value fields in config are replaced with defaults.
func NewKeyedWindowCounter(config CounterConfig) *KeyedWindowCounter {
	config = config.withDefaults()

	return &KeyedWindowCounter{
		records:     make(map[string]*windowRecord),
		maxKeys:     config.MaxKeys,
		clock:       config.Clock,
		metrics:     config.Metrics,
		limiterType: config.LimiterType,
	}
}

// IsAllowed determines whether a request for the given key should be
// admitted under the supplied window parameters.
//
// Algorithm:
//  1. If the key has an active backoff, deny with RetryAfter until it ends.
//  2. If no record exists or the window has expired, start a fresh window
//     with count 1 and allow.
//  3. If count < MaxRequests, increment and allow.
//  4. Otherwise increment count and apply escalating backoff:
//     backoff = min(Window * BackoffMultiplier^(count-MaxRequests), MaxBackoff).
//
// IsAllowed never panics and never returns a nil decision; malformed
// input (an empty key) surfaces as a denial with a Reason, so callers can
// treat every denial uniformly.
//
// Decisions for a single key are linearized: the per-counter mutex is held
// across the read-modify-write so concurrent goroutines cannot race on a
// key's count or backoff state.
func (c *KeyedWindowCounter) IsAllowed(key string, config WindowConfig) *Decision {
	start := c.clock.Now()
	config = config.withDefaults()

	if key == "" {
		return newDeniedDecision("", c.limiterType, config.MaxRequests, 0, start, "empty rate limit key")
	}

	c.mu.Lock()
	decision := c.check(key, config)
	c.mu.Unlock()

	c.metrics.RecordCheckDuration(c.limiterType, c.clock.Now().Sub(start))
	if decision.Allowed {
		c.metrics.RecordAllowed(c.limiterType, key)
	} else {
		c.metrics.RecordDenied(c.limiterType, key)
	}

	return decision
}

// check performs the admission decision. Caller must hold c.mu.
func (c *KeyedWindowCounter) check(key string, config WindowConfig) *Decision {
	now := c.validTimestamp(key)

	rec, exists := c.records[key]

	// Active backoff denies immediately, regardless of window state.
	if exists && !rec.backoffUntil.IsZero() && rec.backoffUntil.After(now) {
		rec.lastSeen = now
		retryAfter := rec.backoffUntil.Sub(now)
		return newDeniedDecision(key, c.limiterType, config.MaxRequests, retryAfter, rec.backoffUntil, "backoff active")
	}

	// Fresh window: no record, or the previous window has fully elapsed.
	if !exists || now.Sub(rec.windowStart) > config.Window {
		if !exists && len(c.records) >= c.maxKeys {
			c.evictOldest()
		}
		c.records[key] = &windowRecord{
			count:       1,
			windowStart: now,
			lastSeen:    now,
		}
		return newAllowedDecision(key, c.limiterType, config.MaxRequests, config.MaxRequests-1, now.Add(config.Window))
	}

	rec.lastSeen = now

	// Within the window and under the limit.
	if rec.count < config.MaxRequests {
		rec.count++
		return newAllowedDecision(key, c.limiterType, config.MaxRequests, config.MaxRequests-rec.count, rec.windowStart.Add(config.Window))
	}

	// Over the limit: escalate backoff. The exponent grows with each
	// excess request so sustained abuse is punished harder than a burst.
	rec.count++
	excess := rec.count - config.MaxRequests
	backoff := scaleBackoff(config.Window, config.BackoffMultiplier, excess, config.MaxBackoff)
	rec.backoffUntil = now.Add(backoff)

	c.metrics.RecordBackoff(c.limiterType, backoff)
	slog.Debug("rate limit exceeded, backoff applied",
		slog.String("limiter_type", c.limiterType),
		slog.String("key", key),
		slog.Int("count", rec.count),
		slog.Int("limit", config.MaxRequests),
		slog.Duration("backoff", backoff),
	)

	return newDeniedDecision(key, c.limiterType, config.MaxRequests, backoff, rec.backoffUntil, "rate limit exceeded")
}

// scaleBackoff computes Window * multiplier^excess, capped at maxBackoff.
func scaleBackoff(window time.Duration, multiplier float64, excess int, maxBackoff time.Duration) time.Duration {
	scaled := float64(window) * math.Pow(multiplier, float64(excess))
	if scaled > float64(maxBackoff) || math.IsInf(scaled, 1) {
		return maxBackoff
	}
	return time.Duration(scaled)
}

// RecordSuccess clears any active backoff for the key.
//
// A successful pass-through exonerates prior violations but does not reset
// the window count, so the quota itself is still enforced.
func (c *KeyedWindowCounter) RecordSuccess(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[key]; ok {
		rec.backoffUntil = time.Time{}
	}
}

// RecordFailure increments the key's count without moving the window
// boundary, accelerating future backoff escalation for callers that keep
// failing.
func (c *KeyedWindowCounter) RecordFailure(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[key]; ok {
		rec.count++
		rec.lastSeen = c.clock.Now()
	}
}

// Cleanup removes records that have not been touched for longer than
// maxAge, bounding memory for keys that went quiet.
//
// Returns the number of records removed.
func (c *KeyedWindowCounter) Cleanup(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock.Now().Add(-maxAge)
	removed := 0

	for key, rec := range c.records {
		if rec.lastSeen.Before(cutoff) {
			delete(c.records, key)
			removed++
		}
	}

	if removed > 0 {
		c.metrics.RecordEviction(c.limiterType, removed)
		slog.Debug("cleaned up stale rate limit records",
			slog.String("limiter_type", c.limiterType),
			slog.Int("removed", removed),
			slog.Int("remaining", len(c.records)),
		)
	}
	c.metrics.SetActiveKeys(c.limiterType, len(c.records))

	return removed
}

// KeyCount returns the number of keys currently tracked.
func (c *KeyedWindowCounter) KeyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.records)
}

// validTimestamp returns the current time with clock skew protection.
//
// If the system clock went backwards relative to the key's last seen
// timestamp (NTP adjustment, manual change), the last seen time is used
// instead so the window cannot be reset by time manipulation.
// Caller must hold c.mu.
func (c *KeyedWindowCounter) validTimestamp(key string) time.Time {
	now := c.clock.Now()

	rec, ok := c.records[key]
	if ok && now.Before(rec.lastSeen) {
		slog.Warn("clock skew detected, using last valid timestamp",
			slog.String("limiter_type", c.limiterType),
			slog.String("key", key),
			slog.Time("now", now),
			slog.Time("last_seen", rec.lastSeen),
			slog.Duration("skew", rec.lastSeen.Sub(now)),
		)
		return rec.lastSeen
	}

	return now
}

// evictOldest removes the least recently seen record to make room for a
// new key. Caller must hold c.mu.
func (c *KeyedWindowCounter) evictOldest() {
	var oldestKey string
	var oldest time.Time

	for key, rec := range c.records {
		if oldestKey == "" || rec.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = rec.lastSeen
		}
	}

	if oldestKey != "" {
		delete(c.records, oldestKey)
		c.metrics.RecordEviction(c.limiterType, 1)
	}
}
