package ratelimit

import (
	"fmt"
	"time"
)

// Decision represents the result of an admission check.
//
// This domain model encapsulates all information about whether a request
// should be allowed, along with metadata for the client to understand
// the current rate limit state. Decisions are pure output values and are
// never stored or mutated after construction.
type Decision struct {
	// Key is the identifier used for rate limiting (e.g., IP address,
	// "user:endpoint" pair, form id).
	Key string

	// Allowed indicates whether the request should be permitted.
	Allowed bool

	// Limit is the maximum number of requests allowed in the time window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	// Negative values indicate the request exceeded the limit.
	Remaining int

	// ResetAt is the time when the current window (or active backoff) ends.
	ResetAt time.Time

	// RetryAfter is the duration the caller should wait before retrying.
	// Zero when the request is allowed.
	RetryAfter time.Duration

	// LimiterType identifies which rate limiter made this decision.
	// Examples: "ip", "endpoint", "form"
	LimiterType string

	// Reason carries a short human-readable explanation for denials.
	// Empty when the request is allowed.
	Reason string
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf(
			"Decision{Allowed: true, Key: %s, Type: %s, Remaining: %d/%d, ResetAt: %s}",
			d.Key,
			d.LimiterType,
			d.Remaining,
			d.Limit,
			d.ResetAt.Format(time.RFC3339),
		)
	}

	return fmt.Sprintf(
		"Decision{Allowed: false, Key: %s, Type: %s, Limit: %d, RetryAfter: %s, Reason: %s}",
		d.Key,
		d.LimiterType,
		d.Limit,
		d.RetryAfter.String(),
		d.Reason,
	)
}

// IsDenied returns true if the request is denied.
//
// This is a convenience method equivalent to checking !Allowed.
func (d *Decision) IsDenied() bool {
	return !d.Allowed
}

// HasRemaining returns true if there are requests remaining in the current window.
func (d *Decision) HasRemaining() bool {
	return d.Remaining > 0
}

// ResetAtUnix returns the reset time as a Unix timestamp.
//
// This is useful for HTTP headers like X-RateLimit-Reset.
func (d *Decision) ResetAtUnix() int64 {
	return d.ResetAt.Unix()
}

// RetryAfterSeconds returns the retry delay in whole seconds.
//
// This is useful for HTTP headers like Retry-After.
func (d *Decision) RetryAfterSeconds() int64 {
	seconds := int64(d.RetryAfter.Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

// RetryAfterMillis returns the retry delay in milliseconds.
func (d *Decision) RetryAfterMillis() int64 {
	millis := d.RetryAfter.Milliseconds()
	if millis < 0 {
		return 0
	}
	return millis
}

// newAllowedDecision creates a Decision for an allowed request.
func newAllowedDecision(key, limiterType string, limit, remaining int, resetAt time.Time) *Decision {
	return &Decision{
		Key:         key,
		Allowed:     true,
		Limit:       limit,
		Remaining:   remaining,
		ResetAt:     resetAt,
		LimiterType: limiterType,
	}
}

// newDeniedDecision creates a Decision for a denied request.
//
// RetryAfter is the time the caller must wait before a retry has any
// chance of being admitted; Reason is a short explanation for logging.
func newDeniedDecision(key, limiterType string, limit int, retryAfter time.Duration, resetAt time.Time, reason string) *Decision {
	if retryAfter < 0 {
		retryAfter = 0
	}

	return &Decision{
		Key:         key,
		Allowed:     false,
		Limit:       limit,
		Remaining:   0,
		ResetAt:     resetAt,
		RetryAfter:  retryAfter,
		LimiterType: limiterType,
		Reason:      reason,
	}
}
