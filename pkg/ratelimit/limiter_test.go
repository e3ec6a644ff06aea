package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testLimiter(clock Clock, window WindowConfig) *RateLimiter {
	return New(Config{
		Window:          window,
		Counter:         CounterConfig{Clock: clock, LimiterType: "test"},
		CleanupInterval: 0, // no background schedule in tests
	})
}

func TestRateLimiter_AllowUsesDefaults(t *testing.T) {
	limiter := testLimiter(newFakeClock(), WindowConfig{
		MaxRequests:       2,
		Window:            1 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Minute,
	})
	defer limiter.Stop()

	if d := limiter.Allow("user:articles"); !d.Allowed {
		t.Fatalf("1st call denied: %s", d)
	}
	if d := limiter.Allow("user:articles"); !d.Allowed {
		t.Fatalf("2nd call denied: %s", d)
	}
	if d := limiter.Allow("user:articles"); d.Allowed {
		t.Fatal("3rd call allowed, want denied")
	}
}

func TestGuard_DeniedFailsFast(t *testing.T) {
	limiter := testLimiter(newFakeClock(), WindowConfig{
		MaxRequests:       1,
		Window:            1 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Minute,
	})
	defer limiter.Stop()

	invocations := 0
	guarded := Guard(limiter, "user:submit", WindowConfig{
		MaxRequests:       1,
		Window:            1 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Minute,
	}, func(ctx context.Context) (int, error) {
		invocations++
		return 42, nil
	})

	result, err := guarded(context.Background())
	if err != nil {
		t.Fatalf("1st guarded call failed: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}

	_, err = guarded(context.Background())
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("err = %v, want *LimitExceededError", err)
	}
	if limitErr.RetryAfter() <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", limitErr.RetryAfter())
	}
	if invocations != 1 {
		t.Errorf("fn invoked %d times, want 1 (denied calls must not run fn)", invocations)
	}
}

func TestGuard_FailureFeedsBack(t *testing.T) {
	clock := newFakeClock()
	window := WindowConfig{
		MaxRequests:       3,
		Window:            1 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Minute,
	}
	limiter := testLimiter(clock, window)
	defer limiter.Stop()

	boom := errors.New("boom")
	guarded := Guard(limiter, "flaky", window, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, boom
	})

	// Each failed invocation both consumes quota and records a failure,
	// so the key exhausts after two calls instead of three.
	if _, err := guarded(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := guarded(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	_, err := guarded(context.Background())
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("err = %v, want *LimitExceededError after failure feedback", err)
	}
}

func TestRateLimiter_CleanupRemovesStaleKeys(t *testing.T) {
	clock := newFakeClock()
	limiter := New(Config{
		Counter:       CounterConfig{Clock: clock, LimiterType: "test"},
		CleanupMaxAge: 1 * time.Hour,
	})
	defer limiter.Stop()

	limiter.Allow("stale")
	clock.Advance(2 * time.Hour)
	limiter.Allow("active")

	if removed := limiter.Cleanup(); removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if count := limiter.KeyCount(); count != 1 {
		t.Errorf("KeyCount = %d, want 1", count)
	}
}
