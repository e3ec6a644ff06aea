package ratelimit

import (
	"sync"
	"time"
)

// ThrottleOptions controls which edges of a call burst fire.
type ThrottleOptions struct {
	// Leading fires the wrapped function on the first call of a burst.
	Leading bool

	// Trailing schedules one final invocation after the burst quiets,
	// at the end of the current interval.
	Trailing bool
}

// Throttle returns a wrapper around fn that invokes it at most once per
// interval.
//
// With Leading set, the first call of a burst fires immediately. With
// Trailing set, a call arriving inside a closed interval schedules one
// invocation for the end of that interval. Both may be combined. With
// neither set, calls inside a closed interval are silently dropped.
//
// The wrapper is safe for concurrent use. Trailing invocations run on a
// timer goroutine.
func Throttle(fn func(), interval time.Duration, opts ThrottleOptions) func() {
	var mu sync.Mutex
	var lastRun time.Time
	var timer *time.Timer
	var pending bool

	return func() {
		mu.Lock()

		now := time.Now()
		open := lastRun.IsZero() || now.Sub(lastRun) >= interval

		if opts.Leading && open {
			lastRun = now
			mu.Unlock()
			fn()
			return
		}

		if opts.Trailing {
			pending = true
			if timer == nil {
				wait := interval - now.Sub(lastRun)
				if wait <= 0 {
					wait = interval
				}
				timer = time.AfterFunc(wait, func() {
					mu.Lock()
					timer = nil
					fire := pending
					pending = false
					if fire {
						lastRun = time.Now()
					}
					mu.Unlock()

					if fire {
						fn()
					}
				})
			}
		}

		mu.Unlock()
	}
}

// Debounce returns a wrapper around fn that collapses rapid repeated
// calls into a single invocation, delay after the most recent call.
//
// Each new call cancels any pending scheduled invocation and restarts the
// timer, so fn only runs once the caller has gone quiet for the full
// delay. The wrapper is safe for concurrent use; the invocation runs on a
// timer goroutine.
func Debounce(fn func(), delay time.Duration) func() {
	var mu sync.Mutex
	var timer *time.Timer

	return func() {
		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, fn)
	}
}
