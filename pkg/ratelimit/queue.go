package ratelimit

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// RequestQueue admits tasks first-in-first-out with a bound on concurrent
// execution and a pacing interval between admissions.
//
// The queue smooths burst arrival into paced throughput: at most
// maxConcurrent tasks run at once, successive admissions are spaced at
// least the configured interval apart, and a completed task holds its
// slot for one more interval, so the gap survives even behind a task
// that runs longer than the interval. Each task resolves with its own
// outcome; the queue never swallows or rewrites task errors.
type RequestQueue struct {
	sem   *semaphore.Weighted
	pace  *rate.Limiter
	delay time.Duration
}

// NewRequestQueue creates a queue admitting at most maxConcurrent tasks
// at a time, with at least interCallDelay between successive admissions.
//
// maxConcurrent values below 1 are treated as 1. A zero interCallDelay
// disables pacing.
func NewRequestQueue(maxConcurrent int, interCallDelay time.Duration) *RequestQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	pace := rate.NewLimiter(rate.Inf, 1)
	if interCallDelay > 0 {
		pace = rate.NewLimiter(rate.Every(interCallDelay), 1)
	}

	return &RequestQueue{
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
		pace:  pace,
		delay: interCallDelay,
	}
}

// Do enqueues task and blocks until it has run or ctx is done.
//
// Waiters are admitted in arrival order. The returned error is the task's
// own error, or the context error if ctx is cancelled while waiting for
// admission.
func (q *RequestQueue) Do(ctx context.Context, task func(context.Context) error) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := q.pace.Wait(ctx); err != nil {
		q.sem.Release(1)
		return err
	}

	err := task(ctx)

	// The pacing gap is measured from completion: the slot is held for
	// another interval so a slow task cannot erase the gap before the
	// next admission. The caller is not kept waiting for it.
	if q.delay > 0 {
		time.AfterFunc(q.delay, func() { q.sem.Release(1) })
	} else {
		q.sem.Release(1)
	}
	return err
}

// Enqueue runs a task with a typed result through the queue.
//
// This is the generic companion to RequestQueue.Do for tasks that produce
// a value. The zero value of T is returned alongside any admission or
// task error.
func Enqueue[T any](ctx context.Context, q *RequestQueue, task func(context.Context) (T, error)) (T, error) {
	var result T
	err := q.Do(ctx, func(ctx context.Context) error {
		var taskErr error
		result, taskErr = task(ctx)
		return taskErr
	})
	return result, err
}
