package form

import (
	"log/slog"
	"sync"
	"time"

	"edgeguard/pkg/ratelimit"
)

// SubmissionGuard rate-limits form submissions per form identity. It is a
// lightweight local analogue of the keyed window counter: instead of a
// count per window it keeps the raw submission timestamps, prunes those
// outside the window, and denies once the survivors reach the limit.
type SubmissionGuard struct {
	mu          sync.Mutex
	submissions map[string][]time.Time
	clock       ratelimit.Clock
	logger      *slog.Logger
}

// NewSubmissionGuard creates an empty guard. A nil clock uses real time.
func NewSubmissionGuard(clock ratelimit.Clock, logger *slog.Logger) *SubmissionGuard {
	if clock == nil {
		clock = &ratelimit.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionGuard{
		submissions: make(map[string][]time.Time),
		clock:       clock,
		logger:      logger,
	}
}

// Allow records a submission attempt for formID and reports whether it is
// within maxSubmissions per window. A denied attempt is not recorded, so
// hammering a denied form does not extend the lockout.
func (g *SubmissionGuard) Allow(formID string, maxSubmissions int, window time.Duration) bool {
	now := g.clock.Now()
	cutoff := now.Add(-window)

	g.mu.Lock()
	defer g.mu.Unlock()

	recent := g.submissions[formID][:0]
	for _, ts := range g.submissions[formID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= maxSubmissions {
		g.submissions[formID] = recent
		g.logger.Debug("form submission denied",
			slog.String("form_id", formID),
			slog.Int("recent", len(recent)))
		return false
	}

	g.submissions[formID] = append(recent, now)
	return true
}

// Cleanup removes form entries whose newest submission is older than
// maxAge and returns the number removed.
func (g *SubmissionGuard) Cleanup(maxAge time.Duration) int {
	cutoff := g.clock.Now().Add(-maxAge)

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for formID, timestamps := range g.submissions {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(cutoff) {
			delete(g.submissions, formID)
			removed++
		}
	}
	return removed
}

// FormCount returns the number of tracked form identities.
func (g *SubmissionGuard) FormCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submissions)
}
