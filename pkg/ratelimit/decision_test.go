package ratelimit

import (
	"strings"
	"testing"
	"time"
)

func TestDecision_Accessors(t *testing.T) {
	resetAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		decision        *Decision
		wantDenied      bool
		wantRetrySecs   int64
		wantRetryMillis int64
		wantRemaining   bool
	}{
		{
			name:          "allowed with remaining quota",
			decision:      newAllowedDecision("10.0.0.1", "ip", 100, 42, resetAt),
			wantDenied:    false,
			wantRemaining: true,
		},
		{
			name:          "allowed with exhausted quota",
			decision:      newAllowedDecision("10.0.0.1", "ip", 100, 0, resetAt),
			wantDenied:    false,
			wantRemaining: false,
		},
		{
			name:            "denied with retry delay",
			decision:        newDeniedDecision("10.0.0.1", "ip", 100, 90*time.Second, resetAt, "rate limit exceeded"),
			wantDenied:      true,
			wantRetrySecs:   90,
			wantRetryMillis: 90000,
		},
		{
			name:       "denied with negative retry clamped to zero",
			decision:   newDeniedDecision("10.0.0.1", "ip", 100, -5*time.Second, resetAt, "rate limit exceeded"),
			wantDenied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.decision.IsDenied(); got != tt.wantDenied {
				t.Errorf("IsDenied() = %v, want %v", got, tt.wantDenied)
			}
			if got := tt.decision.RetryAfterSeconds(); got != tt.wantRetrySecs {
				t.Errorf("RetryAfterSeconds() = %d, want %d", got, tt.wantRetrySecs)
			}
			if got := tt.decision.RetryAfterMillis(); got != tt.wantRetryMillis {
				t.Errorf("RetryAfterMillis() = %d, want %d", got, tt.wantRetryMillis)
			}
			if got := tt.decision.HasRemaining(); got != tt.wantRemaining {
				t.Errorf("HasRemaining() = %v, want %v", got, tt.wantRemaining)
			}
			if got := tt.decision.ResetAtUnix(); got != resetAt.Unix() {
				t.Errorf("ResetAtUnix() = %d, want %d", got, resetAt.Unix())
			}
		})
	}
}

func TestDecision_StringIncludesReason(t *testing.T) {
	denied := newDeniedDecision("k", "ip", 10, time.Minute, time.Now(), "backoff active")
	if s := denied.String(); !strings.Contains(s, "backoff active") {
		t.Errorf("String() = %q, want reason included", s)
	}

	allowed := newAllowedDecision("k", "ip", 10, 5, time.Now())
	if s := allowed.String(); !strings.Contains(s, "Allowed: true") {
		t.Errorf("String() = %q, want allowed marker", s)
	}
}
