package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"edgeguard/internal/handler/http/middleware"
	"edgeguard/pkg/ratelimit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEdgeConfig_FullFile(t *testing.T) {
	path := writeConfig(t, `
edge:
  protections:
    csrf_check: false
  allowed_origins:
    - myapp.com
    - partner.example.org
  blocked_user_agents:
    - sqlmap
    - nikto
  scanned_headers:
    - User-Agent
  max_request_size_bytes: 524288
  session_timeout_minutes: 15
  block_duration_minutes: 120
  rate_limit:
    max_requests: 50
    window_seconds: 30
    backoff_multiplier: 3.0
    max_backoff_seconds: 600
`)

	config, err := LoadEdgeConfig(path)
	if err != nil {
		t.Fatalf("LoadEdgeConfig: %v", err)
	}
	sec := config.SecurityConfig()

	if sec.EnableCSRFCheck {
		t.Error("csrf_check: false should disable the stage")
	}
	// Omitted toggles stay on.
	if !sec.EnableXSSScan || !sec.EnableRateLimit || !sec.EnableIPBlocking {
		t.Error("omitted toggles should default to enabled")
	}
	if len(sec.AllowedOrigins) != 2 || sec.AllowedOrigins[0] != "myapp.com" {
		t.Errorf("AllowedOrigins = %v", sec.AllowedOrigins)
	}
	if len(sec.BlockedUserAgents) != 2 {
		t.Errorf("BlockedUserAgents = %v", sec.BlockedUserAgents)
	}
	if sec.MaxRequestSize != 524288 {
		t.Errorf("MaxRequestSize = %d", sec.MaxRequestSize)
	}
	if sec.SessionTimeout != 15*time.Minute {
		t.Errorf("SessionTimeout = %v", sec.SessionTimeout)
	}
	if sec.BlockDuration != 2*time.Hour {
		t.Errorf("BlockDuration = %v", sec.BlockDuration)
	}
	if sec.RateLimit.MaxRequests != 50 || sec.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimit = %+v", sec.RateLimit)
	}
	if sec.RateLimit.BackoffMultiplier != 3.0 || sec.RateLimit.MaxBackoff != 10*time.Minute {
		t.Errorf("RateLimit backoff = %+v", sec.RateLimit)
	}
}

func TestLoadEdgeConfig_MinimalFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, `
edge:
  allowed_origins:
    - myapp.com
`)

	config, err := LoadEdgeConfig(path)
	if err != nil {
		t.Fatalf("LoadEdgeConfig: %v", err)
	}
	sec := config.SecurityConfig()

	if !sec.EnableCSRFCheck || !sec.EnableCORSCheck {
		t.Error("all protections should default to enabled")
	}
	if sec.MaxRequestSize != 1<<20 {
		t.Errorf("MaxRequestSize = %d, want default 1 MiB", sec.MaxRequestSize)
	}
	if sec.RateLimit.MaxRequests != 100 || sec.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v, want defaults", sec.RateLimit)
	}
	if len(sec.BlockedUserAgents) == 0 {
		t.Error("default blocked user agents should apply")
	}

	// The only divergence from the stock defaults should be the origins.
	want := middleware.DefaultSecurityConfig()
	want.AllowedOrigins = []string{"myapp.com"}
	want.RateLimit = ratelimit.DefaultWindowConfig()
	if diff := cmp.Diff(want, sec); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEdgeConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative size", "edge:\n  allowed_origins: [myapp.com]\n  max_request_size_bytes: -1\n"},
		{"multiplier below one", "edge:\n  allowed_origins: [myapp.com]\n  rate_limit:\n    backoff_multiplier: 0.5\n"},
		{"cors without origins", "edge:\n  protections:\n    cors_check: true\n"},
		{"malformed yaml", "edge: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadEdgeConfig(path); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadEdgeConfig_MissingFile(t *testing.T) {
	if _, err := LoadEdgeConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
