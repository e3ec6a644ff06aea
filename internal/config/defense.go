// Package config loads the edge defense configuration from a YAML file
// and converts it into the typed configs the pipeline components consume.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"edgeguard/internal/handler/http/middleware"
	"edgeguard/pkg/ratelimit"
)

// EdgeConfig is the YAML schema for edge defense settings.
//
// Protection toggles are pointers so an omitted key means "enabled", the
// safe default; only an explicit `false` turns a stage off.
type EdgeConfig struct {
	Edge struct {
		Protections struct {
			IPBlocking     *bool `yaml:"ip_blocking"`
			UserAgentCheck *bool `yaml:"user_agent_check"`
			RateLimit      *bool `yaml:"rate_limit"`
			CORSCheck      *bool `yaml:"cors_check"`
			SizeCheck      *bool `yaml:"size_check"`
			XSSScan        *bool `yaml:"xss_scan"`
			SQLiScan       *bool `yaml:"sqli_scan"`
			CSRFCheck      *bool `yaml:"csrf_check"`
		} `yaml:"protections"`

		AllowedOrigins    []string `yaml:"allowed_origins"`
		BlockedUserAgents []string `yaml:"blocked_user_agents"`
		ScannedHeaders    []string `yaml:"scanned_headers"`

		MaxRequestSizeBytes   int64 `yaml:"max_request_size_bytes"`
		SessionTimeoutMinutes int   `yaml:"session_timeout_minutes"`
		BlockDurationMinutes  int   `yaml:"block_duration_minutes"`

		RateLimit struct {
			MaxRequests       int     `yaml:"max_requests"`
			WindowSeconds     int     `yaml:"window_seconds"`
			BackoffMultiplier float64 `yaml:"backoff_multiplier"`
			MaxBackoffSeconds int     `yaml:"max_backoff_seconds"`
		} `yaml:"rate_limit"`
	} `yaml:"edge"`
}

// LoadEdgeConfig loads edge defense configuration from a YAML file.
// The path is expected to come from a trusted source (command-line
// argument or hardcoded default).
func LoadEdgeConfig(path string) (*EdgeConfig, error) {
	// #nosec G304 -- path is provided by trusted source (CLI arg or config), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config EdgeConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateEdgeConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// validateEdgeConfig rejects values that would silently weaken or break
// the pipeline at runtime.
func validateEdgeConfig(config *EdgeConfig) error {
	e := &config.Edge

	if e.MaxRequestSizeBytes < 0 {
		return fmt.Errorf("max_request_size_bytes must not be negative")
	}
	if e.SessionTimeoutMinutes < 0 {
		return fmt.Errorf("session_timeout_minutes must not be negative")
	}
	if e.BlockDurationMinutes < 0 {
		return fmt.Errorf("block_duration_minutes must not be negative")
	}

	if e.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests must not be negative")
	}
	if e.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("rate_limit.window_seconds must not be negative")
	}
	if e.RateLimit.BackoffMultiplier != 0 && e.RateLimit.BackoffMultiplier < 1.0 {
		return fmt.Errorf("rate_limit.backoff_multiplier must be >= 1.0")
	}

	if enabled(e.Protections.CORSCheck) && len(e.AllowedOrigins) == 0 {
		return fmt.Errorf("cors_check is enabled but allowed_origins is empty")
	}
	return nil
}

// SecurityConfig converts the loaded YAML into the middleware
// configuration, filling omitted values from the defaults.
func (c *EdgeConfig) SecurityConfig() middleware.SecurityConfig {
	e := &c.Edge
	out := middleware.DefaultSecurityConfig()

	out.EnableIPBlocking = enabled(e.Protections.IPBlocking)
	out.EnableUserAgentCheck = enabled(e.Protections.UserAgentCheck)
	out.EnableRateLimit = enabled(e.Protections.RateLimit)
	out.EnableCORSCheck = enabled(e.Protections.CORSCheck)
	out.EnableSizeCheck = enabled(e.Protections.SizeCheck)
	out.EnableXSSScan = enabled(e.Protections.XSSScan)
	out.EnableSQLiScan = enabled(e.Protections.SQLiScan)
	out.EnableCSRFCheck = enabled(e.Protections.CSRFCheck)

	out.AllowedOrigins = e.AllowedOrigins
	if len(e.BlockedUserAgents) > 0 {
		out.BlockedUserAgents = e.BlockedUserAgents
	}
	if len(e.ScannedHeaders) > 0 {
		out.ScannedHeaders = e.ScannedHeaders
	}
	if e.MaxRequestSizeBytes > 0 {
		out.MaxRequestSize = e.MaxRequestSizeBytes
	}
	if e.SessionTimeoutMinutes > 0 {
		out.SessionTimeout = time.Duration(e.SessionTimeoutMinutes) * time.Minute
	}
	if e.BlockDurationMinutes > 0 {
		out.BlockDuration = time.Duration(e.BlockDurationMinutes) * time.Minute
	}

	window := ratelimit.DefaultWindowConfig()
	if e.RateLimit.MaxRequests > 0 {
		window.MaxRequests = e.RateLimit.MaxRequests
	}
	if e.RateLimit.WindowSeconds > 0 {
		window.Window = time.Duration(e.RateLimit.WindowSeconds) * time.Second
	}
	if e.RateLimit.BackoffMultiplier >= 1.0 {
		window.BackoffMultiplier = e.RateLimit.BackoffMultiplier
	}
	if e.RateLimit.MaxBackoffSeconds > 0 {
		window.MaxBackoff = time.Duration(e.RateLimit.MaxBackoffSeconds) * time.Second
	}
	out.RateLimit = window

	return out
}

// enabled treats an omitted toggle as on.
func enabled(v *bool) bool {
	return v == nil || *v
}
