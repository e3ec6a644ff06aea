package middleware

import (
	"regexp"
	"time"

	"edgeguard/pkg/ratelimit"
)

// SecurityConfig is the immutable construction-time configuration for the
// security pipeline. Build one with DefaultSecurityConfig and adjust, then
// pass it to NewSecurity; it is never mutated afterwards.
type SecurityConfig struct {
	// Stage toggles. All default to enabled.
	EnableIPBlocking     bool
	EnableUserAgentCheck bool
	EnableRateLimit      bool
	EnableCORSCheck      bool
	EnableSizeCheck      bool
	EnableXSSScan        bool
	EnableSQLiScan       bool
	EnableCSRFCheck      bool

	// AllowedOrigins lists origin hostnames; a request origin passes when
	// its hostname equals or is a subdomain of an entry.
	AllowedOrigins []string

	// BlockedUserAgents are patterns matched case-insensitively against
	// the User-Agent header. A hit blocks the request and bans the IP.
	BlockedUserAgents []string

	// MaxRequestSize bounds Content-Length in bytes. Default 1 MiB.
	MaxRequestSize int64

	// SessionTimeout bounds how long an issued CSRF token stays valid.
	SessionTimeout time.Duration

	// RateLimit is the per-IP admission window. Default 100 req/min.
	RateLimit ratelimit.WindowConfig

	// BlockDuration is how long a banned IP stays in the block set.
	BlockDuration time.Duration

	// ScannedHeaders are the request headers passed through content
	// scanning in addition to query parameters and mutating bodies.
	ScannedHeaders []string
}

// defaultBlockedUserAgents covers common scraping and scanning tools.
// Browsers and legitimate API clients never match these.
var defaultBlockedUserAgents = []string{
	`sqlmap`,
	`nikto`,
	`nessus`,
	`masscan`,
	`nmap`,
	`python-requests`,
	`curl/`,
	`wget/`,
}

// DefaultSecurityConfig returns the configuration with every protection
// enabled and sensible defaults applied.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableIPBlocking:     true,
		EnableUserAgentCheck: true,
		EnableRateLimit:      true,
		EnableCORSCheck:      true,
		EnableSizeCheck:      true,
		EnableXSSScan:        true,
		EnableSQLiScan:       true,
		EnableCSRFCheck:      true,
		BlockedUserAgents:    defaultBlockedUserAgents,
		MaxRequestSize:       1 << 20,
		SessionTimeout:       30 * time.Minute,
		RateLimit: ratelimit.WindowConfig{
			MaxRequests: 100,
			Window:      time.Minute,
		},
		BlockDuration:  time.Hour,
		ScannedHeaders: []string{"User-Agent", "Referer", "X-Requested-With"},
	}
}

// compileUserAgentPatterns compiles the blocked user agent patterns.
// Invalid patterns are skipped rather than failing construction; a broken
// pattern should not take protection down with it.
func compileUserAgentPatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}
