// Package middleware provides the staged edge security pipeline plus its
// supporting infrastructure: client IP extraction with proxy trust, an
// auto-expiring IP block set, and pipeline metrics.
//
// Each inbound request walks a fixed stage order:
//
//	IpBlockCheck -> UserAgentCheck -> RateLimitCheck -> CorsCheck ->
//	SizeCheck -> ContentScan(XSS) -> ContentScan(SQLi) -> CsrfCheck ->
//	Allowed
//
// and any stage can short-circuit to Blocked with a reason and status.
// Blocked responses carry a JSON envelope {error, timestamp, requestId}
// and never leak internals beyond a short message.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"edgeguard/internal/handler/http/requestid"
	"edgeguard/pkg/ratelimit"
	"edgeguard/pkg/security/csp"
	"edgeguard/pkg/security/scan"
)

// Stage names used for metrics and logging.
const (
	stageIPBlock   = "ip_block"
	stageUserAgent = "user_agent"
	stageRateLimit = "rate_limit"
	stageCORS      = "cors"
	stageSize      = "size"
	stageXSSScan   = "xss_scan"
	stageSQLiScan  = "sqli_scan"
	stageCSRFCheck = "csrf_check"
)

// csrfTokenFormat is the cheap first-stage CSRF check: 32 alphanumerics.
// Cryptographic validation belongs to the form layer that owns the secret.
var csrfTokenFormat = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

// mutatingMethods are the methods subject to body scanning and CSRF checks.
var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// Security is the edge gatekeeper. Construct with NewSecurity and mount
// its Middleware in front of application handlers.
type Security struct {
	config     SecurityConfig
	uaPatterns []*regexp.Regexp
	counter    *ratelimit.KeyedWindowCounter
	blocked    *BlockedIPSet
	metrics    *SecurityMetrics
	scanner    scan.Scanner
	extractor  IPExtractor
	policy     *csp.Builder
	logger     *slog.Logger
}

// SecurityDeps carries the collaborators. Nil fields get defaults:
// a RegexScanner, a RemoteAddrExtractor, a fresh block set and metrics.
type SecurityDeps struct {
	Scanner   scan.Scanner
	Extractor IPExtractor
	Blocked   *BlockedIPSet
	Metrics   *SecurityMetrics
	Logger    *slog.Logger

	// LimiterMetrics records admission outcomes of the per-IP rate
	// limiter. Nil means no recording.
	LimiterMetrics ratelimit.Metrics
}

// NewSecurity builds the pipeline from config and collaborators.
func NewSecurity(config SecurityConfig, deps SecurityDeps) *Security {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Scanner == nil {
		deps.Scanner = scan.NewRegexScanner()
	}
	if deps.Extractor == nil {
		deps.Extractor = &RemoteAddrExtractor{}
	}
	if deps.Blocked == nil {
		deps.Blocked = NewBlockedIPSet(deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewSecurityMetrics(deps.Logger)
	}
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = 1 << 20
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = time.Hour
	}

	return &Security{
		config:     config,
		uaPatterns: compileUserAgentPatterns(config.BlockedUserAgents),
		counter: ratelimit.NewKeyedWindowCounter(ratelimit.CounterConfig{
			LimiterType: "edge",
			Metrics:     deps.LimiterMetrics,
		}),
		blocked:   deps.Blocked,
		metrics:   deps.Metrics,
		scanner:   deps.Scanner,
		extractor: deps.Extractor,
		policy:    csp.AppPolicy(),
		logger:    deps.Logger,
	}
}

// Blocked returns the block set, exposed for admin unblocking.
func (s *Security) Blocked() *BlockedIPSet {
	return s.blocked
}

// Metrics returns the pipeline metrics.
func (s *Security) Metrics() *SecurityMetrics {
	return s.metrics
}

// Stop halts the background schedules owned by the pipeline: the hourly
// metrics reset and the block set sweep.
func (s *Security) Stop() {
	s.metrics.Stop()
	s.blocked.Stop()
}

// Middleware runs the staged pipeline in front of next.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RecordRequest()

		clientIP, err := s.extractor.ExtractIP(r)
		if err != nil {
			// Fail open: an unresolvable peer address should not take the
			// whole edge down, but it is worth a log line.
			s.logger.Warn("client IP extraction failed",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("error", err.Error()))
			clientIP = ""
		}

		logger := s.logger.With(
			slog.String("client_ip", clientIP),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))

		// IpBlockCheck
		if s.config.EnableIPBlocking && clientIP != "" && s.blocked.IsBlocked(clientIP) {
			s.block(w, r, logger, stageIPBlock, http.StatusForbidden, "access denied")
			return
		}

		// UserAgentCheck
		if s.config.EnableUserAgentCheck {
			if ua := r.Header.Get("User-Agent"); s.userAgentBlocked(ua) {
				if clientIP != "" {
					s.blocked.Block(clientIP, s.config.BlockDuration)
				}
				logger.Warn("blocked user agent", slog.String("user_agent", ua))
				s.block(w, r, logger, stageUserAgent, http.StatusForbidden, "access denied")
				return
			}
		}

		// RateLimitCheck: keyed by IP, fail-open when the IP is unknown.
		// Exhaustion does not ban the IP; over-quota is not malice.
		if s.config.EnableRateLimit && clientIP != "" {
			decision := s.counter.IsAllowed(clientIP, s.config.RateLimit)
			writeRateLimitHeaders(w, decision)
			if decision.IsDenied() {
				w.Header().Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds(), 10))
				s.block(w, r, logger, stageRateLimit, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		// CorsCheck: no Origin means same-origin and passes.
		if s.config.EnableCORSCheck {
			if origin := r.Header.Get("Origin"); origin != "" {
				if !originAllowed(origin, s.config.AllowedOrigins) {
					logger.Warn("origin not allowed", slog.String("origin", origin))
					s.block(w, r, logger, stageCORS, http.StatusForbidden, "origin not allowed")
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		// SizeCheck
		if s.config.EnableSizeCheck && r.ContentLength > s.config.MaxRequestSize {
			s.block(w, r, logger, stageSize, http.StatusRequestEntityTooLarge, "request too large")
			return
		}

		// ContentScan: query parameters, configured headers, and for
		// mutating methods the body.
		var body []byte
		if mutatingMethods[r.Method] && r.Body != nil {
			body, err = io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize+1))
			if err != nil {
				s.block(w, r, logger, stageSize, http.StatusBadRequest, "unreadable request body")
				return
			}
			_ = r.Body.Close()
			if int64(len(body)) > s.config.MaxRequestSize {
				s.block(w, r, logger, stageSize, http.StatusRequestEntityTooLarge, "request too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		if s.config.EnableXSSScan {
			if hit, where := s.scanXSS(r, body); hit {
				if clientIP != "" {
					s.blocked.Block(clientIP, s.config.BlockDuration)
				}
				logger.Warn("XSS payload detected", slog.String("location", where))
				s.block(w, r, logger, stageXSSScan, http.StatusBadRequest, "malicious content detected")
				return
			}
		}

		if s.config.EnableSQLiScan {
			if hit, where := s.scanSQLi(r, body); hit {
				if clientIP != "" {
					s.blocked.Block(clientIP, s.config.BlockDuration)
				}
				logger.Warn("SQL injection payload detected", slog.String("location", where))
				s.block(w, r, logger, stageSQLiScan, http.StatusBadRequest, "malicious content detected")
				return
			}
		}

		// CsrfCheck: format only; the form layer owns cryptographic
		// validation of tokens it issued.
		if s.config.EnableCSRFCheck && mutatingMethods[r.Method] {
			token := r.Header.Get("X-CSRF-Token")
			if !csrfTokenFormat.MatchString(token) {
				s.block(w, r, logger, stageCSRFCheck, http.StatusForbidden, "missing or malformed CSRF token")
				return
			}
		}

		// Allowed: inject the defensive header surface and a CSP nonce.
		s.writeSecurityHeaders(w, r)
		next.ServeHTTP(w, r)
	})
}

// userAgentBlocked reports whether the user agent matches a blocked
// pattern. An empty user agent is treated as blocked: every legitimate
// browser and API client sends one.
func (s *Security) userAgentBlocked(ua string) bool {
	if ua == "" {
		return true
	}
	for _, re := range s.uaPatterns {
		if re.MatchString(ua) {
			return true
		}
	}
	return false
}

// scanXSS walks the scan surface and returns the first hit's location.
func (s *Security) scanXSS(r *http.Request, body []byte) (bool, string) {
	for key, values := range r.URL.Query() {
		for _, v := range values {
			if s.scanner.DetectXSS(v).IsMalicious {
				return true, "query:" + key
			}
		}
	}
	for _, header := range s.config.ScannedHeaders {
		if s.scanner.DetectXSS(r.Header.Get(header)).IsMalicious {
			return true, "header:" + header
		}
	}
	if len(body) > 0 && s.scanner.DetectXSS(string(body)).IsMalicious {
		return true, "body"
	}
	return false, ""
}

// scanSQLi mirrors scanXSS with the SQL injection detector.
func (s *Security) scanSQLi(r *http.Request, body []byte) (bool, string) {
	for key, values := range r.URL.Query() {
		for _, v := range values {
			if s.scanner.DetectSQLInjection(v) {
				return true, "query:" + key
			}
		}
	}
	for _, header := range s.config.ScannedHeaders {
		if s.scanner.DetectSQLInjection(r.Header.Get(header)) {
			return true, "header:" + header
		}
	}
	if len(body) > 0 && s.scanner.DetectSQLInjection(string(body)) {
		return true, "body"
	}
	return false, ""
}

// writeSecurityHeaders injects the defensive headers and a fresh CSP
// nonce on allowed responses.
func (s *Security) writeSecurityHeaders(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

	nonce, err := csp.GenerateNonce()
	if err == nil {
		policy := s.policy.WithNonce(nonce)
		h.Set(policy.HeaderName(), policy.Build())
		h.Set("CSP-Nonce", nonce)
	} else {
		// Never ship a nonce-less 'unsafe-inline' fallback; the static
		// policy is still enforced.
		h.Set(s.policy.HeaderName(), s.policy.Build())
		s.logger.Error("CSP nonce generation failed", slog.String("error", err.Error()))
	}

	if id := requestid.FromContext(r.Context()); id != "" {
		h.Set(requestid.RequestIDHeader, id)
	}
}

// blockEnvelope is the JSON body for blocked responses.
type blockEnvelope struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}

// block writes the denial response and records the stage metric.
func (s *Security) block(w http.ResponseWriter, r *http.Request, logger *slog.Logger, stage string, status int, message string) {
	s.metrics.RecordBlocked(stage)
	logger.Info("request blocked",
		slog.String("stage", stage),
		slog.Int("status", status))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(blockEnvelope{
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestid.FromContext(r.Context()),
	})
}

// writeRateLimitHeaders exposes the admission decision to clients.
func writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAtUnix(), 10))
}
