// Package httpclient provides a resilient outbound HTTP client: rate-gated
// pre-flight admission, per-attempt timeouts, retry with exponential
// backoff, circuit breaking, token-refresh handling on 401, defensive
// header injection, and recursive sanitization of JSON payloads in both
// directions.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"edgeguard/internal/auth"
	"edgeguard/internal/observability/tracing"
	"edgeguard/internal/resilience/circuitbreaker"
	"edgeguard/internal/resilience/retry"
	"edgeguard/pkg/ratelimit"
	"edgeguard/pkg/security/sanitize"
)

// Options configures a Client. Zero values get sensible defaults.
type Options struct {
	// BaseURL is prefixed to every endpoint path.
	BaseURL string

	// HTTPClient is the underlying transport. Defaults to a plain
	// http.Client; per-attempt timeouts are enforced via context, not
	// http.Client.Timeout.
	HTTPClient *http.Client

	// Limiter gates outbound calls per endpoint. Nil disables the gate.
	Limiter *ratelimit.RateLimiter

	// RateLimit is the window configuration used for the pre-flight check.
	RateLimit ratelimit.WindowConfig

	// Tokens supplies bearer tokens and the 401 refresh path.
	Tokens auth.TokenManager

	// RefreshMargin triggers a proactive token refresh before a request
	// when the access token expires within the margin (default 30s).
	// Negative disables proactive refresh; the 401 path still applies.
	RefreshMargin time.Duration

	// Sanitizer strips markup from outbound and inbound JSON strings.
	// Defaults to sanitize.New().
	Sanitizer *sanitize.Sanitizer

	// Retries is the retry budget beyond the first attempt (default 3).
	Retries int

	// RetryDelay is the base backoff delay; attempt n waits
	// RetryDelay * 2^(n-1) (default 1s).
	RetryDelay time.Duration

	// Timeout bounds each individual attempt (default 30s).
	Timeout time.Duration

	// Breaker protects the upstream. Defaults to UpstreamAPIConfig.
	Breaker *circuitbreaker.CircuitBreaker

	// Metrics receives prometheus observations. Nil disables them.
	Metrics *PrometheusMetrics

	// MetricsMaxAge bounds attempt-metrics retention (default 1h).
	MetricsMaxAge time.Duration

	// SweepInterval is the attempt-metrics sweep cadence (default 10m).
	// Zero disables the background sweep; ClearOldMetrics still works.
	SweepInterval time.Duration

	Logger *slog.Logger
}

// Client is a resilient HTTP client. Construct with New; safe for
// concurrent use.
type Client struct {
	opts      Options
	sanitizer *sanitize.Sanitizer
	breaker   *circuitbreaker.CircuitBreaker
	tokens    auth.TokenManager
	store     *metricsStore
	scheduler *cron.Cron
	logger    *slog.Logger
}

// expiryInspector is an optional TokenManager capability: managers that
// can inspect the stored access token's expiry locally enable proactive
// refresh ahead of a guaranteed 401.
type expiryInspector interface {
	ShouldRefresh(margin time.Duration) bool
}

// requestOptions holds per-call overrides.
type requestOptions struct {
	headers       map[string]string
	requireAuth   bool
	skipRateLimit bool
	retries       int
	timeout       time.Duration
}

// RequestOption customizes a single call.
type RequestOption func(*requestOptions)

// WithHeader adds one extra request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// WithoutAuth skips the Authorization header for this call.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) { o.requireAuth = false }
}

// SkipRateLimit bypasses the pre-flight rate gate for this call.
func SkipRateLimit() RequestOption {
	return func(o *requestOptions) { o.skipRateLimit = true }
}

// WithRetries overrides the retry budget for this call.
func WithRetries(n int) RequestOption {
	return func(o *requestOptions) { o.retries = n }
}

// WithTimeout overrides the per-attempt timeout for this call.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// New creates a Client and starts the background metrics sweep.
// Call Stop when the client is no longer needed.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RefreshMargin == 0 {
		opts.RefreshMargin = 30 * time.Second
	}
	if opts.MetricsMaxAge <= 0 {
		opts.MetricsMaxAge = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.New()
	}
	if opts.Tokens == nil {
		opts.Tokens = auth.NewMemoryTokenManager(nil, opts.Logger)
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.UpstreamAPIConfig())
	}

	c := &Client{
		opts:      opts,
		sanitizer: opts.Sanitizer,
		breaker:   breaker,
		tokens:    opts.Tokens,
		store:     newMetricsStore(),
		logger:    opts.Logger,
	}

	if opts.SweepInterval > 0 {
		c.scheduler = cron.New()
		_, err := c.scheduler.AddFunc(fmt.Sprintf("@every %s", opts.SweepInterval), func() {
			removed := c.ClearOldMetrics(c.opts.MetricsMaxAge)
			if removed > 0 {
				c.logger.Debug("swept stale attempt metrics", slog.Int("removed", removed))
			}
		})
		if err != nil {
			c.logger.Warn("metrics sweep not scheduled", slog.String("error", err.Error()))
		} else {
			c.scheduler.Start()
		}
	}

	return c
}

// Stop halts the background metrics sweep.
func (c *Client) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out, opts...)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, endpoint, body, out, opts...)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, endpoint, body, out, opts...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, out, opts...)
}

// Request issues a call and decodes the JSON response into T.
func Request[T any](ctx context.Context, c *Client, method, endpoint string, body interface{}, opts ...RequestOption) (T, error) {
	var out T
	err := c.Do(ctx, method, endpoint, body, &out, opts...)
	return out, err
}

// Do issues a request with the full resilience pipeline: rate gate,
// sanitized body, injected headers, circuit breaker, per-attempt timeout,
// and retry with exponential backoff. Retryable failures (network errors,
// timeouts, 5xx) are absorbed up to the retry budget; only the final
// outcome surfaces.
//
// A 401 triggers exactly one token refresh; on success ErrRetryRequested
// is returned so the caller re-issues the request with fresh credentials,
// on failure an AuthenticationExpiredError is returned with tokens cleared.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out interface{}, opts ...RequestOption) error {
	options := requestOptions{
		requireAuth: true,
		retries:     c.opts.Retries,
		timeout:     c.opts.Timeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracing.GetTracer().Start(ctx, "httpclient.request")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.endpoint", endpoint),
	)

	start := time.Now()
	requestID := c.store.begin(method, endpoint, start)

	// Pre-flight admission. A denial is surfaced immediately; no network
	// attempt is made and no retry is consumed.
	if c.opts.Limiter != nil && !options.skipRateLimit {
		decision := c.opts.Limiter.AllowWithConfig(endpoint, c.opts.RateLimit)
		if decision.IsDenied() {
			c.store.finish(requestID, time.Now(), 0, true, false)
			if c.opts.Metrics != nil {
				c.opts.Metrics.observeRateLimited()
			}
			span.SetStatus(codes.Error, "rate limited")
			return &RateLimitedError{Endpoint: endpoint, RetryAfter: decision.RetryAfter}
		}
	}

	// Proactive refresh: a token already inside its expiry margin will
	// only buy a 401, so refresh before spending a network attempt. A
	// failed refresh clears the tokens and surfaces on the attempt as an
	// authentication error, same as the 401 recovery path.
	if options.requireAuth && c.opts.RefreshMargin > 0 {
		if insp, ok := c.tokens.(expiryInspector); ok && insp.ShouldRefresh(c.opts.RefreshMargin) {
			if refreshErr := c.tokens.RefreshTokens(ctx); refreshErr != nil {
				c.logger.Warn("proactive token refresh failed",
					slog.String("endpoint", endpoint),
					slog.String("error", refreshErr.Error()))
			}
		}
	}

	bodyBytes, err := c.prepareBody(method, body)
	if err != nil {
		c.store.finish(requestID, time.Now(), 0, false, false)
		return fmt.Errorf("httpclient: encoding request body: %w", err)
	}

	attempts := 0
	refreshed := false
	var lastStatus int
	var responseBody []byte

	retryCfg := retry.Config{
		MaxAttempts:    options.retries + 1,
		InitialDelay:   c.opts.RetryDelay,
		MaxDelay:       c.opts.RetryDelay * time.Duration(1<<uint(options.retries)),
		Multiplier:     2.0,
		JitterFraction: 0,
	}

	err = retry.WithBackoff(ctx, retryCfg, func() error {
		attempts++
		status, respBody, attemptErr := c.attempt(ctx, method, endpoint, bodyBytes, options, &refreshed)
		lastStatus = status
		responseBody = respBody
		return attemptErr
	})

	retryCount := attempts - 1
	duration := time.Since(start)
	succeeded := err == nil
	c.store.finish(requestID, time.Now(), retryCount, false, succeeded)
	if c.opts.Metrics != nil {
		c.opts.Metrics.observeRequest(method, lastStatus, duration, retryCount)
	}

	if c.opts.Limiter != nil && !options.skipRateLimit {
		if succeeded {
			c.opts.Limiter.RecordSuccess(endpoint)
		} else {
			c.opts.Limiter.RecordFailure(endpoint)
		}
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrRetryRequested) {
			return ErrRetryRequested
		}
		return &RequestError{
			Endpoint:   endpoint,
			Method:     method,
			RetryCount: retryCount,
			Duration:   duration,
			Err:        err,
		}
	}

	span.SetAttributes(attribute.Int("http.status_code", lastStatus))
	return c.decodeResponse(responseBody, out)
}

// prepareBody serializes and sanitizes the outbound payload. Strings
// anywhere in the JSON tree are stripped of markup before serialization.
func (c *Client) prepareBody(method string, body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return raw, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return json.Marshal(sanitizeValue(c.sanitizer, decoded))
}

// attempt performs one network attempt through the circuit breaker,
// bounded by the per-attempt timeout. Transport failures and 5xx are
// returned as retryable errors; 4xx is terminal.
func (c *Client) attempt(ctx context.Context, method, endpoint string, bodyBytes []byte, options requestOptions, refreshed *bool) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.opts.BaseURL+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: building request: %w", err)
	}
	if err := c.buildHeaders(req, options); err != nil {
		return 0, nil, &AuthenticationExpiredError{Cause: err}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.opts.HTTPClient.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, nil, fmt.Errorf("httpclient: circuit open for %s: %w", endpoint, err)
		}
		// The outer context ending is a caller decision, never retried.
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		// A per-attempt timeout is a retryable network failure. The raw
		// transport error unwraps to context.DeadlineExceeded, which the
		// retry layer treats as a caller decision, so it is replaced here
		// rather than wrapped.
		if attemptCtx.Err() != nil {
			return 0, nil, &NetworkError{Err: fmt.Errorf("attempt timed out after %s", options.timeout)}
		}
		return 0, nil, &NetworkError{Err: err}
	}

	resp := result.(*http.Response)
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		if ctx.Err() != nil {
			return resp.StatusCode, nil, ctx.Err()
		}
		if attemptCtx.Err() != nil {
			return resp.StatusCode, nil, &NetworkError{Err: fmt.Errorf("attempt timed out after %s reading response", options.timeout)}
		}
		return resp.StatusCode, nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, respBody, nil

	case resp.StatusCode == http.StatusUnauthorized && options.requireAuth && !*refreshed:
		*refreshed = true
		if refreshErr := c.tokens.RefreshTokens(ctx); refreshErr != nil {
			return resp.StatusCode, nil, &AuthenticationExpiredError{Cause: refreshErr}
		}
		c.logger.Info("token refreshed after 401, caller must re-issue",
			slog.String("endpoint", endpoint))
		return resp.StatusCode, nil, ErrRetryRequested

	case resp.StatusCode >= 500:
		return resp.StatusCode, nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    truncateBody(respBody),
		}

	default:
		return resp.StatusCode, nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncateBody(respBody),
		}
	}
}

// decodeResponse unmarshals the response body into out, stripping markup
// from every string in the decoded tree first.
func (c *Client) decodeResponse(body []byte, out interface{}) error {
	if out == nil || len(body) == 0 {
		return nil
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("httpclient: decoding response: %w", err)
	}
	cleaned, err := json.Marshal(sanitizeValue(c.sanitizer, decoded))
	if err != nil {
		return fmt.Errorf("httpclient: re-encoding sanitized response: %w", err)
	}
	if err := json.Unmarshal(cleaned, out); err != nil {
		return fmt.Errorf("httpclient: decoding response: %w", err)
	}
	return nil
}

// Metrics returns a snapshot of per-request attempt metrics.
func (c *Client) Metrics() []AttemptMetrics {
	return c.store.snapshot()
}

// ClearOldMetrics removes attempt metrics older than maxAge and returns
// the number removed.
func (c *Client) ClearOldMetrics(maxAge time.Duration) int {
	return c.store.clearOld(maxAge, time.Now())
}

// truncateBody bounds error message bodies to keep logs and errors small.
func truncateBody(body []byte) string {
	const max = 512
	text := strings.TrimSpace(string(body))
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
