package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// ErrRetryRequested signals that a 401 response was answered with a
// successful token refresh. The client does not silently replay the
// request; the caller re-issues it so authentication state changes stay
// visible.
var ErrRetryRequested = errors.New("httpclient: token refreshed, re-issue the request")

// RateLimitedError is returned when the pre-flight rate gate denies the
// call. No network attempt was made.
type RateLimitedError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("httpclient: rate limited on %s, retry after %s", e.Endpoint, e.RetryAfter)
}

// NetworkError wraps a transport-level failure, including per-attempt
// timeouts. It implements net.Error with Timeout() == true so the retry
// layer classifies it as retryable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string   { return fmt.Sprintf("httpclient: network failure: %v", e.Err) }
func (e *NetworkError) Unwrap() error   { return e.Err }
func (e *NetworkError) Timeout() bool   { return true }
func (e *NetworkError) Temporary() bool { return true }

// StatusError is a terminal non-2xx response. 5xx responses are wrapped
// as retry.HTTPError instead so they stay retryable; StatusError is the
// 4xx (and post-retry) terminal form carrying the response body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: HTTP %d: %s", e.StatusCode, e.Body)
}

// AuthenticationExpiredError is returned when a 401 response could not be
// recovered by a token refresh. Stored tokens have been cleared; the
// caller must re-authenticate.
type AuthenticationExpiredError struct {
	Cause error
}

func (e *AuthenticationExpiredError) Error() string {
	return fmt.Sprintf("httpclient: authentication expired: %v", e.Cause)
}

func (e *AuthenticationExpiredError) Unwrap() error { return e.Cause }

// RequestError is the final error surfaced after the retry budget is
// exhausted or a terminal condition is hit. It carries the attempt
// accounting the retry loop absorbed.
type RequestError struct {
	Endpoint   string
	Method     string
	RetryCount int
	Duration   time.Duration
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("httpclient: %s %s failed after %d retries in %s: %v",
		e.Method, e.Endpoint, e.RetryCount, e.Duration.Round(time.Millisecond), e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
