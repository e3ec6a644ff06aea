package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"sync"
	"time"

	"edgeguard/pkg/ratelimit"
)

// tokenFormat is the cheap structural check: 32 alphanumerics. Garbage is
// rejected before any cryptographic work.
var tokenFormat = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken returns a random 32-character alphanumeric token, the
// opaque value clients attach as X-CSRF-Token on every request.
func GenerateToken() string {
	token := make([]byte, 32)
	for i := range token {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
		if err != nil {
			// Entropy exhaustion is effectively fatal; fall back to a
			// fixed character rather than panic in a request path.
			token[i] = tokenAlphabet[0]
			continue
		}
		token[i] = tokenAlphabet[n.Int64()]
	}
	return string(token)
}

// ValidateToken checks token structure and, when expected is non-empty,
// constant-time equality against the expected value.
func ValidateToken(token, expected string) bool {
	if !tokenFormat.MatchString(token) {
		return false
	}
	if expected == "" {
		return true
	}
	return hmac.Equal([]byte(token), []byte(expected))
}

// CSRFIssuer issues and validates session-bound HMAC tokens.
//
// A token is nonce||mac where mac = HMAC-SHA256(secret, session|nonce),
// both hex, 16 characters each, so the combined token satisfies the same
// 32-alphanumeric surface format the edge middleware checks. Forging a
// token for a session requires the secret; replaying one across sessions
// fails the MAC. Issued nonces expire after the configured TTL.
type CSRFIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  ratelimit.Clock
	logger *slog.Logger

	mu     sync.Mutex
	issued map[string]time.Time
}

// NewCSRFIssuer creates an issuer. An empty secret gets a random one,
// which is fine for a single process but breaks validation across
// instances; multi-instance deployments must share the secret.
func NewCSRFIssuer(secret []byte, ttl time.Duration, logger *slog.Logger) *CSRFIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Error("CSRF secret generation failed", slog.String("error", err.Error()))
		}
		logger.Warn("no CSRF secret configured, generated an ephemeral one")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CSRFIssuer{
		secret: secret,
		ttl:    ttl,
		clock:  &ratelimit.SystemClock{},
		logger: logger,
		issued: make(map[string]time.Time),
	}
}

// Issue creates a token bound to the session identifier.
func (i *CSRFIssuer) Issue(session string) (string, error) {
	nonceBytes := make([]byte, 8)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("generate CSRF nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	i.mu.Lock()
	i.issued[nonce] = i.clock.Now().Add(i.ttl)
	i.mu.Unlock()

	return nonce + i.mac(session, nonce), nil
}

// Validate reports whether token was issued by this instance for the
// given session and has not expired.
func (i *CSRFIssuer) Validate(token, session string) bool {
	if !tokenFormat.MatchString(token) {
		return false
	}
	nonce, mac := token[:16], token[16:]

	i.mu.Lock()
	expiry, ok := i.issued[nonce]
	if ok && i.clock.Now().After(expiry) {
		delete(i.issued, nonce)
		ok = false
	}
	i.mu.Unlock()
	if !ok {
		return false
	}

	return hmac.Equal([]byte(mac), []byte(i.mac(session, nonce)))
}

// Revoke invalidates a token's nonce before its expiry, for single-use
// token flows.
func (i *CSRFIssuer) Revoke(token string) {
	if len(token) < 16 {
		return
	}
	i.mu.Lock()
	delete(i.issued, token[:16])
	i.mu.Unlock()
}

// Cleanup removes expired nonces and returns the number removed.
func (i *CSRFIssuer) Cleanup() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.clock.Now()
	removed := 0
	for nonce, expiry := range i.issued {
		if now.After(expiry) {
			delete(i.issued, nonce)
			removed++
		}
	}
	return removed
}

// mac computes the session-bound tag, truncated to 16 hex characters to
// fit the 32-character token surface.
func (i *CSRFIssuer) mac(session, nonce string) string {
	h := hmac.New(sha256.New, i.secret)
	h.Write([]byte(session + "|" + nonce))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
