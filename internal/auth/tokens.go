// Package auth provides token management for the resilient HTTP client.
// Token issuance and verification are owned by the upstream auth server;
// this package only stores, inspects, refreshes, and clears tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoTokens is returned when a token is requested but none is stored.
var ErrNoTokens = errors.New("auth: no tokens available")

// ErrRefreshFailed is returned when the refresh callback could not obtain
// new tokens. Stored tokens are cleared when this happens.
var ErrRefreshFailed = errors.New("auth: token refresh failed")

// Tokens holds the current credential pair. Either field may be empty.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// TokenManager is the collaborator contract consumed by the HTTP client.
//
// Implementations must be safe for concurrent use: the client may refresh
// from one goroutine while another reads the access token.
type TokenManager interface {
	// GetTokens returns the currently stored tokens.
	// Returns ErrNoTokens if no access token is stored.
	GetTokens() (Tokens, error)

	// RefreshTokens exchanges the refresh token for a new pair.
	// On failure the stored tokens are cleared and ErrRefreshFailed is
	// returned (wrapped with the underlying cause).
	RefreshTokens(ctx context.Context) error

	// ClearTokens drops both tokens.
	ClearTokens()
}

// RefreshFunc exchanges a refresh token for a new token pair.
// It is the seam to the real auth server; tests supply a stub.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// MemoryTokenManager keeps tokens in process memory.
//
// A process restart forgets all tokens; callers re-authenticate. This is
// the intended behavior for an edge client, which must never persist
// credentials to disk.
type MemoryTokenManager struct {
	mu      sync.RWMutex
	tokens  Tokens
	refresh RefreshFunc
	logger  *slog.Logger
}

// NewMemoryTokenManager creates a token manager with the given refresh
// callback. A nil logger defaults to slog.Default().
func NewMemoryTokenManager(refresh RefreshFunc, logger *slog.Logger) *MemoryTokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryTokenManager{
		refresh: refresh,
		logger:  logger,
	}
}

// SetTokens stores a token pair, replacing any previous one.
func (m *MemoryTokenManager) SetTokens(tokens Tokens) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
}

// GetTokens returns the stored tokens or ErrNoTokens.
func (m *MemoryTokenManager) GetTokens() (Tokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tokens.AccessToken == "" {
		return Tokens{}, ErrNoTokens
	}
	return m.tokens, nil
}

// RefreshTokens exchanges the refresh token for a new pair via the
// refresh callback. On failure both tokens are cleared so subsequent
// calls fail fast with ErrNoTokens instead of retrying a dead session.
func (m *MemoryTokenManager) RefreshTokens(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.tokens.RefreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		return fmt.Errorf("%w: no refresh token stored", ErrRefreshFailed)
	}
	if m.refresh == nil {
		return fmt.Errorf("%w: no refresh callback configured", ErrRefreshFailed)
	}

	tokens, err := m.refresh(ctx, refreshToken)
	if err != nil {
		m.ClearTokens()
		m.logger.Warn("token refresh failed, tokens cleared",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	m.SetTokens(tokens)
	m.logger.Info("tokens refreshed")
	return nil
}

// ClearTokens drops both tokens.
func (m *MemoryTokenManager) ClearTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = Tokens{}
}

// AccessTokenExpiry reports the exp claim of the stored access token
// without verifying its signature. Verification belongs to the server;
// the client only needs expiry to decide whether a proactive refresh is
// worthwhile before issuing a request.
//
// Returns the zero time and false when no token is stored, the token is
// not a parsable JWT, or it carries no exp claim.
func (m *MemoryTokenManager) AccessTokenExpiry() (time.Time, bool) {
	m.mu.RLock()
	raw := m.tokens.AccessToken
	m.mu.RUnlock()

	if raw == "" {
		return time.Time{}, false
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ShouldRefresh reports whether the access token expires within the
// given margin. Unparsable tokens report false; the server will reject
// them with 401 and the normal refresh path takes over.
func (m *MemoryTokenManager) ShouldRefresh(margin time.Duration) bool {
	exp, ok := m.AccessTokenExpiry()
	if !ok {
		return false
	}
	return time.Until(exp) < margin
}
