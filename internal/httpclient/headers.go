package httpclient

import (
	"crypto/rand"
	"math/big"
	"net/http"
)

const csrfTokenLength = 32

const csrfAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// buildHeaders sets the standard header surface on an outbound request:
// content negotiation, cache suppression, defensive security headers, a
// fresh CSRF token, and (when available) the bearer token.
//
// The CSRF token is an opaque random value regenerated per request; the
// server-side form layer owns the cryptographically bound variant.
func (c *Client) buildHeaders(req *http.Request, opts requestOptions) error {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cache-Control", "no-store")

	req.Header.Set("X-Content-Type-Options", "nosniff")
	req.Header.Set("X-Frame-Options", "DENY")
	req.Header.Set("Referrer-Policy", "strict-origin-when-cross-origin")

	req.Header.Set("X-CSRF-Token", newCSRFToken())

	for key, value := range opts.headers {
		req.Header.Set(key, value)
	}

	if !opts.requireAuth {
		return nil
	}
	tokens, err := c.tokens.GetTokens()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	return nil
}

// newCSRFToken returns a 32-character alphanumeric token from crypto/rand.
func newCSRFToken() string {
	buf := make([]byte, csrfTokenLength)
	max := big.NewInt(int64(len(csrfAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// fall back to a fixed character rather than panic mid-request.
			buf[i] = csrfAlphabet[0]
			continue
		}
		buf[i] = csrfAlphabet[n.Int64()]
	}
	return string(buf)
}
