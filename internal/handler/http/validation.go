package http

import (
	"net/http"

	"edgeguard/internal/handler/http/respond"
)

const (
	// maxHeaderValueBytes bounds individual scanned header values. JWTs
	// and session tokens stay well under this; anything bigger is noise
	// or an attack.
	maxHeaderValueBytes = 8192

	// maxPathBytes bounds the URI path.
	maxPathBytes = 2048
)

// InputValidation returns middleware that rejects structurally oversized
// request inputs before any scanning or routing work is spent on them:
// the Authorization header and the URI path.
func InputValidation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.Header.Get("Authorization")) > maxHeaderValueBytes {
				respond.JSON(w, http.StatusBadRequest,
					map[string]string{"error": "authorization header too large"})
				return
			}
			if len(r.URL.Path) > maxPathBytes {
				respond.JSON(w, http.StatusRequestURITooLong,
					map[string]string{"error": "URI too long"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
