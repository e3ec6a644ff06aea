// Package respond writes JSON HTTP responses. Error responses pass
// through sanitization so internal detail and credentials never reach a
// client or an attacker probing for stack traces.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// JSON writes a JSON response with the given status code and body.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// Headers are already sent, so log and move on.
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes a JSON error response with the error message verbatim.
// Use SafeError unless the message is known to be client-safe.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, map[string]string{"error": err.Error()})
}

// safeSubstrings mark messages that are fine to show a client:
// validation outcomes, not internals.
var safeSubstrings = []string{
	"required",
	"invalid",
	"not allowed",
	"not found",
	"must be",
	"cannot be",
	"too long",
	"too short",
	"too large",
	"rate limit",
	"timeout",
}

// SafeError sanitizes error messages before returning them to clients.
// Messages that look like validation feedback pass through; anything
// else is replaced with a generic message and logged with credentials
// masked. Status codes of 500 and above are always treated as internal.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	msg := err.Error()
	isSafe := false
	lowerMsg := strings.ToLower(msg)
	for _, safe := range safeSubstrings {
		if strings.Contains(lowerMsg, safe) {
			isSafe = true
			break
		}
	}
	if code >= 500 {
		isSafe = false
	}

	if isSafe {
		JSON(w, code, map[string]string{"error": msg})
		return
	}

	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, map[string]string{"error": "internal server error"})
}
