package middleware

import (
	"net/url"
	"strings"
)

// originAllowed reports whether the Origin header value passes the
// allowlist. The origin's hostname must equal or be a subdomain of one of
// the allowed entries; scheme and port are not considered. An origin that
// fails to parse is rejected.
func originAllowed(origin string, allowed []string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		// Entries may be bare hostnames or full origins.
		if strings.Contains(entry, "://") {
			if parsedEntry, err := url.Parse(entry); err == nil {
				entry = parsedEntry.Hostname()
			}
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}
