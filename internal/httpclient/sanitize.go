package httpclient

import (
	"edgeguard/pkg/security/sanitize"
)

// sanitizeValue walks a decoded JSON value and strips markup from every
// string it contains, in place where possible. Outbound payloads pass
// through this before serialization and inbound JSON after decoding, so
// a compromised backend cannot reflect executable markup to the caller.
func sanitizeValue(s *sanitize.Sanitizer, value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return s.Strip(v)
	case map[string]interface{}:
		for key, item := range v {
			v[key] = sanitizeValue(s, item)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = sanitizeValue(s, item)
		}
		return v
	default:
		// Numbers, booleans and nulls carry no markup.
		return v
	}
}
