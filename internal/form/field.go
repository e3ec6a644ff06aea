package form

import (
	"fmt"
	"regexp"
	"strconv"
)

// Severity classifies a validation finding. Only error-severity findings
// make a form invalid; warnings and info entries are advisory and survive
// in the result for caller-side display.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// FieldError is a single validation finding attributed to a field.
type FieldError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Rule is a caller-supplied validation check. It receives the coerced
// string value and returns a human-readable message on violation, or ""
// when the value passes.
type Rule func(value string) string

// FieldConfig declares the validation contract for one form field.
// The zero value accepts any string and sanitizes it with the strict
// policy, which is the safe default.
type FieldConfig struct {
	// Required rejects absent, nil, and empty values.
	Required bool

	// MinLength rejects values shorter than this many bytes. Zero
	// disables the check.
	MinLength int

	// MaxLength truncates the sanitized value rather than rejecting it,
	// unless the field is otherwise invalid. Zero disables the check.
	MaxLength int

	// Pattern, when set, must match the whole coerced value.
	Pattern *regexp.Regexp

	// SkipSanitize leaves the value unsanitized. Use only for values
	// that never reach a renderer, such as opaque identifiers.
	SkipSanitize bool

	// AllowHTML keeps the restricted formatting allowlist instead of
	// stripping all markup. Event handlers and executable URI schemes
	// are removed regardless.
	AllowHTML bool

	// Encoding names the destination context the sanitized value is
	// re-encoded for: "html", "attribute", "javascript", "css" or
	// "url". Empty means no contextual encoding.
	Encoding string

	// Rules are custom checks run after the built-in ones.
	Rules []Rule
}

// coerceString converts an arbitrary decoded form value to a string.
// JSON numbers arrive as float64 and are formatted without an exponent
// so numeric ids survive round trips intact.
func coerceString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
