// Package form validates and sanitizes structured user input before it
// reaches outbound HTTP calls. It owns per-field validation, CSRF token
// issuance and verification, a per-form submission rate guard, and
// honeypot field support.
package form

import (
	"fmt"
	"log/slog"
	"strings"

	"edgeguard/pkg/security/sanitize"
	"edgeguard/pkg/security/scan"
)

// ValidationResult is the outcome of one form validation call. It is
// constructed fresh per call and never mutated after return.
//
// Errors keeps warning- and info-severity findings even when the form is
// valid, so callers can display advisory messages without a second pass.
type ValidationResult struct {
	IsValid       bool              `json:"isValid"`
	Errors        []FieldError      `json:"errors"`
	SanitizedData map[string]string `json:"sanitizedData"`
	Warnings      []string          `json:"warnings"`
}

// Validator runs the per-field sanitize/validate pipeline.
// A single Validator is safe for concurrent use.
type Validator struct {
	scanner   scan.Scanner
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
}

// Options carries the Validator collaborators. Nil fields get defaults.
type Options struct {
	Scanner   scan.Scanner
	Sanitizer *sanitize.Sanitizer
	Logger    *slog.Logger
}

// New creates a Validator.
func New(opts Options) *Validator {
	if opts.Scanner == nil {
		opts.Scanner = scan.NewRegexScanner()
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Validator{
		scanner:   opts.Scanner,
		sanitizer: opts.Sanitizer,
		logger:    opts.Logger,
	}
}

// Validate checks data against the per-field configs and returns the
// merged result. Fields are independent: the outcome never depends on
// iteration order, and an invalid field does not stop the others from
// being checked and sanitized.
func (v *Validator) Validate(data map[string]interface{}, fields map[string]FieldConfig) *ValidationResult {
	result := &ValidationResult{
		IsValid:       true,
		SanitizedData: make(map[string]string, len(fields)),
	}

	for name, config := range fields {
		v.validateField(result, name, data[name], config)
	}

	for _, fieldErr := range result.Errors {
		if fieldErr.Severity == SeverityError {
			result.IsValid = false
			break
		}
	}
	if !result.IsValid {
		v.logger.Debug("form validation failed",
			slog.Int("errors", len(result.Errors)))
	}
	return result
}

// validateField runs the full pipeline for one field and appends its
// findings and sanitized value to result.
func (v *Validator) validateField(result *ValidationResult, name string, raw interface{}, config FieldConfig) {
	if raw == nil {
		if config.Required {
			result.Errors = append(result.Errors, FieldError{
				Field:    name,
				Message:  "field is required",
				Severity: SeverityError,
			})
		}
		return
	}

	value := coerceString(raw)

	if config.Required && strings.TrimSpace(value) == "" {
		result.Errors = append(result.Errors, FieldError{
			Field:    name,
			Message:  "field is required",
			Severity: SeverityError,
		})
		return
	}

	if config.MinLength > 0 && len(value) < config.MinLength {
		result.Errors = append(result.Errors, FieldError{
			Field:    name,
			Message:  fmt.Sprintf("must be at least %d characters", config.MinLength),
			Severity: SeverityError,
		})
	}

	// Overlength input is truncated, not rejected. A user pasting one
	// character too many should not lose the whole submission.
	if config.MaxLength > 0 && len(value) > config.MaxLength {
		value = value[:config.MaxLength]
		result.Errors = append(result.Errors, FieldError{
			Field:    name,
			Message:  fmt.Sprintf("truncated to %d characters", config.MaxLength),
			Severity: SeverityWarning,
		})
	}

	if config.Pattern != nil && !config.Pattern.MatchString(value) {
		result.Errors = append(result.Errors, FieldError{
			Field:    name,
			Message:  "invalid format",
			Severity: SeverityError,
		})
	}

	// Injection findings are error-level and additionally populate
	// Warnings with the matched categories, so likely attack attempts
	// can be logged apart from ordinary validation failures.
	if detection := v.scanner.DetectXSS(value); detection.IsMalicious {
		result.Errors = append(result.Errors, FieldError{
			Field:    name,
			Message:  "potentially malicious content detected",
			Severity: SeverityError,
		})
		for _, pattern := range detection.Patterns {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: XSS pattern %s", name, pattern))
		}
	}
	if v.scanner.DetectSQLInjection(value) {
		result.Errors = append(result.Errors, FieldError{
			Field:    name,
			Message:  "potentially malicious content detected",
			Severity: SeverityError,
		})
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: SQL injection pattern", name))
	}

	if !config.SkipSanitize {
		if config.AllowHTML {
			value = v.sanitizer.RichText(value)
		} else {
			value = v.sanitizer.Strip(value)
		}
	}
	if config.Encoding != "" {
		value = sanitize.Encode(value, sanitize.ParseContext(config.Encoding))
	}

	for _, rule := range config.Rules {
		if msg := rule(value); msg != "" {
			result.Errors = append(result.Errors, FieldError{
				Field:    name,
				Message:  msg,
				Severity: SeverityError,
			})
		}
	}

	result.SanitizedData[name] = value
}
