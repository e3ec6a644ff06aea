package form

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

func testValidator() *Validator {
	return New(Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func errorsFor(result *ValidationResult, field string, severity Severity) []FieldError {
	var out []FieldError
	for _, e := range result.Errors {
		if e.Field == field && e.Severity == severity {
			out = append(out, e)
		}
	}
	return out
}

func TestValidator_RequiredField(t *testing.T) {
	v := testValidator()
	fields := map[string]FieldConfig{"title": {Required: true}}

	tests := []struct {
		name  string
		data  map[string]interface{}
		valid bool
	}{
		{"empty string", map[string]interface{}{"title": ""}, false},
		{"whitespace only", map[string]interface{}{"title": "   "}, false},
		{"absent", map[string]interface{}{}, false},
		{"nil value", map[string]interface{}{"title": nil}, false},
		{"present", map[string]interface{}{"title": "Hello"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.data, fields)
			if result.IsValid != tt.valid {
				t.Fatalf("IsValid = %v, want %v (errors %+v)", result.IsValid, tt.valid, result.Errors)
			}
			if !tt.valid {
				if got := errorsFor(result, "title", SeverityError); len(got) != 1 {
					t.Errorf("title errors = %+v, want exactly one", got)
				}
			}
		})
	}
}

func TestValidator_OptionalFieldAbsent(t *testing.T) {
	v := testValidator()

	result := v.Validate(map[string]interface{}{}, map[string]FieldConfig{"bio": {}})

	if !result.IsValid {
		t.Fatalf("absent optional field should be valid, errors %+v", result.Errors)
	}
	if _, ok := result.SanitizedData["bio"]; ok {
		t.Error("absent field must not appear in sanitized data")
	}
}

func TestValidator_XSSPayloadRejectedWithWarning(t *testing.T) {
	v := testValidator()

	result := v.Validate(
		map[string]interface{}{"title": "Hello", "bio": "<script>alert(1)</script>"},
		map[string]FieldConfig{"title": {Required: true}, "bio": {}},
	)

	if result.IsValid {
		t.Fatal("XSS payload should invalidate the form")
	}
	if got := errorsFor(result, "bio", SeverityError); len(got) == 0 {
		t.Error("expected an error on field bio")
	}
	if got := errorsFor(result, "title", SeverityError); len(got) != 0 {
		t.Errorf("clean field picked up errors: %+v", got)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "bio") && strings.Contains(w, "script_tag") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings %v missing the matched XSS category for bio", result.Warnings)
	}
}

func TestValidator_SQLInjectionRejected(t *testing.T) {
	v := testValidator()

	result := v.Validate(
		map[string]interface{}{"query": "1 OR 1=1"},
		map[string]FieldConfig{"query": {}},
	)

	if result.IsValid {
		t.Fatal("SQL injection payload should invalidate the form")
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning naming the SQL injection pattern")
	}
}

func TestValidator_LengthRules(t *testing.T) {
	v := testValidator()

	t.Run("below minimum rejects", func(t *testing.T) {
		result := v.Validate(
			map[string]interface{}{"name": "ab"},
			map[string]FieldConfig{"name": {MinLength: 3}},
		)
		if result.IsValid {
			t.Fatal("undersized value should be rejected")
		}
	})

	t.Run("over maximum truncates", func(t *testing.T) {
		result := v.Validate(
			map[string]interface{}{"name": "abcdefghij"},
			map[string]FieldConfig{"name": {MaxLength: 4}},
		)
		if !result.IsValid {
			t.Fatalf("overlength value should truncate, not reject: %+v", result.Errors)
		}
		if got := result.SanitizedData["name"]; got != "abcd" {
			t.Errorf("sanitized = %q, want truncated %q", got, "abcd")
		}
		if got := errorsFor(result, "name", SeverityWarning); len(got) != 1 {
			t.Errorf("expected a truncation warning, got %+v", result.Errors)
		}
	})
}

func TestValidator_Pattern(t *testing.T) {
	v := testValidator()
	fields := map[string]FieldConfig{
		"email": {Pattern: regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)},
	}

	if result := v.Validate(map[string]interface{}{"email": "user@example.org"}, fields); !result.IsValid {
		t.Fatalf("valid email rejected: %+v", result.Errors)
	}
	if result := v.Validate(map[string]interface{}{"email": "not an email"}, fields); result.IsValid {
		t.Fatal("invalid email accepted")
	}
}

func TestValidator_Sanitization(t *testing.T) {
	v := testValidator()

	t.Run("default strips markup", func(t *testing.T) {
		result := v.Validate(
			map[string]interface{}{"bio": "plain <b>bold</b> text"},
			map[string]FieldConfig{"bio": {}},
		)
		if got := result.SanitizedData["bio"]; strings.Contains(got, "<") {
			t.Errorf("markup survived strict sanitization: %q", got)
		}
	})

	t.Run("allowHTML keeps formatting allowlist", func(t *testing.T) {
		result := v.Validate(
			map[string]interface{}{"bio": "<p>hi <strong>there</strong></p><div>x</div>"},
			map[string]FieldConfig{"bio": {AllowHTML: true}},
		)
		got := result.SanitizedData["bio"]
		if !strings.Contains(got, "<strong>") {
			t.Errorf("allowlisted tag removed: %q", got)
		}
		if strings.Contains(got, "<div>") {
			t.Errorf("non-allowlisted tag survived: %q", got)
		}
	})

	t.Run("skip sanitize preserves value", func(t *testing.T) {
		result := v.Validate(
			map[string]interface{}{"id": "opaque <value>"},
			map[string]FieldConfig{"id": {SkipSanitize: true}},
		)
		if got := result.SanitizedData["id"]; got != "opaque <value>" {
			t.Errorf("sanitized = %q, want untouched input", got)
		}
	})

	t.Run("contextual url encoding", func(t *testing.T) {
		result := v.Validate(
			map[string]interface{}{"q": "a b"},
			map[string]FieldConfig{"q": {Encoding: "url"}},
		)
		if got := result.SanitizedData["q"]; got != "a+b" {
			t.Errorf("sanitized = %q, want url-encoded %q", got, "a+b")
		}
	})
}

func TestValidator_CustomRules(t *testing.T) {
	v := testValidator()
	noDigits := func(value string) string {
		if strings.ContainsAny(value, "0123456789") {
			return "must not contain digits"
		}
		return ""
	}

	result := v.Validate(
		map[string]interface{}{"name": "abc123"},
		map[string]FieldConfig{"name": {Rules: []Rule{noDigits}}},
	)
	if result.IsValid {
		t.Fatal("custom rule violation should invalidate the form")
	}
	if got := errorsFor(result, "name", SeverityError); len(got) != 1 || got[0].Message != "must not contain digits" {
		t.Errorf("errors = %+v", got)
	}
}

func TestValidator_CoercesNonStringValues(t *testing.T) {
	v := testValidator()

	result := v.Validate(
		map[string]interface{}{"count": float64(42), "flag": true},
		map[string]FieldConfig{"count": {}, "flag": {}},
	)

	if !result.IsValid {
		t.Fatalf("scalar coercion should succeed: %+v", result.Errors)
	}
	if got := result.SanitizedData["count"]; got != "42" {
		t.Errorf("count = %q, want 42", got)
	}
	if got := result.SanitizedData["flag"]; got != "true" {
		t.Errorf("flag = %q, want true", got)
	}
}

// Sanitization must not be re-exploitable: scanning a sanitized payload
// finds nothing, and sanitizing twice equals sanitizing once.
func TestValidator_SanitizerFixedPoint(t *testing.T) {
	v := testValidator()
	payloads := []string{
		`<script>alert(1)</script>`,
		`<img src=x onerror=alert(1)>`,
		`<iframe src="https://evil.com"></iframe>`,
		`javascript:alert(document.cookie)`,
		`<a href="vbscript:msgbox(1)">x</a>`,
		`<div onclick="steal()">text</div>`,
	}
	for _, payload := range payloads {
		once := v.sanitizer.Strip(payload)
		if v.scanner.DetectXSS(once).IsMalicious {
			t.Errorf("sanitized %q still scans as malicious: %q", payload, once)
		}
		if twice := v.sanitizer.Strip(once); twice != once {
			t.Errorf("sanitization not idempotent for %q: %q != %q", payload, twice, once)
		}
	}
}

func TestValidator_SafeContentPreserved(t *testing.T) {
	v := testValidator()

	const input = "Hello world 123. How are you?"
	result := v.Validate(
		map[string]interface{}{"bio": input},
		map[string]FieldConfig{"bio": {}},
	)
	if !result.IsValid {
		t.Fatalf("plain text rejected: %+v", result.Errors)
	}
	if got := result.SanitizedData["bio"]; got != input {
		t.Errorf("plain text altered: %q -> %q", input, got)
	}
}
