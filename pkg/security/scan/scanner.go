// Package scan provides detection of malicious content in untrusted text.
//
// The package defines the Scanner interface consumed by the edge middleware
// and the form validator, plus a regexp-based default implementation. The
// default patterns target the common injection shapes (markup-based XSS,
// classic SQL metacharacter abuse); callers needing a full pattern library
// can supply their own Scanner implementation.
package scan

import (
	"regexp"
	"strings"
)

// Detection is the result of scanning a piece of text.
type Detection struct {
	// IsMalicious indicates at least one pattern matched.
	IsMalicious bool

	// Patterns names the pattern categories that matched, for logging
	// and caller-side warnings.
	Patterns []string
}

// Scanner detects malicious payloads in untrusted text.
//
// Implementations must be safe for concurrent use.
type Scanner interface {
	// DetectXSS scans text for cross-site scripting payloads.
	DetectXSS(text string) Detection

	// DetectSQLInjection reports whether text contains SQL injection
	// patterns.
	DetectSQLInjection(text string) bool
}

// xssPattern pairs a compiled pattern with its category name.
type xssPattern struct {
	name    string
	pattern *regexp.Regexp
}

// RegexScanner is the default Scanner implementation.
//
// All patterns are compiled once at construction; scanning holds no state,
// so a single instance can be shared across goroutines.
type RegexScanner struct {
	xss  []xssPattern
	sqli []*regexp.Regexp
}

// NewRegexScanner creates a scanner with the built-in pattern set.
func NewRegexScanner() *RegexScanner {
	return &RegexScanner{
		xss: []xssPattern{
			{"script_tag", regexp.MustCompile(`(?i)<\s*script[^>]*>`)},
			{"event_handler", regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)},
			{"javascript_uri", regexp.MustCompile(`(?i)javascript\s*:`)},
			{"vbscript_uri", regexp.MustCompile(`(?i)vbscript\s*:`)},
			{"data_uri_html", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
			{"embedded_frame", regexp.MustCompile(`(?i)<\s*(iframe|frame|object|embed|applet)\b`)},
			{"dangerous_element", regexp.MustCompile(`(?i)<\s*(img|svg|body|input|form|link|meta)\b[^>]*\bon[a-z]+\s*=`)},
			{"css_expression", regexp.MustCompile(`(?i)expression\s*\(`)},
			{"import_statement", regexp.MustCompile(`(?i)@import\b`)},
		},
		sqli: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bunion\b[\s(]+\bselect\b`),
			regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|truncate|alter|exec|execute)\b[\s(]+.*\b(from|into|table|database|where)\b`),
			regexp.MustCompile(`(?i)('|")\s*(or|and)\s*('|")?\s*\d+\s*('|")?\s*=\s*('|")?\s*\d+`),
			regexp.MustCompile(`(?i)\b(or|and)\b\s+\d+\s*=\s*\d+`),
			regexp.MustCompile(`(?i)('|");\s*(drop|delete|insert|update|exec)\b`),
			regexp.MustCompile(`(?i)\b(sleep|benchmark|waitfor\s+delay|pg_sleep)\s*\(`),
			regexp.MustCompile(`--\s*$`),
			regexp.MustCompile(`/\*.*\*/`),
		},
	}
}

// DetectXSS scans text for cross-site scripting payloads and returns the
// categories that matched. Empty text is never malicious.
func (s *RegexScanner) DetectXSS(text string) Detection {
	if text == "" {
		return Detection{}
	}

	var matched []string
	for _, p := range s.xss {
		if p.pattern.MatchString(text) {
			matched = append(matched, p.name)
		}
	}

	return Detection{
		IsMalicious: len(matched) > 0,
		Patterns:    matched,
	}
}

// DetectSQLInjection reports whether text contains SQL injection patterns.
//
// Purely numeric or short alphanumeric text short-circuits to false to keep
// the common case cheap.
func (s *RegexScanner) DetectSQLInjection(text string) bool {
	if text == "" {
		return false
	}
	if !strings.ContainsAny(text, `'";-/\=(`) && len(text) < 16 {
		return false
	}

	for _, pattern := range s.sqli {
		if pattern.MatchString(text) {
			return true
		}
	}

	return false
}
