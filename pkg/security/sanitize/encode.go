package sanitize

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Context identifies the destination a value will be embedded into.
//
// A value safe for an HTML body is not automatically safe inside an
// attribute, a script block, a stylesheet, or a URL; each destination has
// its own metacharacters, so encoding must be chosen per context.
type Context int

const (
	// ContextHTMLBody encodes for element content (between tags).
	ContextHTMLBody Context = iota

	// ContextHTMLAttribute encodes for a quoted or unquoted attribute value.
	ContextHTMLAttribute

	// ContextJSString encodes for a JavaScript string literal.
	ContextJSString

	// ContextCSSValue encodes for a CSS property value.
	ContextCSSValue

	// ContextURLComponent encodes for a URL query or path component.
	ContextURLComponent
)

// String returns the context name used in configuration and logs.
func (c Context) String() string {
	switch c {
	case ContextHTMLBody:
		return "html"
	case ContextHTMLAttribute:
		return "attribute"
	case ContextJSString:
		return "javascript"
	case ContextCSSValue:
		return "css"
	case ContextURLComponent:
		return "url"
	default:
		return "unknown"
	}
}

// ParseContext maps a configuration string to a Context.
// Unknown values fall back to ContextHTMLBody, the most conservative
// default for page content.
func ParseContext(name string) Context {
	switch strings.ToLower(name) {
	case "attribute":
		return ContextHTMLAttribute
	case "javascript", "js":
		return ContextJSString
	case "css":
		return ContextCSSValue
	case "url":
		return ContextURLComponent
	default:
		return ContextHTMLBody
	}
}

// Encode re-encodes value for the given destination context.
func Encode(value string, ctx Context) string {
	switch ctx {
	case ContextHTMLAttribute:
		return encodeHTMLAttribute(value)
	case ContextJSString:
		return encodeJSString(value)
	case ContextCSSValue:
		return encodeCSSValue(value)
	case ContextURLComponent:
		return url.QueryEscape(value)
	default:
		return html.EscapeString(value)
	}
}

// encodeHTMLAttribute hex-entity-encodes everything outside [A-Za-z0-9],
// which is safe in quoted and unquoted attribute positions alike.
func encodeHTMLAttribute(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	for _, r := range value {
		if isAlphanumeric(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "&#x%X;", r)
		}
	}

	return b.String()
}

// encodeJSString backslash-hex-encodes everything outside [A-Za-z0-9],
// preventing breakouts from string literals in script blocks.
func encodeJSString(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	for _, r := range value {
		switch {
		case isAlphanumeric(r):
			b.WriteRune(r)
		case r <= 0xFF:
			fmt.Fprintf(&b, `\x%02X`, r)
		default:
			fmt.Fprintf(&b, `\u%04X`, r)
		}
	}

	return b.String()
}

// encodeCSSValue CSS-escapes everything outside [A-Za-z0-9]. The trailing
// space terminates the escape sequence unambiguously.
func encodeCSSValue(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	for _, r := range value {
		if isAlphanumeric(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, `\%X `, r)
		}
	}

	return b.String()
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
