// Package sanitize provides HTML sanitization and contextual output
// encoding for untrusted text.
//
// Two sanitization levels are offered: Strip removes all markup and is the
// default for form fields and response payloads; RichText keeps a small
// allowlist of formatting tags for fields that legitimately carry markup.
// Both are built on bluemonday policies, so event-handler attributes and
// javascript:/data:/vbscript: URIs never survive either pass.
//
// Sanitization is idempotent: sanitizing already-sanitized text returns it
// unchanged, and plain text without markup passes through materially
// unmodified.
package sanitize

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer applies HTML sanitization policies to untrusted text.
//
// A Sanitizer is safe for concurrent use; construct one and share it.
type Sanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// richTextElements is the allowlist for RichText sanitization. Only basic
// formatting survives; nothing on this list can carry attributes.
var richTextElements = []string{"p", "br", "strong", "em", "u", "b", "i"}

// dangerousSchemes matches executable URI schemes wherever they appear,
// including in plain text outside any attribute. Tag-level sanitization
// alone would leave "javascript:alert(1)" intact as text, and that text
// could become live again if a downstream renderer interpolates it into
// an href.
var dangerousSchemes = regexp.MustCompile(`(?i)(javascript|vbscript)\s*:|data\s*:\s*text/html`)

// New creates a Sanitizer with the strict and rich-text policies compiled.
func New() *Sanitizer {
	strict := bluemonday.StrictPolicy()
	strict.SkipElementsContent("script", "style", "iframe", "object", "embed")

	rich := bluemonday.NewPolicy()
	rich.AllowElements(richTextElements...)
	rich.SkipElementsContent("script", "style", "iframe", "object", "embed")

	return &Sanitizer{
		strict: strict,
		rich:   rich,
	}
}

// Strip removes all HTML markup from text.
//
// Tag contents of script, style and embedding elements are dropped
// entirely rather than unwrapped, so a stripped payload cannot be
// re-assembled into something executable.
func (s *Sanitizer) Strip(text string) string {
	return dangerousSchemes.ReplaceAllString(s.strict.Sanitize(text), "")
}

// RichText sanitizes text down to the restricted formatting allowlist
// (p, br, strong, em, u, b, i).
//
// All attributes are removed, so event handlers and dangerous URI schemes
// are stripped regardless of the surviving tags.
func (s *Sanitizer) RichText(text string) string {
	return dangerousSchemes.ReplaceAllString(s.rich.Sanitize(text), "")
}
