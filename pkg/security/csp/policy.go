// Package csp constructs Content-Security-Policy header values.
//
// CSP is a defense-in-depth layer against cross-site scripting and
// clickjacking: the policy declares which sources the browser may load
// content from, and a per-response nonce lets only server-blessed inline
// scripts execute.
package csp

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// Builder provides a fluent interface for constructing
// Content-Security-Policy headers.
//
// Thread Safety: Builder is not thread-safe. Build the shared parts once
// at startup and use WithNonce to derive a per-request policy.
type Builder struct {
	directives map[string][]string
	reportOnly bool
}

// NewBuilder creates a Builder with no directives set.
func NewBuilder() *Builder {
	return &Builder{
		directives: make(map[string][]string),
	}
}

// DefaultSrc sets the default-src directive, the fallback for all fetch
// directives that are not explicitly configured.
func (b *Builder) DefaultSrc(sources ...string) *Builder {
	b.directives["default-src"] = sources
	return b
}

// ScriptSrc sets the script-src directive. This is the most important
// directive for preventing XSS.
func (b *Builder) ScriptSrc(sources ...string) *Builder {
	b.directives["script-src"] = sources
	return b
}

// StyleSrc sets the style-src directive.
func (b *Builder) StyleSrc(sources ...string) *Builder {
	b.directives["style-src"] = sources
	return b
}

// ImgSrc sets the img-src directive.
func (b *Builder) ImgSrc(sources ...string) *Builder {
	b.directives["img-src"] = sources
	return b
}

// ConnectSrc sets the connect-src directive (fetch, XHR, WebSocket).
func (b *Builder) ConnectSrc(sources ...string) *Builder {
	b.directives["connect-src"] = sources
	return b
}

// FrameAncestors sets the frame-ancestors directive, the CSP-native
// replacement for X-Frame-Options.
func (b *Builder) FrameAncestors(sources ...string) *Builder {
	b.directives["frame-ancestors"] = sources
	return b
}

// BaseURI sets the base-uri directive.
func (b *Builder) BaseURI(sources ...string) *Builder {
	b.directives["base-uri"] = sources
	return b
}

// FormAction sets the form-action directive.
func (b *Builder) FormAction(sources ...string) *Builder {
	b.directives["form-action"] = sources
	return b
}

// ObjectSrc sets the object-src directive.
func (b *Builder) ObjectSrc(sources ...string) *Builder {
	b.directives["object-src"] = sources
	return b
}

// ReportOnly toggles Content-Security-Policy-Report-Only mode, where
// violations are reported but not enforced. Useful for testing a policy
// before rollout.
func (b *Builder) ReportOnly(enabled bool) *Builder {
	b.reportOnly = enabled
	return b
}

// WithNonce returns a copy of the builder whose script-src includes the
// given nonce source expression ('nonce-<value>').
//
// The receiver is not modified, so a shared base policy can safely derive
// per-request policies from concurrent handlers.
func (b *Builder) WithNonce(nonce string) *Builder {
	derived := &Builder{
		directives: make(map[string][]string, len(b.directives)+1),
		reportOnly: b.reportOnly,
	}
	for directive, sources := range b.directives {
		derived.directives[directive] = append([]string(nil), sources...)
	}

	derived.directives["script-src"] = append(
		derived.directives["script-src"],
		fmt.Sprintf("'nonce-%s'", nonce),
	)

	return derived
}

// Build generates the CSP header value string.
//
// Directives are emitted in a fixed order for readable headers; sources
// within each directive are space-separated.
func (b *Builder) Build() string {
	if len(b.directives) == 0 {
		return ""
	}

	directiveOrder := []string{
		"default-src",
		"script-src",
		"style-src",
		"img-src",
		"connect-src",
		"frame-ancestors",
		"form-action",
		"base-uri",
		"object-src",
	}

	var parts []string
	for _, directive := range directiveOrder {
		if sources, exists := b.directives[directive]; exists && len(sources) > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", directive, strings.Join(sources, " ")))
		}
	}

	return strings.Join(parts, "; ")
}

// HeaderName returns the header this policy should be written to:
// Content-Security-Policy, or the Report-Only variant when enabled.
func (b *Builder) HeaderName() string {
	if b.reportOnly {
		return "Content-Security-Policy-Report-Only"
	}
	return "Content-Security-Policy"
}

// StrictPolicy returns a restrictive policy suitable for JSON API
// endpoints that never serve HTML.
func StrictPolicy() *Builder {
	return NewBuilder().
		DefaultSrc("'none'").
		ConnectSrc("'self'").
		FrameAncestors("'none'").
		BaseURI("'self'").
		FormAction("'self'")
}

// AppPolicy returns a policy for HTML-serving application endpoints.
// Inline scripts are blocked unless blessed with the per-request nonce
// (see Builder.WithNonce).
func AppPolicy() *Builder {
	return NewBuilder().
		DefaultSrc("'self'").
		ScriptSrc("'self'").
		StyleSrc("'self'").
		ImgSrc("'self'", "data:").
		ConnectSrc("'self'").
		FrameAncestors("'none'").
		BaseURI("'self'").
		FormAction("'self'").
		ObjectSrc("'none'")
}

// GenerateNonce returns a fresh random nonce for a single response.
//
// The value is 128 bits of cryptographic randomness, base64-encoded as
// CSP requires.
func GenerateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate CSP nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
