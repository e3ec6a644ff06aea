package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"edgeguard/pkg/config"
)

// IPExtractor resolves the client IP address for an HTTP request.
// The choice of strategy decides whether proxy headers are believed:
// RemoteAddrExtractor never trusts them, TrustedProxyExtractor trusts
// them only when the direct peer is a configured proxy.
type IPExtractor interface {
	// ExtractIP returns the client IP address as a string.
	ExtractIP(r *http.Request) (string, error)
}

// RemoteAddrExtractor extracts the client IP from the TCP connection
// address. This is the secure default: the connection IP cannot be
// spoofed by the client, unlike forwarding headers.
type RemoteAddrExtractor struct{}

// ExtractIP strips the port from r.RemoteAddr.
// Handles IPv4, bracketed IPv6, and portless addresses.
func (e *RemoteAddrExtractor) ExtractIP(r *http.Request) (string, error) {
	return extractIPFromAddr(r.RemoteAddr)
}

// TrustedProxyConfig holds the set of reverse proxies whose forwarding
// headers are believed. When disabled, header-based extraction is off
// entirely.
type TrustedProxyConfig struct {
	Enabled bool

	// AllowedCIDRs lists trusted proxy ranges. Single IPs are stored as
	// /32 or /128 prefixes.
	AllowedCIDRs []netip.Prefix
}

// IsTrusted reports whether remoteAddr belongs to a trusted proxy.
func (c *TrustedProxyConfig) IsTrusted(remoteAddr string) bool {
	ip, err := extractIPFromAddr(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range c.AllowedCIDRs {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// LoadTrustedProxyConfig loads proxy trust settings from the environment.
//
// Environment variables:
//   - EDGE_TRUST_PROXY: "true" enables header-based extraction
//   - EDGE_TRUSTED_PROXIES: comma-separated IPs or CIDR ranges
//
// Fail-closed: enabling trust with an empty or invalid proxy list is a
// startup error, because a typo here would let clients spoof their IP
// and rotate out of rate limits and blocks.
func LoadTrustedProxyConfig() (*TrustedProxyConfig, error) {
	enabled := config.GetEnvBool("EDGE_TRUST_PROXY", false)

	cfg := &TrustedProxyConfig{
		Enabled:      enabled,
		AllowedCIDRs: []netip.Prefix{},
	}
	if !enabled {
		return cfg, nil
	}

	proxies := config.GetEnvStringList("EDGE_TRUSTED_PROXIES", nil)
	if len(proxies) == 0 {
		return nil, fmt.Errorf("EDGE_TRUST_PROXY is enabled but EDGE_TRUSTED_PROXIES is empty")
	}

	for _, proxyStr := range proxies {
		prefix, err := netip.ParsePrefix(proxyStr)
		if err != nil {
			ip, ipErr := netip.ParseAddr(proxyStr)
			if ipErr != nil {
				return nil, fmt.Errorf("invalid IP or CIDR %q: must be an IP address or CIDR notation", proxyStr)
			}
			if ip.Is4() {
				prefix = netip.PrefixFrom(ip, 32)
			} else {
				prefix = netip.PrefixFrom(ip, 128)
			}
		}
		cfg.AllowedCIDRs = append(cfg.AllowedCIDRs, prefix)
	}

	if len(cfg.AllowedCIDRs) == 0 {
		return nil, fmt.Errorf("EDGE_TRUST_PROXY is enabled but no valid proxies found in EDGE_TRUSTED_PROXIES")
	}
	return cfg, nil
}

// TrustedProxyExtractor extracts the client IP from X-Forwarded-For or
// X-Real-IP when the direct peer is a trusted proxy, falling back to the
// connection address otherwise.
//
// Precedence: X-Forwarded-For (first entry), then X-Real-IP, then
// RemoteAddr.
type TrustedProxyExtractor struct {
	config TrustedProxyConfig
}

// NewTrustedProxyExtractor creates an extractor with the given config.
func NewTrustedProxyExtractor(config TrustedProxyConfig) *TrustedProxyExtractor {
	return &TrustedProxyExtractor{config: config}
}

// ExtractIP resolves the client IP. Forwarding headers from an untrusted
// peer are ignored and logged, since spoofed headers are how clients try
// to rotate out of IP-keyed rate limits.
func (e *TrustedProxyExtractor) ExtractIP(r *http.Request) (string, error) {
	if !e.config.Enabled {
		return extractIPFromAddr(r.RemoteAddr)
	}

	if !e.config.IsTrusted(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			slog.Warn("untrusted peer sent X-Forwarded-For",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("x_forwarded_for", xff))
		}
		return extractIPFromAddr(r.RemoteAddr)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip, nil
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String(), nil
		}
	}
	return extractIPFromAddr(r.RemoteAddr)
}

// extractIPFromAddr extracts the IP from "host:port" or a bare IP.
func extractIPFromAddr(addr string) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		if ip := net.ParseIP(addr); ip != nil {
			return ip.String(), nil
		}
		return "", fmt.Errorf("invalid address format: %s", addr)
	}
	return host, nil
}

// parseFirstIP returns the first valid IP in a comma-separated list, as
// found in X-Forwarded-For ("client, proxy1, proxy2").
func parseFirstIP(s string) string {
	first := s
	if i := strings.IndexByte(s, ','); i >= 0 {
		first = s[:i]
	}
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return ""
}
