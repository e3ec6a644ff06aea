package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestRemoteAddrExtractor(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
		wantErr    bool
	}{
		{"ipv4 with port", "203.0.113.5:49152", "203.0.113.5", false},
		{"ipv6 with port", "[2001:db8::1]:49152", "2001:db8::1", false},
		{"bare ipv4", "203.0.113.5", "203.0.113.5", false},
		{"garbage", "not-an-address", "", true},
		{"empty", "", "", true},
	}
	e := &RemoteAddrExtractor{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			got, err := e.ExtractIP(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteAddrExtractor_IgnoresForwardingHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:49152"
	r.Header.Set("X-Forwarded-For", "198.51.100.9")
	r.Header.Set("X-Real-IP", "198.51.100.9")

	got, err := (&RemoteAddrExtractor{}).ExtractIP(r)
	if err != nil {
		t.Fatalf("ExtractIP: %v", err)
	}
	if got != "203.0.113.5" {
		t.Errorf("ExtractIP = %q, want connection address", got)
	}
}

func trustedConfig(t *testing.T, cidrs ...string) TrustedProxyConfig {
	t.Helper()
	config := TrustedProxyConfig{Enabled: true}
	for _, c := range cidrs {
		config.AllowedCIDRs = append(config.AllowedCIDRs, netip.MustParsePrefix(c))
	}
	return config
}

func TestTrustedProxyExtractor_TrustedPeer(t *testing.T) {
	e := NewTrustedProxyExtractor(trustedConfig(t, "10.0.0.0/8"))

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			"forwarded-for first entry",
			map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.1"},
			"198.51.100.9",
		},
		{
			"real-ip fallback",
			map[string]string{"X-Real-IP": "198.51.100.9"},
			"198.51.100.9",
		},
		{
			"forwarded-for wins over real-ip",
			map[string]string{"X-Forwarded-For": "198.51.100.9", "X-Real-IP": "192.0.2.4"},
			"198.51.100.9",
		},
		{
			"invalid forwarded-for falls through to real-ip",
			map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "198.51.100.9"},
			"198.51.100.9",
		},
		{
			"no headers uses connection address",
			nil,
			"10.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "10.0.0.1:49152"
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := e.ExtractIP(r)
			if err != nil {
				t.Fatalf("ExtractIP: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrustedProxyExtractor_UntrustedPeerHeadersIgnored(t *testing.T) {
	e := NewTrustedProxyExtractor(trustedConfig(t, "10.0.0.0/8"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:49152"
	r.Header.Set("X-Forwarded-For", "198.51.100.9")

	got, err := e.ExtractIP(r)
	if err != nil {
		t.Fatalf("ExtractIP: %v", err)
	}
	if got != "203.0.113.5" {
		t.Errorf("ExtractIP = %q, want the untrusted peer's own address", got)
	}
}

func TestTrustedProxyExtractor_Disabled(t *testing.T) {
	e := NewTrustedProxyExtractor(TrustedProxyConfig{Enabled: false})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:49152"
	r.Header.Set("X-Forwarded-For", "198.51.100.9")

	got, err := e.ExtractIP(r)
	if err != nil {
		t.Fatalf("ExtractIP: %v", err)
	}
	if got != "203.0.113.5" {
		t.Errorf("ExtractIP = %q, want connection address when disabled", got)
	}
}

func TestLoadTrustedProxyConfig(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		t.Setenv("EDGE_TRUST_PROXY", "")
		t.Setenv("EDGE_TRUSTED_PROXIES", "")
		config, err := LoadTrustedProxyConfig()
		if err != nil {
			t.Fatalf("LoadTrustedProxyConfig: %v", err)
		}
		if config.Enabled {
			t.Error("trust should be disabled by default")
		}
	})

	t.Run("mixed IPs and CIDRs", func(t *testing.T) {
		t.Setenv("EDGE_TRUST_PROXY", "true")
		t.Setenv("EDGE_TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12, 2001:db8::1")
		config, err := LoadTrustedProxyConfig()
		if err != nil {
			t.Fatalf("LoadTrustedProxyConfig: %v", err)
		}
		if len(config.AllowedCIDRs) != 3 {
			t.Fatalf("AllowedCIDRs = %d entries, want 3", len(config.AllowedCIDRs))
		}
		if !config.IsTrusted("10.0.0.1:8080") {
			t.Error("single IP entry should trust that IP")
		}
		if !config.IsTrusted("172.20.1.1:8080") {
			t.Error("CIDR entry should trust addresses in range")
		}
		if config.IsTrusted("203.0.113.5:8080") {
			t.Error("unlisted address should not be trusted")
		}
	})

	t.Run("enabled with empty list fails", func(t *testing.T) {
		t.Setenv("EDGE_TRUST_PROXY", "true")
		t.Setenv("EDGE_TRUSTED_PROXIES", "")
		if _, err := LoadTrustedProxyConfig(); err == nil {
			t.Fatal("expected error for empty proxy list")
		}
	})

	t.Run("invalid entry fails", func(t *testing.T) {
		t.Setenv("EDGE_TRUST_PROXY", "true")
		t.Setenv("EDGE_TRUSTED_PROXIES", "proxy.internal")
		if _, err := LoadTrustedProxyConfig(); err == nil {
			t.Fatal("expected error for hostname entry")
		}
	})
}
