package middleware

import "testing"

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"myapp.com", "https://partner.example.org"}

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact hostname", "https://myapp.com", true},
		{"different scheme", "http://myapp.com", true},
		{"with port", "https://myapp.com:8443", true},
		{"subdomain", "https://api.myapp.com", true},
		{"nested subdomain", "https://a.b.myapp.com", true},
		{"case insensitive", "https://MyApp.COM", true},
		{"full origin entry", "https://partner.example.org", true},
		{"unlisted host", "https://evil.com", false},
		{"suffix without dot", "https://notmyapp.com", false},
		{"hostname embedded in path", "https://evil.com/myapp.com", false},
		{"empty origin", "", false},
		{"null origin", "null", false},
		{"garbage", "://%ZZ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originAllowed(tt.origin, allowed); got != tt.want {
				t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestOriginAllowed_EmptyAllowlist(t *testing.T) {
	if originAllowed("https://myapp.com", nil) {
		t.Error("empty allowlist should reject every origin")
	}
	if originAllowed("https://myapp.com", []string{"", "  "}) {
		t.Error("blank entries should be ignored")
	}
}
