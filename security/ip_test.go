package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		resolver   ClientIPResolver
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "192.168.1.100:12345",
			want:       "192.168.1.100",
		},
		{
			name:       "forwarded for ignored without trust",
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1",
			want:       "10.0.0.1",
		},
		{
			name:       "forwarded for with trust",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1, 10.0.0.2",
			want:       "203.0.113.1",
		},
		{
			name:       "forwarded for with whitespace",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xff:        " 203.0.113.1 , 10.0.0.2 ",
			want:       "203.0.113.1",
		},
		{
			name:       "spoofed leftmost entry is skipped",
			resolver:   ClientIPResolver{TrustProxy: true, TrustedProxyCount: 1},
			remoteAddr: "10.0.0.1:12345",
			xff:        "1.1.1.1, 203.0.113.1, 10.0.0.2",
			want:       "203.0.113.1",
		},
		{
			name:       "two trusted proxies",
			resolver:   ClientIPResolver{TrustProxy: true, TrustedProxyCount: 2},
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1, 10.0.0.2, 10.0.0.3",
			want:       "203.0.113.1",
		},
		{
			name:       "more trusted proxies than hops",
			resolver:   ClientIPResolver{TrustProxy: true, TrustedProxyCount: 5},
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1",
			want:       "203.0.113.1",
		},
		{
			name:       "invalid forwarded entry falls back to remote address",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xff:        "not-an-ip",
			want:       "10.0.0.1",
		},
		{
			name:       "real ip with trust",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "203.0.113.7",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded for preferred over real ip",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xff:        "203.0.113.1",
			xRealIP:    "203.0.113.2",
			want:       "203.0.113.1",
		},
		{
			name:       "ipv4 mapped ipv6 is unmapped",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "::ffff:203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "ipv6 remote address",
			remoteAddr: "[::1]:12345",
			want:       "::1",
		},
		{
			name:       "malformed remote address",
			remoteAddr: "malformed",
			want:       "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := tt.resolver.Resolve(req); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.2")

	if got := GetClientIP(req, true, 1); got != "203.0.113.1" {
		t.Errorf("GetClientIP() = %q, want %q", got, "203.0.113.1")
	}
	if got := GetClientIP(req, false, 0); got != "10.0.0.1" {
		t.Errorf("GetClientIP() = %q, want %q", got, "10.0.0.1")
	}
}

func TestClientIPResolver_Middleware(t *testing.T) {
	resolver := ClientIPResolver{TrustProxy: true}

	var seen string
	handler := resolver.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "203.0.113.1" {
		t.Errorf("ClientIPFromContext() = %q, want %q", seen, "203.0.113.1")
	}
	if got := ClientIPFromContext(req.Context()); got != "" {
		t.Errorf("original request context should be untouched, got %q", got)
	}
}
