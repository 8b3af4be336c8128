package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		wantHSTS bool
	}{
		{name: "HTTPS base URL", baseURL: "https://auth.example.com", wantHSTS: true},
		{name: "HTTP base URL", baseURL: "http://localhost:3010", wantHSTS: false},
		{name: "invalid URL", baseURL: "://invalid", wantHSTS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SetSecurityHeaders(w, tt.baseURL)

			want := map[string]string{
				"X-Frame-Options":         "DENY",
				"X-Content-Type-Options":  "nosniff",
				"Content-Security-Policy": contentSecurityPolicy,
				"Referrer-Policy":         "no-referrer",
				"Cache-Control":           "no-store",
				"Pragma":                  "no-cache",
			}
			for header, value := range want {
				if got := w.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}

			hsts := w.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && hsts == "" {
				t.Error("Strict-Transport-Security should be set for HTTPS")
			}
			if !tt.wantHSTS && hsts != "" {
				t.Errorf("Strict-Transport-Security = %q, want empty", hsts)
			}
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeaders("http://localhost:3010")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
