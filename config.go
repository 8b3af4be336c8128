package quiestce

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultRateLimit is the sustained requests per second allowed per client IP
	DefaultRateLimit = 10

	// DefaultRateLimitBurst is the number of requests allowed above the rate
	DefaultRateLimitBurst = 20

	// maxTokenBodySize caps the body read by the token endpoint
	maxTokenBodySize = 64 << 10
)

// Config holds the HTTP transport configuration
type Config struct {
	// BaseURL is the public URL of this service. It is logged at startup and
	// decides whether HSTS is sent.
	BaseURL string

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Security settings (secure by default)
	Security SecurityConfig

	// MetricsGatherer, when set, is served on /metrics
	MetricsGatherer prometheus.Gatherer
}

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP
	Burst int

	// MaxEntries caps the number of tracked IPs (default: 10000)
	MaxEntries int
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a reverse proxy that overwrites them.
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of this server
	// Default: 1
	TrustedProxyCount int
}

// DefaultConfig returns the transport defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:3010",
		RateLimit: RateLimitConfig{
			Rate:  DefaultRateLimit,
			Burst: DefaultRateLimitBurst,
		},
		Security: SecurityConfig{
			TrustedProxyCount: 1,
		},
	}
}
