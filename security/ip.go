package security

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver extracts the client address used for rate limiting and
// audit records. Forwarding headers are honored only when TrustProxy is set.
type ClientIPResolver struct {
	TrustProxy bool

	// TrustedProxyCount is the number of proxies we run in front of the
	// server. The client is the entry just left of them in X-Forwarded-For.
	// 0 is treated as 1.
	TrustedProxyCount int
}

// Resolve returns the client IP of r
func (c ClientIPResolver) Resolve(r *http.Request) string {
	if c.TrustProxy {
		if ip := clientFromForwardedFor(r.Header.Get("X-Forwarded-For"), c.TrustedProxyCount); ip != "" {
			return ip
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return hostOf(r.RemoteAddr)
}

// GetClientIP is a shorthand for ClientIPResolver.Resolve
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	return ClientIPResolver{TrustProxy: trustProxy, TrustedProxyCount: trustedProxyCount}.Resolve(r)
}

func clientFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	hops := strings.Split(xff, ",")

	proxies := trustedProxyCount
	if proxies <= 0 {
		proxies = 1
	}
	idx := len(hops) - proxies - 1
	if idx < 0 {
		idx = 0
	}
	return parseIP(hops[idx])
}

func parseIP(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

type clientIPContextKey struct{}

// WithClientIP stores the resolved client IP in ctx for audit records
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the client IP stored in ctx, or ""
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return ip
	}
	return ""
}

// Middleware stores the resolved client IP in the request context
func (c ClientIPResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), c.Resolve(r))))
	})
}
