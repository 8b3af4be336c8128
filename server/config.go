package server

import (
	"log/slog"
	"time"

	"github.com/quiestce/quiestce/token"
)

// Config holds authorization engine configuration
type Config struct {
	// Client is the single registered client application
	Client ClientConfig

	// TokenSecret is the HMAC key used to sign identity tokens (required)
	TokenSecret []byte

	// TokenLifetime is how long issued tokens are valid
	// Default: 1 hour
	TokenLifetime time.Duration

	// EnforcePKCE makes Exchange require a code_verifier matching the code
	// challenge. When false, the code challenge itself is the authorization
	// code and no verifier is checked.
	// Default: false
	EnforcePKCE bool

	// Clock returns the current time. Used for token issuance and grant
	// timestamps. Default: time.Now
	Clock func() time.Time
}

// applyDefaults fills unset fields and logs settings worth knowing about at
// startup
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	cfg := *config
	if cfg.TokenLifetime <= 0 {
		cfg.TokenLifetime = token.DefaultLifetime
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if !cfg.EnforcePKCE {
		logger.Info("PKCE verifier check disabled; the code challenge is accepted as the authorization code")
	}
	return &cfg
}
