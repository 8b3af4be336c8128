package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// AuditRecorder receives a count of every audit event emitted.
// instrumentation.Metrics satisfies it.
type AuditRecorder interface {
	RecordAuditEvent(ctx context.Context, eventType string)
}

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger   *slog.Logger
	enabled  bool
	recorder AuditRecorder
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// SetRecorder attaches a metrics recorder that counts audit events
func (a *Auditor) SetRecorder(r AuditRecorder) {
	a.recorder = r
}

// Event represents a security audit event
type Event struct {
	Type       string
	IdentityID string
	ClientID   string
	IPAddress  string
	Details    map[string]any
	Timestamp  time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"identity_id_hash", hashForLogging(event.IdentityID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.recorder != nil {
		a.recorder.RecordAuditEvent(context.Background(), event.Type)
	}
}

// LogAuthorizationStarted logs an accepted authorization request
func (a *Auditor) LogAuthorizationStarted(clientID, ipAddress, pkceMethod string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationStarted,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"pkce_method": pkceMethod,
		},
	})
}

// LogAuthorizationApproved logs a pending request promoted to a grant
func (a *Auditor) LogAuthorizationApproved(identityID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:       EventAuthorizationApproved,
		IdentityID: identityID,
		ClientID:   clientID,
		IPAddress:  ipAddress,
	})
}

// LogTokenIssued logs when a token is issued
func (a *Auditor) LogTokenIssued(identityID, clientID, ipAddress string, expiresAt time.Time) {
	a.LogEvent(Event{
		Type:       EventTokenIssued,
		IdentityID: identityID,
		ClientID:   clientID,
		IPAddress:  ipAddress,
		Details: map[string]any{
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// LogAuthFailure logs a failed validation. reason is the error code.
func (a *Auditor) LogAuthFailure(identityID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:       EventAuthFailure,
		IdentityID: identityID,
		ClientID:   clientID,
		IPAddress:  ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeNotFound logs an exchange that found no grant for the presented code
func (a *Auditor) LogCodeNotFound(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventCodeNotFound,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogInvalidRedirect logs a redirect URI mismatch
func (a *Auditor) LogInvalidRedirect(clientID, ipAddress, redirectURI string) {
	a.LogEvent(Event{
		Type:      EventInvalidRedirect,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"redirect_uri": redirectURI,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
