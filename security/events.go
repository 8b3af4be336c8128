package security

// Event type constants for security audit logging.
const (
	// EventAuthorizationStarted is logged when an authorization request passes validation
	// and is stored as pending
	EventAuthorizationStarted = "authorization_started"

	// EventAuthorizationApproved is logged when a pending request is promoted to a grant
	EventAuthorizationApproved = "authorization_approved"

	// EventTokenIssued is logged when a grant is exchanged for a signed token
	EventTokenIssued = "token_issued"

	// EventAuthFailure is logged when a client or request validation fails
	EventAuthFailure = "auth_failure"

	// EventStateUnknown is logged when an approval references no pending request
	EventStateUnknown = "state_unknown"

	// EventCodeNotFound is logged when an exchange presents an unknown, expired or consumed code
	EventCodeNotFound = "code_not_found"

	// EventInvalidRedirect is logged when a redirect URI does not match the registered one
	EventInvalidRedirect = "invalid_redirect"

	// EventInvalidPKCE is logged when verifier enforcement rejects an exchange
	EventInvalidPKCE = "invalid_pkce"

	// EventInvalidBearer is logged when a bearer token fails verification
	EventInvalidBearer = "invalid_bearer"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
