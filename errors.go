package quiestce

import "github.com/quiestce/quiestce/server"

// Error is the failure type written by every endpoint
type Error = server.Error

// ErrorResponse is the JSON error body
type ErrorResponse = server.ErrorResponse

// Error codes
const (
	ErrorCodeInvalidClientID     = server.ErrorCodeInvalidClientID
	ErrorCodeInvalidClientSecret = server.ErrorCodeInvalidClientSecret
	ErrorCodeRedirectURIMismatch = server.ErrorCodeRedirectURIMismatch
	ErrorCodeStateUnknown        = server.ErrorCodeStateUnknown
	ErrorCodeUserNotFound        = server.ErrorCodeUserNotFound
	ErrorCodeCodeNotFound        = server.ErrorCodeCodeNotFound
	ErrorCodeInvalidBearer       = server.ErrorCodeInvalidBearer
	ErrorCodeUserInfoNotFound    = server.ErrorCodeUserInfoNotFound
	ErrorCodeServerError         = server.ErrorCodeServerError
	ErrorCodeRateLimitExceeded   = server.ErrorCodeRateLimitExceeded
	ErrorCodeInvalidRequest      = server.ErrorCodeInvalidRequest
)

// Error constructors
var (
	ErrInvalidClientID     = server.ErrInvalidClientID
	ErrInvalidClientSecret = server.ErrInvalidClientSecret
	ErrRedirectURIMismatch = server.ErrRedirectURIMismatch
	ErrStateUnknown        = server.ErrStateUnknown
	ErrUserNotFound        = server.ErrUserNotFound
	ErrCodeNotFound        = server.ErrCodeNotFound
	ErrInvalidBearer       = server.ErrInvalidBearer
	ErrUserInfoNotFound    = server.ErrUserInfoNotFound
	ErrServerError         = server.ErrServerError
	ErrRateLimitExceeded   = server.ErrRateLimitExceeded
	ErrInvalidRequest      = server.ErrInvalidRequest
)

// isValidationError reports whether e came from checking the authorization
// request against the registered client
func isValidationError(e *Error) bool {
	return e.Code == ErrorCodeInvalidClientID || e.Code == ErrorCodeRedirectURIMismatch
}
