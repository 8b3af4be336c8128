package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quiestce/quiestce/internal/util"
)

// Error codes. The set is closed: every failure of the engine and its
// transport is reported with one of these.
const (
	ErrorCodeInvalidClientID     = "invalid_client_id"
	ErrorCodeInvalidClientSecret = "invalid_client_secret"
	ErrorCodeRedirectURIMismatch = "redirect_uri_mismatch"
	ErrorCodeStateUnknown        = "state_unknown"
	ErrorCodeUserNotFound        = "user_not_found"
	ErrorCodeCodeNotFound        = "code-not-found"
	ErrorCodeInvalidBearer       = "invalid-bearer"
	ErrorCodeUserInfoNotFound    = "user-not-found"
	ErrorCodeServerError         = "server_error"
	ErrorCodeRateLimitExceeded   = "rate_limit_exceeded"
	ErrorCodeInvalidRequest      = "invalid_request"
)

// Error is the failure type returned by every engine operation
type Error struct {
	Code        string
	Description string
	State       string // echoed back to the client when set
	Status      int    // HTTP status used by the transport
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ErrorResponse is the JSON body written for an Error
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	State            string `json:"state,omitempty"`
}

// Response returns the JSON body for e
func (e *Error) Response() ErrorResponse {
	return ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
		State:            e.State,
	}
}

// RedirectURL appends error, error_description and state (when set) to base
func (e *Error) RedirectURL(base string) (string, error) {
	return util.AppendQuery(base, url.Values{
		"error":             {e.Code},
		"error_description": {e.Description},
		"state":             {e.State},
	})
}

func newError(code, description, state string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		State:       state,
		Status:      status,
	}
}

// ErrInvalidClientID reports an unknown client id
func ErrInvalidClientID(state string) *Error {
	return newError(ErrorCodeInvalidClientID,
		"Unable to find an application with the provided client_id.",
		state, http.StatusBadRequest)
}

// ErrInvalidClientSecret reports a wrong client secret
func ErrInvalidClientSecret() *Error {
	return newError(ErrorCodeInvalidClientSecret,
		"The provided client secret is invalid.",
		"", http.StatusBadRequest)
}

// ErrRedirectURIMismatch reports a redirect URI other than the registered one
func ErrRedirectURIMismatch(state string) *Error {
	return newError(ErrorCodeRedirectURIMismatch,
		"The redirect_uri MUST match the registered callback URL for this application.",
		state, http.StatusBadRequest)
}

// ErrInvalidRequest reports a request missing a required parameter or with a
// body that does not decode
func ErrInvalidRequest(description, state string) *Error {
	return newError(ErrorCodeInvalidRequest, description, state, http.StatusBadRequest)
}

// ErrStateUnknown reports an approval for a state with no pending request
func ErrStateUnknown(state string) *Error {
	return newError(ErrorCodeStateUnknown,
		"Unable to find authorization request with the provided state.",
		state, http.StatusBadRequest)
}

// ErrUserNotFound reports an approval by an identity missing from the directory
func ErrUserNotFound(state string) *Error {
	return newError(ErrorCodeUserNotFound,
		"Unable to find the requested user.",
		state, http.StatusBadRequest)
}

// ErrCodeNotFound reports an exchange for a code that is unknown, expired,
// already used or fails PKCE verification
func ErrCodeNotFound() *Error {
	return newError(ErrorCodeCodeNotFound,
		"The provided code was not found in our database.",
		"", http.StatusBadRequest)
}

// ErrInvalidBearer reports a bearer token that does not verify
func ErrInvalidBearer() *Error {
	return newError(ErrorCodeInvalidBearer,
		"Unable to decode bearer token.",
		"", http.StatusUnauthorized)
}

// ErrUserInfoNotFound reports a valid token whose subject left the directory
func ErrUserInfoNotFound() *Error {
	return newError(ErrorCodeUserInfoNotFound,
		"Unable to find user.",
		"", http.StatusBadRequest)
}

// ErrServerError reports a backend failure
func ErrServerError(description string) *Error {
	return newError(ErrorCodeServerError, description, "", http.StatusInternalServerError)
}

// ErrRateLimitExceeded reports a rejected request from a throttled client
func ErrRateLimitExceeded() *Error {
	return newError(ErrorCodeRateLimitExceeded,
		"Too many requests. Please try again later.",
		"", http.StatusTooManyRequests)
}

// AsError returns err as an *Error. Errors of any other type become a
// server_error that does not leak their text.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrServerError("An internal error occurred.")
}
