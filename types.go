package quiestce

import (
	"github.com/google/uuid"
)

// TokenRequest is the body of POST /api/token. It is accepted as JSON or as
// a form.
type TokenRequest struct {
	GrantType    string `json:"grant_type,omitempty"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// TokenResponse is the body of a successful token exchange
type TokenResponse struct {
	// AccessToken is the signed identity token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`
}

// UserInfoResponse is the body of GET /api/userinfo
type UserInfoResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}
