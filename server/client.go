package server

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/quiestce/quiestce/storage"
)

// maxSecretLength is the longest secret bcrypt accepts
const maxSecretLength = 72

// ClientConfig describes the single registered client application
type ClientConfig struct {
	ID          string
	Secret      string
	RedirectURI string

	// BcryptCost is the cost used to hash Secret (default: bcrypt.DefaultCost)
	BcryptCost int
}

// ClientValidator checks requests and credentials against the registered
// client. It is immutable after construction and keeps only a bcrypt hash of
// the secret.
type ClientValidator struct {
	id          string
	secretHash  []byte
	redirectURI string
}

// NewClientValidator hashes the client secret and returns a validator
func NewClientValidator(cfg ClientConfig) (*ClientValidator, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if len(cfg.Secret) > maxSecretLength {
		return nil, fmt.Errorf("client secret must be at most %d bytes", maxSecretLength)
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("client redirect uri is required")
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Secret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}

	return &ClientValidator{
		id:          cfg.ID,
		secretHash:  hash,
		redirectURI: cfg.RedirectURI,
	}, nil
}

// ClientID returns the registered client id
func (v *ClientValidator) ClientID() string {
	return v.id
}

// RedirectURI returns the registered redirect URI
func (v *ClientValidator) RedirectURI() string {
	return v.redirectURI
}

// ValidateRequest checks the client id and then the redirect URI of an
// authorization request. Errors carry the request state.
func (v *ClientValidator) ValidateRequest(req *storage.AuthorizationRequest) error {
	if req.ClientID != v.id {
		return ErrInvalidClientID(req.State)
	}
	if req.RedirectURI != v.redirectURI {
		return ErrRedirectURIMismatch(req.State)
	}
	return nil
}

// ValidateCredential checks a client id and secret presented to the token
// endpoint
func (v *ClientValidator) ValidateCredential(id, secret string) error {
	if id != v.id {
		return ErrInvalidClientID("")
	}
	if len(secret) > maxSecretLength {
		return ErrInvalidClientSecret()
	}
	if err := bcrypt.CompareHashAndPassword(v.secretHash, []byte(secret)); err != nil {
		return ErrInvalidClientSecret()
	}
	return nil
}

// ValidateRedirectURI requires uri to equal the registered redirect URI
// exactly
func (v *ClientValidator) ValidateRedirectURI(uri, state string) error {
	if uri != v.redirectURI {
		return ErrRedirectURIMismatch(state)
	}
	return nil
}
