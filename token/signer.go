// Package token signs and verifies the identity tokens handed to clients.
//
// Tokens are HS512 JWTs carrying only the registered claims sub (the identity
// id) and exp. They are self-contained: verification checks the signature and
// expiry and nothing else.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLifetime is the token lifetime used when none is configured
const DefaultLifetime = time.Hour

// ErrEmptySecret is returned by NewSigner for a zero-length secret
var ErrEmptySecret = errors.New("token signing secret must not be empty")

var signingMethod = jwt.SigningMethodHS512

// Signer issues and verifies identity tokens with a shared HMAC secret.
// It is immutable and safe for concurrent use.
type Signer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// Option configures a Signer
type Option func(*Signer)

// WithClock overrides the time source used for issuing and verifying
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a signer. A zero lifetime selects DefaultLifetime.
func NewSigner(secret []byte, lifetime time.Duration, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	s := &Signer{
		secret:   append([]byte(nil), secret...),
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lifetime returns the configured token lifetime
func (s *Signer) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token for identityID and returns it with its expiry time,
// truncated to whole seconds.
func (s *Signer) Issue(identityID string) (string, time.Time, error) {
	expiresAt := s.now().Add(s.lifetime).Truncate(time.Second).UTC()

	claims := jwt.RegisteredClaims{
		Subject:   identityID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, algorithm and expiry of raw and returns its
// subject. ok is false for any failure, including a missing subject.
func (s *Signer) Verify(raw string) (identityID string, ok bool) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
