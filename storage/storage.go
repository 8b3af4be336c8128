package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPendingNotFound is returned by TakePending when no live request is
	// stored under the state. Expired entries are reported the same way.
	ErrPendingNotFound = errors.New("pending authorization request not found")

	// ErrGrantNotFound is returned by TakeGrant when no live grant is stored
	// under the code, including when it was already taken.
	ErrGrantNotFound = errors.New("authorization grant not found")
)

// PKCE code challenge methods
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// AuthorizationRequest is a validated authorization request waiting for the
// user to pick an identity. It is keyed by State.
type AuthorizationRequest struct {
	ClientID            string `json:"client_id"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	RedirectURI         string `json:"redirect_uri"`
	ResponseType        string `json:"response_type"`
	State               string `json:"state"`
}

// AuthorizationGrant is an approved request. Code is the code challenge of the
// request it was built from and is the key the grant is stored under.
type AuthorizationGrant struct {
	Code                string    `json:"code"`
	State               string    `json:"state"`
	IdentityID          string    `json:"identity_id"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewGrant promotes a pending request approved by identityID
func NewGrant(req *AuthorizationRequest, identityID string, now time.Time) *AuthorizationGrant {
	return &AuthorizationGrant{
		Code:                req.CodeChallenge,
		State:               req.State,
		IdentityID:          identityID,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CreatedAt:           now,
	}
}

// TransactionStore holds authorization transactions between the steps of the
// flow. Every entry expires after a bounded lifetime, and an expired entry
// behaves exactly like a missing one.
//
// Take operations are atomic read-and-remove: of any number of concurrent
// takes for the same key, at most one returns the entry.
type TransactionStore interface {
	// PutPending stores req under req.State, replacing any previous entry
	PutPending(ctx context.Context, req *AuthorizationRequest) error

	// TakePending removes and returns the request stored under state.
	// Returns ErrPendingNotFound if there is none.
	TakePending(ctx context.Context, state string) (*AuthorizationRequest, error)

	// PutGrant stores grant under grant.Code, replacing any previous entry
	PutGrant(ctx context.Context, grant *AuthorizationGrant) error

	// TakeGrant removes and returns the grant stored under code.
	// Returns ErrGrantNotFound if there is none.
	TakeGrant(ctx context.Context, code string) (*AuthorizationGrant, error)
}
