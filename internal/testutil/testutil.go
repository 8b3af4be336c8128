package testutil

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/quiestce/quiestce/directory"
	"github.com/quiestce/quiestce/storage"
)

// Fixtures matching the defaults of a local development config
const (
	TestClientID     = "client-id"
	TestClientSecret = "client-secret"
	TestRedirectURI  = "http://app/api/redirect"
	TestJWTSecret    = "secret"
	TestState        = "xyz"
	TestChallenge    = "abc"
)

// Identities used across tests
var (
	Alice = directory.Identity{
		ID:    uuid.MustParse("0b7a6a53-5b7d-4b6e-9a55-8f1e0d7c1a01"),
		Name:  "Alice",
		Email: "alice@example.com",
	}
	Bob = directory.Identity{
		ID:    uuid.MustParse("4c2f0e4a-9d36-4e8b-b3d5-2a6c7f9e1b02"),
		Name:  "Bob",
		Email: "bob@example.com",
	}
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// NewDirectory returns a directory holding Alice and Bob
func NewDirectory() *directory.Directory {
	dir, err := directory.New([]directory.Identity{Alice, Bob})
	if err != nil {
		panic(err)
	}
	return dir
}

// NewAuthorizationRequest returns a request for the test client using an
// S256 challenge
func NewAuthorizationRequest(state, challenge string) *storage.AuthorizationRequest {
	return &storage.AuthorizationRequest{
		ClientID:            TestClientID,
		CodeChallenge:       challenge,
		CodeChallengeMethod: storage.PKCEMethodS256,
		RedirectURI:         TestRedirectURI,
		ResponseType:        "code",
		State:               state,
	}
}

// NewAuthorizationGrant returns a grant for identityID under code
func NewAuthorizationGrant(code, identityID string) *storage.AuthorizationGrant {
	return storage.NewGrant(NewAuthorizationRequest(TestState, code), identityID, time.Now())
}

// NewPKCEPair returns a fresh verifier and its S256 challenge
func NewPKCEPair() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}
