package server

import (
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/internal/testutil"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/storage/memory"
	"github.com/quiestce/quiestce/token"
)

func TestNew(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	srv, err := New(store, testutil.NewDirectory(), testConfig(testutil.NewMockTime(testEpoch)), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if srv.Logger == nil {
		t.Error("Logger should not be nil")
	}
	if srv.TokenLifetime() != token.DefaultLifetime {
		t.Errorf("TokenLifetime() = %v, want %v", srv.TokenLifetime(), token.DefaultLifetime)
	}
	if srv.Clients().ClientID() != testutil.TestClientID {
		t.Errorf("Clients().ClientID() = %q", srv.Clients().ClientID())
	}
	if srv.Directory() == nil {
		t.Error("Directory() should not be nil")
	}
}

func TestNew_DoesNotMutateConfig(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	cfg := &Config{
		Client: ClientConfig{
			ID:          testutil.TestClientID,
			Secret:      testutil.TestClientSecret,
			RedirectURI: testutil.TestRedirectURI,
			BcryptCost:  bcrypt.MinCost,
		},
		TokenSecret: []byte(testutil.TestJWTSecret),
	}
	if _, err := New(store, testutil.NewDirectory(), cfg, slog.Default()); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.TokenLifetime != 0 || cfg.Clock != nil {
		t.Error("New() must not write defaults into the caller's config")
	}
}

func TestNew_Errors(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	dir := testutil.NewDirectory()
	clock := testutil.NewMockTime(testEpoch)

	noSecret := testConfig(clock)
	noSecret.TokenSecret = nil

	noClient := testConfig(clock)
	noClient.Client.ID = ""

	tests := []struct {
		name string
		fn   func() (*Server, error)
	}{
		{"nil store", func() (*Server, error) { return New(nil, dir, testConfig(clock), nil) }},
		{"nil directory", func() (*Server, error) { return New(store, nil, testConfig(clock), nil) }},
		{"nil config", func() (*Server, error) { return New(store, dir, nil, nil) }},
		{"missing token secret", func() (*Server, error) { return New(store, dir, noSecret, nil) }},
		{"missing client id", func() (*Server, error) { return New(store, dir, noClient, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestServer_TokenLifetime(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	cfg := testConfig(testutil.NewMockTime(testEpoch))
	cfg.TokenLifetime = 15 * time.Minute
	srv, err := New(store, testutil.NewDirectory(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.TokenLifetime() != 15*time.Minute {
		t.Errorf("TokenLifetime() = %v, want 15m", srv.TokenLifetime())
	}
}

func TestServer_SetAuditorAndInstrumentation(t *testing.T) {
	srv, _ := setupFlowTestServer(t)

	srv.SetAuditor(security.NewAuditor(slog.Default(), true))
	if srv.Auditor == nil {
		t.Error("Auditor should be set")
	}

	srv.SetInstrumentation(nil)
	if srv.tracer != nil {
		t.Error("nil instrumentation must leave tracing off")
	}

	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(t.Context()) }()

	srv.SetInstrumentation(inst)
	if srv.tracer == nil || srv.metrics == nil {
		t.Error("tracer and metrics should be set")
	}

	// a full flow must run with spans and metrics enabled
	ctx := t.Context()
	if err := srv.Begin(ctx, testutil.NewAuthorizationRequest(testutil.TestState, testutil.TestChallenge)); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := srv.Approve(ctx, testutil.TestState, testutil.Alice.ID.String()); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := srv.Exchange(ctx, exchangeRequest(testutil.TestChallenge)); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
}
