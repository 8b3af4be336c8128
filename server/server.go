package server

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/quiestce/quiestce/directory"
	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/storage"
	"github.com/quiestce/quiestce/token"
)

// Server is the authorization transaction engine. It carries a login from
// the authorization request through approval to a signed token.
type Server struct {
	store     storage.TransactionStore
	directory directory.Source
	clients   *ClientValidator
	signer    *token.Signer

	Auditor *security.Auditor
	Logger  *slog.Logger
	Config  *Config

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics
}

// New creates the engine. It builds the client validator and token signer
// from config.
func New(store storage.TransactionStore, dir directory.Source, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("transaction store is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("identity directory is required")
	}
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)

	clients, err := NewClientValidator(config.Client)
	if err != nil {
		return nil, err
	}
	signer, err := token.NewSigner(config.TokenSecret, config.TokenLifetime, token.WithClock(config.Clock))
	if err != nil {
		return nil, err
	}

	return &Server{
		store:     store,
		directory: dir,
		clients:   clients,
		signer:    signer,
		Logger:    logger,
		Config:    config,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables spans and flow metrics
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	s.instrumentation = inst
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()
}

// Instrumentation returns the instrumentation set by SetInstrumentation, or nil
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.instrumentation
}

// Clients returns the validator for the registered client
func (s *Server) Clients() *ClientValidator {
	return s.clients
}

// Directory returns the identity source
func (s *Server) Directory() directory.Source {
	return s.directory
}

// TokenLifetime returns the lifetime of issued tokens
func (s *Server) TokenLifetime() time.Duration {
	return s.signer.Lifetime()
}
