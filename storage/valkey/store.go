package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	valkeygo "github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/internal/util"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "quiestce:"

	// DefaultTTL is the default lifetime of an entry
	DefaultTTL = 120 * time.Second

	// DefaultConnectAttempts is how often Connect tries to reach the server
	DefaultConnectAttempts = 5

	// connectionVerifyTimeout bounds each PING during Connect
	connectionVerifyTimeout = 5 * time.Second

	// maxPayloadSize rejects oversized values read back from the server
	maxPayloadSize = 64 * 1024

	// keyLogLength is how much of a state or code ends up in debug logs
	keyLogLength = 8

	storageType = "valkey"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "quiestce:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// PendingTTL and GrantTTL set the lifetime of each bucket (default: 120s)
	PendingTTL time.Duration
	GrantTTL   time.Duration

	// ConnectAttempts is the number of PING attempts made by Connect (default: 5)
	ConnectAttempts uint

	// Encryptor optionally seals payloads at rest
	Encryptor *security.Encryptor

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// DisableClientCache turns off client-side caching. Servers that do not
	// support CLIENT TRACKING need it.
	DisableClientCache bool
}

func (c *Config) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = DefaultTTL
	}
	if c.GrantTTL <= 0 {
		c.GrantTTL = DefaultTTL
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = DefaultConnectAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store is a TransactionStore backed by Valkey. Entries are JSON values
// written with SET PX and read with GETDEL, so expiry and single use are both
// enforced by the server. Capacity is bounded by the server's maxmemory
// policy rather than by the store.
type Store struct {
	client     valkeygo.Client
	prefix     string
	pendingTTL time.Duration
	grantTTL   time.Duration
	encryptor  *security.Encryptor
	logger     *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var _ storage.TransactionStore = (*Store)(nil)

// New creates a store and verifies the connection with a single PING
func New(cfg Config) (*Store, error) {
	cfg.ConnectAttempts = 1
	return Connect(context.Background(), cfg)
}

// Connect creates a store, retrying the initial PING with exponential backoff
// until it succeeds, ctx is done or cfg.ConnectAttempts is exhausted.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	cfg.applyDefaults()

	opts := valkeygo.ClientOption{
		InitAddress:  []string{cfg.Address},
		SelectDB:     cfg.DB,
		Password:     cfg.Password,
		TLSConfig:    cfg.TLS,
		DisableCache: cfg.DisableClientCache,
	}

	attempt := 0
	client, err := backoff.Retry(ctx, func() (valkeygo.Client, error) {
		attempt++
		client, err := valkeygo.NewClient(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey client: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, connectionVerifyTimeout)
		defer cancel()
		if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		return client, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(cfg.ConnectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			cfg.Logger.Warn("Valkey not reachable, retrying",
				"address", cfg.Address,
				"attempt", attempt,
				"retry_in", next,
				"error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", cfg.KeyPrefix,
		"encrypted", cfg.Encryptor.IsEnabled())

	return &Store{
		client:     client,
		prefix:     cfg.KeyPrefix,
		pendingTTL: cfg.PendingTTL,
		grantTTL:   cfg.GrantTTL,
		encryptor:  cfg.Encryptor,
		logger:     cfg.Logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetInstrumentation enables spans and operation metrics.
// Call it before the store is used.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	s.instrumentation = inst
	s.tracer = inst.Tracer("storage")
}

func (s *Store) pendingKey(state string) string {
	return s.prefix + "pending:" + state
}

func (s *Store) grantKey(code string) string {
	return s.prefix + "grant:" + code
}

// PutPending implements storage.TransactionStore
func (s *Store) PutPending(ctx context.Context, req *storage.AuthorizationRequest) error {
	ctx, span := s.startStorageSpan(ctx, "put_pending")
	defer span.End()
	start := time.Now()

	err := s.put(ctx, s.pendingKey(req.State), req, s.pendingTTL)
	s.recordStorageOperation(ctx, span, "put_pending", err, start)
	if err != nil {
		return err
	}

	s.logger.Debug("Stored pending authorization request",
		"state_prefix", util.SafeTruncate(req.State, keyLogLength))
	return nil
}

// TakePending implements storage.TransactionStore
func (s *Store) TakePending(ctx context.Context, state string) (*storage.AuthorizationRequest, error) {
	ctx, span := s.startStorageSpan(ctx, "take_pending")
	defer span.End()
	start := time.Now()

	var req storage.AuthorizationRequest
	err := s.take(ctx, s.pendingKey(state), &req, storage.ErrPendingNotFound)
	s.recordStorageOperation(ctx, span, "take_pending", err, start)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// PutGrant implements storage.TransactionStore
func (s *Store) PutGrant(ctx context.Context, grant *storage.AuthorizationGrant) error {
	ctx, span := s.startStorageSpan(ctx, "put_grant")
	defer span.End()
	start := time.Now()

	err := s.put(ctx, s.grantKey(grant.Code), grant, s.grantTTL)
	s.recordStorageOperation(ctx, span, "put_grant", err, start)
	if err != nil {
		return err
	}

	s.logger.Debug("Stored authorization grant",
		"code_prefix", util.SafeTruncate(grant.Code, keyLogLength))
	return nil
}

// TakeGrant implements storage.TransactionStore
func (s *Store) TakeGrant(ctx context.Context, code string) (*storage.AuthorizationGrant, error) {
	ctx, span := s.startStorageSpan(ctx, "take_grant")
	defer span.End()
	start := time.Now()

	var grant storage.AuthorizationGrant
	err := s.take(ctx, s.grantKey(code), &grant, storage.ErrGrantNotFound)
	s.recordStorageOperation(ctx, span, "take_grant", err, start)
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *Store) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data, err = s.encryptor.Seal(data, []byte(key))
	if err != nil {
		return fmt.Errorf("failed to encrypt entry: %w", err)
	}

	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(valkeygo.BinaryString(data)).Px(ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

// take reads and deletes key in one GETDEL round trip. notFound is returned
// when the key is absent, which includes expired keys.
func (s *Store) take(ctx context.Context, key string, v any, notFound error) error {
	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(key).Build()).AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return notFound
		}
		return fmt.Errorf("failed to take entry: %w", err)
	}
	if len(data) > maxPayloadSize {
		return fmt.Errorf("entry exceeds maximum size of %d bytes", maxPayloadSize)
	}

	data, err = s.encryptor.Open(data, []byte(key))
	if err != nil {
		return fmt.Errorf("failed to decrypt entry: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return nil
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, storageType),
		))
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	switch {
	case errors.Is(err, storage.ErrPendingNotFound), errors.Is(err, storage.ErrGrantNotFound):
		result = "not_found"
		instrumentation.SetSpanSuccess(span)
	case err != nil:
		result = "error"
		instrumentation.RecordError(span, err)
	default:
		instrumentation.SetSpanSuccess(span)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrStorageResult, result))

	durationMs := float64(time.Since(start).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
