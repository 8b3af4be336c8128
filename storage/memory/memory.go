package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/internal/util"
	"github.com/quiestce/quiestce/storage"
)

const (
	// DefaultCapacity is the default number of entries per bucket
	DefaultCapacity = 100

	// DefaultTTL is the default lifetime of an entry
	DefaultTTL = 120 * time.Second

	// DefaultCleanupInterval is how often expired entries are swept
	DefaultCleanupInterval = time.Minute

	// keyLogLength is how much of a state or code ends up in debug logs
	keyLogLength = 8

	storageType = "memory"
)

// BucketConfig sizes one bucket
type BucketConfig struct {
	// Capacity is the maximum number of entries (default: 100)
	Capacity int

	// TTL is the lifetime of an entry measured from insertion (default: 120s)
	TTL time.Duration
}

// Config configures a Store
type Config struct {
	Pending BucketConfig
	Grants  BucketConfig

	// CleanupInterval is how often expired entries are swept (default: 1 minute)
	CleanupInterval time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	for _, b := range []*BucketConfig{&c.Pending, &c.Grants} {
		if b.Capacity <= 0 {
			b.Capacity = DefaultCapacity
		}
		if b.TTL <= 0 {
			b.TTL = DefaultTTL
		}
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store is the in-process TransactionStore
type Store struct {
	pending *Bucket[storage.AuthorizationRequest]
	grants  *Bucket[storage.AuthorizationGrant]

	logger *slog.Logger

	// set once by SetInstrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

var _ storage.TransactionStore = (*Store)(nil)

// New creates a store with default sizing
func New() *Store {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a store and starts its cleanup loop. Call Stop when
// done with it.
func NewWithConfig(cfg Config) *Store {
	cfg.applyDefaults()

	s := &Store{
		pending:     NewBucket[storage.AuthorizationRequest](cfg.Pending.Capacity, cfg.Pending.TTL, cfg.Clock),
		grants:      NewBucket[storage.AuthorizationGrant](cfg.Grants.Capacity, cfg.Grants.TTL, cfg.Clock),
		logger:      cfg.Logger,
		stopCleanup: make(chan struct{}),
	}

	go s.cleanupLoop(cfg.CleanupInterval)

	return s
}

// SetInstrumentation enables spans, operation metrics and size gauges.
// Call it before the store is used.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	s.instrumentation = inst
	s.tracer = inst.Tracer("storage")

	err := inst.RegisterStorageSizeCallbacks(
		func() int64 { return int64(s.pending.Len()) },
		func() int64 { return int64(s.grants.Len()) },
		func() int64 { return s.pending.Evictions() + s.grants.Evictions() },
	)
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// PutPending implements storage.TransactionStore
func (s *Store) PutPending(ctx context.Context, req *storage.AuthorizationRequest) error {
	_, span := s.startStorageSpan(ctx, "put_pending")
	defer span.End()
	start := time.Now()

	s.pending.Put(req.State, *req)

	s.logger.Debug("Stored pending authorization request",
		"state_prefix", util.SafeTruncate(req.State, keyLogLength))
	s.recordStorageOperation(ctx, span, "put_pending", nil, start)
	return nil
}

// TakePending implements storage.TransactionStore
func (s *Store) TakePending(ctx context.Context, state string) (*storage.AuthorizationRequest, error) {
	_, span := s.startStorageSpan(ctx, "take_pending")
	defer span.End()
	start := time.Now()

	req, ok := s.pending.Take(state)

	var err error
	if !ok {
		err = storage.ErrPendingNotFound
	}
	s.recordStorageOperation(ctx, span, "take_pending", err, start)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// PutGrant implements storage.TransactionStore
func (s *Store) PutGrant(ctx context.Context, grant *storage.AuthorizationGrant) error {
	_, span := s.startStorageSpan(ctx, "put_grant")
	defer span.End()
	start := time.Now()

	s.grants.Put(grant.Code, *grant)

	s.logger.Debug("Stored authorization grant",
		"code_prefix", util.SafeTruncate(grant.Code, keyLogLength))
	s.recordStorageOperation(ctx, span, "put_grant", nil, start)
	return nil
}

// TakeGrant implements storage.TransactionStore
func (s *Store) TakeGrant(ctx context.Context, code string) (*storage.AuthorizationGrant, error) {
	_, span := s.startStorageSpan(ctx, "take_grant")
	defer span.End()
	start := time.Now()

	grant, ok := s.grants.Take(code)

	var err error
	if !ok {
		err = storage.ErrGrantNotFound
	}
	s.recordStorageOperation(ctx, span, "take_grant", err, start)
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	pending := s.pending.Sweep()
	grants := s.grants.Sweep()

	if pending+grants > 0 {
		s.logger.Debug("Swept expired transactions",
			"pending", pending,
			"grants", grants)
	}
}

// startStorageSpan starts a span named storage.<operation>
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		// non-recording span; ending it must not end the caller's span
		return ctx, trace.SpanFromContext(context.Background())
	}
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, storageType),
		))
}

// recordStorageOperation records the operation metric and span status. A miss
// is recorded as result "not_found" and does not mark the span as failed.
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
