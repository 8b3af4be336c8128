package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authorization server
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Authorization Flow Metrics
	AuthorizationStarted  metric.Int64Counter
	AuthorizationApproved metric.Int64Counter
	CodeExchanged         metric.Int64Counter
	CodeNotFound          metric.Int64Counter
	TokenVerified         metric.Int64Counter

	// Security Metrics
	RateLimitExceeded metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StoragePendingCount      metric.Int64ObservableGauge
	StorageGrantsCount       metric.Int64ObservableGauge
	StorageEvictions         metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	m := &Metrics{}
	var err error

	// HTTP Layer Metrics
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"quiestce.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"quiestce.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	// Authorization Flow Metrics
	m.AuthorizationStarted, err = serverMeter.Int64Counter(
		"quiestce.authorization.started",
		metric.WithDescription("Number of authorization requests accepted"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.started counter: %w", err)
	}

	m.AuthorizationApproved, err = serverMeter.Int64Counter(
		"quiestce.authorization.approved",
		metric.WithDescription("Number of approval attempts"),
		metric.WithUnit("{approval}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.approved counter: %w", err)
	}

	m.CodeExchanged, err = serverMeter.Int64Counter(
		"quiestce.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.CodeNotFound, err = serverMeter.Int64Counter(
		"quiestce.code.not_found",
		metric.WithDescription("Number of exchanges presenting an unknown, expired or consumed code"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.not_found counter: %w", err)
	}

	m.TokenVerified, err = serverMeter.Int64Counter(
		"quiestce.token.verified",
		metric.WithDescription("Number of bearer token verifications"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.verified counter: %w", err)
	}

	// Security Metrics
	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"quiestce.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"quiestce.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	// Storage Metrics
	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StoragePendingCount, err = storageMeter.Int64ObservableGauge(
		"storage.pending.count",
		metric.WithDescription("Number of pending authorization requests held"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.pending.count gauge: %w", err)
	}

	m.StorageGrantsCount, err = storageMeter.Int64ObservableGauge(
		"storage.grants.count",
		metric.WithDescription("Number of approved grants awaiting exchange"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.grants.count gauge: %w", err)
	}

	m.StorageEvictions, err = storageMeter.Int64ObservableGauge(
		"storage.evictions.total",
		metric.WithDescription("Number of entries evicted because a bucket was full"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.evictions.total gauge: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizationStarted records an accepted authorization request
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, clientID, pkceMethod string) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("pkce_method", pkceMethod),
	))
}

// RecordAuthorizationApproved records an approval attempt and its outcome
func (m *Metrics) RecordAuthorizationApproved(ctx context.Context, success bool) {
	m.AuthorizationApproved.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID, pkceMethod string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("pkce_method", pkceMethod),
	))
}

// RecordCodeNotFound records an exchange that found no grant
func (m *Metrics) RecordCodeNotFound(ctx context.Context) {
	m.CodeNotFound.Add(ctx, 1)
}

// RecordTokenVerification records a bearer verification and whether it succeeded
func (m *Metrics) RecordTokenVerification(ctx context.Context, valid bool) {
	m.TokenVerified.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
