package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "quiestce"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// scopePrefix is prepended to every meter and tracer scope
	scopePrefix = "github.com/quiestce/quiestce/"
)

// Metrics exporter names accepted by Config.MetricsExporter
const (
	MetricsExporterNone       = ""
	MetricsExporterPrometheus = "prometheus"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service (e.g., "quiestce")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active
	// When false, uses no-op providers (zero overhead)
	Enabled bool

	// MetricsExporter selects where metrics go when Enabled is true.
	// "" keeps metrics in-process only, "prometheus" registers a Prometheus collector.
	MetricsExporter string

	// Registerer receives the Prometheus collector. Defaults to
	// prometheus.DefaultRegisterer so that promhttp.Handler() serves the metrics.
	Registerer prometheus.Registerer

	// LogClientIPs controls whether client IP addresses are included in traces and audit records.
	//
	// Privacy Note: Client IP addresses may be considered Personally Identifiable
	// Information (PII) under GDPR and other privacy regulations.
	LogClientIPs bool

	// Resource allows custom resource attributes
	// If nil, default resource is created with service name and version
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	// Shutdown functions (must be registered during New() only, not thread-safe after initialization)
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	var res *resource.Resource
	var err error
	if config.Resource != nil {
		res = config.Resource
	} else {
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(); err != nil {
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// initializeProviders builds the SDK tracer provider and a meter provider
// backed by the configured exporter.
func (i *Instrumentation) initializeProviders() error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(i.resource))
	i.tracerProvider = tp
	i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)

	switch i.config.MetricsExporter {
	case MetricsExporterNone:
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(i.resource))
		i.meterProvider = mp
		i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	case MetricsExporterPrometheus:
		registerer := i.config.Registerer
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		exporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(i.resource),
			sdkmetric.WithReader(exporter),
		)
		i.meterProvider = mp
		i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	default:
		return fmt.Errorf("unsupported metrics exporter %q", i.config.MetricsExporter)
	}

	return nil
}

// Shutdown gracefully shuts down all instrumentation providers
// This should be called when the application is terminating
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil {
				// Capture first error, but continue shutting down other components
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope
// Scopes are layer names like "http", "server", "storage", "security"
// The full name will be "github.com/quiestce/quiestce/{scope}"
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope
// The full name will be "github.com/quiestce/quiestce/{scope}"
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// ShouldLogClientIPs returns whether client IP addresses should be logged
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// StorageSizeCallback is a function that returns the current size of a storage component
type StorageSizeCallback func() int64

// RegisterStorageSizeCallbacks registers callbacks for the transaction store gauges.
// Storage implementations call this from SetInstrumentation:
//
//	inst.RegisterStorageSizeCallbacks(
//	    func() int64 { return s.pending.Len() },
//	    func() int64 { return s.grants.Len() },
//	    func() int64 { return s.pending.Evictions() + s.grants.Evictions() },
//	)
func (i *Instrumentation) RegisterStorageSizeCallbacks(pendingCount, grantsCount, evictions StorageSizeCallback) error {
	if i.meterProvider == nil {
		return fmt.Errorf("meter provider not initialized")
	}

	meter := i.Meter("storage")

	_, err := meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			if pendingCount != nil {
				observer.ObserveInt64(i.metrics.StoragePendingCount, pendingCount())
			}
			if grantsCount != nil {
				observer.ObserveInt64(i.metrics.StorageGrantsCount, grantsCount())
			}
			if evictions != nil {
				observer.ObserveInt64(i.metrics.StorageEvictions, evictions())
			}
			return nil
		},
		i.metrics.StoragePendingCount,
		i.metrics.StorageGrantsCount,
		i.metrics.StorageEvictions,
	)

	return err
}
