// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// quiestce authorization server.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "quiestce",
//		ServiceVersion:  "1.0.0",
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv.SetInstrumentation(inst)
//	store.SetInstrumentation(inst)
//
//	// Expose /metrics endpoint
//	router.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
// HTTP Layer:
//   - quiestce.http.requests.total{method, endpoint, status}
//   - quiestce.http.request.duration{endpoint} - milliseconds
//
// Authorization flow:
//   - quiestce.authorization.started{client_id, pkce_method}
//   - quiestce.authorization.approved{success}
//   - quiestce.code.exchanged{client_id, pkce_method}
//   - quiestce.code.not_found
//   - quiestce.token.verified{valid}
//
// Security:
//   - quiestce.rate_limit.exceeded{limiter_type}
//   - quiestce.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} - milliseconds
//   - storage.pending.count, storage.grants.count, storage.evictions.total
//
// # Distributed Tracing
//
//	http.token
//	└── server.exchange
//	    └── storage.take_grant
//
// When instrumentation is disabled the package hands out no-op providers, so
// callers never need nil checks on meters or tracers.
package instrumentation
