// Package security provides the security plumbing around the authorization
// engine: audit logging, rate limiting, request IDs, response headers, client
// IP extraction and payload encryption.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket (golang.org/x/time/rate) per identifier,
// normally the client IP from ClientIPResolver. Identifiers live in an LRU
// list capped at MaxEntries (default 10,000) and idle ones are dropped every
// five minutes.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	router.Use(limiter.Middleware(resolver.Resolve, tooManyRequests))
//
// # Audit
//
// Auditor writes "security_audit" records through slog. Identity ids are
// hashed before they are logged. Attach an AuditRecorder to count events.
//
// # Encryption
//
// Encryptor seals stored payloads with AES-256-GCM and binds each one to its
// storage key through the additional data. Keys are 32 bytes, usually
// configured as base64 (see KeyFromBase64).
package security
