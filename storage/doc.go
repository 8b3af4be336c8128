// Package storage defines the TransactionStore that carries authorization
// transactions between Begin, Approve and Exchange.
//
// A store has two independent buckets:
//   - pending: AuthorizationRequest values keyed by state
//   - grants: AuthorizationGrant values keyed by code (the code challenge)
//
// Both are time-bounded and both are read with take semantics, so an entry is
// observed at most once.
//
// Implementations are provided in subpackages:
//   - storage/memory: bounded in-process LRU buckets with TTL (default)
//   - storage/valkey: Valkey/Redis-compatible shared storage using SET EX and GETDEL
package storage
