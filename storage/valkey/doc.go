// Package valkey provides a Valkey storage backend for the transaction store.
//
// Valkey is wire-compatible with Redis, so any Redis 6.2+ server works (GETDEL
// is required). Use this backend when more than one instance serves the same
// client: a request begun on one instance can be approved and exchanged on
// another.
//
// # Key Layout
//
//	{prefix}pending:{state}   JSON AuthorizationRequest, SET PX PendingTTL
//	{prefix}grant:{code}      JSON AuthorizationGrant, SET PX GrantTTL
//
// The default prefix is "quiestce:". Take operations use GETDEL so that a
// state or code is handed out at most once across all instances.
//
// # Capacity
//
// The store does not bound the number of entries. Configure maxmemory and an
// eviction policy such as volatile-ttl on the server instead.
//
// # Encryption at Rest
//
// With Config.Encryptor set, values are sealed with AES-256-GCM and bound to
// their key, so a value copied to another key fails to decrypt.
//
// # Usage
//
//	store, err := valkey.Connect(ctx, valkey.Config{
//		Address:   "localhost:6379",
//		KeyPrefix: "quiestce:",
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
package valkey
