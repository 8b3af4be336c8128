// Package memory provides the in-process TransactionStore.
//
// Each of the two buckets (pending requests and grants) is a Bucket: a map
// plus a recency list guarded by one mutex. A bucket holds at most Capacity
// entries and evicts the oldest when full. Entries live for TTL from
// insertion; expired entries are skipped on Take and swept periodically.
//
//	store := memory.NewWithConfig(memory.Config{
//		Pending: memory.BucketConfig{Capacity: 100, TTL: 2 * time.Minute},
//		Grants:  memory.BucketConfig{Capacity: 100, TTL: 2 * time.Minute},
//	})
//	defer store.Stop()
//
// State is lost on restart and is not shared between processes. Use
// storage/valkey to run more than one instance.
package memory
