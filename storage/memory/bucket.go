package memory

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

type bucketEntry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

// Bucket is a bounded key/value cache with a per-entry lifetime. Reads use
// take semantics. When full, Put first drops expired entries and then, if
// still full, evicts the least recently inserted or refreshed entry.
type Bucket[T any] struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front is most recent
	capacity int
	ttl      time.Duration
	now      func() time.Time

	// written under mu, read without it
	size      atomic.Int64
	evictions atomic.Int64
}

// NewBucket creates a bucket holding at most capacity entries, each for ttl.
// now is the clock used for expiry.
func NewBucket[T any](capacity int, ttl time.Duration, now func() time.Time) *Bucket[T] {
	if now == nil {
		now = time.Now
	}
	return &Bucket[T]{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      now,
	}
}

// Put stores value under key with a fresh lifetime
func (b *Bucket[T]) Put(key string, value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiresAt := b.now().Add(b.ttl)

	if elem, ok := b.entries[key]; ok {
		entry := elem.Value.(*bucketEntry[T])
		entry.value = value
		entry.expiresAt = expiresAt
		b.order.MoveToFront(elem)
		return
	}

	if b.capacity > 0 && len(b.entries) >= b.capacity {
		b.sweep(b.now())
	}
	if b.capacity > 0 && len(b.entries) >= b.capacity {
		b.evictOldest()
	}

	b.entries[key] = b.order.PushFront(&bucketEntry[T]{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	})
	b.size.Store(int64(len(b.entries)))
}

// Take removes the entry under key and returns its value. ok is false if the
// key is absent or expired.
func (b *Bucket[T]) Take(key string) (value T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, found := b.entries[key]
	if !found {
		return value, false
	}

	entry := elem.Value.(*bucketEntry[T])
	b.remove(elem)

	if !b.now().Before(entry.expiresAt) {
		return value, false
	}
	return entry.value, true
}

// Len returns the number of stored entries, including expired ones not yet
// swept. It does not take the bucket lock.
func (b *Bucket[T]) Len() int {
	return int(b.size.Load())
}

// Evictions returns how many live entries were dropped to make room
func (b *Bucket[T]) Evictions() int64 {
	return b.evictions.Load()
}

// Sweep drops every expired entry and returns how many were removed
func (b *Bucket[T]) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sweep(b.now())
}

// sweep must be called with mu held
func (b *Bucket[T]) sweep(now time.Time) int {
	removed := 0
	for elem := b.order.Back(); elem != nil; {
		prev := elem.Prev()
		if entry := elem.Value.(*bucketEntry[T]); !now.Before(entry.expiresAt) {
			b.remove(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// evictOldest must be called with mu held
func (b *Bucket[T]) evictOldest() {
	if elem := b.order.Back(); elem != nil {
		b.remove(elem)
		b.evictions.Add(1)
	}
}

// remove must be called with mu held
func (b *Bucket[T]) remove(elem *list.Element) {
	delete(b.entries, elem.Value.(*bucketEntry[T]).key)
	b.order.Remove(elem)
	b.size.Store(int64(len(b.entries)))
}
