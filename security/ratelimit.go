package security

import (
	"container/list"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimitMaxEntries bounds the number of tracked identifiers
	DefaultRateLimitMaxEntries = 10000

	defaultRateLimitCleanupInterval = 5 * time.Minute
	defaultRateLimitMaxIdle         = 30 * time.Minute
)

// RateLimitConfig configures a RateLimiter
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate allowed per identifier
	RequestsPerSecond float64

	// Burst is the number of requests allowed above the sustained rate
	Burst int

	// MaxEntries caps the number of tracked identifiers. 0 means unlimited.
	MaxEntries int
}

type limiterEntry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter applies a token bucket per identifier (usually the client IP).
// Identifiers are kept in an LRU list so that a flood of distinct sources
// cannot grow memory without bound.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	limit      rate.Limit
	burst      int
	maxEntries int

	logger *slog.Logger
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once

	evictions int64
	cleanups  int64
}

// NewRateLimiter creates a rate limiter with the default entry cap and
// starts its idle cleanup loop.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(RateLimitConfig{
		RequestsPerSecond: requestsPerSecond,
		Burst:             burst,
		MaxEntries:        DefaultRateLimitMaxEntries,
	}, logger)
}

// NewRateLimiterWithConfig creates a rate limiter from an explicit config
func NewRateLimiterWithConfig(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxEntries < 0 {
		logger.Warn("Invalid rate limiter max entries, using default", "max_entries", cfg.MaxEntries)
		cfg.MaxEntries = DefaultRateLimitMaxEntries
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	rl := &RateLimiter{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		limit:      rate.Limit(cfg.RequestsPerSecond),
		burst:      cfg.Burst,
		maxEntries: cfg.MaxEntries,
		logger:     logger,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go rl.cleanupLoop(defaultRateLimitCleanupInterval)

	return rl
}

// Allow reports whether a request from key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[key]; ok {
		rl.order.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.AllowN(now, 1)
	}

	if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &limiterEntry{
		key:        key,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	}
	rl.entries[key] = rl.order.PushFront(entry)

	return entry.limiter.AllowN(now, 1)
}

// evictOldest must be called with mu held
func (rl *RateLimiter) evictOldest() {
	elem := rl.order.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*limiterEntry)
	delete(rl.entries, entry.key)
	rl.order.Remove(elem)
	rl.evictions++

	rl.logger.Debug("Rate limiter evicted least recently used entry",
		"total_evictions", rl.evictions,
		"current_entries", len(rl.entries))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(defaultRateLimitMaxIdle)
		case <-rl.stop:
			return
		}
	}
}

// Cleanup drops identifiers idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	// The back of the list holds the least recently used entries.
	for elem := rl.order.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if now.Sub(entry.lastAccess) <= maxIdle {
			break
		}
		prev := elem.Prev()
		delete(rl.entries, entry.key)
		rl.order.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.cleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.entries))
	}
}

// Stop terminates the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalCleanups  int64
	MemoryPressure float64 // percent of MaxEntries in use
}

// GetStats returns a snapshot of limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := Stats{
		CurrentEntries: len(rl.entries),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.evictions,
		TotalCleanups:  rl.cleanups,
	}
	if rl.maxEntries > 0 {
		stats.MemoryPressure = float64(stats.CurrentEntries) / float64(rl.maxEntries) * 100.0
	}
	return stats
}

// Middleware rejects requests whose key has exhausted its bucket. keyFunc
// derives the identifier from the request. onLimit writes the rejection and
// is responsible for auditing it.
func (rl *RateLimiter) Middleware(keyFunc func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(keyFunc(r)) {
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
