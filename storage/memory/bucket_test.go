package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/quiestce/quiestce/internal/testutil"
)

func newTestBucket(capacity int, ttl time.Duration) (*Bucket[string], *testutil.MockTime) {
	clock := testutil.NewMockTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewBucket[string](capacity, ttl, clock.Now), clock
}

func TestBucket_PutTake(t *testing.T) {
	b, _ := newTestBucket(10, time.Minute)

	b.Put("k", "v")

	got, ok := b.Take("k")
	if !ok || got != "v" {
		t.Fatalf("Take() = %q, %v; want %q, true", got, ok, "v")
	}
	if _, ok := b.Take("k"); ok {
		t.Error("second Take() should miss")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestBucket_TakeMissing(t *testing.T) {
	b, _ := newTestBucket(10, time.Minute)

	if got, ok := b.Take("missing"); ok || got != "" {
		t.Errorf("Take() = %q, %v; want zero value, false", got, ok)
	}
}

func TestBucket_PutOverwrites(t *testing.T) {
	b, clock := newTestBucket(10, time.Minute)

	b.Put("k", "old")
	clock.Advance(50 * time.Second)
	b.Put("k", "new")
	clock.Advance(50 * time.Second)

	got, ok := b.Take("k")
	if !ok || got != "new" {
		t.Errorf("Take() = %q, %v; want %q, true (overwrite refreshes lifetime)", got, ok, "new")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestBucket_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantHit bool
	}{
		{"just before ttl", 119 * time.Second, true},
		{"exactly at ttl", 120 * time.Second, false},
		{"after ttl", 121 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clock := newTestBucket(10, 120*time.Second)
			b.Put("k", "v")
			clock.Advance(tt.elapsed)

			_, ok := b.Take("k")
			if ok != tt.wantHit {
				t.Errorf("Take() hit = %v, want %v", ok, tt.wantHit)
			}
			if b.Len() != 0 {
				t.Errorf("Len() = %d, want 0 (expired entries are dropped on access)", b.Len())
			}
		})
	}
}

func TestBucket_EvictsLeastRecent(t *testing.T) {
	b, _ := newTestBucket(3, time.Minute)

	b.Put("a", "1")
	b.Put("b", "2")
	b.Put("c", "3")
	b.Put("a", "1") // refresh a
	b.Put("d", "4") // evicts b

	if _, ok := b.Take("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := b.Take(k); !ok {
			t.Errorf("%s should still be present", k)
		}
	}
	if got := b.Evictions(); got != 1 {
		t.Errorf("Evictions() = %d, want 1", got)
	}
}

func TestBucket_CapacityBound(t *testing.T) {
	b, _ := newTestBucket(100, time.Minute)

	for i := 0; i < 250; i++ {
		b.Put(fmt.Sprintf("k%d", i), "v")
	}

	if b.Len() != 100 {
		t.Errorf("Len() = %d, want 100", b.Len())
	}
	if got := b.Evictions(); got != 150 {
		t.Errorf("Evictions() = %d, want 150", got)
	}
	if _, ok := b.Take("k249"); !ok {
		t.Error("newest entry should be present")
	}
	if _, ok := b.Take("k0"); ok {
		t.Error("oldest entry should have been evicted")
	}
}

func TestBucket_Sweep(t *testing.T) {
	b, clock := newTestBucket(10, time.Minute)

	b.Put("old1", "v")
	b.Put("old2", "v")
	clock.Advance(30 * time.Second)
	b.Put("fresh", "v")
	clock.Advance(45 * time.Second)

	if removed := b.Sweep(); removed != 2 {
		t.Errorf("Sweep() = %d, want 2", removed)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
	if _, ok := b.Take("fresh"); !ok {
		t.Error("fresh entry should survive the sweep")
	}
}

func TestBucket_FullBucketDropsExpiredBeforeEvicting(t *testing.T) {
	b, clock := newTestBucket(3, time.Minute)

	b.Put("old1", "v")
	b.Put("old2", "v")
	clock.Advance(30 * time.Second)
	b.Put("live", "v")
	clock.Advance(45 * time.Second)

	b.Put("new", "v")

	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
	if got := b.Evictions(); got != 0 {
		t.Errorf("Evictions() = %d, want 0 (only expired entries were dropped)", got)
	}
	for _, k := range []string{"live", "new"} {
		if _, ok := b.Take(k); !ok {
			t.Errorf("%s should still be present", k)
		}
	}
}
