// File: internal/usecase/dedup_test.go
package usecase

import (
	"testing"
	"time"
)

func TestIdempotencyCache(t *testing.T) {
	t.Run("second delivery of same key is duplicate", func(t *testing.T) {
		c := NewIdempotencyCache()
		if c.IsDuplicate("job-1", "COMPLETED") {
			t.Fatal("fresh key must not be duplicate")
		}
		c.MarkSeen("job-1", "COMPLETED")
		if !c.IsDuplicate("job-1", "COMPLETED") {
			t.Fatal("seen key must be duplicate")
		}
	})

	t.Run("key is per job and status", func(t *testing.T) {
		c := NewIdempotencyCache()
		c.MarkSeen("job-1", "IN_PROGRESS")
		if c.IsDuplicate("job-1", "COMPLETED") {
			t.Fatal("different status must not collide")
		}
		if c.IsDuplicate("job-2", "IN_PROGRESS") {
			t.Fatal("different job must not collide")
		}
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		c := NewIdempotencyCache()
		c.now = func() time.Time { return clock }

		c.MarkSeen("job-1", "COMPLETED")
		clock = clock.Add(59 * time.Minute)
		if !c.IsDuplicate("job-1", "COMPLETED") {
			t.Fatal("entry inside TTL must survive")
		}
		clock = clock.Add(2 * time.Minute)
		if c.IsDuplicate("job-1", "COMPLETED") {
			t.Fatal("entry past TTL must be evicted")
		}
	})

	t.Run("sweep drops expired entries", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		c := NewIdempotencyCache()
		c.now = func() time.Time { return clock }

		c.MarkSeen("job-1", "COMPLETED")
		c.MarkSeen("job-2", "COMPLETED")
		clock = clock.Add(2 * time.Hour)
		c.MarkSeen("job-3", "COMPLETED")
		c.IsDuplicate("job-x", "COMPLETED") // triggers sweep
		if got := c.Len(); got != 1 {
			t.Fatalf("cache size after sweep = %d, want 1", got)
		}
	})
}
