package usecase

import (
	"sync"
	"time"
)

const dedupTTL = time.Hour

// IdempotencyCache remembers (job_id, reported_status) pairs that were
// already handled, so repeated webhook deliveries short-circuit without
// side effects. Entries are evicted opportunistically on each check once
// older than the TTL; there is no background timer. The cache is
// process-local and lost on restart; the durable webhook_delivery table
// is the fallback source of truth.
type IdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{
		entries: make(map[string]time.Time),
		ttl:     dedupTTL,
		now:     time.Now,
	}
}

func dedupKey(jobID, status string) string { return jobID + "|" + status }

// IsDuplicate reports whether (jobID, status) was seen within the TTL.
// Expired entries encountered during the check are removed.
func (c *IdempotencyCache) IsDuplicate(jobID, status string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	_, ok := c.entries[dedupKey(jobID, status)]
	return ok
}

func (c *IdempotencyCache) MarkSeen(jobID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[dedupKey(jobID, status)] = c.now()
}

func (c *IdempotencyCache) sweepLocked() {
	cutoff := c.now().Add(-c.ttl)
	for k, seen := range c.entries {
		if seen.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Len is used by tests and the admin surface; it does not sweep.
func (c *IdempotencyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
