// File: internal/infra/limiter/sliding_window.go
package limiter

import (
	"sync"
	"time"
)

// SlidingWindow is a per-key sliding time-window counter. Each key holds
// an ordered sequence of recent request timestamps; on every request the
// stale ones are dropped, the count compared against the ceiling, and
// the new timestamp recorded on admission.
//
// State is process-local; horizontal scaling needs the same contract on
// a shared store with atomic check-and-set.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow admits or rejects one request for key. On rejection it returns
// the suggested wait until the oldest in-window timestamp expires.
func (s *SlidingWindow) Allow(key string) (ok bool, retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)

	ts := s.hits[key]
	keep := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}

	if len(keep) >= s.limit {
		s.hits[key] = keep
		return false, keep[0].Sub(cutoff)
	}

	s.hits[key] = append(keep, now)
	return true, 0
}

// Remaining reports how many requests key may still make in the current
// window, without recording anything.
func (s *SlidingWindow) Remaining(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	n := 0
	for _, t := range s.hits[key] {
		if t.After(cutoff) {
			n++
		}
	}
	if n >= s.limit {
		return 0
	}
	return s.limit - n
}

func (s *SlidingWindow) Limit() int            { return s.limit }
func (s *SlidingWindow) Window() time.Duration { return s.window }
