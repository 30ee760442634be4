package admission

import (
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// RateLimiter is a fixed-window request counter keyed by (address, endpoint).
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string]*window
}

// NewRateLimiter allows limit requests per window for each key.
func NewRateLimiter(limit int, w time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  w,
		now:     time.Now,
		buckets: make(map[string]*window),
	}
}

// SetClock replaces time.Now. Used by tests.
func (r *RateLimiter) SetClock(now func() time.Time) { r.now = now }

// Allow records one request from addr to endpoint. A rejected request is
// not counted.
func (r *RateLimiter) Allow(addr, endpoint string) bool {
	if r.limit <= 0 {
		return true
	}
	key := addr + "|" + endpoint
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok || !now.Before(b.reset) {
		r.buckets[key] = &window{count: 1, reset: now.Add(r.window)}
		return true
	}
	if b.count >= r.limit {
		return false
	}
	b.count++
	return true
}

// Prune forgets windows that have already elapsed.
func (r *RateLimiter) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, b := range r.buckets {
		if !now.Before(b.reset) {
			delete(r.buckets, k)
			n++
		}
	}
	return n
}
