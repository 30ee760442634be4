package admission

import "sync"

// ConnLimiter counts live connections per source address.
type ConnLimiter struct {
	mu     sync.Mutex
	max    int
	counts map[string]int
	total  int
}

// NewConnLimiter allows at most max concurrent connections per address.
// max <= 0 disables the limit.
func NewConnLimiter(max int) *ConnLimiter {
	return &ConnLimiter{max: max, counts: make(map[string]int)}
}

// Acquire reserves a slot for addr, or reports false if addr is at the cap.
func (l *ConnLimiter) Acquire(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max > 0 && l.counts[addr] >= l.max {
		return false
	}
	l.counts[addr]++
	l.total++
	return true
}

// Release frees a slot previously taken by Acquire.
func (l *ConnLimiter) Release(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.counts[addr]
	if !ok {
		return
	}
	l.total--
	if n <= 1 {
		delete(l.counts, addr)
		return
	}
	l.counts[addr] = n - 1
}

// Count returns the live connections for addr.
func (l *ConnLimiter) Count(addr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[addr]
}

// Total returns the live connections across all addresses.
func (l *ConnLimiter) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
