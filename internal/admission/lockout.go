package admission

import (
	"errors"
	"sync"
	"time"
)

// ErrAccountLocked is returned while an account is frozen.
var ErrAccountLocked = errors.New("admission: account locked")

type failures struct {
	count       int
	last        time.Time
	lockedUntil time.Time
}

// stale reports whether f no longer affects the account at now. Unlocked
// records lapse duration after their last failure.
func (f *failures) stale(now time.Time, duration time.Duration) bool {
	if !f.lockedUntil.IsZero() {
		return !now.Before(f.lockedUntil)
	}
	return !now.Before(f.last.Add(duration))
}

// Lockout tracks consecutive authentication failures per account.
type Lockout struct {
	mu        sync.Mutex
	threshold int
	duration  time.Duration
	now       func() time.Time
	accounts  map[string]*failures
}

// NewLockout locks an account for duration once threshold consecutive
// failures accumulate. Failures spaced further apart than duration do not
// accumulate.
func NewLockout(threshold int, duration time.Duration) *Lockout {
	return &Lockout{
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
		accounts:  make(map[string]*failures),
	}
}

// SetClock replaces time.Now. Used by tests.
func (l *Lockout) SetClock(now func() time.Time) { l.now = now }

// Check returns ErrAccountLocked if account is frozen. An elapsed lock is
// cleared, together with its failure count.
func (l *Lockout) Check(account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.accounts[account]
	if !ok || f.lockedUntil.IsZero() {
		return nil
	}
	if l.now().Before(f.lockedUntil) {
		return ErrAccountLocked
	}
	delete(l.accounts, account)
	return nil
}

// Fail records a failure and reports whether the account is now locked.
func (l *Lockout) Fail(account string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.accounts[account]
	if !ok {
		f = new(failures)
		l.accounts[account] = f
	}
	now := l.now()
	if f.stale(now, l.duration) {
		*f = failures{}
	}
	f.count++
	f.last = now
	if l.threshold > 0 && f.count >= l.threshold {
		f.lockedUntil = now.Add(l.duration)
		return true
	}
	return false
}

// Succeed clears the failure record for account.
func (l *Lockout) Succeed(account string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, account)
}

// Failures returns the current consecutive failure count.
func (l *Lockout) Failures(account string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.accounts[account]; ok {
		return f.count
	}
	return 0
}

// Prune drops every record that has lapsed at now and returns how many
// were removed.
func (l *Lockout) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for account, f := range l.accounts {
		if f.stale(now, l.duration) {
			delete(l.accounts, account)
			n++
		}
	}
	return n
}

// Len returns the number of tracked accounts.
func (l *Lockout) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts)
}
