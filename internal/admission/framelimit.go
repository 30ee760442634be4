package admission

import (
	"time"

	"golang.org/x/time/rate"
)

// FrameLimiter bounds how many data frames one connection may send.
type FrameLimiter struct {
	l *rate.Limiter
}

// NewFrameLimiter allows perMinute frames per minute with an equal burst.
// perMinute <= 0 disables the limit.
func NewFrameLimiter(perMinute int) *FrameLimiter {
	if perMinute <= 0 {
		return &FrameLimiter{l: rate.NewLimiter(rate.Inf, 0)}
	}
	return &FrameLimiter{l: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
}

// Allow consumes one token if available.
func (f *FrameLimiter) Allow() bool { return f.l.Allow() }

// AllowAt is Allow evaluated at t.
func (f *FrameLimiter) AllowAt(t time.Time) bool { return f.l.AllowN(t, 1) }
