package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles authentication attempts per subject, in front of
// the hard lockout rule. Defaults allow 1 attempt/sec with a burst of 5.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLoginLimiter creates a per-subject limiter.
func NewLoginLimiter(r rate.Limit, burst int) *LoginLimiter {
	if r <= 0 {
		r = rate.Limit(1)
	}
	if burst <= 0 {
		burst = 5
	}
	return &LoginLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Allow reports whether an attempt for subject may proceed now.
func (l *LoginLimiter) Allow(subject string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[subject]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[subject] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
