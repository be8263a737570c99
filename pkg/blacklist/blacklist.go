// Package blacklist tracks revoked token identifiers (jti). A negative
// answer means "not known revoked"; signature and expiry checks remain the
// verifier's responsibility.
package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
)

// DefaultTTL is applied when a token's expiry is unknown.
const DefaultTTL = 24 * time.Hour

// Store answers revocation queries for token identifiers.
type Store interface {
	IsBlacklisted(ctx context.Context, jti string) bool
	// Add records a revocation until expiresAt. Already-expired tokens are
	// a no-op.
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	Close() error
}

// localEntry tracks one revoked jti with its insertion order.
type localEntry struct {
	jti       string
	expiresAt time.Time
}

// Local is an in-process bounded revocation set. When the set exceeds the
// cap, the oldest 10% by insertion order are discarded. A periodic sweep
// drops entries whose expiry passed.
type Local struct {
	mu      sync.Mutex
	entries map[string]time.Time
	order   []localEntry
	max     int
	clock   clock.Clock

	sweepEvery time.Duration
	lastSweep  time.Time
}

// LocalOption configures a Local store.
type LocalOption func(*Local)

// WithMax overrides the entry cap (default 50 000).
func WithMax(n int) LocalOption { return func(l *Local) { l.max = n } }

// WithClock injects a clock for tests.
func WithClock(c clock.Clock) LocalOption { return func(l *Local) { l.clock = c } }

// NewLocal creates a bounded in-process blacklist.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		entries:    make(map[string]time.Time),
		max:        50000,
		clock:      clock.Wall,
		sweepEvery: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.clock.Now()
	return l
}

func (l *Local) IsBlacklisted(_ context.Context, jti string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeSweep()
	exp, ok := l.entries[jti]
	if !ok {
		return false
	}
	if l.clock.Now().After(exp) {
		delete(l.entries, jti)
		return false
	}
	return true
}

func (l *Local) Add(_ context.Context, jti string, expiresAt time.Time) error {
	now := l.clock.Now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultTTL)
	}
	if !expiresAt.After(now) {
		return nil // already expired
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[jti]; !exists {
		l.order = append(l.order, localEntry{jti: jti, expiresAt: expiresAt})
	}
	l.entries[jti] = expiresAt

	if len(l.entries) > l.max {
		l.evictOldest()
	}
	l.maybeSweep()
	return nil
}

func (l *Local) Close() error { return nil }

// Size returns the current number of tracked revocations.
func (l *Local) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// evictOldest drops the oldest 10% by insertion order. Caller holds mu.
func (l *Local) evictOldest() {
	drop := len(l.order) / 10
	if drop < 1 {
		drop = 1
	}
	for _, e := range l.order[:drop] {
		delete(l.entries, e.jti)
	}
	l.order = l.order[drop:]
}

// maybeSweep removes expired entries every sweepEvery. Caller holds mu.
func (l *Local) maybeSweep() {
	now := l.clock.Now()
	if now.Sub(l.lastSweep) < l.sweepEvery {
		return
	}
	l.lastSweep = now
	kept := l.order[:0]
	for _, e := range l.order {
		if exp, ok := l.entries[e.jti]; ok && exp.After(now) {
			kept = append(kept, e)
		} else {
			delete(l.entries, e.jti)
		}
	}
	l.order = kept
}
