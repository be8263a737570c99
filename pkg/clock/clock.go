// Package clock isolates time and identifier generation so that every
// deadline, expiry, and audit timestamp in the system is testable.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is the single source of wall time. All components that compare
// against deadlines take a Clock instead of calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// WallClock returns UTC wall time.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now().UTC() }

// Wall is the production clock.
var Wall Clock = WallClock{}

// Fake is a manually advanced clock for deterministic tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

// IDSource mints unique identifiers. Injected so tests can use
// predictable sequences.
type IDSource interface {
	NewID() string
}

// UUIDSource mints random UUIDv4 identifiers.
type UUIDSource struct{}

func (UUIDSource) NewID() string { return uuid.New().String() }

// SequenceSource mints "prefix-1", "prefix-2", ... for tests.
type SequenceSource struct {
	mu     sync.Mutex
	Prefix string
	n      int
}

func (s *SequenceSource) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.Prefix, s.n)
}
