// Package audit implements the append-only, hash-chained audit log. Each
// entry links to the prior entry's hash; a verifier re-derives the chain.
// Entries are never edited after insert, only appended.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/forge-health/forge-core/pkg/clock"
)

// Category classifies the audited activity.
type Category string

const (
	CategoryDataAccess     Category = "data-access"
	CategoryAuthentication Category = "authentication"
	CategoryConfiguration  Category = "configuration"
	CategoryBreachResponse Category = "breach-response"
	CategoryDSAR           Category = "dsar-processing"
	CategoryAIDecision     Category = "ai-decision"
)

// RiskLevel influences retention selection and alerting.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Event is one immutable audit record.
type Event struct {
	ID            string    `json:"id"`
	Category      Category  `json:"category"`
	EventType     string    `json:"event_type"`
	Actor         string    `json:"actor"`
	Entity        string    `json:"entity"`
	Action        string    `json:"action"`
	Success       bool      `json:"success"`
	Risk          RiskLevel `json:"risk"`
	Justification string    `json:"justification,omitempty"`
	PreviousHash  string    `json:"previous_hash"`
	Hash          string    `json:"hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// Sink persists appended events (typically the compliance repository).
type Sink interface {
	SaveAuditEvent(e *Event) error
}

// Log is the chained writer. A single mutex serializes writers so the
// global chain stays linear.
type Log struct {
	mu       sync.Mutex
	entries  []*Event
	lastHash string
	clock    clock.Clock
	ids      clock.IDSource
	sink     Sink
}

// Option configures a Log.
type Option func(*Log)

// WithSink persists every appended event.
func WithSink(s Sink) Option { return func(l *Log) { l.sink = s } }

// WithClock injects a clock for tests.
func WithClock(c clock.Clock) Option { return func(l *Log) { l.clock = c } }

// WithIDSource injects an id source for tests.
func WithIDSource(ids clock.IDSource) Option { return func(l *Log) { l.ids = ids } }

// NewLog creates an empty audit log.
func NewLog(opts ...Option) *Log {
	l := &Log{clock: clock.Wall, ids: clock.UUIDSource{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an event, linking it to the current chain head. Persistence
// failures are retried once, then escalated.
func (l *Log) Append(e Event) (*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.ID = l.ids.NewID()
	e.CreatedAt = l.clock.Now()
	e.PreviousHash = l.lastHash

	hash, err := entryHash(&e)
	if err != nil {
		return nil, err
	}
	e.Hash = hash

	if l.sink != nil {
		if err := l.sink.SaveAuditEvent(&e); err != nil {
			if err = l.sink.SaveAuditEvent(&e); err != nil {
				return nil, fmt.Errorf("audit persist failed after retry: %w", err)
			}
		}
	}

	l.entries = append(l.entries, &e)
	l.lastHash = e.Hash
	return &e, nil
}

// Events returns a snapshot of the chain in insertion order.
func (l *Log) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// Restore seeds the in-memory chain from persisted events. The chain is
// verified first; a broken chain is a hard failure.
func (l *Log) Restore(events []*Event) error {
	if ok, pos := VerifyChain(events); !ok {
		return fmt.Errorf("audit chain corrupt at position %d", pos)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]*Event(nil), events...)
	if n := len(events); n > 0 {
		l.lastHash = events[n-1].Hash
	}
	return nil
}

// Verify re-derives the in-memory chain.
func (l *Log) Verify() (bool, int) {
	return VerifyChain(l.Events())
}

// VerifyChain scans events in insertion order and recomputes every link.
// It returns (true, count) on success, or (false, position) at the first
// broken link. Any mismatch is a hard alarm.
func VerifyChain(events []*Event) (bool, int) {
	prev := ""
	for i, e := range events {
		if e.PreviousHash != prev {
			return false, i
		}
		computed, err := entryHash(e)
		if err != nil || computed != e.Hash {
			return false, i
		}
		prev = e.Hash
	}
	return true, len(events)
}

// entryHash computes SHA-256 over the RFC 8785 canonical JSON of the
// chained fields.
func entryHash(e *Event) (string, error) {
	hashable := map[string]any{
		"id":            e.ID,
		"category":      string(e.Category),
		"event_type":    e.EventType,
		"action":        e.Action,
		"timestamp":     e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": e.PreviousHash,
	}
	raw, err := json.Marshal(hashable)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit canonicalization: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
