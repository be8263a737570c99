package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EvidenceBundle is an exportable, self-verifying slice of the audit chain.
type EvidenceBundle struct {
	BundleID   string    `json:"bundle_id"`
	CreatedAt  time.Time `json:"created_at"`
	EntryCount int       `json:"entry_count"`
	Events     []*Event  `json:"events"`
	ChainHead  string    `json:"chain_head"`
	BundleHash string    `json:"bundle_hash"`
}

// Filter selects events for export.
type Filter struct {
	Category Category
	Actor    string
	Entity   string
	After    *time.Time
	Before   *time.Time
}

func (f Filter) matches(e *Event) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.After != nil && e.CreatedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && e.CreatedAt.After(*f.Before) {
		return false
	}
	return true
}

// Query returns matching events in insertion order.
func (l *Log) Query(f Filter) []*Event {
	var out []*Event
	for _, e := range l.Events() {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// ExportBundle verifies the full chain, then packages the matching events
// with a bundle hash for external evidence handling.
func (l *Log) ExportBundle(f Filter) (*EvidenceBundle, error) {
	if ok, pos := l.Verify(); !ok {
		return nil, fmt.Errorf("refusing export: audit chain corrupt at position %d", pos)
	}
	events := l.Query(f)
	if len(events) == 0 {
		return nil, fmt.Errorf("no events match filter")
	}

	bundle := &EvidenceBundle{
		BundleID:   l.ids.NewID(),
		CreatedAt:  l.clock.Now(),
		EntryCount: len(events),
		Events:     events,
		ChainHead:  events[len(events)-1].Hash,
	}
	raw, err := json.Marshal(bundle.Events)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	bundle.BundleHash = hex.EncodeToString(sum[:])
	return bundle, nil
}
