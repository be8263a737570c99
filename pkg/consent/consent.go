// Package consent implements the time-bounded consent registry. Records
// are append-only; withdrawal is a terminal transition.
package consent

import (
	"context"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

// Record is one consent grant or refusal.
type Record struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Type               string     `json:"type"`    // e.g. data_processing, marketing, research
	Purpose            string     `json:"purpose"` // free text, recorded verbatim
	Granted            bool       `json:"granted"`
	GrantedAt          time.Time  `json:"granted_at"`
	WithdrawnAt        *time.Time `json:"withdrawn_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CollectedVia       string     `json:"collected_via"`
	TextVersion        string     `json:"text_version"`
	TextHash           string     `json:"text_hash"`
	ThirdParties       []string   `json:"third_parties,omitempty"`
	TransferSafeguards string     `json:"transfer_safeguards,omitempty"`
}

// Active reports whether the record grants consent at time now.
func (r *Record) Active(now time.Time) bool {
	if !r.Granted || r.WithdrawnAt != nil {
		return false
	}
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

// Store persists consent records.
type Store interface {
	SaveConsent(ctx context.Context, r *Record) error
	GetConsent(ctx context.Context, id string) (*Record, error)
	ListConsentsByUser(ctx context.Context, userID string) ([]*Record, error)
}

// Registry is the consent service.
type Registry struct {
	store Store
	clock clock.Clock
	ids   clock.IDSource
}

// NewRegistry creates the registry.
func NewRegistry(store Store, c clock.Clock, ids clock.IDSource) *Registry {
	if c == nil {
		c = clock.Wall
	}
	if ids == nil {
		ids = clock.UUIDSource{}
	}
	return &Registry{store: store, clock: c, ids: ids}
}

// RecordConsent appends a new consent record.
func (g *Registry) RecordConsent(ctx context.Context, r Record) (*Record, error) {
	if r.UserID == "" || r.Type == "" {
		return nil, fault.Validationf("consent requires user and type")
	}
	r.ID = g.ids.NewID()
	r.GrantedAt = g.clock.Now()
	if err := g.store.SaveConsent(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Withdraw flips granted off and stamps withdrawn-at. Idempotent: a second
// withdrawal of the same record is a no-op.
func (g *Registry) Withdraw(ctx context.Context, id string) (*Record, error) {
	r, err := g.store.GetConsent(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.WithdrawnAt != nil {
		return r, nil
	}
	now := g.clock.Now()
	r.Granted = false
	r.WithdrawnAt = &now
	if err := g.store.SaveConsent(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Check reports whether the user currently holds an active consent of the
// given type.
func (g *Registry) Check(ctx context.Context, userID, consentType string) (bool, error) {
	records, err := g.store.ListConsentsByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	now := g.clock.Now()
	for _, r := range records {
		if r.Type == consentType && r.Active(now) {
			return true, nil
		}
	}
	return false, nil
}
