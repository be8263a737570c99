// Package aigov maintains the AI governance register: system registrations
// with enforced semantic versions, and append-only decision logs with
// human-review patches.
package aigov

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

// RiskClass follows the EU AI Act tiers.
type RiskClass string

const (
	RiskMinimal      RiskClass = "minimal"
	RiskLimited      RiskClass = "limited"
	RiskHigh         RiskClass = "high"
	RiskUnacceptable RiskClass = "unacceptable"
)

// SystemRegistration is one registered AI system version.
type SystemRegistration struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Version            string    `json:"version"`
	Risk               RiskClass `json:"risk_classification"`
	IntendedPurpose    string    `json:"intended_purpose"`
	OversightMeasures  []string  `json:"human_oversight_measures,omitempty"`
	OverrideCapability bool      `json:"override_capability"`
	RegisteredAt       time.Time `json:"registered_at"`
}

// DecisionLog is one automated decision. The reasoning chain is immutable
// once written; only the human-review fields may be patched afterwards.
type DecisionLog struct {
	ID             string    `json:"id"`
	SystemID       string    `json:"system_id"`
	ModelVersion   string    `json:"model_version"`
	Outcome        string    `json:"outcome"`
	Confidence     float64   `json:"confidence"`
	InputSummary   string    `json:"input_summary"`
	ReasoningChain []string  `json:"reasoning_chain"`
	KeyFactors     []string  `json:"key_factors,omitempty"`
	SubjectID      string    `json:"subject_id,omitempty"`
	HumanReviewed  bool      `json:"human_reviewed"`
	HumanOverride  bool      `json:"human_override"`
	ReviewedBy     string    `json:"reviewed_by,omitempty"`
	ReviewNotes    string    `json:"review_notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists registrations and decision logs.
type Store interface {
	SaveAISystem(ctx context.Context, r *SystemRegistration) error
	FindAISystem(ctx context.Context, name, version string) (*SystemRegistration, error)
	SaveAIDecision(ctx context.Context, d *DecisionLog) error
	GetAIDecision(ctx context.Context, id string) (*DecisionLog, error)
	ListAIDecisionsBySystem(ctx context.Context, systemID string) ([]*DecisionLog, error)
}

// Service is the governance register.
type Service struct {
	store Store
	clock clock.Clock
	ids   clock.IDSource
}

// NewService creates the register.
func NewService(store Store, c clock.Clock, ids clock.IDSource) *Service {
	if c == nil {
		c = clock.Wall
	}
	if ids == nil {
		ids = clock.UUIDSource{}
	}
	return &Service{store: store, clock: c, ids: ids}
}

// Register records a new AI system version. The version must parse as
// semver; one registration per (name, version).
func (s *Service) Register(ctx context.Context, r SystemRegistration) (*SystemRegistration, error) {
	if r.Name == "" {
		return nil, fault.Validationf("ai system requires a name")
	}
	v, err := semver.NewVersion(r.Version)
	if err != nil {
		return nil, fault.Validationf("invalid ai system version %q: %v", r.Version, err)
	}
	r.Version = v.String()

	if existing, err := s.store.FindAISystem(ctx, r.Name, r.Version); err == nil && existing != nil {
		return nil, fault.Conflictf("ai system %s version %s already registered", r.Name, r.Version)
	}

	r.ID = s.ids.NewID()
	r.RegisteredAt = s.clock.Now()
	if err := s.store.SaveAISystem(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LogDecision appends a decision record.
func (s *Service) LogDecision(ctx context.Context, d DecisionLog) (*DecisionLog, error) {
	if d.SystemID == "" || d.Outcome == "" {
		return nil, fault.Validationf("decision log requires system id and outcome")
	}
	d.ID = s.ids.NewID()
	d.CreatedAt = s.clock.Now()
	if err := s.store.SaveAIDecision(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// RecordReview patches the human-review fields of a decision. The recorded
// reasoning chain and outcome stay untouched.
func (s *Service) RecordReview(ctx context.Context, id, reviewer, notes string, override bool) (*DecisionLog, error) {
	d, err := s.store.GetAIDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	d.HumanReviewed = true
	d.HumanOverride = override
	d.ReviewedBy = reviewer
	d.ReviewNotes = notes
	if err := s.store.SaveAIDecision(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
