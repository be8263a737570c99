package agents

import (
	"context"

	"github.com/forge-health/forge-core/pkg/dx"
)

// Specialist roles.
const (
	RolePhenotype    = "phenotype"
	RoleGenetic      = "genetic"
	RoleDifferential = "differential"
)

// Analysis is one specialist's per-patient findings.
type Analysis struct {
	Role     string         `json:"role"`
	Summary  string         `json:"summary"`
	Score    float64        `json:"score"`
	Findings map[string]any `json:"findings,omitempty"`
}

// Evaluation is a specialist's assessment of one hypothesis.
type Evaluation struct {
	HypothesisID string  `json:"hypothesis_id"`
	Score        float64 `json:"score"`
	Reasoning    string  `json:"reasoning"`
}

// Agent is the kernel contract every specialist implements. Analysis
// errors are returned, not panicked; the bus wraps them as error
// messages.
type Agent interface {
	Role() string
	ReceiveMessage(ctx context.Context, m *Message) (*Message, error)
	Analyze(ctx context.Context, patient *dx.PatientProfile) (*Analysis, error)
	GenerateHypotheses(ctx context.Context, patient *dx.PatientProfile, existing []*dx.Hypothesis) ([]*dx.Hypothesis, error)
	EvaluateHypothesis(ctx context.Context, h *dx.Hypothesis, evidence []dx.EvidenceItem) (*Evaluation, error)
}
