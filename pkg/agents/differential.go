package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/forge-health/forge-core/pkg/dx"
)

// Differential weights and thresholds.
const (
	differentialMinScore = 0.10

	weightPhenotype = 0.40
	weightGenetic   = 0.35
	weightHistory   = 0.15
	weightWearable  = 0.10
)

// DifferentialAgent folds sub-scores into the final ranked differential.
type DifferentialAgent struct{}

// NewDifferentialAgent creates the agent.
func NewDifferentialAgent() *DifferentialAgent { return &DifferentialAgent{} }

func (a *DifferentialAgent) Role() string { return RoleDifferential }

// Rank recomputes combined scores, filters weak hypotheses, sorts, and
// assigns ranks and confidence. The input slice is not modified; the
// returned slice shares hypothesis pointers.
func (a *DifferentialAgent) Rank(hypotheses []*dx.Hypothesis) []*dx.Hypothesis {
	var out []*dx.Hypothesis
	for _, h := range hypotheses {
		h.CombinedScore = weightPhenotype*h.PhenotypeScore +
			weightGenetic*h.GeneticScore +
			weightHistory*h.HistoryScore +
			weightWearable*h.WearableScore
		if h.CombinedScore < differentialMinScore {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].DiseaseID < out[j].DiseaseID
	})

	confidence := confidenceFor(out)
	for i, h := range out {
		h.Rank = i + 1
		h.Confidence = confidence
		if i < 5 {
			h.Reasoning = explain(h)
		}
	}
	return out
}

// confidenceFor classifies the field by the top score and its lead over
// the runner-up.
func confidenceFor(ranked []*dx.Hypothesis) string {
	if len(ranked) == 0 {
		return "uncertain"
	}
	top := ranked[0].CombinedScore
	gap := top
	if len(ranked) > 1 {
		gap = top - ranked[1].CombinedScore
	}
	switch {
	case top >= 0.75 && gap >= 0.15:
		return "high"
	case top >= 0.6:
		return "moderate"
	case top >= 0.4:
		return "low"
	default:
		return "uncertain"
	}
}

func explain(h *dx.Hypothesis) string {
	var parts []string
	if len(h.MatchedPhenotypes) > 0 {
		parts = append(parts, fmt.Sprintf("%d matching phenotypes", len(h.MatchedPhenotypes)))
	}
	if len(h.MissingPhenotypes) > 0 {
		parts = append(parts, fmt.Sprintf("%d expected phenotypes absent", len(h.MissingPhenotypes)))
	}
	if h.GeneticScore > 0.5 && len(h.AssociatedGenes) > 0 {
		parts = append(parts, fmt.Sprintf("supporting variants in %s", strings.Join(h.AssociatedGenes, ", ")))
	}
	if h.HistoryScore > 0.5 {
		parts = append(parts, "supportive history")
	}
	if len(parts) == 0 {
		parts = append(parts, "weak overall evidence")
	}
	return fmt.Sprintf("%s (score %.2f): %s", h.DiseaseName, h.CombinedScore, strings.Join(parts, "; "))
}

// Analyze summarizes ranking readiness; the differential agent operates
// on hypotheses, not raw patient data.
func (a *DifferentialAgent) Analyze(_ context.Context, patient *dx.PatientProfile) (*Analysis, error) {
	return &Analysis{
		Role:    a.Role(),
		Summary: fmt.Sprintf("ready to rank: %d phenotypes, %d variants", len(patient.Phenotypes), len(patient.Variants)),
		Score:   0.5,
	}, nil
}

// GenerateHypotheses passes through: ranking does not invent candidates.
func (a *DifferentialAgent) GenerateHypotheses(_ context.Context, _ *dx.PatientProfile, existing []*dx.Hypothesis) ([]*dx.Hypothesis, error) {
	return existing, nil
}

// EvaluateHypothesis reports the weighted combined score.
func (a *DifferentialAgent) EvaluateHypothesis(_ context.Context, h *dx.Hypothesis, _ []dx.EvidenceItem) (*Evaluation, error) {
	score := weightPhenotype*h.PhenotypeScore +
		weightGenetic*h.GeneticScore +
		weightHistory*h.HistoryScore +
		weightWearable*h.WearableScore
	return &Evaluation{HypothesisID: h.ID, Score: score, Reasoning: explain(h)}, nil
}

// ReceiveMessage ignores everything except consensus requests, which it
// acknowledges.
func (a *DifferentialAgent) ReceiveMessage(_ context.Context, m *Message) (*Message, error) {
	if m.Type == MsgConsensus {
		return m.Reply("", a.Role(), MsgResponse, "acknowledged", m.CreatedAt), nil
	}
	return nil, nil
}
