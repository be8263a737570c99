package bayes

import (
	"math"

	"github.com/forge-health/forge-core/pkg/dx"
)

// InformationGain estimates how much asking about a candidate phenotype
// would reduce entropy over the current hypothesis distribution. Per
// hypothesis, P(present) is 0.3 if the phenotype is expected but missing,
// 0.7 if expected, and 0.5 otherwise; when every hypothesis assigns the
// candidate the same probability the answer is uninformative and the gain
// is zero.
func InformationGain(candidate string, hypotheses []*dx.Hypothesis) float64 {
	weights := normalizedScores(hypotheses)
	if len(weights) == 0 {
		return 0
	}
	current := entropy(weights)

	pPresent := make([]float64, len(hypotheses))
	for i, h := range hypotheses {
		pPresent[i] = presentProbability(candidate, h)
	}

	// Expected entropy after observing the answer.
	var pYes float64
	for i, w := range weights {
		pYes += w * pPresent[i]
	}
	pNo := 1 - pYes

	expected := 0.0
	if pYes > 0 {
		expected += pYes * entropy(conditional(weights, pPresent, false))
	}
	if pNo > 0 {
		expected += pNo * entropy(conditional(weights, pPresent, true))
	}
	return math.Max(0, current-expected)
}

func presentProbability(candidate string, h *dx.Hypothesis) float64 {
	for _, code := range h.MissingPhenotypes {
		if code == candidate {
			return 0.3
		}
	}
	for _, code := range h.ExpectedPhenotypes {
		if code == candidate {
			return 0.7
		}
	}
	return 0.5
}

func normalizedScores(hypotheses []*dx.Hypothesis) []float64 {
	if len(hypotheses) == 0 {
		return nil
	}
	total := 0.0
	for _, h := range hypotheses {
		total += h.CombinedScore
	}
	weights := make([]float64, len(hypotheses))
	if total <= 0 {
		for i := range weights {
			weights[i] = 1 / float64(len(hypotheses))
		}
		return weights
	}
	for i, h := range hypotheses {
		weights[i] = h.CombinedScore / total
	}
	return weights
}

// conditional reweights the hypothesis distribution given the answer.
func conditional(weights, pPresent []float64, absent bool) []float64 {
	out := make([]float64, len(weights))
	total := 0.0
	for i, w := range weights {
		p := pPresent[i]
		if absent {
			p = 1 - p
		}
		out[i] = w * p
		total += out[i]
	}
	if total <= 0 {
		return weights
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

func entropy(weights []float64) float64 {
	h := 0.0
	for _, w := range weights {
		if w > 0 {
			h -= w * math.Log2(w)
		}
	}
	return h
}
