package diagnosis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/forge-health/forge-core/pkg/bayes"
	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/fault"
)

// GenerateQuestions ranks expected-but-unknown phenotypes across the top
// hypotheses by information gain and turns the best into pending
// questions. When no variants are known but candidate genes exist, one
// genetic-testing question is added.
func (e *Engine) GenerateQuestions(ctx context.Context, s *dx.Session) error {
	top := s.TopHypotheses
	if len(top) == 0 {
		top = s.Hypotheses
	}

	known := map[string]bool{}
	for _, code := range s.Patient.Phenotypes {
		known[code] = true
	}
	for _, code := range s.Patient.NegatedPhenotypes {
		known[code] = true
	}

	type candidate struct {
		code string
		gain float64
	}
	seen := map[string]bool{}
	var candidates []candidate
	for _, h := range top {
		for _, code := range h.ExpectedPhenotypes {
			if known[code] || seen[code] {
				continue
			}
			seen[code] = true
			gain := bayes.InformationGain(code, top)
			if gain >= e.cfg.MinInformationGain {
				candidates = append(candidates, candidate{code: code, gain: gain})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].gain != candidates[j].gain {
			return candidates[i].gain > candidates[j].gain
		}
		return candidates[i].code < candidates[j].code
	})
	if len(candidates) > e.cfg.MaxQuestionsPerIteration {
		candidates = candidates[:e.cfg.MaxQuestionsPerIteration]
	}

	s.PendingQuestions = s.PendingQuestions[:0]
	for _, c := range candidates {
		s.PendingQuestions = append(s.PendingQuestions, e.phenotypeQuestion(c.code, c.gain, top))
	}

	if q := e.geneticQuestion(s, top); q != nil {
		s.PendingQuestions = append(s.PendingQuestions, q)
	}

	s.Iterations++
	s.LastActivity = e.clock.Now()
	return nil
}

func (e *Engine) phenotypeQuestion(code string, gain float64, top []*dx.Hypothesis) *dx.FollowUpQuestion {
	label := code
	if term, err := e.ontology.Lookup(code); err == nil {
		label = strings.ToLower(term.Name)
	}
	var affected []string
	for _, h := range top {
		for _, expected := range h.ExpectedPhenotypes {
			if expected == code {
				affected = append(affected, h.ID)
				break
			}
		}
	}
	return &dx.FollowUpQuestion{
		ID:                 e.ids.NewID(),
		Text:               fmt.Sprintf("Does the patient have %s?", label),
		Type:               dx.QuestionBinary,
		TargetPhenotype:    code,
		Options:            []string{"yes", "no", "unknown"},
		AffectedHypotheses: affected,
		InformationGain:    gain,
		Priority:           gain,
	}
}

// geneticQuestion suggests genetic testing when the leading hypotheses
// carry candidate genes and no variant data is on file.
func (e *Engine) geneticQuestion(s *dx.Session, top []*dx.Hypothesis) *dx.FollowUpQuestion {
	if len(s.Patient.Variants) > 0 {
		return nil
	}
	// Asked at most once per session.
	for _, q := range s.AnsweredQuestions {
		if q.Type == dx.QuestionFreeText {
			return nil
		}
	}
	seen := map[string]bool{}
	var genes []string
	for _, h := range top {
		for _, g := range h.AssociatedGenes {
			if !seen[g] {
				seen[g] = true
				genes = append(genes, g)
			}
		}
	}
	if len(genes) == 0 {
		return nil
	}
	sort.Strings(genes)
	if len(genes) > 5 {
		genes = genes[:5]
	}
	var affected []string
	for _, h := range top {
		affected = append(affected, h.ID)
	}
	return &dx.FollowUpQuestion{
		ID:                 e.ids.NewID(),
		Text:               fmt.Sprintf("Has genetic testing been performed? Candidate genes: %s", strings.Join(genes, ", ")),
		Type:               dx.QuestionFreeText,
		AffectedHypotheses: affected,
		InformationGain:    e.cfg.MinInformationGain,
		Priority:           e.cfg.MinInformationGain,
	}
}

// AnswerQuestion records the answer, appends the matching evidence item,
// moves the session to refining, and re-scores.
func (e *Engine) AnswerQuestion(ctx context.Context, s *dx.Session, questionID, answer string) error {
	idx := -1
	for i, q := range s.PendingQuestions {
		if q.ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fault.NotFoundf("question %s", questionID)
	}
	q := s.PendingQuestions[idx]
	now := e.clock.Now()
	q.Answer = answer
	q.AnsweredAt = &now
	s.PendingQuestions = append(s.PendingQuestions[:idx], s.PendingQuestions[idx+1:]...)
	s.AnsweredQuestions = append(s.AnsweredQuestions, q)

	switch q.Type {
	case dx.QuestionBinary:
		if q.TargetPhenotype != "" {
			switch normalizeAnswer(answer) {
			case "yes":
				s.Patient.Phenotypes = appendUnique(s.Patient.Phenotypes, q.TargetPhenotype)
				s.Evidence = append(s.Evidence, dx.EvidenceItem{
					ID:         e.ids.NewID(),
					Type:       dx.EvidencePhenotype,
					Value:      q.Text,
					Code:       q.TargetPhenotype,
					Confidence: 1,
					Confirmed:  true,
					RecordedAt: now,
				})
			case "no":
				s.Patient.NegatedPhenotypes = appendUnique(s.Patient.NegatedPhenotypes, q.TargetPhenotype)
				s.Evidence = append(s.Evidence, dx.EvidenceItem{
					ID:         e.ids.NewID(),
					Type:       dx.EvidencePhenotype,
					Value:      q.Text,
					Code:       q.TargetPhenotype,
					Negated:    true,
					Confidence: 1,
					Confirmed:  true,
					RecordedAt: now,
				})
			}
		}
	default:
		s.Evidence = append(s.Evidence, dx.EvidenceItem{
			ID:         e.ids.NewID(),
			Type:       dx.EvidenceHistory,
			Value:      answer,
			Confidence: 0.8,
			RecordedAt: now,
		})
	}

	s.State = dx.StateRefining
	return e.ScoreHypotheses(ctx, s)
}

func normalizeAnswer(answer string) string {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y", "true":
		return "yes"
	case "no", "n", "false":
		return "no"
	default:
		return "unknown"
	}
}
