// Package diagnosis implements the diagnosis engine: intake
// normalization, hypothesis generation from the knowledge graph,
// Bayesian re-scoring, follow-up question selection, and finalization.
// The engine is stateless across sessions; the session controller owns
// locking and drives the lifecycle.
package diagnosis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/forge-health/forge-core/pkg/agents"
	"github.com/forge-health/forge-core/pkg/bayes"
	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/fault"
	"github.com/forge-health/forge-core/pkg/graph"
	"github.com/forge-health/forge-core/pkg/ontology"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// MinPhenotypeOverlap is the fraction of patient phenotypes a disease
	// must share to become a candidate.
	MinPhenotypeOverlap float64
	// EliminationThreshold is the combined score below which a hypothesis
	// drops out of top_hypotheses.
	EliminationThreshold float64
	// ConfidenceThreshold completes the session when the top hypothesis
	// reaches it.
	ConfidenceThreshold float64
	// MinInformationGain filters candidate questions.
	MinInformationGain float64
	// MaxQuestionsPerIteration caps one questioning round.
	MaxQuestionsPerIteration int
	// MaxIterations caps question/refine cycles per session.
	MaxIterations int
	// DifferentialSize caps the finalized differential.
	DifferentialSize int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinPhenotypeOverlap:      0.3,
		EliminationThreshold:     0.2,
		ConfidenceThreshold:      0.85,
		MinInformationGain:       0.01,
		MaxQuestionsPerIteration: 3,
		MaxIterations:            10,
		DifferentialSize:         10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinPhenotypeOverlap <= 0 {
		c.MinPhenotypeOverlap = d.MinPhenotypeOverlap
	}
	if c.EliminationThreshold <= 0 {
		c.EliminationThreshold = d.EliminationThreshold
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.MinInformationGain <= 0 {
		c.MinInformationGain = d.MinInformationGain
	}
	if c.MaxQuestionsPerIteration <= 0 {
		c.MaxQuestionsPerIteration = d.MaxQuestionsPerIteration
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.DifferentialSize <= 0 {
		c.DifferentialSize = d.DifferentialSize
	}
	return c
}

// Engine drives one diagnosis pass at a time.
type Engine struct {
	ontology     *ontology.Service
	graph        graph.Store
	scorer       *bayes.Scorer
	phenotype    *agents.PhenotypeAgent
	genetic      *agents.GeneticAgent
	differential *agents.DifferentialAgent
	cfg          Config
	clock        clock.Clock
	ids          clock.IDSource
	logger       *slog.Logger
}

// New creates an engine over the ontology and knowledge graph.
func New(onto *ontology.Service, g graph.Store, scorer *bayes.Scorer, cfg Config, clk clock.Clock, ids clock.IDSource, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.Wall
	}
	if ids == nil {
		ids = clock.UUIDSource{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ontology:     onto,
		graph:        g,
		scorer:       scorer,
		phenotype:    agents.NewPhenotypeAgent(onto, g, 0),
		genetic:      agents.NewGeneticAgent(g),
		differential: agents.NewDifferentialAgent(),
		cfg:          cfg.withDefaults(),
		clock:        clk,
		ids:          ids,
		logger:       logger,
	}
}

// MinInformationGain exposes the question filter floor.
func (e *Engine) MinInformationGain() float64 { return e.cfg.MinInformationGain }

// CreateSession mints a fresh session in the intake state.
func (e *Engine) CreateSession(timeout time.Duration) *dx.Session {
	now := e.clock.Now()
	return &dx.Session{
		ID:                  e.ids.NewID(),
		State:               dx.StateIntake,
		MaxIterations:       e.cfg.MaxIterations,
		ConfidenceThreshold: e.cfg.ConfidenceThreshold,
		CreatedAt:           now,
		ExpiresAt:           now.Add(timeout),
		LastActivity:        now,
	}
}

// Intake is the raw patient input before normalization.
type Intake struct {
	Phenotypes    []string
	Variants      []dx.Variant
	History       []string
	FamilyHistory []string
	Demographics  map[string]string
}

// ProcessIntake normalizes raw inputs onto the session's patient
// profile: "HP:" codes pass through, free text resolves through the
// ontology, and a "NOT:" or "-" prefix negates. Unresolvable phenotypes
// are logged and skipped.
func (e *Engine) ProcessIntake(ctx context.Context, s *dx.Session, in Intake) error {
	if s.State != dx.StateIntake {
		return fault.Conflictf("session %s is in state %s, expected intake", s.ID, s.State)
	}
	now := e.clock.Now()
	for _, raw := range in.Phenotypes {
		text, negated := splitNegation(raw)
		code, err := e.phenotype.Normalize(text)
		if err != nil {
			e.logger.Warn("unresolvable phenotype skipped", "session", s.ID, "input", truncate(text, 50))
			continue
		}
		if negated {
			s.Patient.NegatedPhenotypes = appendUnique(s.Patient.NegatedPhenotypes, code)
		} else {
			s.Patient.Phenotypes = appendUnique(s.Patient.Phenotypes, code)
		}
		s.Evidence = append(s.Evidence, dx.EvidenceItem{
			ID:         e.ids.NewID(),
			Type:       dx.EvidencePhenotype,
			Value:      text,
			Code:       code,
			Negated:    negated,
			Confidence: 1,
			Confirmed:  true,
			RecordedAt: now,
		})
	}
	s.Patient.Variants = append(s.Patient.Variants, in.Variants...)
	for _, v := range in.Variants {
		s.Evidence = append(s.Evidence, dx.EvidenceItem{
			ID:         e.ids.NewID(),
			Type:       dx.EvidenceGenetic,
			Value:      fmt.Sprintf("%s:%s", v.Gene, v.Pathogenicity),
			Code:       v.Gene,
			Confidence: 1,
			Confirmed:  true,
			RecordedAt: now,
		})
	}
	for _, entry := range in.History {
		text, negated := splitNegation(entry)
		if negated {
			s.Patient.NegatedHistory = append(s.Patient.NegatedHistory, text)
		} else {
			s.Patient.History = append(s.Patient.History, text)
		}
		s.Evidence = append(s.Evidence, dx.EvidenceItem{
			ID:         e.ids.NewID(),
			Type:       dx.EvidenceHistory,
			Value:      text,
			Negated:    negated,
			Confidence: 1,
			RecordedAt: now,
		})
	}
	s.Patient.FamilyHistory = append(s.Patient.FamilyHistory, in.FamilyHistory...)
	for _, entry := range in.FamilyHistory {
		s.Evidence = append(s.Evidence, dx.EvidenceItem{
			ID:         e.ids.NewID(),
			Type:       dx.EvidenceFamily,
			Value:      entry,
			Confidence: 1,
			RecordedAt: now,
		})
	}
	if in.Demographics != nil {
		if s.Patient.Demographics == nil {
			s.Patient.Demographics = map[string]string{}
		}
		for k, v := range in.Demographics {
			s.Patient.Demographics[k] = v
		}
	}
	s.State = dx.StateAnalyzing
	s.LastActivity = now
	return nil
}

// GenerateHypotheses unions phenotype-derived and gene-derived
// candidates, merged on disease id.
func (e *Engine) GenerateHypotheses(ctx context.Context, s *dx.Session) error {
	codes := s.Patient.Phenotypes
	minMatches := int(math.Ceil(e.cfg.MinPhenotypeOverlap * float64(len(codes))))
	if minMatches < 1 {
		minMatches = 1
	}

	byDisease := map[string]*dx.Hypothesis{}
	var hypotheses []*dx.Hypothesis

	if len(codes) > 0 {
		matches, err := e.graph.DiseasesByPhenotypes(ctx, codes, minMatches)
		if err != nil {
			return fmt.Errorf("phenotype candidates: %w", err)
		}
		for _, m := range matches {
			h := newHypothesis(e.ids.NewID(), m.Disease)
			h.MatchedPhenotypes = m.Matched
			byDisease[h.DiseaseID] = h
			hypotheses = append(hypotheses, h)
		}
	}

	for _, v := range s.Patient.Variants {
		diseases, err := e.graph.DiseasesByGene(ctx, v.Gene)
		if err != nil {
			return fmt.Errorf("gene candidates: %w", err)
		}
		for _, d := range diseases {
			if _, ok := byDisease[d.ID]; ok {
				continue
			}
			h := newHypothesis(e.ids.NewID(), d)
			byDisease[d.ID] = h
			hypotheses = append(hypotheses, h)
		}
	}

	s.Hypotheses = hypotheses
	s.LastActivity = e.clock.Now()
	return nil
}

func newHypothesis(id string, d *graph.Disease) *dx.Hypothesis {
	h := &dx.Hypothesis{
		ID:          id,
		DiseaseID:   d.ID,
		DiseaseName: d.Name,
		Prior:       d.Prevalence,
	}
	for code := range d.Phenotypes {
		h.ExpectedPhenotypes = append(h.ExpectedPhenotypes, code)
	}
	for _, g := range d.Genes {
		h.AssociatedGenes = append(h.AssociatedGenes, g.Gene)
	}
	return h
}

// ScoreHypotheses re-scores every hypothesis, re-sorts by combined score,
// refreshes top_hypotheses, and completes the session when the leader
// clears the confidence threshold.
func (e *Engine) ScoreHypotheses(ctx context.Context, s *dx.Session) error {
	for _, h := range s.Hypotheses {
		disease, err := e.graph.Disease(ctx, h.DiseaseID)
		if err != nil {
			return fmt.Errorf("score %s: %w", h.DiseaseID, err)
		}
		e.scorer.Score(h, &s.Patient, disease)
	}
	sort.SliceStable(s.Hypotheses, func(i, j int) bool {
		if s.Hypotheses[i].CombinedScore != s.Hypotheses[j].CombinedScore {
			return s.Hypotheses[i].CombinedScore > s.Hypotheses[j].CombinedScore
		}
		return s.Hypotheses[i].DiseaseID < s.Hypotheses[j].DiseaseID
	})

	s.TopHypotheses = s.TopHypotheses[:0]
	for i, h := range s.Hypotheses {
		h.Rank = i + 1
		if h.CombinedScore >= e.cfg.EliminationThreshold {
			s.TopHypotheses = append(s.TopHypotheses, h)
		}
	}

	if len(s.TopHypotheses) > 0 && s.TopHypotheses[0].CombinedScore >= s.ConfidenceThreshold {
		s.State = dx.StateComplete
	} else if s.State != dx.StateComplete {
		s.State = dx.StateQuestioning
	}
	s.LastActivity = e.clock.Now()
	return nil
}

func splitNegation(raw string) (text string, negated bool) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "NOT:"):
		return strings.TrimSpace(strings.TrimPrefix(raw, "NOT:")), true
	case strings.HasPrefix(raw, "-"):
		return strings.TrimSpace(strings.TrimPrefix(raw, "-")), true
	default:
		return raw, false
	}
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
