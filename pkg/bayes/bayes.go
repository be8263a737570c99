// Package bayes scores diagnosis hypotheses by likelihood-ratio updates
// over phenotype, genetic, and history evidence, and computes the expected
// information gain of candidate follow-up questions.
package bayes

import (
	"math"
	"strings"

	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/graph"
)

// Config tunes the scorer. Zero values fall back to defaults.
type Config struct {
	// MinPosterior and MaxPosterior clamp priors and posteriors away from
	// 0 and 1 so no hypothesis is ever mathematically eliminated.
	MinPosterior float64
	MaxPosterior float64

	// BackgroundRate is the assumed population prevalence of a phenotype
	// with no recorded background frequency.
	BackgroundRate float64

	// PhenotypeAbsentLR applies when a core expected phenotype (frequency
	// above 0.5) is explicitly negated in the patient.
	PhenotypeAbsentLR float64

	// Component weights for the geometric and arithmetic combinations.
	PhenotypeWeight float64
	GeneticWeight   float64
	HistoryWeight   float64
	WearableWeight  float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinPosterior:      0.0001,
		MaxPosterior:      0.999,
		BackgroundRate:    0.01,
		PhenotypeAbsentLR: 0.3,
		PhenotypeWeight:   0.40,
		GeneticWeight:     0.35,
		HistoryWeight:     0.15,
		WearableWeight:    0.10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinPosterior <= 0 {
		c.MinPosterior = d.MinPosterior
	}
	if c.MaxPosterior <= 0 || c.MaxPosterior >= 1 {
		c.MaxPosterior = d.MaxPosterior
	}
	if c.BackgroundRate <= 0 {
		c.BackgroundRate = d.BackgroundRate
	}
	if c.PhenotypeAbsentLR <= 0 {
		c.PhenotypeAbsentLR = d.PhenotypeAbsentLR
	}
	if c.PhenotypeWeight+c.GeneticWeight+c.HistoryWeight+c.WearableWeight == 0 {
		c.PhenotypeWeight = d.PhenotypeWeight
		c.GeneticWeight = d.GeneticWeight
		c.HistoryWeight = d.HistoryWeight
		c.WearableWeight = d.WearableWeight
	}
	return c
}

// PathogenicityLR maps a variant classification to its likelihood ratio.
func PathogenicityLR(classification string) float64 {
	switch strings.ToLower(strings.TrimSpace(classification)) {
	case dx.PathogenicityPathogenic:
		return 50
	case dx.PathogenicityLikelyPathogenic:
		return 10
	case dx.PathogenicityVUS, "uncertain_significance":
		return 2
	case dx.PathogenicityLikelyBenign:
		return 0.2
	case dx.PathogenicityBenign:
		return 0.1
	default:
		return 1
	}
}

// Scorer applies likelihood-ratio updates to hypotheses.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.withDefaults()}
}

// phenotype frequency LRs are bounded so one noisy frequency cannot
// dominate the update.
const (
	minPhenotypeLR = 0.1
	maxPhenotypeLR = 100
)

// Score updates the hypothesis in place from the patient profile and the
// disease's graph node: per-component likelihood ratios, posterior by
// odds, and the weighted combined rank score.
func (s *Scorer) Score(h *dx.Hypothesis, patient *dx.PatientProfile, disease *graph.Disease) {
	prior := clamp(disease.Prevalence, s.cfg.MinPosterior, s.cfg.MaxPosterior)
	h.Prior = prior

	phenotypeLR := s.phenotypeLR(patient, disease, h)
	geneticLR := s.geneticLR(patient, disease)
	historyLR := s.historyLR(patient, disease)
	wearableLR := 1.0

	// Weighted geometric mean of the component ratios.
	combinedLR := math.Pow(phenotypeLR, s.cfg.PhenotypeWeight) *
		math.Pow(geneticLR, s.cfg.GeneticWeight) *
		math.Pow(historyLR, s.cfg.HistoryWeight) *
		math.Pow(wearableLR, s.cfg.WearableWeight)

	odds := prior / (1 - prior) * combinedLR
	h.Posterior = clamp(odds/(1+odds), s.cfg.MinPosterior, s.cfg.MaxPosterior)

	h.PhenotypeScore = lrScore(phenotypeLR)
	h.GeneticScore = lrScore(geneticLR)
	h.HistoryScore = lrScore(historyLR)
	h.WearableScore = lrScore(wearableLR)
	h.CombinedScore = s.cfg.PhenotypeWeight*h.PhenotypeScore +
		s.cfg.GeneticWeight*h.GeneticScore +
		s.cfg.HistoryWeight*h.HistoryScore +
		s.cfg.WearableWeight*h.WearableScore
}

// phenotypeLR multiplies in freq/background for every present patient
// phenotype expected by the disease, and the absent-LR penalty for every
// negated core phenotype. It also refreshes the hypothesis's matched and
// missing lists.
func (s *Scorer) phenotypeLR(patient *dx.PatientProfile, disease *graph.Disease, h *dx.Hypothesis) float64 {
	lr := 1.0
	present := map[string]bool{}
	h.MatchedPhenotypes = h.MatchedPhenotypes[:0]
	for _, code := range patient.Phenotypes {
		present[code] = true
		freq, expected := disease.Phenotypes[code]
		if !expected {
			continue
		}
		h.MatchedPhenotypes = append(h.MatchedPhenotypes, code)
		lr *= clamp(freq/s.cfg.BackgroundRate, minPhenotypeLR, maxPhenotypeLR)
	}
	for _, code := range patient.NegatedPhenotypes {
		if freq, expected := disease.Phenotypes[code]; expected && freq > 0.5 {
			lr *= s.cfg.PhenotypeAbsentLR
		}
	}
	h.MissingPhenotypes = h.MissingPhenotypes[:0]
	h.ExpectedPhenotypes = h.ExpectedPhenotypes[:0]
	for code := range disease.Phenotypes {
		h.ExpectedPhenotypes = append(h.ExpectedPhenotypes, code)
		if !present[code] {
			h.MissingPhenotypes = append(h.MissingPhenotypes, code)
		}
	}
	return lr
}

func (s *Scorer) geneticLR(patient *dx.PatientProfile, disease *graph.Disease) float64 {
	lr := 1.0
	for _, v := range patient.Variants {
		if disease.HasGene(v.Gene) {
			lr *= PathogenicityLR(v.Pathogenicity)
		}
	}
	return lr
}

func (s *Scorer) historyLR(patient *dx.PatientProfile, disease *graph.Disease) float64 {
	lr := 1.0
	diseaseName := strings.ToLower(disease.Name)
	for _, entry := range patient.FamilyHistory {
		e := strings.ToLower(entry)
		if mentionsDisease(e, diseaseName, disease) {
			lr *= 3
			break
		}
	}
	for _, entry := range patient.NegatedHistory {
		if strings.Contains(strings.ToLower(entry), diseaseName) {
			lr *= 0.1
			break
		}
	}
	return lr
}

func mentionsDisease(entry, diseaseName string, disease *graph.Disease) bool {
	if diseaseName != "" && strings.Contains(entry, diseaseName) {
		return true
	}
	for _, g := range disease.Genes {
		if strings.Contains(strings.ToUpper(entry), g.Gene) {
			return true
		}
	}
	return false
}

// lrScore maps a likelihood ratio to a 0-1 component score. LR 1 is the
// neutral 0.5.
func lrScore(lr float64) float64 {
	return lr / (1 + lr)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
