package diagnosis

import (
	"context"
	"fmt"
	"strings"

	"github.com/forge-health/forge-core/pkg/dx"
)

// FinalizeSession packages the primary diagnosis, the differential, key
// findings, and recommended follow-up tests.
func (e *Engine) FinalizeSession(_ context.Context, s *dx.Session) *dx.Result {
	ranked := e.differential.Rank(s.Hypotheses)

	result := &dx.Result{
		SessionID:  s.ID,
		Iterations: s.Iterations,
		State:      s.State,
	}
	if len(ranked) > 0 {
		result.Primary = ranked[0]
		result.EvidenceStrength = ranked[0].Confidence
	} else {
		result.EvidenceStrength = "uncertain"
	}
	limit := e.cfg.DifferentialSize
	if len(ranked) < limit {
		limit = len(ranked)
	}
	result.Differential = ranked[:limit]

	result.KeyFindings = e.keyFindings(s, result.Primary)
	result.RecommendedTests = e.recommendedTests(s, result.Differential)
	return result
}

func (e *Engine) keyFindings(s *dx.Session, primary *dx.Hypothesis) []string {
	var findings []string
	if primary != nil {
		for _, code := range primary.MatchedPhenotypes {
			label := code
			if term, err := e.ontology.Lookup(code); err == nil {
				label = fmt.Sprintf("%s (%s)", term.Name, code)
			}
			findings = append(findings, "present: "+label)
		}
	}
	for _, item := range s.Evidence {
		if item.Type == dx.EvidenceGenetic && !item.Negated {
			findings = append(findings, "variant: "+item.Value)
		}
	}
	for _, entry := range s.Patient.FamilyHistory {
		findings = append(findings, "family history: "+entry)
	}
	return findings
}

// recommendedTests suggests genetic confirmation for differential genes
// without variant evidence, and targeted phenotype workup for the
// leader's missing phenotypes.
func (e *Engine) recommendedTests(s *dx.Session, differential []*dx.Hypothesis) []string {
	tested := map[string]bool{}
	for _, v := range s.Patient.Variants {
		tested[v.Gene] = true
	}
	seen := map[string]bool{}
	var tests []string
	for _, h := range differential {
		var untested []string
		for _, g := range h.AssociatedGenes {
			if !tested[g] && !seen[g] {
				seen[g] = true
				untested = append(untested, g)
			}
		}
		if len(untested) > 0 {
			tests = append(tests, fmt.Sprintf("genetic testing for %s (%s)", strings.Join(untested, ", "), h.DiseaseName))
		}
	}
	if len(differential) > 0 && len(differential[0].MissingPhenotypes) > 0 {
		tests = append(tests, fmt.Sprintf("clinical evaluation of %d unconfirmed expected phenotypes for %s",
			len(differential[0].MissingPhenotypes), differential[0].DiseaseName))
	}
	return tests
}
