package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/graph"
	"github.com/forge-health/forge-core/pkg/ontology"
	"github.com/forge-health/forge-core/pkg/validate"
)

// defaultAncestorDepth bounds phenotype expansion so a specific term does
// not pull in the whole ontology.
const defaultAncestorDepth = 3

// PhenotypeAgent normalizes patient phenotypes against the ontology and
// matches them to diseases in the knowledge graph.
type PhenotypeAgent struct {
	ontology      *ontology.Service
	graph         graph.Store
	ancestorDepth int
}

// NewPhenotypeAgent creates the agent. depth <= 0 uses the default
// ancestor expansion depth.
func NewPhenotypeAgent(onto *ontology.Service, g graph.Store, depth int) *PhenotypeAgent {
	if depth <= 0 {
		depth = defaultAncestorDepth
	}
	return &PhenotypeAgent{ontology: onto, graph: g, ancestorDepth: depth}
}

func (a *PhenotypeAgent) Role() string { return RolePhenotype }

// Normalize maps one raw phenotype input to an HPO code: valid codes pass
// through, free text resolves through the ontology.
func (a *PhenotypeAgent) Normalize(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "HP:") {
		if err := validate.HPOCode(input); err != nil {
			return "", err
		}
		if _, err := a.ontology.Lookup(input); err != nil {
			return "", err
		}
		return input, nil
	}
	term, err := a.ontology.Resolve(input)
	if err != nil {
		return "", err
	}
	return term.ID, nil
}

// Expand adds bounded-depth ancestors to a set of codes, excluding the
// generic roots above the organ-system branches.
func (a *PhenotypeAgent) Expand(codes []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	for _, code := range codes {
		add(code)
		ancestors, err := a.ontology.Ancestors(code, a.ancestorDepth)
		if err != nil {
			continue
		}
		for _, anc := range ancestors {
			if anc == ontology.PhenotypicAbnormalityRoot {
				continue
			}
			add(anc)
		}
	}
	return out
}

// Categorize groups codes by their top-level organ-system branch.
func (a *PhenotypeAgent) Categorize(codes []string) map[string][]string {
	out := map[string][]string{}
	for _, code := range codes {
		branch, err := a.ontology.TopLevelBranch(code)
		if err != nil {
			continue
		}
		out[branch] = append(out[branch], code)
	}
	return out
}

// Analyze normalizes the patient's phenotypes, queries the graph, and
// reports the best phenotype-overlap matches.
func (a *PhenotypeAgent) Analyze(ctx context.Context, patient *dx.PatientProfile) (*Analysis, error) {
	codes := a.normalizeAll(patient.Phenotypes)
	if len(codes) == 0 {
		return &Analysis{Role: a.Role(), Summary: "no recognizable phenotypes"}, nil
	}

	matches, err := a.graph.DiseasesByPhenotypes(ctx, codes, 1)
	if err != nil {
		return nil, fmt.Errorf("phenotype graph query: %w", err)
	}

	best := 0.0
	scored := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		score := phenotypeMatchScore(len(m.Matched), len(codes), len(m.Disease.Phenotypes))
		if score > best {
			best = score
		}
		scored = append(scored, map[string]any{
			"disease_id": m.Disease.ID,
			"matched":    m.Matched,
			"score":      score,
		})
	}

	return &Analysis{
		Role:    a.Role(),
		Summary: fmt.Sprintf("%d phenotypes matched %d candidate diseases", len(codes), len(matches)),
		Score:   best,
		Findings: map[string]any{
			"codes":      codes,
			"categories": a.Categorize(codes),
			"matches":    scored,
		},
	}, nil
}

// phenotypeMatchScore is (recall + precision) / 2.
func phenotypeMatchScore(matched, patientCount, expectedCount int) float64 {
	if patientCount == 0 || expectedCount == 0 {
		return 0
	}
	recall := float64(matched) / float64(patientCount)
	precision := float64(matched) / float64(expectedCount)
	return (recall + precision) / 2
}

// GenerateHypotheses derives hypotheses from the phenotype graph query,
// merging into the existing list by disease id.
func (a *PhenotypeAgent) GenerateHypotheses(ctx context.Context, patient *dx.PatientProfile, existing []*dx.Hypothesis) ([]*dx.Hypothesis, error) {
	codes := a.normalizeAll(patient.Phenotypes)
	matches, err := a.graph.DiseasesByPhenotypes(ctx, codes, 1)
	if err != nil {
		return nil, fmt.Errorf("phenotype graph query: %w", err)
	}

	byDisease := map[string]*dx.Hypothesis{}
	out := append([]*dx.Hypothesis{}, existing...)
	for _, h := range existing {
		byDisease[h.DiseaseID] = h
	}
	for _, m := range matches {
		if h, ok := byDisease[m.Disease.ID]; ok {
			h.MatchedPhenotypes = m.Matched
			continue
		}
		h := &dx.Hypothesis{
			DiseaseID:         m.Disease.ID,
			DiseaseName:       m.Disease.Name,
			MatchedPhenotypes: m.Matched,
			PhenotypeScore:    phenotypeMatchScore(len(m.Matched), len(codes), len(m.Disease.Phenotypes)),
		}
		for code := range m.Disease.Phenotypes {
			h.ExpectedPhenotypes = append(h.ExpectedPhenotypes, code)
		}
		for _, g := range m.Disease.Genes {
			h.AssociatedGenes = append(h.AssociatedGenes, g.Gene)
		}
		byDisease[h.DiseaseID] = h
		out = append(out, h)
	}
	return out, nil
}

// EvaluateHypothesis scores one hypothesis by recall/precision over its
// matched and expected phenotype lists.
func (a *PhenotypeAgent) EvaluateHypothesis(_ context.Context, h *dx.Hypothesis, _ []dx.EvidenceItem) (*Evaluation, error) {
	patientCount := len(h.MatchedPhenotypes) + len(h.MissingPhenotypes)
	if patientCount == 0 {
		patientCount = len(h.MatchedPhenotypes)
	}
	score := phenotypeMatchScore(len(h.MatchedPhenotypes), patientCount, len(h.ExpectedPhenotypes))
	return &Evaluation{
		HypothesisID: h.ID,
		Score:        score,
		Reasoning: fmt.Sprintf("%d of %d expected phenotypes present",
			len(h.MatchedPhenotypes), len(h.ExpectedPhenotypes)),
	}, nil
}

// Discriminator is one suggested phenotype to ask about, scored by how
// evenly it splits the leading hypotheses.
type Discriminator struct {
	Code  string
	Score float64
}

// SuggestDiscriminators scores candidate phenotypes across the top five
// hypotheses: a phenotype expected by about half of them splits the field
// best and scores near 1.
func (a *PhenotypeAgent) SuggestDiscriminators(hypotheses []*dx.Hypothesis, patientCodes []string, limit int) []Discriminator {
	top := hypotheses
	if len(top) > 5 {
		top = top[:5]
	}
	if len(top) == 0 {
		return nil
	}
	known := map[string]bool{}
	for _, code := range patientCodes {
		known[code] = true
	}

	counts := map[string]int{}
	for _, h := range top {
		for _, code := range h.ExpectedPhenotypes {
			if !known[code] {
				counts[code]++
			}
		}
	}
	out := make([]Discriminator, 0, len(counts))
	for code, n := range counts {
		fraction := float64(n) / float64(len(top))
		out = append(out, Discriminator{
			Code:  code,
			Score: 1 - abs(fraction-0.5)*2,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Code < out[j].Code
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (a *PhenotypeAgent) normalizeAll(inputs []string) []string {
	var codes []string
	seen := map[string]bool{}
	for _, in := range inputs {
		code, err := a.Normalize(in)
		if err != nil || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}

// ReceiveMessage answers analysis requests over the bus.
func (a *PhenotypeAgent) ReceiveMessage(ctx context.Context, m *Message) (*Message, error) {
	switch m.Type {
	case MsgRequest, MsgQuestion:
		code, err := a.Normalize(m.Content)
		if err != nil {
			return nil, err
		}
		return m.Reply("", a.Role(), MsgResponse, code, m.CreatedAt), nil
	default:
		return nil, nil
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
