package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/forge-health/forge-core/pkg/bayes"
	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/graph"
)

// GeneticAgent classifies variants, maps genes to diseases through the
// knowledge graph, and flags compound heterozygosity.
type GeneticAgent struct {
	graph graph.Store
}

// NewGeneticAgent creates the agent.
func NewGeneticAgent(g graph.Store) *GeneticAgent {
	return &GeneticAgent{graph: g}
}

func (a *GeneticAgent) Role() string { return RoleGenetic }

// GeneticScore folds variant likelihood ratios into a single bounded
// score: logistic(log(Π LR)/3), within [0.01, 0.99].
func GeneticScore(variants []dx.Variant) float64 {
	product := 1.0
	for _, v := range variants {
		product *= bayes.PathogenicityLR(v.Pathogenicity)
	}
	score := 1 / (1 + math.Exp(-math.Log(product)/3))
	if score < 0.01 {
		return 0.01
	}
	if score > 0.99 {
		return 0.99
	}
	return score
}

// CompoundHet reports the genes with at least two patient variants that
// are associated with a recessive disease.
func (a *GeneticAgent) CompoundHet(ctx context.Context, variants []dx.Variant) ([]string, error) {
	byGene := map[string]int{}
	for _, v := range variants {
		byGene[v.Gene]++
	}
	var out []string
	for gene, n := range byGene {
		if n < 2 {
			continue
		}
		diseases, err := a.graph.DiseasesByGene(ctx, gene)
		if err != nil {
			return nil, fmt.Errorf("gene graph query: %w", err)
		}
		for _, d := range diseases {
			if hasRecessiveGene(d, gene) {
				out = append(out, gene)
				break
			}
		}
	}
	return out, nil
}

func hasRecessiveGene(d *graph.Disease, gene string) bool {
	for _, g := range d.Genes {
		if g.Gene == gene && g.Recessive() {
			return true
		}
	}
	return false
}

// Analyze classifies the patient's variants and reports the implicated
// diseases.
func (a *GeneticAgent) Analyze(ctx context.Context, patient *dx.PatientProfile) (*Analysis, error) {
	if len(patient.Variants) == 0 {
		return &Analysis{Role: a.Role(), Summary: "no variants reported", Score: 0.5}, nil
	}

	classified := make([]map[string]any, 0, len(patient.Variants))
	implicated := map[string]string{}
	for _, v := range patient.Variants {
		classified = append(classified, map[string]any{
			"gene":             v.Gene,
			"pathogenicity":    v.Pathogenicity,
			"likelihood_ratio": bayes.PathogenicityLR(v.Pathogenicity),
		})
		diseases, err := a.graph.DiseasesByGene(ctx, v.Gene)
		if err != nil {
			return nil, fmt.Errorf("gene graph query: %w", err)
		}
		for _, d := range diseases {
			implicated[d.ID] = d.Name
		}
	}
	compound, err := a.CompoundHet(ctx, patient.Variants)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Role:    a.Role(),
		Summary: fmt.Sprintf("%d variants implicate %d diseases", len(patient.Variants), len(implicated)),
		Score:   GeneticScore(patient.Variants),
		Findings: map[string]any{
			"variants":            classified,
			"implicated_diseases": implicated,
			"compound_het_genes":  compound,
		},
	}, nil
}

// GenerateHypotheses adds gene-derived candidates, merging on disease id.
func (a *GeneticAgent) GenerateHypotheses(ctx context.Context, patient *dx.PatientProfile, existing []*dx.Hypothesis) ([]*dx.Hypothesis, error) {
	byDisease := map[string]*dx.Hypothesis{}
	out := append([]*dx.Hypothesis{}, existing...)
	for _, h := range existing {
		byDisease[h.DiseaseID] = h
	}
	for _, v := range patient.Variants {
		diseases, err := a.graph.DiseasesByGene(ctx, v.Gene)
		if err != nil {
			return nil, fmt.Errorf("gene graph query: %w", err)
		}
		for _, d := range diseases {
			if h, ok := byDisease[d.ID]; ok {
				if !contains(h.AssociatedGenes, v.Gene) {
					h.AssociatedGenes = append(h.AssociatedGenes, v.Gene)
				}
				continue
			}
			h := &dx.Hypothesis{
				DiseaseID:       d.ID,
				DiseaseName:     d.Name,
				AssociatedGenes: []string{v.Gene},
				GeneticScore:    GeneticScore([]dx.Variant{v}),
			}
			for code := range d.Phenotypes {
				h.ExpectedPhenotypes = append(h.ExpectedPhenotypes, code)
			}
			byDisease[d.ID] = h
			out = append(out, h)
		}
	}
	return out, nil
}

// EvaluateHypothesis scores one hypothesis by the variants that fall in
// its associated genes.
func (a *GeneticAgent) EvaluateHypothesis(_ context.Context, h *dx.Hypothesis, evidence []dx.EvidenceItem) (*Evaluation, error) {
	var relevant []dx.Variant
	for _, e := range evidence {
		if e.Type != dx.EvidenceGenetic || e.Negated {
			continue
		}
		gene, pathogenicity, ok := parseGeneticEvidence(e)
		if !ok || !contains(h.AssociatedGenes, gene) {
			continue
		}
		relevant = append(relevant, dx.Variant{Gene: gene, Pathogenicity: pathogenicity})
	}
	if len(relevant) == 0 {
		return &Evaluation{HypothesisID: h.ID, Score: 0.5, Reasoning: "no variants in associated genes"}, nil
	}
	return &Evaluation{
		HypothesisID: h.ID,
		Score:        GeneticScore(relevant),
		Reasoning:    fmt.Sprintf("%d variants in associated genes", len(relevant)),
	}, nil
}

// parseGeneticEvidence reads "GENE:classification" evidence values.
func parseGeneticEvidence(e dx.EvidenceItem) (gene, pathogenicity string, ok bool) {
	if e.Code != "" {
		gene = e.Code
	}
	parts := strings.SplitN(e.Value, ":", 2)
	if gene == "" {
		gene = strings.TrimSpace(parts[0])
	}
	if len(parts) == 2 {
		pathogenicity = strings.TrimSpace(parts[1])
	}
	return gene, pathogenicity, gene != ""
}

// ReceiveMessage answers gene lookup requests over the bus.
func (a *GeneticAgent) ReceiveMessage(ctx context.Context, m *Message) (*Message, error) {
	switch m.Type {
	case MsgRequest:
		diseases, err := a.graph.DiseasesByGene(ctx, strings.TrimSpace(m.Content))
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(diseases))
		for _, d := range diseases {
			names = append(names, d.ID)
		}
		return m.Reply("", a.Role(), MsgResponse, strings.Join(names, ","), m.CreatedAt), nil
	default:
		return nil, nil
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
