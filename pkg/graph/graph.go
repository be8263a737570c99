// Package graph defines the knowledge-graph capability the diagnostic
// agents query: disease-phenotype and disease-gene associations. The
// interface is dialect-agnostic; the in-memory store is the reference
// implementation and the test double.
package graph

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/forge-health/forge-core/pkg/fault"
)

// GeneAssociation links a disease to a gene with its inheritance mode.
type GeneAssociation struct {
	Gene        string `json:"gene"`
	Inheritance string `json:"inheritance"` // e.g. autosomal_recessive, autosomal_dominant, x_linked
}

// Recessive reports whether the association follows a recessive pattern.
func (a GeneAssociation) Recessive() bool {
	return strings.Contains(strings.ToLower(a.Inheritance), "recessive")
}

// Disease is one knowledge-graph disease node with its expected phenotype
// frequencies and associated genes.
type Disease struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Prevalence float64            `json:"prevalence"`
	Phenotypes map[string]float64 `json:"phenotypes"` // HPO id -> frequency in affected patients
	Genes      []GeneAssociation  `json:"genes"`
}

// HasGene reports whether the disease is associated with the gene.
func (d *Disease) HasGene(gene string) bool {
	for _, g := range d.Genes {
		if g.Gene == gene {
			return true
		}
	}
	return false
}

// Match is one phenotype-intersection query hit.
type Match struct {
	Disease *Disease
	Matched []string // patient phenotypes present in the disease's expected set
}

// Store is the capability the agents depend on. Upserts are batch
// MERGE-style: existing nodes are replaced by id, new ones created.
type Store interface {
	Disease(ctx context.Context, id string) (*Disease, error)
	DiseasesByPhenotypes(ctx context.Context, codes []string, minMatches int) ([]Match, error)
	DiseasesByGene(ctx context.Context, gene string) ([]*Disease, error)
	UpsertDiseases(ctx context.Context, diseases []*Disease) error
	Close() error
}

// Memory is the in-memory Store.
type Memory struct {
	mu       sync.RWMutex
	diseases map[string]*Disease
	byGene   map[string][]string
}

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{diseases: map[string]*Disease{}, byGene: map[string][]string{}}
}

// Disease loads one disease node.
func (m *Memory) Disease(_ context.Context, id string) (*Disease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.diseases[id]
	if !ok {
		return nil, fault.NotFoundf("disease %s", id)
	}
	return d, nil
}

// DiseasesByPhenotypes returns diseases whose expected phenotype set
// intersects the query in at least minMatches terms, best matches first.
func (m *Memory) DiseasesByPhenotypes(_ context.Context, codes []string, minMatches int) ([]Match, error) {
	if minMatches < 1 {
		minMatches = 1
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Match
	for _, d := range m.diseases {
		var matched []string
		for _, code := range codes {
			if _, ok := d.Phenotypes[code]; ok {
				matched = append(matched, code)
			}
		}
		if len(matched) >= minMatches {
			out = append(out, Match{Disease: d, Matched: matched})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Matched) != len(out[j].Matched) {
			return len(out[i].Matched) > len(out[j].Matched)
		}
		return out[i].Disease.ID < out[j].Disease.ID
	})
	return out, nil
}

// DiseasesByGene returns diseases associated with the gene.
func (m *Memory) DiseasesByGene(_ context.Context, gene string) ([]*Disease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byGene[gene]
	out := make([]*Disease, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.diseases[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// UpsertDiseases merges a batch by disease id.
func (m *Memory) UpsertDiseases(_ context.Context, diseases []*Disease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range diseases {
		if d.ID == "" {
			return fault.Validationf("disease upsert requires an id")
		}
		if old, ok := m.diseases[d.ID]; ok {
			m.removeGeneLinks(old)
		}
		m.diseases[d.ID] = d
		for _, g := range d.Genes {
			m.byGene[g.Gene] = append(m.byGene[g.Gene], d.ID)
		}
	}
	return nil
}

func (m *Memory) removeGeneLinks(d *Disease) {
	for _, g := range d.Genes {
		ids := m.byGene[g.Gene]
		for i, id := range ids {
			if id == d.ID {
				m.byGene[g.Gene] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// Close satisfies Store; the in-memory graph has nothing to release.
func (m *Memory) Close() error { return nil }
