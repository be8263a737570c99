package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/graph"
)

func seeded(t *testing.T) *graph.Memory {
	t.Helper()
	m := graph.NewMemory()
	err := m.UpsertDiseases(context.Background(), []*graph.Disease{
		{
			ID: "OMIM:154700", Name: "Marfan syndrome", Prevalence: 0.0002,
			Phenotypes: map[string]float64{"HP:0001166": 0.9, "HP:0000545": 0.6, "HP:0001519": 0.8},
			Genes:      []graph.GeneAssociation{{Gene: "FBN1", Inheritance: "autosomal_dominant"}},
		},
		{
			ID: "OMIM:219700", Name: "Cystic fibrosis", Prevalence: 0.0003,
			Phenotypes: map[string]float64{"HP:0002205": 0.9, "HP:0001508": 0.7},
			Genes:      []graph.GeneAssociation{{Gene: "CFTR", Inheritance: "autosomal_recessive"}},
		},
	})
	require.NoError(t, err)
	return m
}

func TestDiseasesByPhenotypes(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	matches, err := m.DiseasesByPhenotypes(ctx, []string{"HP:0001166", "HP:0000545", "HP:0002205"}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "OMIM:154700", matches[0].Disease.ID)
	assert.ElementsMatch(t, []string{"HP:0001166", "HP:0000545"}, matches[0].Matched)

	// Lower threshold admits the single-phenotype overlap too.
	matches, err = m.DiseasesByPhenotypes(ctx, []string{"HP:0001166", "HP:0002205"}, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestDiseasesByGene(t *testing.T) {
	m := seeded(t)
	ds, err := m.DiseasesByGene(context.Background(), "CFTR")
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "Cystic fibrosis", ds[0].Name)
	assert.True(t, ds[0].Genes[0].Recessive())

	none, err := m.DiseasesByGene(context.Background(), "TP53")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsertReplacesGeneLinks(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	err := m.UpsertDiseases(ctx, []*graph.Disease{{
		ID: "OMIM:154700", Name: "Marfan syndrome",
		Phenotypes: map[string]float64{"HP:0001166": 0.9},
		Genes:      []graph.GeneAssociation{{Gene: "TGFBR2", Inheritance: "autosomal_dominant"}},
	}})
	require.NoError(t, err)

	old, err := m.DiseasesByGene(ctx, "FBN1")
	require.NoError(t, err)
	assert.Empty(t, old)

	renamed, err := m.DiseasesByGene(ctx, "TGFBR2")
	require.NoError(t, err)
	assert.Len(t, renamed, 1)
}
