package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forge-health/forge-core/pkg/validate"
)

func TestHPOCode(t *testing.T) {
	assert.NoError(t, validate.HPOCode("HP:0001250"))
	assert.Error(t, validate.HPOCode("HP:123"))
	assert.Error(t, validate.HPOCode("hp:0001250"))
	assert.Error(t, validate.HPOCode("MP:0001250"))
	assert.Error(t, validate.HPOCode(""))
}

func TestGeneSymbol(t *testing.T) {
	assert.NoError(t, validate.GeneSymbol("BRCA1"))
	assert.NoError(t, validate.GeneSymbol("HLA-DRB1"))
	assert.Error(t, validate.GeneSymbol("brca1"))
	assert.Error(t, validate.GeneSymbol("1ABC"))
	assert.Error(t, validate.GeneSymbol(""))
}

func TestDiseaseID(t *testing.T) {
	assert.NoError(t, validate.DiseaseID("OMIM:154700"))
	assert.NoError(t, validate.DiseaseID("ORPHA:558"))
	assert.NoError(t, validate.DiseaseID("MONDO:0007947"))
	assert.Error(t, validate.DiseaseID("OMIM:12"))
	assert.Error(t, validate.DiseaseID("DOID:1234"))
}

func TestNormalizeGeneSymbol(t *testing.T) {
	s, err := validate.NormalizeGeneSymbol("  fbn1 ")
	assert.NoError(t, err)
	assert.Equal(t, "FBN1", s)

	_, err = validate.NormalizeGeneSymbol("not a gene!")
	assert.Error(t, err)
}
