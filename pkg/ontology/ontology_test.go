package ontology_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/ontology"
)

const sampleOBO = `format-version: 1.2

[Term]
id: HP:0000001
name: All

[Term]
id: HP:0000118
name: Phenotypic abnormality
is_a: HP:0000001

[Term]
id: HP:0000707
name: Abnormality of the nervous system
is_a: HP:0000118

[Term]
id: HP:0001250
name: Seizure
def: "Abnormal excessive neuronal activity." [HPO:probinson]
synonym: "Epileptic seizure" EXACT []
is_a: HP:0000707

[Term]
id: HP:0002123
name: Generalized myoclonic seizure
is_a: HP:0001250

[Term]
id: HP:0001263
name: Global developmental delay
synonym: "Developmental delay" EXACT []
is_a: HP:0000707

[Term]
id: HP:0009999
name: Obsolete thing
is_obsolete: true

[Typedef]
id: part_of
name: part of
`

func load(t *testing.T) *ontology.Service {
	t.Helper()
	svc, err := ontology.ParseOBO(strings.NewReader(sampleOBO))
	require.NoError(t, err)
	return svc
}

func TestParseOBO(t *testing.T) {
	svc := load(t)
	assert.Equal(t, 7, svc.Len())

	term, err := svc.Lookup("HP:0001250")
	require.NoError(t, err)
	assert.Equal(t, "Seizure", term.Name)
	assert.Equal(t, "Abnormal excessive neuronal activity.", term.Definition)
	assert.Equal(t, []string{"Epileptic seizure"}, term.Synonyms)
	assert.Equal(t, []string{"HP:0000707"}, term.Parents)

	_, err = svc.Lookup("HP:0000000")
	assert.Error(t, err)
}

func TestResolve_SynonymAndSearch(t *testing.T) {
	svc := load(t)

	// Exact name, case-insensitive.
	term, err := svc.Resolve("seizure")
	require.NoError(t, err)
	assert.Equal(t, "HP:0001250", term.ID)

	// Synonym.
	term, err = svc.Resolve("Developmental Delay")
	require.NoError(t, err)
	assert.Equal(t, "HP:0001263", term.ID)

	// Free text falls through to search.
	term, err = svc.Resolve("myoclonic seizure")
	require.NoError(t, err)
	assert.Equal(t, "HP:0002123", term.ID)

	_, err = svc.Resolve("completely unrelated words")
	assert.Error(t, err)
}

func TestAncestorsAndDescendants(t *testing.T) {
	svc := load(t)

	anc, err := svc.Ancestors("HP:0002123", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"HP:0001250", "HP:0000707", "HP:0000118", "HP:0000001"}, anc)

	// Bounded depth stops the walk.
	anc, err = svc.Ancestors("HP:0002123", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"HP:0001250"}, anc)

	desc, err := svc.Descendants("HP:0000707", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"HP:0001250", "HP:0002123", "HP:0001263"}, desc)
}

func TestSimilarity(t *testing.T) {
	svc := load(t)

	same, err := svc.Similarity("HP:0001250", "HP:0001250")
	require.NoError(t, err)
	assert.Equal(t, 1.0, same)

	// Sibling phenotypes share the nervous-system lineage.
	siblings, err := svc.Similarity("HP:0001250", "HP:0001263")
	require.NoError(t, err)
	assert.Greater(t, siblings, 0.0)
	assert.Less(t, siblings, 1.0)

	// Parent/child are closer than siblings.
	parentChild, err := svc.Similarity("HP:0001250", "HP:0002123")
	require.NoError(t, err)
	assert.Greater(t, parentChild, siblings)
}

func TestTopLevelBranch(t *testing.T) {
	svc := load(t)

	branch, err := svc.TopLevelBranch("HP:0002123")
	require.NoError(t, err)
	assert.Equal(t, "HP:0000707", branch)

	branch, err = svc.TopLevelBranch("HP:0000707")
	require.NoError(t, err)
	assert.Equal(t, "HP:0000707", branch)
}

func TestSearch_NormalizesToTopScore(t *testing.T) {
	svc := load(t)

	results := svc.Search("seizure", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "HP:0001250", results[0].Term.ID)
	for _, r := range results[1:] {
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearch_IgnoresObsoleteAndDiacritics(t *testing.T) {
	svc := load(t)

	for _, r := range svc.Search("thing", 10) {
		assert.NotEqual(t, "HP:0009999", r.Term.ID)
	}

	results := svc.Search("séizure", 1)
	require.NotEmpty(t, results)
	assert.Equal(t, "HP:0001250", results[0].Term.ID)
}
