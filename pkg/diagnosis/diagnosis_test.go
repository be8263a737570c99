package diagnosis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/bayes"
	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/diagnosis"
	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/graph"
	"github.com/forge-health/forge-core/pkg/ontology"
)

func testOntology() *ontology.Service {
	return ontology.New([]*ontology.Term{
		{ID: "HP:0000001", Name: "All"},
		{ID: "HP:0000118", Name: "Phenotypic abnormality", Parents: []string{"HP:0000001"}},
		{ID: "HP:0000707", Name: "Abnormality of the nervous system", Parents: []string{"HP:0000118"}},
		{ID: "HP:0001250", Name: "Seizure", Synonyms: []string{"Epileptic seizure"}, Parents: []string{"HP:0000707"}},
		{ID: "HP:0001249", Name: "Intellectual disability", Parents: []string{"HP:0000707"}},
		{ID: "HP:0001263", Name: "Global developmental delay", Parents: []string{"HP:0000707"}},
		{ID: "HP:0002123", Name: "Generalized myoclonic seizure", Parents: []string{"HP:0001250"}},
	})
}

func testGraph(t *testing.T) graph.Store {
	t.Helper()
	g := graph.NewMemory()
	require.NoError(t, g.UpsertDiseases(context.Background(), []*graph.Disease{
		{
			ID: "OMIM:607208", Name: "Dravet syndrome", Prevalence: 0.00005,
			Phenotypes: map[string]float64{
				"HP:0001250": 0.95,
				"HP:0001249": 0.8,
				"HP:0002123": 0.6,
			},
			Genes: []graph.GeneAssociation{{Gene: "SCN1A", Inheritance: "autosomal_dominant"}},
		},
		{
			ID: "ORPHA:778", Name: "Rett syndrome", Prevalence: 0.00009,
			Phenotypes: map[string]float64{
				"HP:0001249": 0.9,
				"HP:0001263": 0.9,
			},
			Genes: []graph.GeneAssociation{{Gene: "MECP2", Inheritance: "x_linked"}},
		},
	}))
	return g
}

func testEngine(t *testing.T) *diagnosis.Engine {
	t.Helper()
	return diagnosis.New(
		testOntology(),
		testGraph(t),
		bayes.NewScorer(bayes.Config{}),
		diagnosis.Config{},
		clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		&clock.SequenceSource{Prefix: "dx"},
		nil,
	)
}

func TestProcessIntake_NormalizesAndNegates(t *testing.T) {
	e := testEngine(t)
	s := e.CreateSession(time.Hour)
	assert.Equal(t, dx.StateIntake, s.State)

	err := e.ProcessIntake(context.Background(), s, diagnosis.Intake{
		Phenotypes: []string{
			"HP:0001250",
			"intellectual disability", // free text
			"NOT:global developmental delay",
			"-HP:0002123",
			"no such symptom anywhere", // skipped
		},
		History:       []string{"frequent infections", "NOT:diabetes"},
		FamilyHistory: []string{"maternal aunt with seizures"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"HP:0001250", "HP:0001249"}, s.Patient.Phenotypes)
	assert.Equal(t, []string{"HP:0001263", "HP:0002123"}, s.Patient.NegatedPhenotypes)
	assert.Equal(t, []string{"frequent infections"}, s.Patient.History)
	assert.Equal(t, []string{"diabetes"}, s.Patient.NegatedHistory)
	assert.Equal(t, dx.StateAnalyzing, s.State)

	// One evidence item per accepted input.
	assert.Len(t, s.Evidence, 7)
}

func TestProcessIntake_RejectedOutsideIntakeState(t *testing.T) {
	e := testEngine(t)
	s := e.CreateSession(time.Hour)
	s.State = dx.StateComplete

	err := e.ProcessIntake(context.Background(), s, diagnosis.Intake{})
	assert.Error(t, err)
}

func TestHappyPath_IntakeToQuestionsToRefinement(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s := e.CreateSession(time.Hour)

	require.NoError(t, e.ProcessIntake(ctx, s, diagnosis.Intake{
		Phenotypes: []string{"HP:0001250", "HP:0001249"},
	}))
	require.NoError(t, e.GenerateHypotheses(ctx, s))

	var dravet *dx.Hypothesis
	for _, h := range s.Hypotheses {
		if h.DiseaseID == "OMIM:607208" {
			dravet = h
		}
	}
	require.NotNil(t, dravet)
	assert.ElementsMatch(t, []string{"HP:0001250", "HP:0001249"}, dravet.MatchedPhenotypes)

	require.NoError(t, e.ScoreHypotheses(ctx, s))
	assert.Equal(t, dx.StateQuestioning, s.State)
	require.NotEmpty(t, s.TopHypotheses)

	top := s.TopHypotheses[0]
	assert.Equal(t, "OMIM:607208", top.DiseaseID)
	assert.GreaterOrEqual(t, top.CombinedScore, 0.5)

	// Ordering and rank invariant.
	for i, h := range s.Hypotheses {
		assert.Equal(t, i+1, h.Rank)
		if i > 0 {
			assert.LessOrEqual(t, h.CombinedScore, s.Hypotheses[i-1].CombinedScore)
		}
	}

	require.NoError(t, e.GenerateQuestions(ctx, s))
	require.NotEmpty(t, s.PendingQuestions)
	assert.LessOrEqual(t, len(s.PendingQuestions), 4) // 3 phenotype + 1 genetic
	for _, q := range s.PendingQuestions {
		assert.GreaterOrEqual(t, q.InformationGain, e.MinInformationGain())
	}
	assert.Equal(t, 1, s.Iterations)

	// No variants on file and candidate genes exist: one genetic question.
	var genetic *dx.FollowUpQuestion
	for _, q := range s.PendingQuestions {
		if q.Type == dx.QuestionFreeText {
			genetic = q
		}
	}
	require.NotNil(t, genetic)
	assert.Contains(t, genetic.Text, "SCN1A")

	priorScore := top.CombinedScore
	first := s.PendingQuestions[0]
	require.Equal(t, dx.QuestionBinary, first.Type)
	require.NoError(t, e.AnswerQuestion(ctx, s, first.ID, "yes"))

	assert.GreaterOrEqual(t, s.Hypotheses[0].CombinedScore, priorScore)
	assert.Len(t, s.AnsweredQuestions, 1)
	assert.NotNil(t, s.AnsweredQuestions[0].AnsweredAt)
}

func TestAnswerQuestion_NoNegatesPhenotype(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s := e.CreateSession(time.Hour)

	require.NoError(t, e.ProcessIntake(ctx, s, diagnosis.Intake{
		Phenotypes: []string{"HP:0001249"},
	}))
	require.NoError(t, e.GenerateHypotheses(ctx, s))
	require.NoError(t, e.ScoreHypotheses(ctx, s))
	require.NoError(t, e.GenerateQuestions(ctx, s))
	require.NotEmpty(t, s.PendingQuestions)

	q := s.PendingQuestions[0]
	require.NoError(t, e.AnswerQuestion(ctx, s, q.ID, "no"))

	assert.Contains(t, s.Patient.NegatedPhenotypes, q.TargetPhenotype)
	negated := s.Evidence[len(s.Evidence)-1]
	assert.True(t, negated.Negated)
	assert.Equal(t, q.TargetPhenotype, negated.Code)
}

func TestAnswerQuestion_UnknownIDNotFound(t *testing.T) {
	e := testEngine(t)
	s := e.CreateSession(time.Hour)
	err := e.AnswerQuestion(context.Background(), s, "missing", "yes")
	assert.Error(t, err)
}

func TestScoreHypotheses_CompletesAtConfidenceThreshold(t *testing.T) {
	e := diagnosis.New(
		testOntology(),
		testGraph(t),
		bayes.NewScorer(bayes.Config{}),
		diagnosis.Config{ConfidenceThreshold: 0.5},
		clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		&clock.SequenceSource{Prefix: "dx"},
		nil,
	)
	ctx := context.Background()
	s := e.CreateSession(time.Hour)

	require.NoError(t, e.ProcessIntake(ctx, s, diagnosis.Intake{
		Phenotypes: []string{"HP:0001250", "HP:0001249", "HP:0002123"},
	}))
	require.NoError(t, e.GenerateHypotheses(ctx, s))
	require.NoError(t, e.ScoreHypotheses(ctx, s))

	assert.Equal(t, dx.StateComplete, s.State)
}

func TestFinalizeSession(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s := e.CreateSession(time.Hour)

	require.NoError(t, e.ProcessIntake(ctx, s, diagnosis.Intake{
		Phenotypes:    []string{"HP:0001250", "HP:0001249"},
		FamilyHistory: []string{"maternal aunt with seizures"},
	}))
	require.NoError(t, e.GenerateHypotheses(ctx, s))
	require.NoError(t, e.ScoreHypotheses(ctx, s))

	result := e.FinalizeSession(ctx, s)
	require.NotNil(t, result.Primary)
	assert.Equal(t, "OMIM:607208", result.Primary.DiseaseID)
	assert.NotEmpty(t, result.Differential)
	assert.LessOrEqual(t, len(result.Differential), 10)
	assert.NotEmpty(t, result.EvidenceStrength)

	assert.Contains(t, result.KeyFindings, "family history: maternal aunt with seizures")

	// SCN1A has no variant evidence: genetic confirmation is recommended.
	foundGeneTest := false
	for _, test := range result.RecommendedTests {
		if strings.Contains(test, "SCN1A") {
			foundGeneTest = true
		}
	}
	assert.True(t, foundGeneTest)
}
