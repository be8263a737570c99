package session_test

import (
	"context"
	"sync"
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
	"github.com/forge-health/forge-core/pkg/session"
)

func testOntology() *ontology.Service {
	return ontology.New([]*ontology.Term{
		{ID: "HP:0000001", Name: "All"},
		{ID: "HP:0000118", Name: "Phenotypic abnormality", Parents: []string{"HP:0000001"}},
		{ID: "HP:0000707", Name: "Abnormality of the nervous system", Parents: []string{"HP:0000118"}},
		{ID: "HP:0001250", Name: "Seizure", Parents: []string{"HP:0000707"}},
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
			Phenotypes: map[string]float64{"HP:0001250": 0.95, "HP:0001249": 0.8, "HP:0002123": 0.6},
			Genes:      []graph.GeneAssociation{{Gene: "SCN1A", Inheritance: "autosomal_dominant"}},
		},
		{
			ID: "ORPHA:778", Name: "Rett syndrome", Prevalence: 0.00009,
			Phenotypes: map[string]float64{"HP:0001249": 0.9, "HP:0001263": 0.9},
			Genes:      []graph.GeneAssociation{{Gene: "MECP2", Inheritance: "x_linked"}},
		},
	}))
	return g
}

func testController(t *testing.T, cfg session.Config, clk clock.Clock) *session.Controller {
	t.Helper()
	engine := diagnosis.New(
		testOntology(),
		testGraph(t),
		bayes.NewScorer(bayes.Config{}),
		diagnosis.Config{},
		clk,
		&clock.SequenceSource{Prefix: "s"},
		nil,
	)
	return session.NewController(engine, cfg, clk, nil)
}

func drain(ch <-chan session.Event) []session.Event {
	var events []session.Event
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, evt)
		default:
			return events
		}
	}
}

func eventNames(events []session.Event) []session.EventType {
	out := make([]session.EventType, len(events))
	for i, e := range events {
		out[i] = e.Event
	}
	return out
}

func TestPauseForQuestionsAndResume(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	c := testController(t, session.Config{AutoAdvance: true, PauseForQuestions: true}, clk)
	defer c.Stop()

	s := c.CreateSession(nil)
	events, unsubscribe, err := c.StreamEvents(s.ID)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, c.StartDiagnosis(context.Background(), s.ID, diagnosis.Intake{
		Phenotypes: []string{"HP:0001250", "HP:0001249"},
	}))

	got := drain(events)
	assert.Equal(t, []session.EventType{
		session.EventIntakeComplete,
		session.EventHypothesesGenerated,
		session.EventScoringComplete,
		session.EventQuestionsReady,
		session.EventSessionPaused,
	}, eventNames(got))

	current, err := c.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, dx.StatePaused, current.State)
	require.NotEmpty(t, current.PendingQuestions)

	// Answer everything pending; the loop resumes and runs to completion.
	answers := map[string]string{}
	for _, q := range current.PendingQuestions {
		if q.Type == dx.QuestionBinary {
			answers[q.ID] = "yes"
		} else {
			answers[q.ID] = "no prior testing"
		}
	}
	require.NoError(t, c.AnswerQuestions(context.Background(), s.ID, answers))

	got = drain(events)
	names := eventNames(got)
	assert.Equal(t, session.EventSessionResumed, names[0])
	require.NotEmpty(t, names)
	last := got[len(got)-1]
	assert.Equal(t, session.EventSessionComplete, last.Event)
	assert.Equal(t, "Dravet syndrome", last.Data["primary_diagnosis"])

	// Terminal event closes the stream.
	_, open := <-events
	assert.False(t, open)
}

func TestSkipQuestionsCompletes(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	c := testController(t, session.Config{AutoAdvance: true, PauseForQuestions: true}, clk)
	defer c.Stop()

	var mu sync.Mutex
	var seen []session.EventType
	s := c.CreateSession(func(evt session.Event) {
		mu.Lock()
		seen = append(seen, evt.Event)
		mu.Unlock()
	})

	require.NoError(t, c.StartDiagnosis(context.Background(), s.ID, diagnosis.Intake{
		Phenotypes: []string{"HP:0001250"},
	}))
	require.NoError(t, c.SkipQuestions(s.ID))

	current, err := c.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, dx.StateComplete, current.State)
	assert.Empty(t, current.PendingQuestions)

	result, err := c.GetResult(context.Background(), s.ID)
	require.NoError(t, err)
	assert.NotNil(t, result.Primary)
}

func TestPauseResumeRouting(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	c := testController(t, session.Config{AutoAdvance: false}, clk)
	defer c.Stop()

	s := c.CreateSession(nil)
	require.NoError(t, c.StartDiagnosis(context.Background(), s.ID, diagnosis.Intake{
		Phenotypes: []string{"HP:0001250"},
	}))

	require.NoError(t, c.PauseSession(s.ID))
	current, _ := c.Session(s.ID)
	assert.Equal(t, dx.StatePaused, current.State)

	// Double pause conflicts.
	assert.Error(t, c.PauseSession(s.ID))

	// No pending questions: resume routes to refining.
	require.NoError(t, c.ResumeSession(context.Background(), s.ID))
	current, _ = c.Session(s.ID)
	assert.Equal(t, dx.StateRefining, current.State)
}

func TestDeleteSessionTwiceReturnsFalse(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	c := testController(t, session.Config{}, clk)
	defer c.Stop()

	s := c.CreateSession(nil)
	events, _, err := c.StreamEvents(s.ID)
	require.NoError(t, err)

	assert.True(t, c.DeleteSession(s.ID))
	assert.False(t, c.DeleteSession(s.ID))

	// Deletion closes subscriber channels.
	_, open := <-events
	assert.False(t, open)

	_, err = c.Session(s.ID)
	assert.Error(t, err)
}

func TestJanitorExpiresAndReaps(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	c := testController(t, session.Config{
		SessionTimeout: time.Hour,
		IdleTimeout:    30 * time.Minute,
	}, clk)
	defer c.Stop()

	var mu sync.Mutex
	var seen []session.EventType
	s := c.CreateSession(func(evt session.Event) {
		mu.Lock()
		seen = append(seen, evt.Event)
		mu.Unlock()
	})

	// 16 minutes idle: under the idle timeout, nothing happens.
	clk.Advance(16 * time.Minute)
	c.Tick()
	current, err := c.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, dx.StateIntake, current.State)

	// Past the idle timeout: expired, event emitted.
	clk.Advance(20 * time.Minute)
	c.Tick()
	current, err = c.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, dx.StateExpired, current.State)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == session.EventSessionExpired
	}, time.Second, 10*time.Millisecond)

	// A second tick emits nothing new.
	c.Tick()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, seen, 1)
	mu.Unlock()

	// One hour after expiry the session is reaped.
	clk.Advance(61 * time.Minute)
	c.Tick()
	_, err = c.Session(s.ID)
	assert.Error(t, err)
}

func TestJanitorReapsCompletedAfterRetention(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	c := testController(t, session.Config{AutoAdvance: true}, clk)
	defer c.Stop()

	s := c.CreateSession(nil)
	require.NoError(t, c.StartDiagnosis(context.Background(), s.ID, diagnosis.Intake{
		Phenotypes: []string{"HP:0001250"},
	}))
	require.NoError(t, c.SkipQuestions(s.ID))

	clk.Advance(2*time.Hour + time.Minute)
	c.Tick()
	_, err := c.Session(s.ID)
	assert.Error(t, err)
}

func TestAnswerQuestionsSerializes(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	c := testController(t, session.Config{AutoAdvance: true, PauseForQuestions: true}, clk)
	defer c.Stop()

	s := c.CreateSession(nil)
	require.NoError(t, c.StartDiagnosis(context.Background(), s.ID, diagnosis.Intake{
		Phenotypes: []string{"HP:0001250", "HP:0001249"},
	}))
	current, err := c.Session(s.ID)
	require.NoError(t, err)
	require.NotEmpty(t, current.PendingQuestions)
	target := current.PendingQuestions[0].ID

	// Concurrent answers to the same question: exactly one succeeds in
	// consuming it; the other observes it gone and surfaces an error
	// event, never a double-application.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.AnswerQuestions(context.Background(), s.ID, map[string]string{target: "yes"})
		}()
	}
	wg.Wait()

	final, err := c.Session(s.ID)
	require.NoError(t, err)
	answered := 0
	for _, q := range final.AnsweredQuestions {
		if q.ID == target {
			answered++
		}
	}
	assert.Equal(t, 1, answered)
}
