package aigov_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/aigov"
	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

type memStore struct {
	systems   map[string]*aigov.SystemRegistration // name@version
	decisions map[string]*aigov.DecisionLog
}

func newMemStore() *memStore {
	return &memStore{
		systems:   map[string]*aigov.SystemRegistration{},
		decisions: map[string]*aigov.DecisionLog{},
	}
}

func (m *memStore) SaveAISystem(_ context.Context, r *aigov.SystemRegistration) error {
	cp := *r
	m.systems[r.Name+"@"+r.Version] = &cp
	return nil
}

func (m *memStore) FindAISystem(_ context.Context, name, version string) (*aigov.SystemRegistration, error) {
	r, ok := m.systems[name+"@"+version]
	if !ok {
		return nil, fault.NotFoundf("ai system %s@%s", name, version)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) SaveAIDecision(_ context.Context, d *aigov.DecisionLog) error {
	cp := *d
	m.decisions[d.ID] = &cp
	return nil
}

func (m *memStore) GetAIDecision(_ context.Context, id string) (*aigov.DecisionLog, error) {
	d, ok := m.decisions[id]
	if !ok {
		return nil, fault.NotFoundf("ai decision %s", id)
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) ListAIDecisionsBySystem(_ context.Context, systemID string) ([]*aigov.DecisionLog, error) {
	var out []*aigov.DecisionLog
	for _, d := range m.decisions {
		if d.SystemID == systemID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newService() *aigov.Service {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return aigov.NewService(newMemStore(), fc, &clock.SequenceSource{Prefix: "ai"})
}

func TestRegister_ValidatesSemver(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	r, err := svc.Register(ctx, aigov.SystemRegistration{
		Name:    "diagnostic-engine",
		Version: "1.2.3",
		Risk:    aigov.RiskHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", r.Version)

	_, err = svc.Register(ctx, aigov.SystemRegistration{Name: "diagnostic-engine", Version: "not-a-version"})
	assert.ErrorIs(t, err, fault.ErrValidation)
}

func TestRegister_RejectsDuplicateVersion(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, aigov.SystemRegistration{Name: "engine", Version: "2.0.0"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, aigov.SystemRegistration{Name: "engine", Version: "2.0.0"})
	assert.ErrorIs(t, err, fault.ErrConflict)

	// A different version of the same system is fine.
	_, err = svc.Register(ctx, aigov.SystemRegistration{Name: "engine", Version: "2.0.1"})
	assert.NoError(t, err)
}

func TestRecordReview_PatchesOnlyReviewFields(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	d, err := svc.LogDecision(ctx, aigov.DecisionLog{
		SystemID:       "ai-1",
		ModelVersion:   "1.0.0",
		Outcome:        "flagged",
		Confidence:     0.82,
		ReasoningChain: []string{"step one", "step two"},
	})
	require.NoError(t, err)
	assert.False(t, d.HumanReviewed)

	reviewed, err := svc.RecordReview(ctx, d.ID, "reviewer-1", "confirmed", true)
	require.NoError(t, err)
	assert.True(t, reviewed.HumanReviewed)
	assert.True(t, reviewed.HumanOverride)
	assert.Equal(t, "flagged", reviewed.Outcome)
	assert.Equal(t, []string{"step one", "step two"}, reviewed.ReasoningChain)
}
