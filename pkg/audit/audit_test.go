package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/audit"
	"github.com/forge-health/forge-core/pkg/clock"
)

func newLog() *audit.Log {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return audit.NewLog(audit.WithClock(fc), audit.WithIDSource(&clock.SequenceSource{Prefix: "evt"}))
}

func TestLog_ChainVerifies(t *testing.T) {
	log := newLog()
	for i := 0; i < 10; i++ {
		_, err := log.Append(audit.Event{
			Category:  audit.CategoryDataAccess,
			EventType: "read",
			Actor:     "user-1",
			Entity:    "patient_record",
			Action:    "read_patient_data",
			Success:   true,
			Risk:      audit.RiskLow,
		})
		require.NoError(t, err)
	}

	ok, n := log.Verify()
	assert.True(t, ok)
	assert.Equal(t, 10, n)
}

func TestLog_FirstEventHasEmptyPreviousHash(t *testing.T) {
	log := newLog()
	e, err := log.Append(audit.Event{Category: audit.CategoryAuthentication, Action: "login"})
	require.NoError(t, err)
	assert.Empty(t, e.PreviousHash)
	assert.NotEmpty(t, e.Hash)
}

func TestVerifyChain_DetectsRemoval(t *testing.T) {
	log := newLog()
	for i := 0; i < 5; i++ {
		_, err := log.Append(audit.Event{Category: audit.CategoryDSAR, Action: "update"})
		require.NoError(t, err)
	}
	events := log.Events()

	// Removing any single event (other than the final one, which leaves a
	// valid prefix) breaks the chain at some position.
	for victim := 0; victim < len(events)-1; victim++ {
		mutated := make([]*audit.Event, 0, len(events)-1)
		mutated = append(mutated, events[:victim]...)
		mutated = append(mutated, events[victim+1:]...)
		ok, pos := audit.VerifyChain(mutated)
		assert.False(t, ok, "removal of event %d must break the chain", victim)
		assert.GreaterOrEqual(t, pos, 0)
	}
}

func TestVerifyChain_DetectsTamper(t *testing.T) {
	log := newLog()
	for i := 0; i < 3; i++ {
		_, err := log.Append(audit.Event{Category: audit.CategoryBreachResponse, Action: "notify"})
		require.NoError(t, err)
	}
	events := log.Events()
	tampered := *events[1]
	tampered.Action = "suppress"
	events[1] = &tampered

	ok, pos := audit.VerifyChain(events)
	assert.False(t, ok)
	assert.Equal(t, 1, pos)
}

func TestLog_ExportBundle(t *testing.T) {
	log := newLog()
	for i := 0; i < 4; i++ {
		_, err := log.Append(audit.Event{Category: audit.CategoryDSAR, Actor: "officer-1", Action: "verify"})
		require.NoError(t, err)
	}
	_, err := log.Append(audit.Event{Category: audit.CategoryDataAccess, Actor: "user-2", Action: "read"})
	require.NoError(t, err)

	bundle, err := log.ExportBundle(audit.Filter{Category: audit.CategoryDSAR})
	require.NoError(t, err)
	assert.Equal(t, 4, bundle.EntryCount)
	assert.NotEmpty(t, bundle.BundleHash)
}

func TestLog_RestoreRejectsCorruptChain(t *testing.T) {
	log := newLog()
	for i := 0; i < 3; i++ {
		_, err := log.Append(audit.Event{Category: audit.CategoryConfiguration, Action: "update"})
		require.NoError(t, err)
	}
	events := log.Events()
	events[2].PreviousHash = "bogus"

	fresh := audit.NewLog()
	assert.Error(t, fresh.Restore(events))
}
