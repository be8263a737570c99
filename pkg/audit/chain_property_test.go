package audit_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/forge-health/forge-core/pkg/audit"
	"github.com/forge-health/forge-core/pkg/clock"
)

// Property: any sequence of appended events yields a verifiable chain, and
// dropping any single interior event breaks verification.
func TestChainProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	categories := []audit.Category{
		audit.CategoryDataAccess,
		audit.CategoryAuthentication,
		audit.CategoryDSAR,
		audit.CategoryBreachResponse,
	}

	buildLog := func(actions []string) *audit.Log {
		fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
		log := audit.NewLog(audit.WithClock(fc), audit.WithIDSource(&clock.SequenceSource{Prefix: "p"}))
		for i, a := range actions {
			fc.Advance(time.Second)
			_, _ = log.Append(audit.Event{
				Category: categories[i%len(categories)],
				Actor:    "actor",
				Action:   a,
				Success:  true,
			})
		}
		return log
	}

	properties.Property("appended chains always verify", prop.ForAll(
		func(actions []string) bool {
			ok, n := buildLog(actions).Verify()
			return ok && n == len(actions)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	// Dropping the final event leaves a valid prefix, so only earlier
	// positions are expected to break the chain.
	properties.Property("dropping any non-final event breaks the chain", prop.ForAll(
		func(actions []string, drop int) bool {
			if len(actions) < 2 {
				return true
			}
			events := buildLog(actions).Events()
			victim := drop % (len(events) - 1)
			mutated := append(append([]*audit.Event{}, events[:victim]...), events[victim+1:]...)
			ok, _ := audit.VerifyChain(mutated)
			return !ok
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}
