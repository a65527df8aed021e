package engine_test

import (
	"context"
	"fmt"
	"github.com/pkok/behavior-engine/pkg/curve"
	"github.com/pkok/behavior-engine/pkg/decision"
	"github.com/pkok/behavior-engine/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"testing"
)

func value(v float64) decision.Sensor {
	return func(ctx context.Context) float64 {
		return v
	}
}

func noop(ctx context.Context, d *decision.Decision) {}

// one wraps a constant sensor in a single identity consideration over [0,1].
func one(v float64) []decision.Consideration {
	return []decision.Consideration{
		decision.NewConsideration("c", value(v), curve.Identity(), 0, 1),
	}
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	err := e.Add(ctx, "no-considerations", "", decision.Useful, []string{"e"}, nil, noop)
	assert.ErrorIs(t, err, engine.ErrInvalidRegistration)

	err = e.Add(ctx, "no-events", "", decision.Useful, nil, one(1), noop)
	assert.ErrorIs(t, err, engine.ErrInvalidRegistration)

	err = e.Add(ctx, "bad-utility", "", decision.Utility(9), []string{"e"}, one(1), noop)
	assert.ErrorIs(t, err, engine.ErrInvalidRegistration)

	// Nothing was registered: raising the event yields no candidates.
	e.Raise(ctx, "e")
	_, err = e.BestDecision(ctx)
	assert.ErrorIs(t, err, engine.ErrEmptyActiveSet)
}

// TestTierPruning is the first literal scenario: the Ignore-tier candidate
// is never evaluated.
func TestTierPruning(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	calls := 0
	counter := func(ctx context.Context) float64 {
		calls++
		return 1
	}

	require.NoError(t, e.Add(ctx, "A", "", decision.Useful, []string{"e"}, one(0.9), noop))
	require.NoError(t, e.Add(ctx, "B", "", decision.Ignore, []string{"e"},
		[]decision.Consideration{decision.NewConsideration("c", counter, curve.Identity(), 0, 1)}, noop))

	e.Raise(ctx, "e")

	d, err := e.BestDecision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", d.Name())
	assert.InDelta(t, 1.8, d.ComputeScore(ctx), 1e-12)
	assert.Equal(t, 0, calls)
}

// TestRandomTieBreaking is the second literal scenario: the higher tier
// dominates under identically-distributed random considerations and the
// Ignore tier never wins.
func TestRandomTieBreaking(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	rnd := rand.New(rand.NewSource(42))
	draw := func(ctx context.Context) float64 {
		return rnd.Float64()
	}
	random := []decision.Consideration{
		decision.NewConsideration("draw", draw, curve.Identity(), 0, 1),
	}

	require.NoError(t, e.Add(ctx, "First", "", decision.MostUseful, []string{"e"}, random, noop))
	require.NoError(t, e.Add(ctx, "Another", "", decision.VeryUseful, []string{"e"}, random, noop))
	require.NoError(t, e.Add(ctx, "Ignored", "", decision.Ignore, []string{"e"}, random, noop))

	e.Raise(ctx, "e")

	counts := map[string]int{}
	for i := 0; i < 300; i++ {
		d, err := e.BestDecision(ctx)
		require.NoError(t, err)
		counts[d.Name()]++
	}

	assert.Zero(t, counts["Ignored"])
	assert.Greater(t, counts["First"], counts["Another"])
}

// TestEventGating is the fourth literal scenario.
func TestEventGating(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "kick", "", decision.Useful, []string{"penalized"}, one(0.5), noop))

	_, err := e.BestDecision(ctx)
	assert.ErrorIs(t, err, engine.ErrEmptyActiveSet)

	e.Raise(ctx, "penalized")
	d, err := e.BestDecision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kick", d.Name())

	e.ClearEvent(ctx, "penalized")
	_, err = e.BestDecision(ctx)
	assert.ErrorIs(t, err, engine.ErrEmptyActiveSet)
}

// TestZeroScore is the fifth literal scenario: a sole candidate whose
// binary consideration gates it to zero.
func TestZeroScore(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "gated", "", decision.MostUseful, []string{"e"},
		[]decision.Consideration{
			decision.NewConsideration("a", value(0.8), curve.Identity(), 0, 1),
			decision.NewConsideration("threshold", value(5), curve.Binary(10), 0, 20),
		}, noop))

	e.Raise(ctx, "e")

	_, err := e.BestDecision(ctx)
	assert.ErrorIs(t, err, engine.ErrNoDecisionActivated)
}

// TestSaturationEarlyExit is the sixth literal scenario: a candidate that
// reaches its tier stops the scan.
func TestSaturationEarlyExit(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	calls := 0
	counter := func(ctx context.Context) float64 {
		calls++
		return 0.9
	}

	require.NoError(t, e.Add(ctx, "saturated", "", decision.Useful, []string{"e"}, one(1), noop))
	require.NoError(t, e.Add(ctx, "skipped", "", decision.Useful, []string{"e"},
		[]decision.Consideration{decision.NewConsideration("c", counter, curve.Identity(), 0, 1)}, noop))

	e.Raise(ctx, "e")

	d, err := e.BestDecision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "saturated", d.Name())
	assert.InDelta(t, 2.0, d.ComputeScore(ctx), 1e-12)
	assert.Equal(t, 0, calls)
}

func TestTieBreakFirstWins(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "first", "", decision.Useful, []string{"e"}, one(0.5), noop))
	require.NoError(t, e.Add(ctx, "second", "", decision.Useful, []string{"e"}, one(0.5), noop))

	e.Raise(ctx, "e")

	d, err := e.BestDecision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", d.Name())
}

func TestActiveSorted(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	tiers := []decision.Utility{
		decision.SlightlyUseful, decision.MostUseful, decision.Ignore,
		decision.Useful, decision.VeryUseful, decision.Useful,
	}
	for i, u := range tiers {
		ev := "a"
		if i%2 == 0 {
			ev = "b"
		}
		require.NoError(t, e.Add(ctx, fmt.Sprintf("d%v", i), "", u, []string{ev}, one(0.5), noop))
	}

	e.Raise(ctx, "a")
	e.Raise(ctx, "b")

	active := e.ActiveDecisions(ctx)
	require.Len(t, active, len(tiers))
	for i := 1; i < len(active); i++ {
		assert.LessOrEqual(t, active[i].Utility(), active[i-1].Utility())
	}
}

func TestRaiseIdempotent(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "d", "", decision.Useful, []string{"e"}, one(0.5), noop))

	e.Raise(ctx, "e")
	e.Raise(ctx, "e")

	assert.Len(t, e.ActiveDecisions(ctx), 1)
	assert.Len(t, e.ActiveEvents(ctx), 1)
}

func TestClearEventIdempotent(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "d", "", decision.Useful, []string{"e"}, one(0.5), noop))
	e.Raise(ctx, "e")

	e.ClearEvent(ctx, "e")
	e.ClearEvent(ctx, "e")

	assert.Empty(t, e.ActiveDecisions(ctx))
	assert.Empty(t, e.ActiveEvents(ctx))
}

func TestClearActive(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "d", "", decision.Useful, []string{"e"}, one(0.5), noop))
	e.Raise(ctx, "e")
	require.Len(t, e.ActiveDecisions(ctx), 1)

	e.ClearActive(ctx)
	assert.Empty(t, e.ActiveDecisions(ctx))
	assert.Empty(t, e.ActiveEvents(ctx))

	// Rules survive: raising again restores the candidate.
	e.Raise(ctx, "e")
	assert.Len(t, e.ActiveDecisions(ctx), 1)
}

// TestClearRebuild verifies that clear-then-identical-add yields the same
// selection for identical sensor readings.
func TestClearRebuild(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	add := func() {
		require.NoError(t, e.Add(ctx, "a", "", decision.Useful, []string{"e"}, one(0.9), noop))
		require.NoError(t, e.Add(ctx, "b", "", decision.VeryUseful, []string{"e"}, one(0.4), noop))
	}

	add()
	e.Raise(ctx, "e")
	first, err := e.BestDecision(ctx)
	require.NoError(t, err)

	e.Clear(ctx)
	_, err = e.BestDecision(ctx)
	assert.ErrorIs(t, err, engine.ErrEmptyActiveSet)

	add()
	e.Raise(ctx, "e")
	second, err := e.BestDecision(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Name(), second.Name())
}

// TestAddAfterRaise verifies the deferred-sort protocol: a decision added
// to an already-raised event becomes a candidate at the next query.
func TestAddAfterRaise(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "old", "", decision.Useful, []string{"e"}, one(0.5), noop))
	e.Raise(ctx, "e")
	require.Len(t, e.ActiveDecisions(ctx), 1)

	require.NoError(t, e.Add(ctx, "new", "", decision.MostUseful, []string{"e"}, one(0.5), noop))

	active := e.ActiveDecisions(ctx)
	require.Len(t, active, 2)
	assert.Equal(t, "new", active[0].Name())

	d, err := e.BestDecision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", d.Name())
}

func TestExecuteBestDecision(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	executed := ""
	action := func(ctx context.Context, d *decision.Decision) {
		executed = d.Name()
	}

	require.NoError(t, e.Add(ctx, "winner", "", decision.Useful, []string{"e"}, one(0.5), action))
	e.Raise(ctx, "e")

	require.NoError(t, e.ExecuteBestDecision(ctx))
	assert.Equal(t, "winner", executed)

	d := e.ActiveDecisions(ctx)[0]
	assert.False(t, d.LastExecutedAt().IsZero())
}

// TestMultiEventDecision verifies the multi-map semantics: one decision
// bound under several events appears once per raised event.
func TestMultiEventDecision(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	require.NoError(t, e.Add(ctx, "d", "", decision.Useful, []string{"a", "b"}, one(0.5), noop))

	e.Raise(ctx, "a")
	assert.Len(t, e.ActiveDecisions(ctx), 1)

	e.Raise(ctx, "b")
	assert.Len(t, e.ActiveDecisions(ctx), 2)

	e.ClearEvent(ctx, "a")
	assert.Len(t, e.ActiveDecisions(ctx), 1)
}

// TestPruningMatchesFullScan verifies the selection algorithm against a
// naive scan over randomized rule sets with deterministic sensors.
func TestPruningMatchesFullScan(t *testing.T) {
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(271828))

	events := []string{"a", "b", "c"}
	for trial := 0; trial < 50; trial++ {
		e := engine.New[string](ctx)

		n := 2 + rnd.Intn(20)
		for i := 0; i < n; i++ {
			u := decision.Utility(rnd.Intn(5))
			var cs []decision.Consideration
			for k := 0; k <= rnd.Intn(3); k++ {
				cs = append(cs, decision.NewConsideration("c", value(rnd.Float64()), curve.Identity(), 0, 1))
			}
			ev := events[rnd.Intn(len(events))]
			require.NoError(t, e.Add(ctx, fmt.Sprintf("d%v", i), "", u, []string{ev}, cs, noop))
		}
		for _, ev := range events {
			e.Raise(ctx, ev)
		}

		// Naive scan in window order; ties broken by earliest position.
		var expected *decision.Decision
		expectedScore := 0.0
		for _, d := range e.ActiveDecisions(ctx) {
			if s := d.ComputeScore(ctx); s > expectedScore {
				expected, expectedScore = d, s
			}
		}

		actual, err := e.BestDecision(ctx)
		if expectedScore == 0 {
			assert.ErrorIs(t, err, engine.ErrNoDecisionActivated)
			continue
		}
		require.NoError(t, err)
		assert.Equalf(t, expected.Name(), actual.Name(), "trial %v", trial)
	}
}

// TestRecorder verifies the activation-graph view: aligned names, scores
// for evaluated candidates, and the sentinel past the pruning cutoff.
func TestRecorder(t *testing.T) {
	ctx := context.Background()

	rec := &engine.Recorder{}
	e := engine.New[string](ctx, engine.WithGraph[string](rec))

	require.NoError(t, e.Add(ctx, "top", "", decision.MostUseful, []string{"e"}, one(1), noop))
	require.NoError(t, e.Add(ctx, "pruned", "", decision.Useful, []string{"e"}, one(1), noop))

	e.Raise(ctx, "e")

	names, scores := rec.Snapshot()
	require.Equal(t, []string{"top", "pruned"}, names)
	assert.Equal(t, []float64{engine.NotEvaluated, engine.NotEvaluated}, scores)

	d, err := e.BestDecision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "top", d.Name())

	// "top" saturates its tier; "pruned" is past the cutoff.
	_, scores = rec.Snapshot()
	require.Len(t, scores, 2)
	assert.InDelta(t, 4.0, scores[0], 1e-12)
	assert.Equal(t, engine.NotEvaluated, scores[1])

	e.ClearEvent(ctx, "e")
	names, _ = rec.Snapshot()
	assert.Empty(t, names)
}

func TestActiveEvents(t *testing.T) {
	ctx := context.Background()
	e := engine.New[string](ctx)

	e.Raise(ctx, "unknown")
	assert.ElementsMatch(t, []string{"unknown"}, e.ActiveEvents(ctx))

	// Raising an unknown event adds no candidates.
	_, err := e.BestDecision(ctx)
	assert.ErrorIs(t, err, engine.ErrEmptyActiveSet)
}
