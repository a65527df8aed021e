package sentry

import (
	"context"
	"github.com/pkok/behavior-engine/pkg/curve"
	"github.com/pkok/behavior-engine/pkg/curve/spline"
	"github.com/pkok/behavior-engine/pkg/decision"
	"github.com/pkok/behavior-engine/pkg/engine"
	"github.com/seekerror/logw"
)

// Register installs the sentry behaviors. Curves are tuned so that
// recharging dominates once the battery runs low, chasing dominates while
// an intruder is near, and patrolling fills the remaining ticks.
func Register(ctx context.Context, eng *engine.Engine[Event], w *World) error {
	reserve, err := spline.New(spline.Monotone, []spline.Point{
		{X: 0, Y: 0}, {X: 0.25, Y: 0.6}, {X: 1, Y: 1},
	})
	if err != nil {
		return err
	}
	urgency, err := spline.New(spline.StepAfter, []spline.Point{
		{X: 0, Y: 1}, {X: 0.15, Y: 0.7}, {X: 0.3, Y: 0.2}, {X: 0.5, Y: 0},
	})
	if err != nil {
		return err
	}
	closeness, err := spline.New(spline.Monotone, []spline.Point{
		{X: 0, Y: 1}, {X: 0.5, Y: 0.7}, {X: 1, Y: 0.05},
	})
	if err != nil {
		return err
	}

	if err := eng.Add(ctx, "patrol", "advance the patrol route",
		decision.Useful, []Event{Tick},
		[]decision.Consideration{
			decision.NewConsideration("battery reserve", w.Battery, reserve, 0, FullBattery),
			decision.NewConsideration("route uncovered", w.Coverage, curve.Inverted(), 0, 1),
		},
		func(ctx context.Context, d *decision.Decision) {
			w.Patrol(ctx)
		},
	); err != nil {
		return err
	}

	if err := eng.Add(ctx, "recharge", "dock and refill the battery",
		decision.MostUseful, []Event{Tick, LowBattery},
		[]decision.Consideration{
			decision.NewConsideration("battery empty", w.Battery, curve.Inverted(), 0, FullBattery),
			decision.NewConsideration("recharge urgency", w.Battery, urgency, 0, FullBattery),
		},
		func(ctx context.Context, d *decision.Decision) {
			w.Recharge(ctx)
			logw.Debugf(ctx, "Executed %v", d.Name())
		},
	); err != nil {
		return err
	}

	if err := eng.Add(ctx, "chase", "close in on the intruder",
		decision.VeryUseful, []Event{IntruderSeen},
		[]decision.Consideration{
			decision.NewConsideration("intruder near", w.IntruderDistance, closeness, 0, SensorRange),
			decision.NewConsideration("battery not critical", w.Battery, curve.Binary(10), 0, FullBattery),
		},
		func(ctx context.Context, d *decision.Decision) {
			w.Chase(ctx)
			logw.Infof(ctx, "Executed %v: distance=%.1fm", d.Name(), w.intruder)
		},
	); err != nil {
		return err
	}

	if err := eng.Add(ctx, "idle", "hold position",
		decision.SlightlyUseful, []Event{Tick},
		[]decision.Consideration{
			decision.NewConsideration("baseline", w.Coverage, curve.Linear(0, 0.5), 0, 1),
		},
		func(ctx context.Context, d *decision.Decision) {
			w.Idle(ctx)
		},
	); err != nil {
		return err
	}

	return nil
}

// Gate raises and clears the world-driven events for the next tick. Tick
// stays raised for the lifetime of the loop.
func Gate(ctx context.Context, eng *engine.Engine[Event], w *World) {
	eng.Raise(ctx, Tick)

	if w.IntruderPresent() {
		eng.Raise(ctx, IntruderSeen)
	} else {
		eng.ClearEvent(ctx, IntruderSeen)
	}
	if w.BatteryLow() {
		eng.Raise(ctx, LowBattery)
	} else {
		eng.ClearEvent(ctx, LowBattery)
	}
}
