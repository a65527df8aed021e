// Package sentry contains the simulated patrol robot driven by the
// decision engine.
package sentry

import (
	"context"
	"github.com/seekerror/logw"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"math"
)

// Event gates which decisions are candidates on a given tick.
type Event uint8

const (
	// Tick is raised on every control-loop pass.
	Tick Event = iota
	// IntruderSeen is raised while an intruder is within sensor range.
	IntruderSeen
	// LowBattery is raised while the battery is below the reserve level.
	LowBattery
)

func (e Event) String() string {
	switch e {
	case Tick:
		return "tick"
	case IntruderSeen:
		return "intruder-seen"
	case LowBattery:
		return "low-battery"
	default:
		return "?"
	}
}

const (
	// FullBattery is the battery capacity in percent.
	FullBattery = 100.0
	// ReserveBattery is the level below which LowBattery is raised.
	ReserveBattery = 25.0
	// SensorRange is the intruder detection range in meters.
	SensorRange = 40.0
)

// World holds the simulated host state the sensors read and the actions
// mutate. Battery and intruder-distance readings carry Gaussian noise, so
// identical ticks still produce slightly different scores; the coverage
// reading is exact.
type World struct {
	battery  float64
	intruder float64 // distance in meters; +Inf when none
	covered  float64 // patrol route coverage in [0,1]

	noise  distuv.Normal
	chance distuv.Uniform
}

// NewWorld returns a fully-charged world with no intruder.
func NewWorld(seed uint64) *World {
	src := rand.NewSource(seed)
	return &World{
		battery:  FullBattery,
		intruder: math.Inf(1),
		noise:    distuv.Normal{Mu: 0, Sigma: 0.5, Src: src},
		chance:   distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// Step advances the simulation one tick: the battery drains, patrol
// coverage decays, and intruders appear, approach and leave.
func (w *World) Step() {
	w.battery = math.Max(0, w.battery-0.4)
	w.covered = math.Max(0, w.covered-0.02)

	switch {
	case math.IsInf(w.intruder, 1):
		if w.chance.Rand() < 0.05 {
			w.intruder = SensorRange * (0.5 + 0.5*w.chance.Rand())
		}
	case w.intruder <= 0 || w.chance.Rand() < 0.02:
		w.intruder = math.Inf(1)
	default:
		w.intruder = math.Max(0, w.intruder-1.5)
	}
}

// Battery reads the battery level in percent, with noise.
func (w *World) Battery(ctx context.Context) float64 {
	return w.battery + w.noise.Rand()
}

// IntruderDistance reads the distance to the nearest intruder in meters.
// +Inf when none is in range.
func (w *World) IntruderDistance(ctx context.Context) float64 {
	if math.IsInf(w.intruder, 1) {
		return w.intruder
	}
	return math.Max(0, w.intruder+w.noise.Rand())
}

// Coverage reads the patrol route coverage in [0,1].
func (w *World) Coverage(ctx context.Context) float64 {
	return w.covered
}

// IntruderPresent reports whether an intruder is within sensor range.
func (w *World) IntruderPresent() bool {
	return w.intruder <= SensorRange
}

// BatteryLow reports whether the battery is below the reserve level.
func (w *World) BatteryLow() bool {
	return w.battery < ReserveBattery
}

// Patrol advances the route and drains the battery.
func (w *World) Patrol(ctx context.Context) {
	w.covered = math.Min(1, w.covered+0.1)
	w.battery = math.Max(0, w.battery-0.6)
	logw.Debugf(ctx, "Patrolling: coverage=%.2f", w.covered)
}

// Chase closes in on the intruder.
func (w *World) Chase(ctx context.Context) {
	w.battery = math.Max(0, w.battery-1.2)
	if !math.IsInf(w.intruder, 1) {
		w.intruder = math.Max(0, w.intruder-4)
		if w.intruder == 0 {
			logw.Infof(ctx, "Intruder caught")
			w.intruder = math.Inf(1)
		}
	}
}

// Recharge docks and refills the battery.
func (w *World) Recharge(ctx context.Context) {
	w.battery = math.Min(FullBattery, w.battery+5)
}

// Idle does nothing but keeps the robot responsive.
func (w *World) Idle(ctx context.Context) {}
