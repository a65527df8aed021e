package decision

import (
	"context"
	"fmt"
	"github.com/pkok/behavior-engine/pkg/curve"
	"math"
)

// Sensor reads one raw value from host state. Sensors may mutate shared
// host state; such effects are visible to sensors and actions evaluated
// later in the same tick.
type Sensor func(ctx context.Context) float64

// Consideration is one axis of utility: a sensor reading over [lo;hi]
// shaped into [0,1] by a response curve. Immutable after construction.
type Consideration struct {
	description string
	sensor      Sensor
	shape       curve.Curve
	lo, hi      float64
}

// NewConsideration returns a consideration that scores the given sensor
// over the reading range [lo;hi] through the given curve.
func NewConsideration(description string, sensor Sensor, shape curve.Curve, lo, hi float64) Consideration {
	return Consideration{
		description: description,
		sensor:      sensor,
		shape:       shape,
		lo:          lo,
		hi:          hi,
	}
}

// Description returns the label of the consideration.
func (c Consideration) Description() string {
	return c.description
}

// Range returns the expected reading range. Out-of-range readings are not
// an error; the curve and the final clip absorb them.
func (c Consideration) Range() (lo, hi float64) {
	return c.lo, c.hi
}

// ComputeScore reads the sensor and shapes the reading into [0,1].
// Non-finite scores clamp to 0.
func (c Consideration) ComputeScore(ctx context.Context) float64 {
	score := c.shape.Utility(c.sensor(ctx), c.lo, c.hi)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return curve.Clip(score)
}

func (c Consideration) String() string {
	return fmt.Sprintf("%v [%v;%v]", c.description, c.lo, c.hi)
}
