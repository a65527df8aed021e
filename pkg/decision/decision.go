package decision

import (
	"context"
	"fmt"
	"time"
)

// Action is the behavior invoked when its decision wins a tick. It
// receives the decision itself, so actions can introspect their own name
// and tier for logging.
type Action func(ctx context.Context, d *Decision)

// epsilon is the early-exit threshold for the running composite score.
const epsilon = 1e-6

// Decision is a named candidate behavior: a base utility tier, an ordered
// list of considerations and an action. Apart from the last-executed
// timestamp it is immutable after construction.
//
// The composite score is utility * product of the adjusted consideration
// scores. With k considerations and f = 1 - 1/k, a consideration score c
// contributes c + (1-c)*f*c. The modification factor compensates for the
// shrinkage of multiplying many sub-unit scores: one weak consideration
// among several strong ones no longer drags the product to near-zero. The
// adjusted score stays within [0,1], so the utility tier remains an upper
// bound on the composite score.
type Decision struct {
	name, description string
	utility           Utility
	considerations    []Consideration
	action            Action

	lastExecuted time.Time
}

// New returns a decision over the given considerations.
func New(name, description string, u Utility, considerations []Consideration, action Action) *Decision {
	return &Decision{
		name:           name,
		description:    description,
		utility:        u,
		considerations: considerations,
		action:         action,
	}
}

// Name returns the decision name.
func (d *Decision) Name() string {
	return d.name
}

// Description returns the decision description.
func (d *Decision) Description() string {
	return d.description
}

// Utility returns the base tier.
func (d *Decision) Utility() Utility {
	return d.utility
}

// Considerations returns a copy of the consideration list.
func (d *Decision) Considerations() []Consideration {
	ret := make([]Consideration, len(d.considerations))
	copy(ret, d.considerations)
	return ret
}

// LastExecutedAt returns the time of the latest Execute, or the zero time
// if the decision never ran.
func (d *Decision) LastExecutedAt() time.Time {
	return d.lastExecuted
}

// ComputeScore evaluates the considerations in order and returns the
// composite score in [0;utility]. Evaluation stops early once the running
// score drops below 1e-6; remaining sensors are not read.
func (d *Decision) ComputeScore(ctx context.Context) float64 {
	f := 1 - 1/float64(len(d.considerations))

	total := float64(d.utility)
	for _, c := range d.considerations {
		if total < epsilon {
			return 0
		}
		score := c.ComputeScore(ctx)
		total *= score + (1-score)*f*score
	}
	if total < epsilon {
		return 0
	}
	return total
}

// Execute records the execution timestamp and invokes the action.
func (d *Decision) Execute(ctx context.Context) {
	d.lastExecuted = time.Now()
	d.action(ctx, d)
}

func (d *Decision) String() string {
	return fmt.Sprintf("%v{utility=%v, considerations=%v}", d.name, d.utility, len(d.considerations))
}
