// Package engine contains the decision engine: the rule registry,
// event-gated activation and best-decision selection.
package engine

import (
	"context"
	"errors"
	"fmt"
	"github.com/pkok/behavior-engine/pkg/decision"
	"github.com/seekerror/logw"
	"sort"
	"sync"
)

var (
	// ErrEmptyActiveSet indicates that selection ran with no candidates.
	ErrEmptyActiveSet = errors.New("engine: empty active rule set")
	// ErrNoDecisionActivated indicates that every evaluated candidate
	// scored exactly zero.
	ErrNoDecisionActivated = errors.New("engine: no rule was activated")
	// ErrInvalidRegistration indicates a malformed Add call.
	ErrInvalidRegistration = errors.New("engine: invalid registration")
)

// candidate references a decision in the registry by event and bucket
// position. The active window holds candidates instead of pointers so
// that draining it before registry mutations is the only lifetime rule.
type candidate[E comparable] struct {
	event E
	index int
}

// Engine selects a single best decision per tick from the currently
// active candidates. The event type E is any comparable symbol the host
// uses to gate rules.
//
// Operations are serialized by an internal mutex, but the engine is
// designed to be driven by one host control loop: sensor and action
// callbacks run on the caller's goroutine and see each other's effects in
// evaluation order.
type Engine[E comparable] struct {
	// rules owns the decisions, grouped per gating event. A decision
	// registered under several events appears in several buckets.
	rules map[E][]*decision.Decision

	active       []candidate[E]
	activeEvents map[E]struct{}

	// pending tracks buckets appended to since the last sort flush.
	// Sorting is deferred to the next query.
	pending map[E]struct{}

	graph Graph
	mu    sync.Mutex
}

// Option is an engine creation option.
type Option[E comparable] func(*Engine[E])

// WithGraph installs an activation-graph sink, written on every change to
// the candidate window and every selection pass.
func WithGraph[E comparable](g Graph) Option[E] {
	return func(e *Engine[E]) {
		e.graph = g
	}
}

// New returns an empty engine.
func New[E comparable](ctx context.Context, opts ...Option[E]) *Engine[E] {
	e := &Engine[E]{
		rules:        map[E][]*decision.Decision{},
		activeEvents: map[E]struct{}{},
		pending:      map[E]struct{}{},
		graph:        discard{},
	}
	for _, fn := range opts {
		fn(e)
	}

	logw.Infof(ctx, "Initialized decision engine")
	return e
}

// Add registers a decision under each of the given events. The touched
// buckets are re-sorted lazily at the next query; if such an event is
// already raised, the new decision joins the candidate window at that
// point. Add either registers the decision under every event or, on
// invalid input, not at all.
func (e *Engine[E]) Add(ctx context.Context, name, description string, u decision.Utility, events []E, considerations []decision.Consideration, action decision.Action) error {
	if len(considerations) == 0 {
		return fmt.Errorf("%w: decision %q has no considerations", ErrInvalidRegistration, name)
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: decision %q has no events", ErrInvalidRegistration, name)
	}
	if !u.IsValid() {
		return fmt.Errorf("%w: decision %q has invalid utility %v", ErrInvalidRegistration, name, uint8(u))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d := decision.New(name, description, u, considerations, action)
	for _, ev := range events {
		e.rules[ev] = append(e.rules[ev], d)
		e.pending[ev] = struct{}{}
	}

	logw.Infof(ctx, "Registered decision %v: utility=%v, events=%v", name, u, len(events))
	return nil
}

// Raise marks the event active and adds its decisions to the candidate
// window. Raising an already-active event is a no-op; raising an unknown
// event activates it with no candidates.
func (e *Engine[E]) Raise(ctx context.Context, event E) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.flushSorts()
	if _, ok := e.activeEvents[event]; ok {
		return
	}
	e.activeEvents[event] = struct{}{}

	for i := range e.rules[event] {
		e.active = append(e.active, candidate[E]{event: event, index: i})
	}
	e.sortActive()
	e.graph.Reset(e.names())

	logw.Debugf(ctx, "Raised %v: %v candidates", event, len(e.active))
}

// ClearEvent deactivates the event and removes its candidates from the
// window. The rules bucket is retained so the event may be raised again.
// Idempotent.
func (e *Engine[E]) ClearEvent(ctx context.Context, event E) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.activeEvents[event]; !ok {
		return
	}
	delete(e.activeEvents, event)

	next := e.active[:0]
	for _, c := range e.active {
		if c.event != event {
			next = append(next, c)
		}
	}
	e.active = next
	e.graph.Reset(e.names())

	logw.Debugf(ctx, "Cleared %v: %v candidates", event, len(e.active))
}

// ClearActive empties the candidate window and the active event set. The
// registry is untouched.
func (e *Engine[E]) ClearActive(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clearActive()
	logw.Debugf(ctx, "Cleared active set")
}

// Clear drains the active window, then empties the registry.
func (e *Engine[E]) Clear(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clearActive()
	e.rules = map[E][]*decision.Decision{}
	e.pending = map[E]struct{}{}

	logw.Infof(ctx, "Cleared all rules")
}

func (e *Engine[E]) clearActive() {
	e.active = nil
	e.activeEvents = map[E]struct{}{}
	e.graph.Reset(nil)
}

// BestDecision returns the highest-scoring candidate. It fails with
// ErrEmptyActiveSet if there are no candidates and ErrNoDecisionActivated
// if every evaluated candidate scored zero.
func (e *Engine[E]) BestDecision(ctx context.Context) (*decision.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.bestDecision(ctx)
}

// ExecuteBestDecision selects the best decision and runs it. The action
// is invoked outside the engine lock, so it may call back into the
// engine, e.g. to raise or clear events.
func (e *Engine[E]) ExecuteBestDecision(ctx context.Context) error {
	e.mu.Lock()
	d, err := e.bestDecision(ctx)
	e.mu.Unlock()

	if err != nil {
		return err
	}
	d.Execute(ctx)
	return nil
}

// ActiveDecisions returns a snapshot of the candidate window in selection
// order.
func (e *Engine[E]) ActiveDecisions(ctx context.Context) []*decision.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.flushSorts()

	ret := make([]*decision.Decision, len(e.active))
	for i, c := range e.active {
		ret[i] = e.lookup(c)
	}
	return ret
}

// ActiveEvents returns the currently-raised events, in no particular
// order.
func (e *Engine[E]) ActiveEvents(ctx context.Context) []E {
	e.mu.Lock()
	defer e.mu.Unlock()

	ret := make([]E, 0, len(e.activeEvents))
	for ev := range e.activeEvents {
		ret = append(ret, ev)
	}
	return ret
}

// bestDecision implements lazy selection with tier pruning. The window is
// sorted by tier descending, so a candidate's tier bounds every later
// composite score: iteration stops at the Ignore tier, when the current
// best exceeds the next tier, or when a candidate saturates its own tier.
// The result equals that of a full scan, first-equal wins.
func (e *Engine[E]) bestDecision(ctx context.Context) (*decision.Decision, error) {
	e.flushSorts()
	if len(e.active) == 0 {
		return nil, ErrEmptyActiveSet
	}

	scores := make([]float64, len(e.active))
	for i := range scores {
		scores[i] = NotEvaluated
	}

	var best *decision.Decision
	bestScore := 0.0
	for i, c := range e.active {
		d := e.lookup(c)

		bound := float64(d.Utility())
		if bound == 0 {
			break
		}
		if bound < bestScore {
			break
		}

		s := d.ComputeScore(ctx)
		scores[i] = s

		if s > bestScore {
			best, bestScore = d, s
		}
		if s == bound {
			break // saturated: no later candidate can exceed it
		}
	}
	e.graph.Publish(scores)

	if bestScore == 0 {
		return nil, ErrNoDecisionActivated
	}

	logw.Debugf(ctx, "Best decision %v: score=%.3f", best.Name(), bestScore)
	return best, nil
}

// flushSorts applies the sorting deferred by Add: every touched bucket is
// stably sorted by tier descending, and if a touched event is active its
// slice of the window is rebuilt from the sorted bucket. After a rebuild
// the whole window is re-sorted; surviving entries keep their relative
// order, rebuilt ones sort after equal-tier survivors.
func (e *Engine[E]) flushSorts() {
	if len(e.pending) == 0 {
		return
	}

	resort := false
	for ev := range e.pending {
		bucket := e.rules[ev]
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Utility() > bucket[j].Utility() })

		if _, ok := e.activeEvents[ev]; ok {
			next := make([]candidate[E], 0, len(e.active)+len(bucket))
			for _, c := range e.active {
				if c.event != ev {
					next = append(next, c)
				}
			}
			for i := range bucket {
				next = append(next, candidate[E]{event: ev, index: i})
			}
			e.active = next
			resort = true
		}
	}
	e.pending = map[E]struct{}{}

	if resort {
		e.sortActive()
		e.graph.Reset(e.names())
	}
}

func (e *Engine[E]) sortActive() {
	sort.SliceStable(e.active, func(i, j int) bool {
		return e.lookup(e.active[i]).Utility() > e.lookup(e.active[j]).Utility()
	})
}

func (e *Engine[E]) lookup(c candidate[E]) *decision.Decision {
	return e.rules[c.event][c.index]
}

func (e *Engine[E]) names() []string {
	ret := make([]string, len(e.active))
	for i, c := range e.active {
		ret[i] = e.lookup(c).Name()
	}
	return ret
}
