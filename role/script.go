package role

import (
	"context"
	"fmt"
	"sync"
)

// FuncDecider adapts a plain function to the Decider interface.
type FuncDecider func(ctx context.Context, req DecideRequest) (Step, error)

// Decide implements Decider.
func (f FuncDecider) Decide(ctx context.Context, req DecideRequest) (Step, error) {
	return f(ctx, req)
}

// ScriptDecider replays a fixed sequence of steps in order, regardless of
// input. It gives tests a deterministic role/task substitute: the same
// script produces the same routing decisions on every run, which is what the
// compaction-transparency property requires.
type ScriptDecider struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

// NewScriptDecider constructs a decider that will emit the given steps.
func NewScriptDecider(steps ...Step) *ScriptDecider {
	return &ScriptDecider{steps: steps}
}

// Decide implements Decider. Running past the end of the script is an error
// so tests fail loudly on unexpected extra decisions.
func (d *ScriptDecider) Decide(context.Context, DecideRequest) (Step, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls >= len(d.steps) {
		return nil, fmt.Errorf("script decider: exhausted after %d steps", len(d.steps))
	}
	step := d.steps[d.calls]
	d.calls++
	return step, nil
}

// Calls reports how many decisions have been consumed.
func (d *ScriptDecider) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
