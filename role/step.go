package role

import (
	"context"

	"github.com/wealthmesh/wealthmesh/core"
)

// Step is the decision a role takes at one point in a turn. Concrete steps
// implement the unexported isStep marker enabling a closed set; the graph
// switches exhaustively over the three variants.
type Step interface{ isStep() }

// Reply produces a direct text response and ends the turn.
type Reply struct {
	Text string
}

// isStep implements the Step interface for Reply.
func (Reply) isStep() {}

// Invoke runs a capability task; its output is incorporated and the same
// role decides again.
type Invoke struct {
	Capability string
	Args       map[string]any
}

// isStep implements the Step interface for Invoke.
func (Invoke) isStep() {}

// Handoff atomically switches the active role and re-runs the same inbound
// content against the target within the same turn.
type Handoff struct {
	Target string
}

// isStep implements the Step interface for Handoff.
func (Handoff) isStep() {}

// CapabilitySpec is the declarative view of a capability exposed to a
// Decider.
type CapabilitySpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// HandoffSpec describes a permitted handoff target.
type HandoffSpec struct {
	Name        string
	Description string
}

// DecideRequest is the full role view handed to a Decider for one decision.
type DecideRequest struct {
	SessionID   string
	Role        string
	Instruction string
	Transcript  []core.Message
	Capability  []CapabilitySpec
	Handoffs    []HandoffSpec
	Routing     core.RoutingContext
}

// Decider chooses the next Step for the active role. This is the
// language-model boundary: the orchestration core treats it as an external,
// possibly slow, possibly failing dependency. Implementations must be
// deterministic given the same request for replay-safe substitutes in tests.
type Decider interface {
	Decide(ctx context.Context, req DecideRequest) (Step, error)
}
