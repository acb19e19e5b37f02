package role

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wealthmesh/wealthmesh/capability"
	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
)

// DefaultMaxHandoffDepth bounds handoffs within a single turn. Cycles
// through the graph are legal (default -> specialist -> default) but a turn
// must terminate; exceeding the cap is a fatal routing error.
const DefaultMaxHandoffDepth = 5

// defaultMaxTaskCalls bounds capability invocations within one turn so a
// misbehaving decider cannot loop forever on the same role.
const defaultMaxTaskCalls = 16

// ErrHandoffDepth is returned when a turn hands off more than the configured
// maximum number of times.
var ErrHandoffDepth = errors.New("role: handoff depth exceeded")

// ErrTaskBudget is returned when a single turn invokes more capability tasks
// than the per-turn budget allows.
var ErrTaskBudget = errors.New("role: per-turn task invocation budget exceeded")

// ErrNoRoute is returned when even the default role has no applicable step
// for a request.
var ErrNoRoute = errors.New("role: no resolvable role")

// TurnInput carries everything the graph needs to execute one turn.
type TurnInput struct {
	SessionID  string
	ActiveRole string
	Text       string
	Transcript []core.Message
	Routing    core.RoutingContext
}

// TurnResult is the assembled output of one routed turn.
type TurnResult struct {
	// Text is the user-visible response accumulated across roles.
	Text string
	// Structured holds raw capability outputs, one JSON document per line.
	Structured string
	// Trace is the human-readable routing/tool narrative.
	Trace string
	// FinalRole is the active role after the turn (the handoff pointer).
	FinalRole string
	// TranscriptDelta contains the transcript entries this turn appended.
	TranscriptDelta []core.Message
}

// Graph is a directed graph over routing roles with a designated
// entry/default role. It is immutable after construction and safe for
// concurrent use across sessions.
type Graph struct {
	roles        map[string]*Role
	defaultRole  string
	decider      Decider
	invoker      *invoke.Invoker
	maxDepth     int
	maxTaskCalls int
	logger       logging.Logger
}

// GraphOptions holds overrides passed to NewGraph.
type GraphOptions struct {
	MaxHandoffDepth int
	MaxTaskCalls    int
	Invoker         *invoke.Invoker
	Logger          logging.Logger
}

// NewGraph constructs a Graph. The first role is the entry/default role for
// new sessions and the fallback target for roles with nothing applicable.
func NewGraph(decider Decider, defaultRole *Role, others []*Role, optFns ...func(o *GraphOptions)) (*Graph, error) {
	opts := GraphOptions{
		MaxHandoffDepth: DefaultMaxHandoffDepth,
		MaxTaskCalls:    defaultMaxTaskCalls,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Invoker == nil {
		opts.Invoker = invoke.New()
	}

	roles := map[string]*Role{defaultRole.Name(): defaultRole}
	for _, r := range others {
		if _, exists := roles[r.Name()]; exists {
			return nil, fmt.Errorf("role: duplicate role name %q", r.Name())
		}
		roles[r.Name()] = r
	}
	for _, r := range roles {
		for _, target := range r.Handoffs() {
			if _, ok := roles[target]; !ok {
				return nil, fmt.Errorf("role: %q hands off to unknown role %q", r.Name(), target)
			}
		}
	}

	return &Graph{
		roles:        roles,
		defaultRole:  defaultRole.Name(),
		decider:      decider,
		invoker:      opts.Invoker,
		maxDepth:     opts.MaxHandoffDepth,
		maxTaskCalls: opts.MaxTaskCalls,
		logger:       opts.Logger,
	}, nil
}

// DefaultRole returns the entry/default role name.
func (g *Graph) DefaultRole() string { return g.defaultRole }

// Role returns the named role or nil.
func (g *Graph) Role(name string) *Role { return g.roles[name] }

// RunTurn executes one turn against the graph: the active role decides
// repeatedly until it replies, a fatal task error occurs, or a routing bound
// trips. On error the returned result is nil and no transcript delta must be
// applied; the caller owns turn atomicity.
func (g *Graph) RunTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	active := g.roles[in.ActiveRole]
	if active == nil {
		active = g.roles[g.defaultRole]
	}

	delta := []core.Message{core.NewUserMessageEntry(in.Text)}
	working := append(core.CloneMessages(in.Transcript), delta...)

	var text, structured, trace strings.Builder
	depth := 0
	taskCalls := 0

	for {
		step, err := g.decide(ctx, active, in, working)
		if err != nil {
			return nil, err
		}

		switch s := step.(type) {
		case Reply:
			g.logger.Debug("role.reply", "role", active.Name(), "session_id", in.SessionID)
			text.WriteString(s.Text)
			entry := core.NewAssistantMessageEntry(s.Text)
			delta = append(delta, entry)
			return &TurnResult{
				Text:            text.String(),
				Structured:      structured.String(),
				Trace:           trace.String(),
				FinalRole:       active.Name(),
				TranscriptDelta: delta,
			}, nil

		case Invoke:
			task := active.Capability(s.Capability)
			if task == nil {
				// No capability able to satisfy the request: hand off to the
				// default role rather than fail.
				next, err := g.fallback(active, &depth, &trace)
				if err != nil {
					return nil, err
				}
				active = next
				continue
			}
			taskCalls++
			if taskCalls > g.maxTaskCalls {
				return nil, ErrTaskBudget
			}

			fmt.Fprintf(&trace, "%s: calling task %s\n", active.Name(), task.Name())
			callID := core.NewID()
			output, err := g.invokeTask(ctx, in, task, s.Args)
			if err != nil {
				return nil, err
			}
			structured.WriteString(output)
			structured.WriteString("\n")

			argsJSON, _ := json.Marshal(s.Args)
			call := core.ToolCallRef{ID: callID, Name: task.Name(), Arguments: string(argsJSON)}
			delta = append(delta, core.NewToolCallEntry(call), core.NewToolResultEntry(callID, task.Name(), output))
			working = append(working, delta[len(delta)-2], delta[len(delta)-1])

		case Handoff:
			target := g.roles[s.Target]
			if target == nil || !active.PermitsHandoff(s.Target) {
				next, err := g.fallback(active, &depth, &trace)
				if err != nil {
					return nil, err
				}
				active = next
				continue
			}
			depth++
			if depth > g.maxDepth {
				return nil, fmt.Errorf("%w: %d handoffs in one turn", ErrHandoffDepth, depth)
			}
			fmt.Fprintf(&trace, "Handed off from %s to %s\n", active.Name(), target.Name())
			g.logger.Info("role.handoff", "from", active.Name(), "to", target.Name(), "session_id", in.SessionID)
			active = target

		default:
			return nil, fmt.Errorf("role: unknown step type %T", step)
		}
	}
}

// decide asks the Decider for the next step, retry-wrapped since the model
// boundary is an external, possibly transient dependency.
func (g *Graph) decide(ctx context.Context, active *Role, in TurnInput, transcript []core.Message) (Step, error) {
	specs := make([]CapabilitySpec, 0, len(active.Capabilities()))
	for _, t := range active.Capabilities() {
		specs = append(specs, CapabilitySpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	handoffs := make([]HandoffSpec, 0, len(active.Handoffs()))
	for _, name := range active.Handoffs() {
		spec := HandoffSpec{Name: name}
		if target := g.roles[name]; target != nil {
			spec.Description = target.Description()
		}
		handoffs = append(handoffs, spec)
	}

	req := DecideRequest{
		SessionID:   in.SessionID,
		Role:        active.Name(),
		Instruction: active.Instruction(),
		Transcript:  transcript,
		Capability:  specs,
		Handoffs:    handoffs,
		Routing:     in.Routing,
	}

	result, err := g.invoker.Invoke(ctx, "decide_"+active.Name(), func(ctx context.Context) (any, error) {
		return g.decider.Decide(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("role %s decision: %w", active.Name(), err)
	}
	step, ok := result.(Step)
	if !ok {
		return nil, fmt.Errorf("role %s decision: unexpected result %T", active.Name(), result)
	}
	return step, nil
}

// invokeTask runs a capability through the retry-backed invoker and
// serializes its output for the structured response and transcript.
func (g *Graph) invokeTask(ctx context.Context, in TurnInput, task capability.Task, args map[string]any) (string, error) {
	tc := &capability.TaskContext{
		Context:   ctx,
		SessionID: in.SessionID,
		Routing:   in.Routing,
		Logger:    g.logger,
	}
	result, err := g.invoker.Invoke(ctx, task.Name(), func(context.Context) (any, error) {
		out, err := task.Call(tc, args)
		var te *capability.TaskError
		if errors.As(err, &te) && te.Code != capability.CodeExecution {
			// Validation and explicitly non-retryable failures never succeed
			// on retry.
			return out, invoke.NonRetryable(err)
		}
		return out, err
	})
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("serialize %s output: %w", task.Name(), err)
		}
		return string(data), nil
	}
}

// fallback routes a role with nothing applicable back to the default role,
// counting it as a handoff so depth accounting still terminates the turn.
func (g *Graph) fallback(active *Role, depth *int, trace *strings.Builder) (*Role, error) {
	if active.Name() == g.defaultRole {
		return nil, fmt.Errorf("%w: default role %s has no applicable step", ErrNoRoute, active.Name())
	}
	*depth++
	if *depth > g.maxDepth {
		return nil, fmt.Errorf("%w: %d handoffs in one turn", ErrHandoffDepth, *depth)
	}
	fmt.Fprintf(trace, "Handed off from %s to %s\n", active.Name(), g.defaultRole)
	return g.roles[g.defaultRole], nil
}
