package role

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wealthmesh/wealthmesh/model"
)

// handoffToolName is the synthetic tool through which the model requests a
// handoff; it is translated into a Handoff step and never reaches the
// capability layer.
const handoffToolName = "transfer_to_role"

// ModelDecider adapts a model.Model to the Decider interface: capabilities
// become tool definitions, permitted handoffs become a transfer tool, and
// the completion is translated into exactly one Step.
type ModelDecider struct {
	llm model.Model
}

// NewModelDecider constructs a decider over the given model.
func NewModelDecider(llm model.Model) *ModelDecider {
	return &ModelDecider{llm: llm}
}

// Decide implements Decider.
func (d *ModelDecider) Decide(ctx context.Context, req DecideRequest) (Step, error) {
	resp, err := d.llm.Complete(ctx, model.Request{
		Instructions: buildInstructions(req),
		Messages:     req.Transcript,
		Tools:        buildTools(req),
	})
	if err != nil {
		return nil, fmt.Errorf("decider completion: %w", err)
	}

	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0]
		args := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decider arguments for %s: %w", call.Name, err)
			}
		}
		if call.Name == handoffToolName {
			target, _ := args["role"].(string)
			if target == "" {
				return nil, fmt.Errorf("decider: %s call without role", handoffToolName)
			}
			return Handoff{Target: target}, nil
		}
		return Invoke{Capability: call.Name, Args: args}, nil
	}

	return Reply{Text: resp.Text}, nil
}

// buildInstructions augments the role instruction with the routing context
// so specialists see state earlier roles collected (e.g. the client id).
func buildInstructions(req DecideRequest) string {
	var b strings.Builder
	b.WriteString(req.Instruction)
	if len(req.Routing) > 0 {
		b.WriteString("\n\nKnown session context:")
		for k, v := range req.Routing {
			fmt.Fprintf(&b, "\n- %s: %s", k, v)
		}
	}
	return b.String()
}

// buildTools exposes the role's capability set plus the transfer tool for
// its permitted handoff targets.
func buildTools(req DecideRequest) []model.ToolDefinition {
	tools := make([]model.ToolDefinition, 0, len(req.Capability)+1)
	for _, spec := range req.Capability {
		tools = append(tools, model.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		})
	}
	if len(req.Handoffs) == 0 {
		return tools
	}

	targets := make([]string, 0, len(req.Handoffs))
	var desc strings.Builder
	desc.WriteString("Transfer the conversation to another role better suited to the request. Available roles:")
	for _, h := range req.Handoffs {
		targets = append(targets, h.Name)
		fmt.Fprintf(&desc, "\n- %s: %s", h.Name, h.Description)
	}
	tools = append(tools, model.ToolDefinition{
		Name:        handoffToolName,
		Description: desc.String(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"role": map[string]any{"type": "string", "enum": targets, "description": "Target role name"},
			},
			"required": []string{"role"},
		},
	})
	return tools
}
