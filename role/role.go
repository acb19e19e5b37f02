// Package role implements the handoff routing graph: named routing roles
// with fixed capability sets, directed handoff edges, and the per-turn
// execution loop that lets the active role reply, invoke capability tasks,
// or hand the turn to a permitted target role.
package role

import (
	"github.com/wealthmesh/wealthmesh/capability"
)

// Role is a named node in the handoff graph. Roles are immutable
// configuration, constructed once per session instantiation (or restart);
// the capability set and permitted handoff targets are fixed for the life of
// the graph.
type Role struct {
	name         string
	description  string
	instruction  string
	capabilities []capability.Task
	handoffs     []string
}

// RoleOptions configures a Role at construction time.
type RoleOptions struct {
	// Description is the short handoff description other roles see when
	// deciding whether to delegate here.
	Description string
	// Instruction is the role's turn-logic instruction text.
	Instruction string
	// Capabilities is the ordered list of invocable task units.
	Capabilities []capability.Task
	// Handoffs names the permitted delegation targets. Conventionally
	// includes a path back to the default role.
	Handoffs []string
}

// NewRole constructs an immutable Role.
func NewRole(name string, optFns ...func(o *RoleOptions)) *Role {
	opts := RoleOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	r := &Role{
		name:        name,
		description: opts.Description,
		instruction: opts.Instruction,
		handoffs:    append([]string(nil), opts.Handoffs...),
	}
	r.capabilities = append(r.capabilities, opts.Capabilities...)
	return r
}

// Name returns the role's graph-unique name.
func (r *Role) Name() string { return r.name }

// Description returns the handoff description.
func (r *Role) Description() string { return r.description }

// Instruction returns the role's instruction text.
func (r *Role) Instruction() string { return r.instruction }

// Capabilities returns the ordered capability set (shared slice; callers
// must not mutate).
func (r *Role) Capabilities() []capability.Task { return r.capabilities }

// Handoffs returns the permitted handoff target names.
func (r *Role) Handoffs() []string { return r.handoffs }

// Capability returns the named task or nil.
func (r *Role) Capability(name string) capability.Task {
	for _, t := range r.capabilities {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// PermitsHandoff reports whether target is a permitted delegation target.
func (r *Role) PermitsHandoff(target string) bool {
	for _, h := range r.handoffs {
		if h == target {
			return true
		}
	}
	return false
}
