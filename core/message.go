package core

// Transcript message roles. The transcript is the accepted-message history
// handed to the model boundary; it is what checkpoints carry forward, not
// the externally persisted ChatInteraction history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCallRef identifies a capability invocation recorded in the transcript.
// Arguments is the serialized (JSON) argument payload.
type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is a single transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Name carries the capability name for RoleTool entries.
	Name string `json:"name,omitempty"`
	// ToolCallID pairs a RoleTool entry with the originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolCalls records capability invocations requested by an assistant entry.
	ToolCalls []ToolCallRef `json:"tool_calls,omitempty"`
}

// NewUserMessageEntry creates a user-authored transcript entry.
func NewUserMessageEntry(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewAssistantMessageEntry creates an assistant-authored transcript entry.
func NewAssistantMessageEntry(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// NewToolCallEntry records an assistant-requested capability invocation.
func NewToolCallEntry(call ToolCallRef) Message {
	return Message{Role: RoleAssistant, ToolCalls: []ToolCallRef{call}}
}

// NewToolResultEntry records a capability result in the transcript so later
// turns (and restarts) can re-derive state without re-executing the task.
func NewToolResultEntry(callID, name, output string) Message {
	return Message{Role: RoleTool, Content: output, Name: name, ToolCallID: callID}
}

// CloneMessages returns a defensive copy of a transcript slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
