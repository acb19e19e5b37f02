package core

import "time"

// ChatInteraction is one request/response pair in a session's observable
// history. Exactly one interaction is appended per successfully processed
// user message, including admission-gate rejections (where TextResponse is
// the fixed refusal and Trace records the rejection reason).
type ChatInteraction struct {
	ID                 string    `json:"id"`
	UserPrompt         string    `json:"user_prompt"`
	TextResponse       string    `json:"text_response"`
	StructuredResponse string    `json:"structured_response,omitempty"`
	Trace              string    `json:"trace,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewChatInteraction creates an interaction for the given prompt with a fresh
// ID and UTC timestamp. Response fields are filled in as the turn progresses.
func NewChatInteraction(prompt string) ChatInteraction {
	return ChatInteraction{
		ID:         NewID(),
		UserPrompt: prompt,
		Timestamp:  time.Now().UTC(),
	}
}

// StatusUpdate is an externally persisted notification produced while
// draining an ExternalStatus event. Status updates are not part of the chat
// interaction history; they feed the front-end event stream.
type StatusUpdate struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStatusUpdate creates a status update stamped with the current UTC time.
func NewStatusUpdate(status string) StatusUpdate {
	return StatusUpdate{Status: status, Timestamp: time.Now().UTC()}
}
