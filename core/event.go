package core

import "github.com/google/uuid"

// PendingEvent represents an inbound item awaiting a session turn. Concrete
// event types implement the unexported isPendingEvent marker enabling a
// closed set; dispatch code switches exhaustively over the two variants.
type PendingEvent interface{ isPendingEvent() }

// UserMessage is an end-user chat message. It passes the admission gate
// before routing.
type UserMessage struct {
	Text string `json:"text"`
}

// isPendingEvent implements the PendingEvent interface for UserMessage.
func (UserMessage) isPendingEvent() {}

// ExternalStatus is a status notification originating from trusted internal
// coordination (e.g. a dependent account-opening process). It bypasses the
// admission gate and the routing graph entirely.
type ExternalStatus struct {
	Text string `json:"text"`
}

// isPendingEvent implements the PendingEvent interface for ExternalStatus.
func (ExternalStatus) isPendingEvent() {}

// NewID generates a new unique identifier for interactions, claim-check
// tokens and turn correlation.
func NewID() string { return uuid.NewString() }
