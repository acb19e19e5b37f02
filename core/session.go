package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// RoutingContext is free-form key/value state visible to every routing role
// in a session (for example the client id a specialist asked for). Values are
// strings so the context serializes cleanly across checkpoint boundaries.
type RoutingContext map[string]string

// Clone returns a defensive copy.
func (c RoutingContext) Clone() RoutingContext {
	out := make(RoutingContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Checkpoint is the carry-over state written at compaction time. It holds the
// accepted-message transcript (model context), not the full interaction
// history, which is persisted externally before compaction. Reconstructing a
// session from a checkpoint plus the external history must be
// indistinguishable, to external callers, from the pre-compaction session.
type Checkpoint struct {
	SessionID  string
	ActiveRole string
	Transcript []Message
	Context    RoutingContext
	Pending    []PendingEvent
}

// checkpointJSON is the wire form of a Checkpoint. Pending events are
// kind-tagged so the interface slice survives serialization; synchronous
// reply channels do not, callers waiting across a crash see their context
// expire.
type checkpointJSON struct {
	SessionID  string             `json:"session_id"`
	ActiveRole string             `json:"active_role"`
	Transcript []Message          `json:"transcript"`
	Context    RoutingContext     `json:"context,omitempty"`
	Pending    []pendingEventJSON `json:"pending,omitempty"`
}

type pendingEventJSON struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

const (
	eventKindUserMessage    = "user_message"
	eventKindExternalStatus = "external_status"
)

// MarshalJSON implements json.Marshaler.
func (cp Checkpoint) MarshalJSON() ([]byte, error) {
	out := checkpointJSON{
		SessionID:  cp.SessionID,
		ActiveRole: cp.ActiveRole,
		Transcript: cp.Transcript,
		Context:    cp.Context,
	}
	for _, ev := range cp.Pending {
		switch ev := ev.(type) {
		case UserMessage:
			out.Pending = append(out.Pending, pendingEventJSON{Kind: eventKindUserMessage, Text: ev.Text})
		case ExternalStatus:
			out.Pending = append(out.Pending, pendingEventJSON{Kind: eventKindExternalStatus, Text: ev.Text})
		default:
			return nil, fmt.Errorf("core: unknown pending event type %T", ev)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (cp *Checkpoint) UnmarshalJSON(data []byte) error {
	var in checkpointJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*cp = Checkpoint{
		SessionID:  in.SessionID,
		ActiveRole: in.ActiveRole,
		Transcript: in.Transcript,
		Context:    in.Context,
	}
	for _, ev := range in.Pending {
		switch ev.Kind {
		case eventKindUserMessage:
			cp.Pending = append(cp.Pending, UserMessage{Text: ev.Text})
		case eventKindExternalStatus:
			cp.Pending = append(cp.Pending, ExternalStatus{Text: ev.Text})
		default:
			return fmt.Errorf("core: unknown pending event kind %q", ev.Kind)
		}
	}
	return nil
}

// HistoryStore persists the observable session record: ordered chat
// interactions plus status updates, keyed by session id. It is written after
// every turn and read on cold-start to serve history before any event has
// been drained. Implementations must support independent-key concurrent
// access without cross-session locking.
type HistoryStore interface {
	AppendInteraction(ctx context.Context, sessionID string, interaction ChatInteraction) error
	AppendStatus(ctx context.Context, sessionID string, status StatusUpdate) error
	Read(ctx context.Context, sessionID string) ([]ChatInteraction, error)
	Delete(ctx context.Context, sessionID string) error
}

// CheckpointStore persists checkpoint records across compaction restarts.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, sessionID string) (Checkpoint, bool, error)
	Delete(ctx context.Context, sessionID string) error
}
