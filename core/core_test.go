package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingEventVariants(t *testing.T) {
	events := []PendingEvent{
		UserMessage{Text: "hello"},
		ExternalStatus{Text: "kyc verified"},
	}

	// Exhaustive dispatch over the closed set.
	var kinds []string
	for _, ev := range events {
		switch ev.(type) {
		case UserMessage:
			kinds = append(kinds, "user")
		case ExternalStatus:
			kinds = append(kinds, "status")
		}
	}
	assert.Equal(t, []string{"user", "status"}, kinds)
}

func TestRoutingContextClone(t *testing.T) {
	ctx := RoutingContext{"client_id": "c-1"}
	clone := ctx.Clone()
	clone["client_id"] = "c-2"
	clone["extra"] = "x"

	assert.Equal(t, "c-1", ctx["client_id"])
	assert.NotContains(t, ctx, "extra")
}

func TestCloneMessagesIsIndependent(t *testing.T) {
	original := []Message{
		NewUserMessageEntry("hi"),
		NewAssistantMessageEntry("hello"),
	}
	clone := CloneMessages(original)
	clone[0].Content = "changed"
	clone = append(clone, NewUserMessageEntry("more"))

	assert.Equal(t, "hi", original[0].Content)
	assert.Len(t, original, 2)
}

func TestToolEntries(t *testing.T) {
	call := ToolCallRef{ID: "call-1", Name: "list_beneficiaries", Arguments: `{"client_id":"c-1"}`}

	callEntry := NewToolCallEntry(call)
	assert.Equal(t, RoleAssistant, callEntry.Role)
	require.Len(t, callEntry.ToolCalls, 1)
	assert.Equal(t, "call-1", callEntry.ToolCalls[0].ID)

	resultEntry := NewToolResultEntry("call-1", "list_beneficiaries", `[]`)
	assert.Equal(t, RoleTool, resultEntry.Role)
	assert.Equal(t, "call-1", resultEntry.ToolCallID)
	assert.Equal(t, `[]`, resultEntry.Content)
}

func TestNewChatInteraction(t *testing.T) {
	a := NewChatInteraction("prompt")
	b := NewChatInteraction("prompt")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "prompt", a.UserPrompt)
	assert.False(t, a.Timestamp.IsZero())
}

func TestCheckpointSerializationRoundTrip(t *testing.T) {
	cp := Checkpoint{
		SessionID:  "s-1",
		ActiveRole: "investment",
		Transcript: []Message{NewUserMessageEntry("hi")},
		Context:    RoutingContext{"client_id": "c-1"},
		Pending: []PendingEvent{
			UserMessage{Text: "queued question"},
			ExternalStatus{Text: "KYC verification complete."},
		},
	}

	data, err := json.Marshal(cp)
	require.NoError(t, err)

	var decoded Checkpoint
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "s-1", decoded.SessionID)
	assert.Equal(t, "investment", decoded.ActiveRole)
	require.Len(t, decoded.Transcript, 1)
	assert.Equal(t, "c-1", decoded.Context["client_id"])

	// Pending events survive in order with their concrete types intact.
	require.Len(t, decoded.Pending, 2)
	msg, ok := decoded.Pending[0].(UserMessage)
	require.True(t, ok)
	assert.Equal(t, "queued question", msg.Text)
	status, ok := decoded.Pending[1].(ExternalStatus)
	require.True(t, ok)
	assert.Equal(t, "KYC verification complete.", status.Text)
}

func TestCheckpointUnmarshalUnknownEventKind(t *testing.T) {
	var cp Checkpoint
	err := json.Unmarshal([]byte(`{"session_id":"s-1","pending":[{"kind":"telemetry","text":"x"}]}`), &cp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry")
}
