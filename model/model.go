// Package model defines the language-model boundary: a vendor-neutral
// completion interface plus the tool-definition structures flows hand to it.
// The orchestration core never talks to a provider SDK directly; it depends
// on Model so deterministic substitutes can be injected in tests.
package model

import (
	"context"
	"strings"

	"github.com/wealthmesh/wealthmesh/core"
)

// ToolDefinition declaratively exposes an invocable capability to the model.
// Parameters is a JSON-schema subset (object/properties/required).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by a routing turn.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed model turn: either assistant text, one or more
// requested tool calls, or both.
type Response struct {
	Text         string             `json:"text,omitempty"`
	ToolCalls    []core.ToolCallRef `json:"tool_calls,omitempty"`
	FinishReason string             `json:"finish_reason,omitempty"`
	Usage        *TokenUsage        `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive role decisions and the
// admission classifier.
type Model interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests. Responses are
// keyed by the content of the last user message in the request.
type MockModel struct {
	info      Info
	responses map[string]*Response
	fallback  *Response
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]*Response),
		fallback:  &Response{Text: "ok", FinishReason: "stop"},
	}
}

// AddResponse registers a canned response for an input prompt.
func (m *MockModel) AddResponse(prompt string, resp Response) {
	m.responses[prompt] = &resp
}

// SetFallback overrides the response returned for unregistered prompts.
func (m *MockModel) SetFallback(resp Response) { m.fallback = &resp }

// Complete implements Model.
func (m *MockModel) Complete(_ context.Context, req Request) (*Response, error) {
	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == core.RoleUser {
			lastUser = strings.TrimSpace(msg.Content)
		}
	}
	if resp, ok := m.responses[lastUser]; ok {
		cp := *resp
		return &cp, nil
	}
	cp := *m.fallback
	return &cp, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
