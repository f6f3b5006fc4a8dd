// Package llm provides an abstraction for language-model providers.
package llm

import (
	"context"
	"encoding/json"
)

// ChatMessage represents a chat message in the provider's role vocabulary.
type ChatMessage struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Completion is the result of a single model call.
type Completion struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Client defines the interface for model-provider operations. Swappable
// implementations must behave identically with respect to the role
// alternation the orchestrator builds.
type Client interface {
	// Complete sends the conversation and optional tool definitions, and
	// returns the model's text plus any tool invocations it requested.
	Complete(ctx context.Context, messages []ChatMessage, tools []ToolDef) (*Completion, error)
}

// Ensure implementations satisfy the interface.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MockClient)(nil)
)
