package agent

import (
	"encoding/json"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolSpec is the provider-neutral description of a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Event is emitted by a running session. It is either a ToolCallEvent or a
// ToolResultEvent.
type Event interface {
	event()
}

// ToolCallEvent is emitted right before a tool is invoked. CallID is unique
// within a session and strictly increasing from 1.
type ToolCallEvent struct {
	CallID    uint64
	ToolName  string
	Arguments map[string]any
	IssuedAt  time.Time
}

// ToolResultEvent answers the ToolCallEvent with the same CallID. Err is set
// when the call failed in transport; tool-level failures arrive as Output
// with IsError set.
type ToolResultEvent struct {
	CallID      uint64
	ToolName    string
	Output      json.RawMessage
	IsError     bool
	Err         error
	CompletedAt time.Time
}

func (ToolCallEvent) event()   {}
func (ToolResultEvent) event() {}
