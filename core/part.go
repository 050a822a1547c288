package core

// Part represents a polymorphic segment of message content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`                  // Backend-assigned call id (correlates result)
	Name      string `json:"name"`                // Tool name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument payload
}

// ToolCallPart wraps a ToolCall as a content part.
type ToolCallPart struct {
	ToolCall ToolCall
}

// isPart implements the Part interface for ToolCallPart.
func (ToolCallPart) isPart() {}

// ToolResult describes the outcome of a previously requested tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`       // Matches originating ToolCall.ID
	Content    string `json:"content"`            // Result payload or error text
	IsError    bool   `json:"is_error,omitempty"` // True when the handler failed
}

// ToolResultPart wraps a ToolResult as a content part.
type ToolResultPart struct {
	ToolResult ToolResult
}

// isPart implements the Part interface for ToolResultPart.
func (ToolResultPart) isPart() {}

// ThinkingPart carries a reasoning trace for backends that emit one. Backends
// without reasoning support drop this part on conversion.
type ThinkingPart struct {
	Text      string
	Signature string // Provider-issued integrity signature, if any
}

// isPart implements the Part interface for ThinkingPart.
func (ThinkingPart) isPart() {}
