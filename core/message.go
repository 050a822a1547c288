package core

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies the conversational author class of a message.
type Role string

const (
	// RoleUser marks messages supplied by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the model.
	RoleAssistant Role = "assistant"
	// RoleTool marks messages carrying tool execution results.
	RoleTool Role = "tool"
)

// Message is one canonical conversation entry. After being appended to a
// conversation log it is treated as immutable; ordering within Parts is
// significant (text before/after tool-call blocks must round-trip through
// backend conversion).
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
	Agent string `json:"agent,omitempty"` // Owning agent name, if any
}

// NewUserMessage creates a user-authored text message owned by the given agent.
func NewUserMessage(agent, text string) Message {
	return Message{
		ID:    NewID(),
		Role:  RoleUser,
		Parts: []Part{TextPart{Text: text}},
		Agent: agent,
	}
}

// NewAssistantMessage creates an assistant message with arbitrary parts.
func NewAssistantMessage(agent string, parts ...Part) Message {
	return Message{
		ID:    NewID(),
		Role:  RoleAssistant,
		Parts: parts,
		Agent: agent,
	}
}

// NewToolResultMessage records the outcome of a single tool call.
func NewToolResultMessage(agent, toolCallID, content string, isError bool) Message {
	return Message{
		ID:   NewID(),
		Role: RoleTool,
		Parts: []Part{ToolResultPart{ToolResult: ToolResult{
			ToolCallID: toolCallID,
			Content:    content,
			IsError:    isError,
		}}},
		Agent: agent,
	}
}

// Text concatenates all text parts preserving order.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// ToolCalls returns any tool call parts in their original order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.ToolCall)
		}
	}
	return calls
}

// ToolResults returns any tool result parts in their original order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.ToolResult)
		}
	}
	return results
}

// Clone returns a copy with an independent Parts slice. Part values are value
// types so a shallow element copy is sufficient.
func (m Message) Clone() Message {
	clone := m
	clone.Parts = make([]Part, len(m.Parts))
	copy(clone.Parts, m.Parts)
	return clone
}

// NewID generates a unique identifier for messages and conversations.
func NewID() string { return uuid.NewString() }
