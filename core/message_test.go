package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Accessors(t *testing.T) {
	msg := NewAssistantMessage("Researcher",
		TextPart{Text: "Let me "},
		ToolCallPart{ToolCall: ToolCall{ID: "c1", Name: "search", Arguments: `{"q":"go"}`}},
		TextPart{Text: "check."},
	)

	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "Researcher", msg.Agent)
	assert.Equal(t, "Let me check.", msg.Text())

	calls := msg.ToolCalls()
	assert.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Empty(t, msg.ToolResults())
}

func TestMessage_ToolResult(t *testing.T) {
	msg := NewToolResultMessage("Assistant", "c1", "boom", true)

	assert.Equal(t, RoleTool, msg.Role)
	results := msg.ToolResults()
	assert.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "boom", results[0].Content)
}

func TestMessage_CloneIsIndependent(t *testing.T) {
	msg := NewUserMessage("Assistant", "hi")
	clone := msg.Clone()
	clone.Parts[0] = TextPart{Text: "changed"}

	assert.Equal(t, "hi", msg.Text())
	assert.Equal(t, "changed", clone.Text())
}

func TestNewID_Unique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
