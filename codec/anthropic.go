package codec

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
)

// AnthropicCodec maps canonical messages to and from the Anthropic Messages
// API schema. Tool results ride inside user messages as tool_result blocks;
// thinking parts map to native thinking blocks.
type AnthropicCodec struct{}

// Convert implements Codec.
func (AnthropicCodec) Convert(msgs []core.Message) ([]any, error) {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleAssistant:
			if blocks := anthropicAssistantBlocks(m); len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range m.ToolResults() {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		default:
			var blocks []anthropic.ContentBlockParamUnion
			for _, p := range m.Parts {
				if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(tp.Text))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return out, nil
}

// anthropicAssistantBlocks renders assistant parts preserving their order.
func anthropicAssistantBlocks(m core.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range m.Parts {
		switch part := p.(type) {
		case core.ThinkingPart:
			blocks = append(blocks, anthropic.NewThinkingBlock(part.Signature, part.Text))
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolCallPart:
			blocks = append(blocks, anthropic.NewToolUseBlock(
				part.ToolCall.ID,
				toolInput(part.ToolCall.Arguments),
				part.ToolCall.Name,
			))
		}
	}
	return blocks
}

// toolInput turns serialized JSON arguments into the value the SDK marshals
// back verbatim. Empty arguments become an empty object.
func toolInput(arguments string) any {
	if arguments == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(arguments)
}

// Standardize implements Codec.
func (AnthropicCodec) Standardize(raw []any, owningAgent string) ([]core.Message, error) {
	var out []core.Message
	for _, r := range raw {
		mp, ok := r.(anthropic.MessageParam)
		if !ok {
			out = append(out, core.Message{ID: core.NewID(), Role: core.RoleUser, Agent: owningAgent})
			continue
		}
		if mp.Role == anthropic.MessageParamRoleAssistant {
			out = append(out, core.Message{
				ID:    core.NewID(),
				Role:  core.RoleAssistant,
				Parts: anthropicAssistantParts(mp),
				Agent: owningAgent,
			})
			continue
		}
		out = append(out, anthropicUserMessages(mp, owningAgent)...)
	}
	return out, nil
}

func anthropicAssistantParts(mp anthropic.MessageParam) []core.Part {
	var parts []core.Part
	for _, b := range mp.Content {
		switch {
		case b.OfThinking != nil:
			parts = append(parts, core.ThinkingPart{
				Text:      b.OfThinking.Thinking,
				Signature: b.OfThinking.Signature,
			})
		case b.OfText != nil:
			parts = append(parts, core.TextPart{Text: b.OfText.Text})
		case b.OfToolUse != nil:
			parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
				ID:        b.OfToolUse.ID,
				Name:      b.OfToolUse.Name,
				Arguments: marshalToolInput(b.OfToolUse.Input),
			}})
		}
	}
	return parts
}

// anthropicUserMessages splits a user wire message back into canonical user
// text and per-call tool result messages.
func anthropicUserMessages(mp anthropic.MessageParam, owningAgent string) []core.Message {
	var textParts []core.Part
	var results []core.ToolResult
	for _, b := range mp.Content {
		switch {
		case b.OfText != nil:
			textParts = append(textParts, core.TextPart{Text: b.OfText.Text})
		case b.OfToolResult != nil:
			results = append(results, core.ToolResult{
				ToolCallID: b.OfToolResult.ToolUseID,
				Content:    toolResultText(b.OfToolResult.Content),
				IsError:    b.OfToolResult.IsError.Or(false),
			})
		}
	}

	var out []core.Message
	if len(textParts) > 0 {
		out = append(out, core.Message{ID: core.NewID(), Role: core.RoleUser, Parts: textParts, Agent: owningAgent})
	}
	for _, tr := range results {
		out = append(out, core.Message{
			ID:    core.NewID(),
			Role:  core.RoleTool,
			Parts: []core.Part{core.ToolResultPart{ToolResult: tr}},
			Agent: owningAgent,
		})
	}
	if len(out) == 0 {
		out = append(out, core.Message{ID: core.NewID(), Role: core.RoleUser, Agent: owningAgent})
	}
	return out
}

func toolResultText(content []anthropic.ToolResultBlockParamContentUnion) string {
	var text string
	for _, c := range content {
		if c.OfText != nil {
			text += c.OfText.Text
		}
	}
	return text
}

func marshalToolInput(input any) string {
	switch v := input.(type) {
	case nil:
		return ""
	case json.RawMessage:
		return string(v)
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ConvertToolDefinition implements Codec.
func (AnthropicCodec) ConvertToolDefinition(def backend.ToolDefinition) any {
	schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
	if def.Parameters != nil {
		if props, ok := def.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if req := util.RequiredFields(def.Parameters); len(req) > 0 {
			schema.Required = req
		}
	}

	tp := anthropic.ToolParam{Name: def.Name, InputSchema: schema}
	if def.Description != "" {
		tp.Description = anthropic.String(def.Description)
	}
	return anthropic.ToolUnionParam{OfTool: &tp}
}
