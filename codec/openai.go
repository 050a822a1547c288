package codec

import (
	"strings"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/core"
	"github.com/openai/openai-go"
)

// errorResultPrefix marks error-flagged tool results on backends without a
// native error field. The reverse mapping strips it, which is lossy when a
// successful result legitimately starts with the same text; this is a known
// round-trip edge, not something the codec attempts to repair.
const errorResultPrefix = "ERROR: "

// OpenAICodec maps canonical messages to and from the OpenAI Chat Completions
// schema. Tool calls become the assistant message's sibling tool_calls array
// with stringified-JSON arguments; tool results become role=tool messages.
// Thinking parts have no representation and are dropped on conversion.
type OpenAICodec struct{}

// Convert implements Codec.
func (OpenAICodec) Convert(msgs []core.Message) ([]any, error) {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleAssistant:
			out = append(out, openaiAssistantMessage(m))
		case core.RoleTool:
			for _, tr := range m.ToolResults() {
				content := tr.Content
				if tr.IsError {
					content = errorResultPrefix + content
				}
				out = append(out, openai.ToolMessage(content, tr.ToolCallID))
			}
		default:
			if text := m.Text(); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		}
	}
	return out, nil
}

func openaiAssistantMessage(m core.Message) openai.ChatCompletionMessageParamUnion {
	text := m.Text()
	calls := m.ToolCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(text)
	}

	toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, tc := range calls {
		toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		}
	}

	assistant := openai.ChatCompletionAssistantMessageParam{
		Role:      "assistant",
		ToolCalls: toolCalls,
	}
	if text != "" {
		assistant.Content.OfString = openai.String(text)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// Standardize implements Codec.
func (OpenAICodec) Standardize(raw []any, owningAgent string) ([]core.Message, error) {
	var out []core.Message
	for _, r := range raw {
		u, ok := r.(openai.ChatCompletionMessageParamUnion)
		if !ok {
			out = append(out, core.Message{ID: core.NewID(), Role: core.RoleUser, Agent: owningAgent})
			continue
		}
		switch {
		case u.OfSystem != nil:
			// System prompts are carried out of band on the connection.
			continue
		case u.OfAssistant != nil:
			out = append(out, openaiAssistantCanonical(u.OfAssistant, owningAgent))
		case u.OfTool != nil:
			content := u.OfTool.Content.OfString.Or("")
			isError := strings.HasPrefix(content, errorResultPrefix)
			if isError {
				content = strings.TrimPrefix(content, errorResultPrefix)
			}
			out = append(out, core.Message{
				ID:   core.NewID(),
				Role: core.RoleTool,
				Parts: []core.Part{core.ToolResultPart{ToolResult: core.ToolResult{
					ToolCallID: u.OfTool.ToolCallID,
					Content:    content,
					IsError:    isError,
				}}},
				Agent: owningAgent,
			})
		case u.OfUser != nil:
			var parts []core.Part
			if text := u.OfUser.Content.OfString.Or(""); text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
			out = append(out, core.Message{ID: core.NewID(), Role: core.RoleUser, Parts: parts, Agent: owningAgent})
		default:
			out = append(out, core.Message{ID: core.NewID(), Role: core.RoleUser, Agent: owningAgent})
		}
	}
	return out, nil
}

func openaiAssistantCanonical(a *openai.ChatCompletionAssistantMessageParam, owningAgent string) core.Message {
	var parts []core.Part
	if text := a.Content.OfString.Or(""); text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, tc := range a.ToolCalls {
		parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}
	return core.Message{ID: core.NewID(), Role: core.RoleAssistant, Parts: parts, Agent: owningAgent}
}

// ConvertToolDefinition implements Codec.
func (OpenAICodec) ConvertToolDefinition(def backend.ToolDefinition) any {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  def.Parameters,
		},
	}
}
