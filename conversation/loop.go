package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/codec"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	FinalText    string
	InputTokens  int
	OutputTokens int
}

// ToolRoundLimitError reports a turn aborted because the backend kept
// requesting tool calls past the configured cap. The log retains every fully
// appended message.
type ToolRoundLimitError struct {
	Limit int
}

func (e *ToolRoundLimitError) Error() string {
	return fmt.Sprintf("turn exceeded %d tool-call rounds", e.Limit)
}

// pendingCall accumulates one streamed tool call: an id+name start chunk
// followed by argument fragments concatenated in arrival order.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// RunTurn executes one logical turn: append the user message, stream the
// active backend's response, execute any requested tools and repeat until a
// response arrives with no tool calls. A stream error aborts the turn leaving
// the log exactly as of the last fully appended message; a tool handler
// failure does not abort, it becomes an error-flagged result the model sees
// on the next round.
func (c *Conversation) RunTurn(ctx context.Context, userInput string) (*TurnResult, error) {
	cur := c.agents.Current()
	if cur == nil {
		return nil, fmt.Errorf("no agent registered")
	}

	c.append(core.NewUserMessage(cur.Name(), userInput))
	boundary := len(c.log)

	result, err := c.runRounds(ctx)
	if err != nil {
		return nil, err
	}

	c.turns = append(c.turns, Turn{AnchorIndex: boundary - 1, BoundaryIndex: boundary})
	if err := c.persistTurn(); err != nil {
		return nil, err
	}

	c.logger.Info("conversation.turn_complete",
		"turns", len(c.turns),
		"log_len", len(c.log),
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
	)
	return result, nil
}

// ResumeTurn retries an aborted turn without appending a new user message.
// It picks the loop up from the last fully appended message, so a turn that
// failed on a transient stream error can be completed after the backend
// recovers. Calling it with no pending user message is an error.
func (c *Conversation) ResumeTurn(ctx context.Context) (*TurnResult, error) {
	if c.agents.Current() == nil {
		return nil, fmt.Errorf("no agent registered")
	}
	anchor := -1
	for i := len(c.log) - 1; i >= 0; i-- {
		if c.log[i].Role == core.RoleUser {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return nil, fmt.Errorf("nothing to resume")
	}
	if n := len(c.turns); n > 0 && anchor <= c.turns[n-1].AnchorIndex {
		return nil, fmt.Errorf("nothing to resume")
	}

	result, err := c.runRounds(ctx)
	if err != nil {
		return nil, err
	}

	c.turns = append(c.turns, Turn{AnchorIndex: anchor, BoundaryIndex: anchor + 1})
	if err := c.persistTurn(); err != nil {
		return nil, err
	}

	c.logger.Info("conversation.turn_resumed", "turns", len(c.turns), "log_len", len(c.log))
	return result, nil
}

// runRounds drives the model/tool loop until a terminal response or the
// round cap. Expressed as an explicit loop so termination and cancellation
// stay visible and stack usage stays constant.
func (c *Conversation) runRounds(ctx context.Context) (*TurnResult, error) {
	result := &TurnResult{}

	for round := 0; round < c.maxToolRounds; round++ {
		cur := c.agents.Current()
		conn := cur.Connection()

		wire, err := codec.Convert(cur.History(), conn.BackendID())
		if err != nil {
			return nil, err
		}

		acc, err := c.consumeStream(ctx, conn, backend.Request{Messages: wire}, result)
		if err != nil {
			return nil, err
		}

		if len(acc.calls) == 0 {
			text := acc.text.String()
			if text == "" {
				// Some backends reject an empty assistant content block.
				text = " "
			}
			parts := acc.thinkingParts()
			parts = append(parts, core.TextPart{Text: text})
			c.append(core.NewAssistantMessage(cur.Name(), parts...))
			result.FinalText = text
			return result, nil
		}

		if err := c.executeCalls(ctx, cur.Name(), acc); err != nil {
			return nil, err
		}
	}

	return nil, &ToolRoundLimitError{Limit: c.maxToolRounds}
}

// accumulator gathers one stream's deltas into final content state.
type accumulator struct {
	text      strings.Builder
	thinking  strings.Builder
	signature string
	calls     []*pendingCall
	byID      map[string]*pendingCall
}

func (a *accumulator) thinkingParts() []core.Part {
	if a.thinking.Len() == 0 {
		return nil
	}
	return []core.Part{core.ThinkingPart{Text: a.thinking.String(), Signature: a.signature}}
}

// consumeStream drains one backend stream in arrival order. Cancellation
// stops consumption before anything is appended, so no partial content part
// is ever committed to the log.
func (c *Conversation) consumeStream(
	ctx context.Context,
	conn backend.Connection,
	req backend.Request,
	result *TurnResult,
) (*accumulator, error) {
	deltas, errCh := conn.Stream(ctx, req)
	acc := &accumulator{byID: make(map[string]*pendingCall)}

	for deltas != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case d, ok := <-deltas:
			if !ok {
				deltas = nil
				continue
			}
			switch v := d.(type) {
			case backend.TextDelta:
				acc.text.WriteString(v.Text)
			case backend.ThinkingDelta:
				acc.thinking.WriteString(v.Text)
				if v.Signature != "" {
					acc.signature = v.Signature
				}
			case backend.ToolCallStart:
				pc := &pendingCall{id: v.ID, name: v.Name}
				acc.calls = append(acc.calls, pc)
				acc.byID[v.ID] = pc
			case backend.ToolCallArgFragment:
				if pc, ok := acc.byID[v.ID]; ok {
					pc.args.WriteString(v.Fragment)
				}
			case backend.UsageDelta:
				result.InputTokens += v.InputTokens
				result.OutputTokens += v.OutputTokens
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("backend stream: %w", err)
			}
		}
	}

	return acc, nil
}

// executeCalls appends the assistant message carrying the accumulated tool
// calls, then runs each call in arrival order appending a result message per
// call. After the transfer tool runs, the active agent is re-resolved so the
// remainder of the turn acts on behalf of the new agent.
func (c *Conversation) executeCalls(ctx context.Context, actingAgent string, acc *accumulator) error {
	parts := acc.thinkingParts()
	if text := acc.text.String(); text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, pc := range acc.calls {
		parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: pc.args.String(),
		}})
	}
	c.append(core.NewAssistantMessage(actingAgent, parts...))

	owner := actingAgent
	for _, pc := range acc.calls {
		handler, err := c.tools.ResolveHandler(pc.name)
		if err != nil {
			// A missing handler is a configuration bug, not model input.
			return err
		}

		content, isError := c.invokeHandler(ctx, handler, pc)
		if pc.name == tool.TransferToolName && !isError {
			if cur := c.agents.Current(); cur != nil {
				owner = cur.Name()
			}
		}
		c.append(core.NewToolResultMessage(owner, pc.id, content, isError))

		c.logger.Debug("conversation.tool_executed", "tool", pc.name, "error", isError)
	}
	return nil
}

// invokeHandler decodes arguments and runs one handler, converting any
// failure into error-flagged result content.
func (c *Conversation) invokeHandler(ctx context.Context, handler tool.Handler, pc *pendingCall) (string, bool) {
	args := map[string]any{}
	if raw := pc.args.String(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return fmt.Sprintf("invalid tool arguments: %v", err), true
		}
	}

	out, err := handler(ctx, args)
	if err != nil {
		return err.Error(), true
	}
	return stringifyResult(out), false
}

func stringifyResult(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
