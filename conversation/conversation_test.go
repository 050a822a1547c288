package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/codec"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/store"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newConversation wires a tool registry, an agent registry and a conversation
// around a single agent on the given connection.
func newConversation(t *testing.T, conn backend.Connection, optFns ...func(o *Options)) (*Conversation, *agent.Registry, *tool.Registry) {
	t.Helper()
	tools := tool.NewRegistry()
	agents := agent.NewRegistry(tools)
	conv, err := New(agents, tools, optFns...)
	require.NoError(t, err)
	require.NoError(t, agents.Register(agent.New("Assistant", "general assistant",
		"You are helpful.", conn)))
	return conv, agents, tools
}

func textScript(fragments ...string) backend.Script {
	deltas := make([]backend.Delta, 0, len(fragments))
	for _, f := range fragments {
		deltas = append(deltas, backend.TextDelta{Text: f})
	}
	return backend.Script{Deltas: deltas}
}

func toolCallScript(id, name, args string) backend.Script {
	return backend.Script{Deltas: []backend.Delta{
		backend.ToolCallStart{ID: id, Name: name},
		backend.ToolCallArgFragment{ID: id, Fragment: args},
	}}
}

func clockRegistration() tool.Registration {
	return tool.NewFunction("clock", "Return the current time",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (any, error) { return "12:00", nil })
}

func TestRunTurn_PlainText(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		textScript("Hello", ", world!"))
	conv, _, _ := newConversation(t, conn)

	result, err := conv.RunTurn(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", result.FinalText)

	log := conv.Log()
	require.Len(t, log, 2)
	assert.Equal(t, core.RoleUser, log[0].Role)
	assert.Equal(t, "Hi", log[0].Text())
	assert.Equal(t, core.RoleAssistant, log[1].Role)
	assert.Equal(t, "Assistant", log[1].Agent)

	turns := conv.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, 0, turns[0].AnchorIndex)
	assert.Equal(t, 1, turns[0].BoundaryIndex)
}

func TestRunTurn_ToolLoopTerminates(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		backend.Script{Deltas: []backend.Delta{
			backend.TextDelta{Text: "Let me check."},
			backend.ToolCallStart{ID: "call-1", Name: "clock"},
			backend.ToolCallArgFragment{ID: "call-1", Fragment: "{}"},
			backend.UsageDelta{InputTokens: 12, OutputTokens: 9},
		}},
		backend.Script{Deltas: []backend.Delta{
			backend.TextDelta{Text: "It is 12:00."},
			backend.UsageDelta{InputTokens: 21, OutputTokens: 6},
		}},
	)
	conv, _, tools := newConversation(t, conn)
	require.NoError(t, tools.Register(clockRegistration()))

	result, err := conv.RunTurn(context.Background(), "What time is it?")
	require.NoError(t, err)

	assert.Equal(t, "It is 12:00.", result.FinalText)
	assert.Equal(t, 33, result.InputTokens)
	assert.Equal(t, 15, result.OutputTokens)
	assert.Equal(t, 2, conn.StreamCount())

	log := conv.Log()
	require.Len(t, log, 4)
	assert.Equal(t, core.RoleUser, log[0].Role)
	require.Len(t, log[1].ToolCalls(), 1)
	assert.Equal(t, "clock", log[1].ToolCalls()[0].Name)

	results := log[2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "call-1", results[0].ToolCallID)
	assert.Equal(t, "12:00", results[0].Content)
	assert.False(t, results[0].IsError)

	assert.Equal(t, "It is 12:00.", log[3].Text())
	assert.Len(t, conv.Turns(), 1)
}

func TestRunTurn_ArgumentsArriveInFragments(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		backend.Script{Deltas: []backend.Delta{
			backend.ToolCallStart{ID: "call-1", Name: "echo"},
			backend.ToolCallArgFragment{ID: "call-1", Fragment: `{"text": "hel`},
			backend.ToolCallArgFragment{ID: "call-1", Fragment: `lo"}`},
		}},
		textScript("done"),
	)
	conv, _, tools := newConversation(t, conn)

	var got string
	echo := tool.NewFunction("echo", "Echo text back",
		map[string]any{"type": "object", "properties": map[string]any{
			"text": map[string]any{"type": "string"},
		}},
		func(_ context.Context, args map[string]any) (any, error) {
			got, _ = args["text"].(string)
			return got, nil
		})
	require.NoError(t, tools.Register(echo))

	_, err := conv.RunTurn(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	calls := conv.Log()[1].ToolCalls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"text":"hello"}`, calls[0].Arguments)
}

func TestRunTurn_ToolFailureContinuesTurn(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		toolCallScript("call-1", "flaky", "{}"),
		textScript("The tool failed, sorry."),
	)
	conv, _, tools := newConversation(t, conn)
	flaky := tool.NewFunction("flaky", "Always fails", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("kaput")
		})
	require.NoError(t, tools.Register(flaky))

	result, err := conv.RunTurn(context.Background(), "try it")
	require.NoError(t, err)
	assert.Equal(t, "The tool failed, sorry.", result.FinalText)

	log := conv.Log()
	require.Len(t, log, 4)
	results := log[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "kaput")
}

func TestRunTurn_MalformedArgumentsBecomeErrorResult(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		toolCallScript("call-1", "clock", `{"broken`),
		textScript("ok"),
	)
	conv, _, tools := newConversation(t, conn)
	require.NoError(t, tools.Register(clockRegistration()))

	_, err := conv.RunTurn(context.Background(), "go")
	require.NoError(t, err)

	results := conv.Log()[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "invalid tool arguments")
}

func TestRunTurn_UnknownToolAbortsTurn(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		toolCallScript("call-1", "never_registered", "{}"),
	)
	conv, _, _ := newConversation(t, conn)

	_, err := conv.RunTurn(context.Background(), "go")
	var unknown *tool.UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "never_registered", unknown.Name)
	assert.Empty(t, conv.Turns())
}

func TestRunTurn_RoundLimit(t *testing.T) {
	scripts := make([]backend.Script, 4)
	for i := range scripts {
		scripts[i] = toolCallScript("call", "clock", "{}")
	}
	conn := backend.NewScriptedConnection(codec.BackendOpenAI, scripts...)
	conv, _, tools := newConversation(t, conn, func(o *Options) {
		o.MaxToolRounds = 3
	})
	require.NoError(t, tools.Register(clockRegistration()))

	_, err := conv.RunTurn(context.Background(), "loop forever")
	var limit *ToolRoundLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 3, limit.Limit)
	assert.Equal(t, 3, conn.StreamCount())
	assert.Empty(t, conv.Turns())
}

func TestRunTurn_StreamErrorRetainsLog(t *testing.T) {
	boom := errors.New("backend down")
	conn := backend.NewScriptedConnection(codec.BackendOpenAI, backend.Script{Err: boom})
	conv, _, _ := newConversation(t, conn)

	_, err := conv.RunTurn(context.Background(), "Hi")
	require.ErrorIs(t, err, boom)

	// The user message stays; no partial assistant content was committed.
	log := conv.Log()
	require.Len(t, log, 1)
	assert.Equal(t, core.RoleUser, log[0].Role)
	assert.Empty(t, conv.Turns())
}

func TestResumeTurn_RetriesAfterStreamError(t *testing.T) {
	boom := errors.New("backend down")
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		backend.Script{Err: boom},
		textScript("Recovered answer."),
	)
	conv, _, _ := newConversation(t, conn)
	ctx := context.Background()

	_, err := conv.RunTurn(ctx, "Hi")
	require.ErrorIs(t, err, boom)
	require.Len(t, conv.Log(), 1)

	result, err := conv.ResumeTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Recovered answer.", result.FinalText)

	require.Len(t, conv.Log(), 2)
	turns := conv.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, 0, turns[0].AnchorIndex)
	assert.Equal(t, 1, turns[0].BoundaryIndex)
}

func TestResumeTurn_NothingPending(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI, textScript("Hello!"))
	conv, _, _ := newConversation(t, conn)
	ctx := context.Background()

	_, err := conv.ResumeTurn(ctx)
	assert.Error(t, err)

	_, err = conv.RunTurn(ctx, "Hi")
	require.NoError(t, err)

	// The turn completed, so there is nothing left to resume.
	_, err = conv.ResumeTurn(ctx)
	assert.Error(t, err)
}

func TestRunTurn_CancellationCommitsNothing(t *testing.T) {
	deltas := make([]backend.Delta, 64)
	for i := range deltas {
		deltas[i] = backend.TextDelta{Text: "x"}
	}
	conn := backend.NewScriptedConnection(codec.BackendOpenAI, backend.Script{Deltas: deltas})
	conv, _, _ := newConversation(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conv.RunTurn(ctx, "Hi")
	require.ErrorIs(t, err, context.Canceled)

	log := conv.Log()
	require.Len(t, log, 1)
	assert.Equal(t, core.RoleUser, log[0].Role)
}

func TestRunTurn_EmptyResponseCoercedToBlank(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI, backend.Script{})
	conv, _, _ := newConversation(t, conn)

	result, err := conv.RunTurn(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, " ", result.FinalText)
	assert.Equal(t, " ", conv.Log()[1].Text())
}

func TestRunTurn_ThinkingPreserved(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendAnthropic,
		backend.Script{Deltas: []backend.Delta{
			backend.ThinkingDelta{Text: "reason about it"},
			backend.ThinkingDelta{Signature: "sig-1"},
			backend.TextDelta{Text: "Answer."},
		}},
	)
	conv, _, _ := newConversation(t, conn)

	result, err := conv.RunTurn(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Answer.", result.FinalText)

	parts := conv.Log()[1].Parts
	require.Len(t, parts, 2)
	thinking, ok := parts[0].(core.ThinkingPart)
	require.True(t, ok)
	assert.Equal(t, "reason about it", thinking.Text)
	assert.Equal(t, "sig-1", thinking.Signature)
}

func TestRunTurn_NoAgent(t *testing.T) {
	tools := tool.NewRegistry()
	agents := agent.NewRegistry(tools)
	conv, err := New(agents, tools)
	require.NoError(t, err)

	_, err = conv.RunTurn(context.Background(), "Hi")
	assert.Error(t, err)
}

func TestJump_RewindsToTurnBoundary(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		textScript("Hello!"),
		textScript("Go schedulers multiplex goroutines onto threads."),
	)
	conv, _, _ := newConversation(t, conn)
	ctx := context.Background()

	_, err := conv.RunTurn(ctx, "Hi")
	require.NoError(t, err)
	_, err = conv.RunTurn(ctx, "Explain Go schedulers")
	require.NoError(t, err)
	require.Len(t, conv.Log(), 4)
	require.Len(t, conv.Turns(), 2)

	// Jump to turn 2: everything after its user message is discarded.
	require.NoError(t, conv.Jump(2))
	log := conv.Log()
	require.Len(t, log, 3)
	assert.Equal(t, "Explain Go schedulers", log[2].Text())
	assert.Len(t, conv.Turns(), 1)

	// Jump to turn 1: only the first user message remains.
	require.NoError(t, conv.Jump(1))
	log = conv.Log()
	require.Len(t, log, 1)
	assert.Equal(t, "Hi", log[0].Text())
	assert.Empty(t, conv.Turns())
}

func TestJump_InvalidTurnLeavesStateUntouched(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI, textScript("Hello!"))
	conv, _, _ := newConversation(t, conn)
	_, err := conv.RunTurn(context.Background(), "Hi")
	require.NoError(t, err)

	for _, turn := range []int{0, -1, 2} {
		err := conv.Jump(turn)
		var invalid *InvalidTurnError
		require.ErrorAs(t, err, &invalid, "turn %d", turn)
		assert.Equal(t, turn, invalid.Turn)
		assert.Equal(t, 1, invalid.Count)
	}
	assert.Len(t, conv.Log(), 2)
	assert.Len(t, conv.Turns(), 1)
}

func TestJump_SelectionFailureLeavesStateUntouched(t *testing.T) {
	tools := tool.NewRegistry()
	agents := agent.NewRegistry(tools)
	conv, err := New(agents, tools)
	require.NoError(t, err)

	connA := backend.NewScriptedConnection(codec.BackendOpenAI)
	connB := backend.NewScriptedConnection(codec.BackendOpenAI)
	require.NoError(t, agents.Register(agent.New("A", "first", "prompt a", connA)))
	require.NoError(t, agents.Register(agent.New("B", "second", "prompt b", connB, "missing_tool")))

	// Hand-built state: turn 2's truncated log ends with an assistant message
	// authored by B, whose declared tool cannot be resolved.
	conv.log = []core.Message{
		core.NewUserMessage("A", "one"),
		core.NewAssistantMessage("B", core.TextPart{Text: "from B"}),
		core.NewUserMessage("A", "two"),
		core.NewAssistantMessage("A", core.TextPart{Text: "from A"}),
	}
	conv.turns = []Turn{
		{AnchorIndex: 0, BoundaryIndex: 1},
		{AnchorIndex: 2, BoundaryIndex: 3},
	}

	err = conv.Jump(2)
	require.Error(t, err)
	var unknownTool *tool.UnknownToolError
	assert.ErrorAs(t, err, &unknownTool)

	// The failed rewind committed nothing.
	assert.Len(t, conv.Log(), 4)
	assert.Len(t, conv.Turns(), 2)
	assert.Equal(t, "A", agents.Current().Name())
}

func TestJump_RebuildsAgentHistories(t *testing.T) {
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		textScript("Hello!"),
		textScript("More text."),
	)
	conv, agents, _ := newConversation(t, conn)
	ctx := context.Background()

	_, err := conv.RunTurn(ctx, "Hi")
	require.NoError(t, err)
	_, err = conv.RunTurn(ctx, "Again")
	require.NoError(t, err)

	require.NoError(t, conv.Jump(2))

	// The agent's private view matches the truncated log exactly (it authored
	// every message so far).
	cur := agents.Current()
	assert.Len(t, cur.History(), len(conv.Log()))
}

func TestPersistence_AppendPerTurnAndTruncateOnJump(t *testing.T) {
	st := store.NewInMemoryStore()
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		textScript("Hello!"),
		textScript("Second answer."),
		textScript("Third answer."),
	)
	conv, _, _ := newConversation(t, conn, func(o *Options) {
		o.Store = st
		o.ID = "conv-1"
	})
	ctx := context.Background()

	_, err := conv.RunTurn(ctx, "Hi")
	require.NoError(t, err)
	persisted, err := st.Load("conv-1")
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	_, err = conv.RunTurn(ctx, "More")
	require.NoError(t, err)
	persisted, err = st.Load("conv-1")
	require.NoError(t, err)
	assert.Len(t, persisted, 4)

	require.NoError(t, conv.Jump(2))
	persisted, err = st.Load("conv-1")
	require.NoError(t, err)
	assert.Len(t, persisted, 3)

	// A turn after the rewind persists only the newly appended suffix.
	_, err = conv.RunTurn(ctx, "Continue")
	require.NoError(t, err)
	persisted, err = st.Load("conv-1")
	require.NoError(t, err)
	require.Len(t, persisted, 5)
	assert.Equal(t, conv.Log(), persisted)
}

func TestStartNew_ResetsEverything(t *testing.T) {
	st := store.NewInMemoryStore()
	conn := backend.NewScriptedConnection(codec.BackendOpenAI,
		textScript("Hello!"),
		textScript("Fresh start."),
	)
	conv, agents, _ := newConversation(t, conn, func(o *Options) {
		o.Store = st
		o.ID = "conv-1"
	})
	ctx := context.Background()

	_, err := conv.RunTurn(ctx, "Hi")
	require.NoError(t, err)
	oldID := conv.ID()

	conv.StartNew()

	assert.NotEqual(t, oldID, conv.ID())
	assert.Empty(t, conv.Log())
	assert.Empty(t, conv.Turns())
	assert.Empty(t, agents.Current().History())

	// The old conversation's persisted log is untouched.
	persisted, err := st.Load(oldID)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	_, err = conv.RunTurn(ctx, "Hello again")
	require.NoError(t, err)
	assert.Len(t, conv.Log(), 2)
}
