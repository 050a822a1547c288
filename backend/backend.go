// Package backend defines the contract between the conversation loop and a
// language-model backend: a connection that carries per-agent tool and system
// prompt state, and the closed set of decoded stream deltas every provider
// adapter must normalize to. Concrete network adapters live outside this
// module; they only need to satisfy Connection.
package backend

import "context"

// Delta is one decoded streaming event from a backend. Concrete delta types
// implement the unexported isDelta marker enabling a closed set, so the
// conversation loop never branches on provider-specific shapes.
type Delta interface{ isDelta() }

// TextDelta carries an incremental fragment of assistant text.
type TextDelta struct {
	Text string
}

// isDelta implements the Delta interface for TextDelta.
func (TextDelta) isDelta() {}

// ThinkingDelta carries an incremental fragment of a reasoning trace.
type ThinkingDelta struct {
	Text      string
	Signature string // Set on the final fragment by providers that sign traces
}

// isDelta implements the Delta interface for ThinkingDelta.
func (ThinkingDelta) isDelta() {}

// ToolCallStart announces a new tool call; argument fragments follow.
type ToolCallStart struct {
	ID   string
	Name string
}

// isDelta implements the Delta interface for ToolCallStart.
func (ToolCallStart) isDelta() {}

// ToolCallArgFragment carries a piece of the serialized JSON arguments for a
// previously started tool call. Fragments concatenate in arrival order; the
// call is complete once the concatenation parses as JSON or the stream ends.
type ToolCallArgFragment struct {
	ID       string
	Fragment string
}

// isDelta implements the Delta interface for ToolCallArgFragment.
func (ToolCallArgFragment) isDelta() {}

// UsageDelta reports token usage for the request in flight.
type UsageDelta struct {
	InputTokens  int
	OutputTokens int
}

// isDelta implements the Delta interface for UsageDelta.
func (UsageDelta) isDelta() {}

// ToolDefinition is the backend-neutral description of a callable tool.
// Parameters is a minimal JSON Schema object. Codecs render this into the
// provider-specific schema before it is registered on a connection.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the encoded payload handed to a connection. Messages carry the
// backend-specific wire messages produced by the codec package for this
// connection's backend id. The system prompt and tool definitions are not
// part of the request; the connection already holds them.
type Request struct {
	Messages []any
}

// Connection represents one logical backend binding. It tracks the mutable
// per-agent state the registry manages (system prompt, registered tools) and
// opens delta streams for encoded requests.
//
// Implementations must close the delta channel when the stream ends and send
// at most one terminal error on the error channel.
type Connection interface {
	// BackendID returns the codec key for this connection ("anthropic", "openai", ...).
	BackendID() string

	// SetSystemPrompt replaces the system prompt used for subsequent streams.
	SetSystemPrompt(prompt string)

	// RegisterTool binds a backend-specific tool definition under name.
	RegisterTool(name string, definition any)

	// UnregisterTool removes a previously registered tool. Unknown names are ignored.
	UnregisterTool(name string)

	// RegisteredTools returns the currently bound tool names.
	RegisteredTools() []string

	// Stream opens a generation stream for the request.
	Stream(ctx context.Context, req Request) (<-chan Delta, <-chan error)
}
