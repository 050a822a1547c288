// Package agentrelay provides a high-level façade over the conversation
// orchestration core: named agents with private histories, a tool registry
// with backend-specific definition resolution, a streaming tool-call loop,
// agent handoff with partial context sharing, and turn-indexed rewind. Most
// applications interact with this package by:
//  1. Creating a Relay via New() (optionally overriding the store and logger)
//  2. Registering tools and one or more agents (the first agent registered
//     becomes active)
//  3. Driving turns with Send and navigating history with Jump
//
// The façade wires one tool registry, one agent registry and one conversation
// together; everything it does can also be composed manually from the
// subpackages. All defaults are safe for local development and testing.
package agentrelay

import (
	"context"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/store"
	"github.com/hupe1980/agentrelay/tool"
)

// Options configures the Relay instance.
type Options struct {
	// Store persists completed turns (defaults to an in-memory store).
	Store store.Store

	// Logger receives structured progress events (defaults to NoOp).
	Logger logging.Logger

	// MaxToolRounds caps chained tool-call rounds within one turn.
	MaxToolRounds int
}

// Relay is the high-level façade aggregating the registries and the conversation.
type Relay struct {
	tools  *tool.Registry
	agents *agent.Registry
	conv   *conversation.Conversation
}

// New creates a new Relay with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*Relay, error) {
	opts := Options{
		Store:  store.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	tools := tool.NewRegistry()
	agents := agent.NewRegistry(tools, func(o *agent.Options) {
		o.Logger = opts.Logger
	})
	conv, err := conversation.New(agents, tools, func(o *conversation.Options) {
		o.Store = opts.Store
		o.Logger = opts.Logger
		o.MaxToolRounds = opts.MaxToolRounds
	})
	if err != nil {
		return nil, err
	}

	return &Relay{tools: tools, agents: agents, conv: conv}, nil
}

// RegisterTool adds a tool registration to the underlying registry.
func (r *Relay) RegisterTool(reg tool.Registration) error { return r.tools.Register(reg) }

// RegisterAgent adds an agent; the first agent registered becomes active.
func (r *Relay) RegisterAgent(a *agent.Agent) error { return r.agents.Register(a) }

// Conversation exposes the underlying conversation for log and turn access.
func (r *Relay) Conversation() *conversation.Conversation { return r.conv }

// Agents exposes the agent registry for select/transfer access.
func (r *Relay) Agents() *agent.Registry { return r.agents }

// Send runs one turn with the given user input against the active agent.
func (r *Relay) Send(ctx context.Context, input string) (*conversation.TurnResult, error) {
	return r.conv.RunTurn(ctx, input)
}

// Resume retries the last aborted turn without appending a new user message.
func (r *Relay) Resume(ctx context.Context) (*conversation.TurnResult, error) {
	return r.conv.ResumeTurn(ctx)
}

// Jump rewinds the conversation to just after the given turn's user message.
func (r *Relay) Jump(turnNumber int) error { return r.conv.Jump(turnNumber) }

// StartNew discards all conversation state and begins a fresh conversation.
func (r *Relay) StartNew() { r.conv.StartNew() }
