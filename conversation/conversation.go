// Package conversation owns the canonical message log, the turn index and
// the turn execution loop. A Conversation binds one agent registry, one tool
// registry and an optional persistence store; multiple conversations run
// independently as long as each owns its registries and log.
package conversation

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/codec"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/store"
	"github.com/hupe1980/agentrelay/tool"
)

// Turn marks one completed user-to-terminal-response cycle in the log.
type Turn struct {
	AnchorIndex   int // index of the user message beginning the turn
	BoundaryIndex int // log length immediately after the user message was appended
}

// InvalidTurnError reports a Jump to a turn number outside the recorded range.
// All conversation state is left untouched.
type InvalidTurnError struct {
	Turn  int
	Count int
}

func (e *InvalidTurnError) Error() string {
	return fmt.Sprintf("invalid turn %d (conversation has %d turns)", e.Turn, e.Count)
}

// Options configures a Conversation.
type Options struct {
	// ID identifies this conversation toward the store. Generated when empty.
	ID string
	// Store persists completed turns. Nil disables persistence.
	Store store.Store
	// Logger receives structured progress events. Defaults to NoOp.
	Logger logging.Logger
	// MaxToolRounds caps chained tool-call rounds within one turn as a safety
	// net against a backend issuing unbounded tool calls.
	MaxToolRounds int
}

// DefaultMaxToolRounds is the default cap on tool-call rounds per turn.
const DefaultMaxToolRounds = 25

// Conversation is the single writer of its canonical log and of agent
// histories during a turn. It is not safe for concurrent turns; run one turn
// at a time per conversation.
type Conversation struct {
	id     string
	log    []core.Message
	turns  []Turn
	agents *agent.Registry
	tools  *tool.Registry
	store  store.Store
	logger logging.Logger

	maxToolRounds int
	persisted     int // log prefix already handed to the store
}

// New creates a conversation over the given registries and registers the
// built-in transfer tool, whose handler needs access to the canonical log.
func New(agents *agent.Registry, tools *tool.Registry, optFns ...func(o *Options)) (*Conversation, error) {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		MaxToolRounds: DefaultMaxToolRounds,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ID == "" {
		opts.ID = core.NewID()
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}

	c := &Conversation{
		id:            opts.ID,
		agents:        agents,
		tools:         tools,
		store:         opts.Store,
		logger:        opts.Logger,
		maxToolRounds: opts.MaxToolRounds,
	}
	if err := tools.Register(transferRegistration(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string { return c.id }

// Log returns a copy of the canonical message log.
func (c *Conversation) Log() []core.Message {
	out := make([]core.Message, len(c.log))
	copy(out, c.log)
	return out
}

// Turns returns a copy of the recorded turn boundaries.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Agents returns the conversation's agent registry.
func (c *Conversation) Agents() *agent.Registry { return c.agents }

// Tools returns the conversation's tool registry.
func (c *Conversation) Tools() *tool.Registry { return c.tools }

// append adds a message to the canonical log and to the owning agent's
// private history. Messages are never mutated after this point.
func (c *Conversation) append(msg core.Message) {
	c.log = append(c.log, msg)
	if a, ok := c.agents.Get(msg.Agent); ok {
		a.AppendHistory(msg)
	}
}

// Jump rewinds the conversation to just after turn turnNumber's user message:
// the canonical log and turn list are truncated, every agent's history and
// disclosure pools are rebuilt from the shortened log, and the agent that
// authored the last remaining assistant message becomes current again.
func (c *Conversation) Jump(turnNumber int) error {
	if turnNumber < 1 || turnNumber > len(c.turns) {
		return &InvalidTurnError{Turn: turnNumber, Count: len(c.turns)}
	}
	boundary := c.turns[turnNumber-1].BoundaryIndex

	// Re-select before committing the truncation: a selection failure (the
	// author's tools no longer resolve) must not leave a half-applied rewind.
	if err := c.agents.SelectAuthorOfLastAssistant(c.log[:boundary]); err != nil {
		return err
	}
	c.log = c.log[:boundary]
	c.turns = c.turns[:turnNumber-1]
	c.agents.Rebuild(c.log)

	if c.store != nil {
		if err := c.store.Truncate(c.id, boundary); err != nil {
			return fmt.Errorf("truncate store: %w", err)
		}
	}
	if c.persisted > boundary {
		c.persisted = boundary
	}

	c.logger.Info("conversation.jumped", "turn", turnNumber, "log_len", len(c.log))
	return nil
}

// StartNew discards the log, turn index and all agent state, and assigns a
// fresh conversation id so persisted history of the old conversation is kept.
func (c *Conversation) StartNew() {
	c.log = nil
	c.turns = nil
	c.persisted = 0
	c.id = core.NewID()
	c.agents.Clear()
}

// persistTurn hands the store every message appended since the last call.
func (c *Conversation) persistTurn() error {
	if c.store == nil || c.persisted >= len(c.log) {
		c.persisted = len(c.log)
		return nil
	}
	if err := c.store.Append(c.id, c.log[c.persisted:]); err != nil {
		return fmt.Errorf("persist turn: %w", err)
	}
	c.persisted = len(c.log)
	return nil
}

// transferRegistration wires the built-in handoff tool against this
// conversation's registries and log.
func transferRegistration(c *Conversation) tool.Registration {
	def := backend.ToolDefinition{
		Name: tool.TransferToolName,
		Description: "Transfer the conversation to another agent by name. " +
			"Optionally share prior messages by their log index and describe the task to hand over.",
		Parameters: tool.TransferParameters(),
	}
	return tool.Registration{
		Name: tool.TransferToolName,
		DefinitionFactory: func(backendID string) (any, error) {
			return codec.ConvertToolDefinition(def, backendID)
		},
		HandlerFactory: func(service any) tool.Handler {
			conv := service.(*Conversation)
			return func(_ context.Context, args map[string]any) (any, error) {
				parsed, err := tool.ParseTransferArgs(args)
				if err != nil {
					return nil, err
				}
				entry, err := conv.agents.ExecuteTransfer(parsed.Agent, parsed.Task, parsed.Indices, conv.log)
				if err != nil {
					return nil, err
				}
				result := fmt.Sprintf("Transferred to %s.", entry.To)
				if entry.Task != "" {
					result += " Task: " + entry.Task
				}
				if entry.Excerpt != "" {
					result += "\nShared context:\n" + entry.Excerpt
				}
				return result, nil
			}
		},
		Service: c,
	}
}
