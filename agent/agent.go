package agent

import (
	"sort"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/core"
)

// Agent bundles a system prompt, a declared tool set and a private view of
// the conversation. Agents are created at configuration time and live for the
// conversation lifetime; their history and shared-context pool are cleared on
// a new conversation and rebuilt wholesale after a rewind.
type Agent struct {
	name         string
	description  string
	systemPrompt string
	toolNames    []string
	conn         backend.Connection

	history         []core.Message
	shared          map[string]map[int]struct{} // target agent -> disclosed log indices
	registeredTools []string                    // bookkeeping while active
	active          bool
}

// New creates an agent bound to a backend connection with a declared tool set.
func New(name, description, systemPrompt string, conn backend.Connection, toolNames ...string) *Agent {
	return &Agent{
		name:         name,
		description:  description,
		systemPrompt: systemPrompt,
		toolNames:    append([]string(nil), toolNames...),
		conn:         conn,
		shared:       make(map[string]map[int]struct{}),
	}
}

// Name returns the unique agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's purpose, shown to peers in handoff prompts.
func (a *Agent) Description() string { return a.description }

// SystemPrompt returns the agent's base system prompt.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// ToolNames returns a copy of the declared tool names.
func (a *Agent) ToolNames() []string {
	return append([]string(nil), a.toolNames...)
}

// Connection returns the backend connection this agent generates against.
func (a *Agent) Connection() backend.Connection { return a.conn }

// Active reports whether this agent's tools are currently bound.
func (a *Agent) Active() bool { return a.active }

// History returns a copy of the agent's private message view.
func (a *Agent) History() []core.Message {
	out := make([]core.Message, len(a.history))
	copy(out, a.history)
	return out
}

// AppendHistory adds a message the agent authored or received.
func (a *Agent) AppendHistory(msg core.Message) {
	a.history = append(a.history, msg)
}

// SharedWith returns the sorted log indices already disclosed to target.
func (a *Agent) SharedWith(target string) []int {
	pool, ok := a.shared[target]
	if !ok {
		return nil
	}
	indices := make([]int, 0, len(pool))
	for i := range pool {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// sharedPool returns (creating if needed) the disclosure set for target.
func (a *Agent) sharedPool(target string) map[int]struct{} {
	pool, ok := a.shared[target]
	if !ok {
		pool = make(map[int]struct{})
		a.shared[target] = pool
	}
	return pool
}

// pruneShared drops disclosed indices at or beyond the truncated log length.
func (a *Agent) pruneShared(logLen int) {
	for target, pool := range a.shared {
		for i := range pool {
			if i >= logLen {
				delete(pool, i)
			}
		}
		if len(pool) == 0 {
			delete(a.shared, target)
		}
	}
}

// rebuildHistory refilters the agent's history from the canonical log using
// the given visibility set, preserving log order.
func (a *Agent) rebuildHistory(log []core.Message, visible map[int]struct{}) {
	a.history = a.history[:0]
	for i, msg := range log {
		if _, ok := visible[i]; ok {
			a.history = append(a.history, msg)
		}
	}
}

// reset clears all conversation-derived state.
func (a *Agent) reset() {
	a.history = nil
	a.shared = make(map[string]map[int]struct{})
}
