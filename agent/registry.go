package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

// UnknownAgentError reports a select or transfer against a name nobody
// registered, listing the available agents. The registry's current agent is
// left unchanged.
type UnknownAgentError struct {
	Name      string
	Available []string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Transfer records one handoff: who initiated it, the target, the task handed
// over and the rendered context excerpt.
type Transfer struct {
	From          string
	To            string
	Task          string
	SharedIndices []int // Full disclosure set toward To after this transfer
	Excerpt       string
}

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry holds a conversation's agents, tracks the single current agent,
// (de)activates tool bindings on backend connections and executes the
// transfer protocol. One registry belongs to exactly one conversation; no
// state is shared across conversations.
type Registry struct {
	tools     *tool.Registry
	agents    map[string]*Agent
	order     []string
	current   string
	transfers []Transfer
	logger    logging.Logger
}

// NewRegistry creates an empty agent registry using the given tool registry
// to resolve declared tool definitions and handlers.
func NewRegistry(tools *tool.Registry, optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tools:  tools,
		agents: make(map[string]*Agent),
		logger: opts.Logger,
	}
}

// Register adds an agent. The first agent registered becomes current and is
// activated immediately.
func (r *Registry) Register(a *Agent) error {
	if a == nil || a.name == "" {
		return fmt.Errorf("agent registration requires a name")
	}
	if _, exists := r.agents[a.name]; exists {
		return fmt.Errorf("agent %q is already registered", a.name)
	}
	r.agents[a.name] = a
	r.order = append(r.order, a.name)

	if len(r.order) == 1 {
		return r.Select(a.name)
	}
	return nil
}

// Get returns a registered agent by name.
func (r *Registry) Get(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Current returns the current agent, or nil before any registration.
func (r *Registry) Current() *Agent {
	if r.current == "" {
		return nil
	}
	return r.agents[r.current]
}

// Names returns agent names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Transfers returns a copy of the transfer log.
func (r *Registry) Transfers() []Transfer {
	out := make([]Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// Select makes the named agent current: the previously active agent's tools
// are unconditionally unregistered from its connection, then the target's
// declared tools are registered and its system prompt installed. Selecting an
// unknown name fails without touching any state.
func (r *Registry) Select(name string) error {
	target, ok := r.agents[name]
	if !ok {
		return &UnknownAgentError{Name: name, Available: r.Names()}
	}

	// Resolve all definitions up front so a configuration error cannot leave
	// the connection half-bound.
	defs := make([]any, len(target.toolNames))
	for i, toolName := range target.toolNames {
		def, err := r.tools.ResolveDefinition(toolName, target.conn.BackendID())
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
		defs[i] = def
	}

	if cur := r.Current(); cur != nil && cur.active {
		for _, toolName := range cur.registeredTools {
			cur.conn.UnregisterTool(toolName)
		}
		cur.registeredTools = nil
		cur.active = false
	}

	for i, toolName := range target.toolNames {
		target.conn.RegisterTool(toolName, defs[i])
		target.registeredTools = append(target.registeredTools, toolName)
	}
	target.conn.SetSystemPrompt(r.composeSystemPrompt(target))
	target.active = true
	r.current = name

	r.logger.Info("agent.selected", "agent", name, "tools", len(target.toolNames))
	return nil
}

// composeSystemPrompt appends a generated handoff section listing the other
// registered agents when more than one agent exists.
func (r *Registry) composeSystemPrompt(a *Agent) string {
	if len(r.order) < 2 {
		return a.systemPrompt
	}
	var b strings.Builder
	b.WriteString(a.systemPrompt)
	b.WriteString("\n\nYou can transfer the conversation to one of the following agents using the ")
	b.WriteString(tool.TransferToolName)
	b.WriteString(" tool:\n")
	for _, name := range r.order {
		if name == a.name {
			continue
		}
		peer := r.agents[name]
		fmt.Fprintf(&b, "- %s: %s\n", peer.name, peer.description)
	}
	return b.String()
}

// ExecuteTransfer hands the conversation to target: it selects the target,
// then discloses the subset of indices not already shared with it, renders
// those messages as a transcript excerpt, extends the disclosure pool
// (idempotent for repeated indices) and rebuilds the target's history view.
// Any validation or selection failure leaves all state unchanged.
// Self-transfer is rejected.
func (r *Registry) ExecuteTransfer(target, task string, indices []int, log []core.Message) (*Transfer, error) {
	cur := r.Current()
	if cur == nil {
		return nil, fmt.Errorf("no current agent to transfer from")
	}
	if target == cur.name {
		return nil, fmt.Errorf("agent %q cannot transfer to itself", target)
	}
	tgt, ok := r.agents[target]
	if !ok {
		return nil, &UnknownAgentError{Name: target, Available: r.Names()}
	}
	for _, i := range indices {
		if i < 0 || i >= len(log) {
			return nil, fmt.Errorf("message index %d is out of range (log length %d)", i, len(log))
		}
	}

	// Select first: it validates the target's tool configuration up front, so
	// a failure here leaves pools, transfer log and histories untouched.
	if err := r.Select(target); err != nil {
		return nil, err
	}

	pool := cur.sharedPool(target)
	var fresh []int
	for _, i := range indices {
		if _, seen := pool[i]; !seen {
			pool[i] = struct{}{}
			fresh = append(fresh, i)
		}
	}
	sort.Ints(fresh)

	entry := Transfer{
		From:          cur.name,
		To:            target,
		Task:          task,
		SharedIndices: cur.SharedWith(target),
		Excerpt:       RenderExcerpt(log, fresh),
	}
	r.transfers = append(r.transfers, entry)

	tgt.rebuildHistory(log, r.visibleIndices(tgt, log))

	r.logger.Info("agent.transferred", "from", entry.From, "to", entry.To, "shared", len(fresh))
	return &entry, nil
}

// visibleIndices computes the set of log indices agent a may hold: messages
// it owns plus messages any other agent disclosed to it.
func (r *Registry) visibleIndices(a *Agent, log []core.Message) map[int]struct{} {
	visible := make(map[int]struct{})
	for i, msg := range log {
		if msg.Agent == a.name {
			visible[i] = struct{}{}
		}
	}
	for _, name := range r.order {
		peer := r.agents[name]
		if peer == a {
			continue
		}
		for i := range peer.shared[a.name] {
			if i < len(log) {
				visible[i] = struct{}{}
			}
		}
	}
	return visible
}

// Rebuild reconstructs every agent's history and disclosure pools from a
// truncated canonical log, dropping any index at or past the new length.
func (r *Registry) Rebuild(log []core.Message) {
	for _, name := range r.order {
		r.agents[name].pruneShared(len(log))
	}
	for _, name := range r.order {
		a := r.agents[name]
		a.rebuildHistory(log, r.visibleIndices(a, log))
	}
}

// SelectAuthorOfLastAssistant re-selects the agent that authored the last
// assistant message remaining in the log, restoring prompt and tool bindings.
// When no assistant message remains the current agent is kept.
func (r *Registry) SelectAuthorOfLastAssistant(log []core.Message) error {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role != core.RoleAssistant || log[i].Agent == "" {
			continue
		}
		if _, ok := r.agents[log[i].Agent]; !ok {
			continue
		}
		if log[i].Agent == r.current {
			return nil
		}
		return r.Select(log[i].Agent)
	}
	return nil
}

// Clear resets every agent's history and disclosure pools for a fresh
// conversation. The current selection and tool bindings are kept.
func (r *Registry) Clear() {
	for _, name := range r.order {
		r.agents[name].reset()
	}
	r.transfers = nil
}

// RenderExcerpt formats the given log indices as a human-readable transcript
// excerpt for handoff context.
func RenderExcerpt(log []core.Message, indices []int) string {
	if len(indices) == 0 {
		return ""
	}
	var b strings.Builder
	for _, i := range indices {
		msg := log[i]
		author := string(msg.Role)
		if msg.Agent != "" && msg.Role == core.RoleAssistant {
			author = fmt.Sprintf("%s (%s)", msg.Role, msg.Agent)
		}
		line := msg.Text()
		if line == "" {
			if calls := msg.ToolCalls(); len(calls) > 0 {
				line = fmt.Sprintf("called tool %s", calls[0].Name)
			} else if results := msg.ToolResults(); len(results) > 0 {
				line = results[0].Content
			}
		}
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, author, line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
