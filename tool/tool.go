// Package tool implements the tool registry that maps a tool name to a
// definition factory, a handler factory and an optional bound service. Agents
// declare tool names; the registry resolves backend-specific definitions and
// invocable handlers on demand.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one tool call with already-decoded arguments. The returned
// value must be JSON-serializable or a plain string. Errors are surfaced to
// the model as error-flagged tool results by the conversation loop.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// DefinitionFactory produces the backend-specific tool schema for a backend id.
type DefinitionFactory func(backendID string) (any, error)

// HandlerFactory binds a handler to its service. Factories must be stateless
// with respect to conversation identity; per-conversation state is threaded
// through the bound service, never a process global.
type HandlerFactory func(service any) Handler

// Registration ties a tool name to its factories and bound service.
type Registration struct {
	Name              string
	DefinitionFactory DefinitionFactory
	HandlerFactory    HandlerFactory
	Service           any
}

// UnknownToolError indicates a lookup for a name nobody registered. This is a
// configuration bug, not a runtime or user error, so it is surfaced to the
// caller rather than swallowed.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// ToolError reports a failure during tool execution with a category code.
type ToolError struct {
	Tool    string `json:"tool"`    // Name of the tool that failed
	Message string `json:"message"` // Error message
	Code    string `json:"code"`    // Error code for categorization
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Error codes used by ToolError.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
)

// Registry maps tool names to registrations. Names are unique within one
// registry; re-registering a name overwrites the prior entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds or replaces a registration. Last write wins.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("tool registration requires a name")
	}
	if reg.DefinitionFactory == nil || reg.HandlerFactory == nil {
		return fmt.Errorf("tool %q registration requires definition and handler factories", reg.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[reg.Name] = reg
	return nil
}

// ResolveDefinition returns the backend-specific schema for a tool.
func (r *Registry) ResolveDefinition(name, backendID string) (any, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return reg.DefinitionFactory(backendID)
}

// ResolveHandler returns an invocable handler bound to the tool's service.
func (r *Registry) ResolveHandler(name string) (Handler, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return reg.HandlerFactory(reg.Service), nil
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
