package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Script configures one streamed response of a ScriptedConnection. Either a
// delta sequence or a terminal error.
type Script struct {
	Deltas []Delta
	Err    error
}

// ScriptedConnection is a deterministic in-memory Connection that replays
// configured delta scripts, one per Stream call, and records every request it
// receives. It is the test and example double for a real provider adapter.
type ScriptedConnection struct {
	mu        sync.Mutex
	backendID string
	prompt    string
	tools     map[string]any
	scripts   []Script
	index     int
	requests  []Request
}

// NewScriptedConnection creates a connection for the given backend id that
// replays the scripts in order.
func NewScriptedConnection(backendID string, scripts ...Script) *ScriptedConnection {
	cloned := make([]Script, len(scripts))
	copy(cloned, scripts)
	return &ScriptedConnection{
		backendID: backendID,
		tools:     make(map[string]any),
		scripts:   cloned,
	}
}

// BackendID returns the codec key this connection was created with.
func (c *ScriptedConnection) BackendID() string { return c.backendID }

// SetSystemPrompt replaces the system prompt used for subsequent streams.
func (c *ScriptedConnection) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = prompt
}

// SystemPrompt returns the current system prompt.
func (c *ScriptedConnection) SystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// RegisterTool binds a tool definition under name.
func (c *ScriptedConnection) RegisterTool(name string, definition any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[name] = definition
}

// UnregisterTool removes a previously registered tool.
func (c *ScriptedConnection) UnregisterTool(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tools, name)
}

// RegisteredTools returns the bound tool names in sorted order.
func (c *ScriptedConnection) RegisteredTools() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Requests returns a copy of all requests received so far.
func (c *ScriptedConnection) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	reqs := make([]Request, len(c.requests))
	copy(reqs, c.requests)
	return reqs
}

// StreamCount reports how many streams have been opened.
func (c *ScriptedConnection) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Stream replays the next configured script. An exhausted script yields an error.
func (c *ScriptedConnection) Stream(ctx context.Context, req Request) (<-chan Delta, <-chan error) {
	out := make(chan Delta, 32)
	errCh := make(chan error, 1)

	c.mu.Lock()
	c.requests = append(c.requests, req)
	var script Script
	exhausted := c.index >= len(c.scripts)
	if !exhausted {
		script = c.scripts[c.index]
	}
	step := c.index + 1
	c.index = step
	c.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)

		if exhausted {
			errCh <- fmt.Errorf("scripted connection exhausted at stream %d", step)
			return
		}
		if script.Err != nil {
			errCh <- script.Err
			return
		}
		for _, d := range script.Deltas {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- d:
			}
		}
	}()

	return out, errCh
}
