// Package codec implements the format adapter between the canonical message
// model and backend-specific wire schemas. Conversion is bidirectional, pure
// and keyed by backend id: Convert encodes canonical messages for a backend,
// Standardize decodes backend wire messages back into canonical form.
// Malformed or unknown wire shapes degrade to empty content rather than
// failing, so a conversation stays usable after a partial backend failure.
package codec

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/core"
)

// Backend identifiers for the built-in codecs.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// Codec converts between canonical messages and one backend's wire schema.
// Implementations must be stateless; both directions must be total over any
// well-formed input.
type Codec interface {
	// Convert encodes canonical messages into backend wire messages.
	Convert(msgs []core.Message) ([]any, error)

	// Standardize decodes backend wire messages into canonical messages,
	// tagging each with the owning agent name. It never synthesizes parts the
	// wire form does not carry.
	Standardize(raw []any, owningAgent string) ([]core.Message, error)

	// ConvertToolDefinition renders a neutral tool definition into the
	// backend-specific schema handed to the connection.
	ConvertToolDefinition(def backend.ToolDefinition) any
}

// UnknownBackendError indicates no codec is registered for a backend id.
type UnknownBackendError struct {
	BackendID string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("no codec registered for backend %q", e.BackendID)
}

var (
	mu     sync.RWMutex
	codecs = map[string]Codec{}
)

func init() {
	Register(BackendAnthropic, AnthropicCodec{})
	Register(BackendOpenAI, OpenAICodec{})
}

// Register binds a codec to a backend id. Re-registering overwrites.
func Register(backendID string, c Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[backendID] = c
}

func lookup(backendID string) (Codec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[backendID]
	if !ok {
		return nil, &UnknownBackendError{BackendID: backendID}
	}
	return c, nil
}

// Convert encodes canonical messages for the given backend.
func Convert(msgs []core.Message, backendID string) ([]any, error) {
	c, err := lookup(backendID)
	if err != nil {
		return nil, err
	}
	return c.Convert(msgs)
}

// Standardize decodes backend wire messages into canonical messages owned by
// the given agent.
func Standardize(raw []any, backendID, owningAgent string) ([]core.Message, error) {
	c, err := lookup(backendID)
	if err != nil {
		return nil, err
	}
	return c.Standardize(raw, owningAgent)
}

// ConvertToolDefinition renders a neutral tool definition into the schema of
// the given backend.
func ConvertToolDefinition(def backend.ToolDefinition, backendID string) (any, error) {
	c, err := lookup(backendID)
	if err != nil {
		return nil, err
	}
	return c.ConvertToolDefinition(def), nil
}
