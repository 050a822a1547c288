// Package store defines the conversation persistence collaborator contract
// and provides a volatile in-memory implementation. The conversation loop
// calls Append once per completed turn with exactly the messages produced
// since the previous call; durable implementations live outside this module.
package store

import "github.com/hupe1980/agentrelay/core"

// Store persists canonical messages per conversation.
type Store interface {
	// Append adds messages to the end of a conversation's log.
	Append(conversationID string, msgs []core.Message) error

	// Load returns the full persisted log for a conversation. Unknown ids
	// yield an empty log, not an error.
	Load(conversationID string) ([]core.Message, error)

	// Truncate shortens a conversation's persisted log to length n, mirroring
	// a rewind of the in-memory canonical log.
	Truncate(conversationID string, n int) error
}
