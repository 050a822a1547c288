// Package agent implements named agents and the per-conversation registry
// that tracks which agent is current, binds agent tool sets to backend
// connections, and executes the handoff (transfer) protocol with partial
// context sharing.
//
// Each agent owns a system prompt, a declared tool-name list, a private
// ordered history (always an in-order subsequence of the conversation's
// canonical log) and a per-target record of which log indices it has already
// disclosed. At most one agent is active at a time; activating an agent
// always deactivates the previous one first so a connection never carries
// duplicate tool bindings.
package agent
