// Package core defines the canonical, backend-agnostic message model shared
// by every other package: messages, the closed content-part union (text, tool
// call, tool result, thinking) and id generation. All orchestration logic
// operates on these types; backend wire schemas are mapped to and from them
// at the codec boundary.
package core
