// Package acp implements the Agent Client Protocol (ACP) server that
// connects external AI coding agents to a local project. It communicates
// using JSON-RPC over stdio with newline-delimited framing, so any
// ACP-compliant editor or client can drive it.
//
// The implementation supports the following ACP methods:
//   - initialize: returns the static capability set
//   - authenticate: no-op, always succeeds
//   - session/new: creates a new in-memory session
//   - session/prompt: processes a prompt turn and returns a stop reason
//   - session/cancel: flags a session for cooperative cancellation (notification)
//
// The implementation sends the following notifications:
//   - session/update with user_message_chunk updates, echoing the prompt's
//     content blocks back in input order
//   - session/update with agent_message_chunk updates, streaming scaffold
//     progress and the assistant response
//
// Each outbound message is written as a single atomic frame; stdout carries
// nothing but protocol frames. A closed or broken input stream ends the
// server after in-flight prompt turns drain.
package acp
