// Package agent implements the prompt-handling state machine behind the ACP
// server.
//
// The agent owns the session store and decides what each prompt turn does:
// prompts that name a scaffolding intent are dispatched to the scaffold
// engine, everything else is answered with a deferral message. It never calls
// a language model; model calls are the responsibility of whatever client is
// driving the protocol.
//
// # Callbacks
//
// The TurnCallbacks structure decouples turn processing from the transport.
// The ACP server translates OnAgentMessage into session/update notifications,
// while tests can simply record the streamed chunks:
//
//	cb := agent.TurnCallbacks{
//	    OnAgentMessage: func(text string) {
//	        // forward as an agent_message_chunk
//	    },
//	}
//	stop := ag.ProcessTurn(ctx, sess, "init my-app with auth", cb)
//
// # Cancellation
//
// Cancellation is cooperative only. Cancel sets a flag on the session; the
// flag is read at checkpoints during the turn (between scaffold steps and
// before the turn completes) and flips the reported stop reason to
// "cancelled". In-flight filesystem work is never interrupted.
package agent
