package agent

import (
	"context"
	"fmt"

	"github.com/lnittman/turbokit-acp/config"
	"github.com/lnittman/turbokit-acp/scaffold"
	"github.com/lnittman/turbokit-acp/session"
)

// StopReason is the terminal status of a completed prompt turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopCancelled StopReason = "cancelled"
)

// TurnCallbacks lets the transport layer observe a prompt turn as it runs.
// OnAgentMessage fires once per streamed agent message chunk, including
// scaffold progress lines.
type TurnCallbacks struct {
	OnAgentMessage func(text string)
}

// Agent is the prompt-handling state machine behind the ACP server. It owns
// no transport concerns: the server hands it plain text and callbacks, and it
// mutates the session and decides the stop reason.
//
// The agent never calls a language model. Prompts that do not name a
// scaffolding intent are answered with a deferral message; the intelligence
// lives entirely in the client driving the protocol.
type Agent struct {
	Config     *config.Config
	Store      *session.Store
	Scaffolder *scaffold.Engine
}

// New creates an agent backed by the given session store.
func New(cfg *config.Config, store *session.Store) *Agent {
	return &Agent{
		Config:     cfg,
		Store:      store,
		Scaffolder: scaffold.NewEngine(cfg),
	}
}

// NewSession creates a session rooted at cwd and registers it in the store.
func (a *Agent) NewSession(cwd string) *session.Session {
	sess := session.New(cwd)
	a.Store.Add(sess)
	return sess
}

// Cancel flags the referenced session for cooperative cancellation. Unknown
// sessions are silently ignored: cancelling a finished or never-created
// session is an inherently racy operation, not an error.
func (a *Agent) Cancel(sessionID string) {
	if sess, ok := a.Store.Get(sessionID); ok {
		sess.RequestCancel()
	}
}

// ProcessTurn runs one prompt turn against a session: it appends the user
// message, classifies the text, performs any scaffold side effects, streams
// the response through cb, appends the assistant message, and reports the
// stop reason. Recoverable failures (filesystem errors during scaffolding)
// are converted into the assistant response here and never escape as errors.
func (a *Agent) ProcessTurn(ctx context.Context, sess *session.Session, userText string, cb TurnCallbacks) StopReason {
	emit := cb.OnAgentMessage
	if emit == nil {
		emit = func(string) {}
	}

	sess.AddMessage(session.Message{Role: "user", Content: userText})

	var response string
	if intent, ok := scaffold.Parse(userText); ok {
		summary, err := a.Scaffolder.Run(ctx, sess.Cwd, intent, scaffold.ProgressFunc(emit), sess.CancelRequested)
		if err != nil {
			response = fmt.Sprintf("I couldn't scaffold the project: %v", err)
		} else {
			response = summary
		}
	} else {
		response = deferralMessage
	}

	emit(response)
	sess.AddMessage(session.Message{Role: "assistant", Content: response})

	if sess.CancelRequested() {
		return StopCancelled
	}
	return StopEndTurn
}

const deferralMessage = "I don't generate answers myself; the agent driving this connection does. " +
	"I can scaffold projects for you, though. Try something like \"init my-app with auth and email\"."
