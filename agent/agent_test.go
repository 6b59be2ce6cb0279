package agent_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lnittman/turbokit-acp/agent"
	"github.com/lnittman/turbokit-acp/config"
	"github.com/lnittman/turbokit-acp/session"
)

func testConfig() *config.Config {
	return &config.Config{
		Scaffold: config.Scaffold{
			DefaultName:     "new-project",
			DefaultFeatures: []string{"auth", "payments", "email"},
		},
	}
}

func newAgent() *agent.Agent {
	return agent.New(testConfig(), session.NewStore())
}

func recordChunks(chunks *[]string) agent.TurnCallbacks {
	return agent.TurnCallbacks{
		OnAgentMessage: func(text string) { *chunks = append(*chunks, text) },
	}
}

func TestNewSession_Registered(t *testing.T) {
	ag := newAgent()
	sess := ag.NewSession("/tmp/x")

	got, ok := ag.Store.Get(sess.ID)
	if !ok || got != sess {
		t.Fatal("NewSession did not register the session in the store")
	}
}

func TestProcessTurn_GenericPrompt(t *testing.T) {
	ag := newAgent()
	sess := ag.NewSession(t.TempDir())

	var chunks []string
	stop := ag.ProcessTurn(context.Background(), sess, "what is the meaning of life?", recordChunks(&chunks))

	if stop != agent.StopEndTurn {
		t.Errorf("stop reason = %q, want %q", stop, agent.StopEndTurn)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one agent chunk for a generic prompt, got %d", len(chunks))
	}

	msgs := sess.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user+assistant in history, got %d messages", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "what is the meaning of life?" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != chunks[0] {
		t.Errorf("assistant history entry should match the streamed chunk: %+v", msgs[1])
	}
}

func TestProcessTurn_ScaffoldPrompt(t *testing.T) {
	ag := newAgent()
	cwd := t.TempDir()
	sess := ag.NewSession(cwd)

	var chunks []string
	stop := ag.ProcessTurn(context.Background(), sess, "init demo with payments", recordChunks(&chunks))

	if stop != agent.StopEndTurn {
		t.Errorf("stop reason = %q, want %q", stop, agent.StopEndTurn)
	}
	if _, err := os.Stat(filepath.Join(cwd, "demo", "package.json")); err != nil {
		t.Errorf("scaffold did not run: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected progress chunks plus a summary, got %d", len(chunks))
	}
	final := chunks[len(chunks)-1]
	if !strings.Contains(final, "demo") || !strings.Contains(final, "payments") {
		t.Errorf("summary should name the project and its features: %q", final)
	}
}

func TestProcessTurn_ScaffoldFailureBecomesMessage(t *testing.T) {
	ag := newAgent()
	cwd := t.TempDir()
	sess := ag.NewSession(cwd)

	if err := os.Mkdir(filepath.Join(cwd, "demo"), 0755); err != nil {
		t.Fatal(err)
	}

	var chunks []string
	stop := ag.ProcessTurn(context.Background(), sess, "init demo", recordChunks(&chunks))

	if stop != agent.StopEndTurn {
		t.Errorf("stop reason = %q, want %q", stop, agent.StopEndTurn)
	}
	final := chunks[len(chunks)-1]
	if !strings.Contains(final, "couldn't scaffold") {
		t.Errorf("failure should surface as a readable assistant message, got %q", final)
	}
	msgs := sess.Messages()
	if msgs[len(msgs)-1].Content != final {
		t.Error("failure message should be appended to history")
	}
}

func TestProcessTurn_Cancelled(t *testing.T) {
	ag := newAgent()
	sess := ag.NewSession(t.TempDir())

	sess.RequestCancel()
	var chunks []string
	stop := ag.ProcessTurn(context.Background(), sess, "hello there", recordChunks(&chunks))

	if stop != agent.StopCancelled {
		t.Errorf("stop reason = %q, want %q", stop, agent.StopCancelled)
	}
}

func TestCancel_UnknownSessionIgnored(t *testing.T) {
	ag := newAgent()
	sess := ag.NewSession(t.TempDir())

	ag.Cancel("nonexistent")
	if sess.CancelRequested() {
		t.Error("cancelling an unknown session must not affect other sessions")
	}

	ag.Cancel(sess.ID)
	if !sess.CancelRequested() {
		t.Error("cancelling a known session should set its flag")
	}
}
