package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lnittman/turbokit-acp/agent"
	"github.com/lnittman/turbokit-acp/session"
)

// Run starts the Agent Client Protocol server over stdio using JSON-RPC.
// It implements the following subset of ACP:
// - initialize
// - authenticate
// - session/new
// - session/prompt (emits session/update notifications with user_message_chunk and agent_message_chunk)
// - session/cancel (notification)
// Notes:
// - This implementation intentionally avoids writing anything to stdout except JSON-RPC messages.
// - Any debug or informational logs go to a trace file when tracing is enabled.
// - Messages are newline-delimited JSON objects rather than using Content-Length framing.
//
// Prompts run on their own goroutine so a long-running turn for one session
// never blocks reads, responses for other sessions, or cancel delivery.
// Overlapping prompts for the same session are serialized by the session.
// Run returns once the input stream is closed and all in-flight prompt turns
// have drained.
func Run(ctx context.Context, ag *agent.Agent, in *bufio.Reader, out *bufio.Writer, traceEnabled bool) error {
	var traceFile *os.File
	trace := func(msg string) {} // Do nothing by default
	if traceEnabled {
		traceFile, _ = os.OpenFile("acp.trace", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		defer traceFile.Close()
		trace = func(msg string) {
			if traceFile != nil {
				fmt.Fprintf(traceFile, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
			}
		}
	}

	trace("Run: starting ACP server")
	server := &acpServer{
		ctx:          ctx,
		agent:        ag,
		StdinReader:  in,
		StdoutWriter: out,
		trace:        trace,
	}

	// Main read loop
	for {
		payload, err := server.readFramedMessage()
		if err != nil {
			if err == io.EOF {
				trace("Run: EOF received, draining in-flight prompts")
				server.prompts.Wait()
				return nil
			}
			// If framing is broken, there isn't a safe way to continue.
			trace(fmt.Sprintf("Run: read error: %v", err))
			server.prompts.Wait()
			return fmt.Errorf("ACP: read error: %w", err)
		}
		if len(payload) == 0 {
			continue
		}

		trace(fmt.Sprintf("Run: received payload: %s", string(payload)))
		var req jsonrpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			trace(fmt.Sprintf("Run: JSON parse error: %v", err))
			_ = server.writeResponseError(nil, -32700, "Parse error", nil)
			continue
		}

		trace(fmt.Sprintf("Run: dispatching method: %s with ID: %v", req.Method, req.ID))
		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "authenticate":
			server.handleAuthenticate(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/prompt":
			server.dispatchSessionPrompt(&req)
		case "session/cancel":
			server.handleSessionCancel(&req)
		default:
			trace("Run: method not found")
			_ = server.writeResponseError(req.ID, -32601, "Method not found", nil)
		}
	}
}

// ---- Minimal ACP handling types ----

// jsonrpcRequest represents a JSON-RPC 2.0 request message
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonrpcResponse represents a JSON-RPC 2.0 response message
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError represents a JSON-RPC 2.0 error object
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ---- acpServer ----

// acpServer holds the state of one server instance: the agent it dispatches
// to and the framed stdio streams it owns.
type acpServer struct {
	ctx   context.Context
	agent *agent.Agent

	StdinReader  *bufio.Reader
	StdoutWriter *bufio.Writer
	writeLock    sync.Mutex
	prompts      sync.WaitGroup
	trace        func(string)
}

// readFramedMessage reads a single newline-delimited JSON-RPC payload.
func (s *acpServer) readFramedMessage() ([]byte, error) {
	line, err := s.StdinReader.ReadBytes('\n')
	if len(line) > 0 {
		line = bytes.TrimRight(line, "\r\n")
		if err == io.EOF {
			// A final line without a trailing newline is still a full frame.
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	return line, nil
}

// writeFramedJSON serializes and writes a JSON-RPC message to stdout.
// The write lock makes each message a single atomic write, so concurrent
// prompt turns never interleave mid-frame.
func (s *acpServer) writeFramedJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		s.trace(fmt.Sprintf("writeFramedJSON: marshal error: %v", err))
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.trace(fmt.Sprintf("writeFramedJSON: %s", string(data)))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.StdoutWriter.Write(data); err != nil {
		return err
	}
	// Newline terminates the frame and tells the client it is complete.
	if _, err := s.StdoutWriter.WriteString("\n"); err != nil {
		return err
	}
	return s.StdoutWriter.Flush()
}

// writeResponseOK sends a successful JSON-RPC response with the given result
func (s *acpServer) writeResponseOK(id any, result json.RawMessage) error {
	resp := jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	return s.writeFramedJSON(resp)
}

// writeResponseError sends a JSON-RPC error response with the specified error code and message
func (s *acpServer) writeResponseError(id any, code int, msg string, data any) error {
	s.trace(fmt.Sprintf("writeResponseError: code=%d, msg=%s, data=%+v", code, msg, data))
	resp := jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &jsonrpcError{
			Code:    code,
			Message: msg,
			Data:    data,
		},
	}
	return s.writeFramedJSON(resp)
}

// writeNotification sends a JSON-RPC notification (request without an ID)
func (s *acpServer) writeNotification(method string, params any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	return s.writeFramedJSON(msg)
}

// ---- Handlers ----

// handleInitialize processes the initialize request from the ACP client.
// The capability set is static and side-effect free: repeated initialize
// calls re-return the same response. We advertise no session loading,
// prompt capabilities without audio or image but with embedded context,
// and a single no-op authentication method (the server never calls a model
// itself, so there are no credentials to collect).
func (s *acpServer) handleInitialize(req *jsonrpcRequest) {
	s.trace("handleInitialize: starting")
	resp := map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": false,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": true,
				"image":           false,
			},
		},
		"authMethods": []any{
			map[string]any{
				"id":          "none",
				"name":        "No authentication",
				"description": "This agent performs no model calls and requires no credentials",
			},
		},
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.trace(fmt.Sprintf("handleInitialize: marshal error: %v", err))
	}
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

// handleAuthenticate always succeeds. The advertised auth method is a no-op;
// the handler exists only to satisfy the protocol shape.
func (s *acpServer) handleAuthenticate(req *jsonrpcRequest) {
	s.trace("handleAuthenticate: starting")
	_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
}

// handleSessionNew creates a new session rooted at the supplied working
// directory and returns its ID to the client.
func (s *acpServer) handleSessionNew(req *jsonrpcRequest) {
	s.trace("handleSessionNew: starting")
	// sessionNewParams represents the parameters for creating a new session
	type sessionNewParams struct {
		Cwd        string          `json:"cwd"`
		McpServers json.RawMessage `json:"mcpServers"`
	}
	var p sessionNewParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: unmarshal error: %v", err))
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("unmarshal error: %v", err))
		return
	}

	sess := s.agent.NewSession(p.Cwd)
	s.trace(fmt.Sprintf("handleSessionNew: created session ID: %s", sess.ID))

	resp := map[string]any{
		"sessionId": sess.ID,
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: marshal error: %v", err))
	}
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

// contentBlock represents a content block in ACP prompt requests.
// Only text blocks carry payload at this layer; the negotiated prompt
// capabilities exclude binary content, so other block types are ignored.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// promptParams represents the parameters for processing a prompt
type promptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []contentBlock `json:"prompt"`
}

// dispatchSessionPrompt runs on the read loop and establishes everything
// that depends on message arrival order before the turn goes asynchronous:
// it validates the request, clears the cancellation flag (so a cancel that
// arrived before this prompt is erased, while one that arrives after it is
// observed by the turn), and reserves the session's next turn slot. The turn
// itself then runs on its own goroutine so one session's prompt never blocks
// other sessions or cancel delivery.
func (s *acpServer) dispatchSessionPrompt(req *jsonrpcRequest) {
	s.trace("dispatchSessionPrompt: starting")
	var p promptParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.trace(fmt.Sprintf("dispatchSessionPrompt: unmarshal error: %v", err))
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("unmarshal error: %v", err))
		return
	}

	s.trace(fmt.Sprintf("dispatchSessionPrompt: looking up session: %s", p.SessionID))
	sess, ok := s.agent.Store.Get(p.SessionID)
	if !ok {
		s.trace("dispatchSessionPrompt: unknown sessionId")
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "unknown sessionId")
		return
	}

	sess.ResetCancel()
	start, done := sess.EnqueueTurn()

	s.prompts.Add(1)
	go func() {
		defer s.prompts.Done()
		<-start
		defer done()
		s.runPromptTurn(req.ID, sess, &p)
	}()
}

// runPromptTurn processes one prompt turn:
//  1. Echoes each text content block back as a user_message_chunk, preserving
//     input order, so the client can render exactly what it sent.
//  2. Hands the concatenated text to the agent, which streams
//     agent_message_chunk notifications through the callback.
//  3. Responds with the turn's stop reason (end_turn or cancelled).
func (s *acpServer) runPromptTurn(id any, sess *session.Session, p *promptParams) {
	s.trace(fmt.Sprintf("runPromptTurn: starting turn for session: %s", p.SessionID))

	// Echo the prompt back, block by block, in input order.
	for _, block := range p.Prompt {
		if block.Type != "text" {
			s.trace(fmt.Sprintf("runPromptTurn: ignoring unsupported block type %q", block.Type))
			continue
		}
		_ = s.sendUserMessageChunk(p.SessionID, block.Text)
	}

	userText := extractUserText(p.Prompt)
	s.trace(fmt.Sprintf("runPromptTurn: extracted user text: %s", userText))

	cb := agent.TurnCallbacks{
		OnAgentMessage: func(text string) {
			_ = s.sendAgentMessageChunk(p.SessionID, text)
		},
	}
	stop := s.agent.ProcessTurn(s.ctx, sess, userText, cb)

	resp := map[string]any{
		"stopReason": string(stop),
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.trace(fmt.Sprintf("runPromptTurn: marshal error: %v", err))
	}
	s.trace(fmt.Sprintf("runPromptTurn: sending response: %s", string(respBytes)))
	_ = s.writeResponseOK(id, json.RawMessage(respBytes))
}

// handleSessionCancel processes the session/cancel notification. Cancellation
// is cooperative and racy by protocol design: flagging an unknown or already
// finished session is silently ignored, and no response is sent.
func (s *acpServer) handleSessionCancel(req *jsonrpcRequest) {
	s.trace("handleSessionCancel: starting")
	type cancelParams struct {
		SessionID string `json:"sessionId"`
	}
	var p cancelParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.trace(fmt.Sprintf("handleSessionCancel: unmarshal error: %v", err))
		return
	}
	s.trace(fmt.Sprintf("handleSessionCancel: flagging session: %s", p.SessionID))
	s.agent.Cancel(p.SessionID)
}

// sendUserMessageChunk emits a session/update notification echoing a piece of
// the user's prompt.
func (s *acpServer) sendUserMessageChunk(sessionID, text string) error {
	notification := map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "user_message_chunk",
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	}
	return s.writeNotification("session/update", notification)
}

// sendAgentMessageChunk emits a session/update notification with an agent
// message chunk. This streams text from the agent to the client as it
// becomes available.
func (s *acpServer) sendAgentMessageChunk(sessionID, text string) error {
	notification := map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "agent_message_chunk",
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	}
	return s.writeNotification("session/update", notification)
}

// extractUserText concatenates the text content blocks of a prompt into a
// single plain-text prompt string. Every text block contributes, including
// whitespace-only ones; blocks are joined with a newline so words at block
// boundaries stay separate tokens. Non-text blocks are skipped.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
