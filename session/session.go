package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Message is a single entry in a session's conversation history.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Session is a stateful conversation context addressed by its ID. It holds
// the conversation history and the working directory all filesystem side
// effects are resolved against. Sessions live for the process lifetime; there
// is no persistence and no teardown operation in the protocol.
type Session struct {
	ID  string
	Cwd string

	// Active is reserved state: no current operation tears a session down,
	// but the flag exists so one could.
	Active bool

	mu       sync.Mutex
	messages []Message

	// Turn queue. turnTail is the completion channel of the most recently
	// enqueued turn; each new turn waits on its predecessor's channel, so
	// same-session turns run one at a time in enqueue order.
	turnMu   sync.Mutex
	turnTail chan struct{}

	cancelRequested atomic.Bool
}

// New creates a session rooted at cwd with a fresh unique identifier and an
// empty history. UUIDv7 identifiers are time-ordered and never reused within
// a process run.
func New(cwd string) *Session {
	tail := make(chan struct{})
	close(tail) // no prior turns: the first enqueued turn starts immediately
	return &Session{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Cwd:      cwd,
		Active:   true,
		turnTail: tail,
	}
}

// AddMessage appends a message to the conversation history.
func (s *Session) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns a defensive copy of the conversation history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// EnqueueTurn reserves the session's next prompt-turn slot in call order.
// The returned start channel is closed once all previously enqueued turns
// have finished; done must be called exactly once when the turn completes.
// Reserving the slot on the dispatch path and waiting on the worker keeps
// same-session turns one at a time in arrival order without blocking the
// dispatcher.
func (s *Session) EnqueueTurn() (start <-chan struct{}, done func()) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	prev := s.turnTail
	next := make(chan struct{})
	s.turnTail = next
	var once sync.Once
	return prev, func() { once.Do(func() { close(next) }) }
}

// RequestCancel marks the session's in-flight work for cooperative
// cancellation. It does not interrupt anything; the flag is read at
// checkpoints during prompt processing.
func (s *Session) RequestCancel() {
	s.cancelRequested.Store(true)
}

// ResetCancel clears the cancellation flag. Called on the read loop when a
// prompt is dispatched, so a cancel that arrived before the prompt has no
// effect while one that arrives after it is always observed by the turn.
func (s *Session) ResetCancel() {
	s.cancelRequested.Store(false)
}

// CancelRequested reports whether cancellation was requested since the last
// ResetCancel.
func (s *Session) CancelRequested() bool {
	return s.cancelRequested.Load()
}

// Store is an in-memory map of session ID to session. It is the single owner
// of all live sessions; inject one into the agent so tests get a fresh store
// per test.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Add registers a session under its ID.
func (st *Store) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Get looks up a session by ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
