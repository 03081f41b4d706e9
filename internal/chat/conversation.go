// Package chat holds the client side of a chat conversation: the active
// session pointer and the transcript, updated optimistically on submit and
// reconciled with the server's answer (or rolled back) once it arrives.
//
// Both presentations use a Conversation. The page view persists the
// session pointer and caps the transcript; the widget keeps the pointer in
// memory and keeps everything.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"CepaChat/internal/session"
	"CepaChat/internal/store"
)

// DefaultErrorMessage is shown when a failed send carries no message
const DefaultErrorMessage = "Sorry, something went wrong. Please try again."

// Transport is the part of the backend client a conversation needs
type Transport interface {
	SendMessage(ctx context.Context, query, sessionID string) (*session.Exchange, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
}

// Pointer persists the active session id
type Pointer interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Options configures a Conversation
type Options struct {
	// MaxMessages caps the transcript after each reconciliation; 0 keeps everything
	MaxMessages int
	// Pointer defaults to an in-memory store
	Pointer Pointer
	Logger  *slog.Logger
	Meter   metric.Meter
	Now     func() time.Time
	NewID   func() string
}

// State is a snapshot of a conversation for rendering
type State struct {
	SessionID string
	Messages  []session.Message
	Awaiting  bool
	Err       string
}

// LastAnswer returns the most recent assistant message
func (s State) LastAnswer() (session.AssistantMessage, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if m, ok := s.Messages[i].(session.AssistantMessage); ok {
			return m, true
		}
	}
	return session.AssistantMessage{}, false
}

// Pending describes a send that has been started with Begin
type Pending struct {
	TempID    string
	Query     string
	SessionID string
	gen       uint64
}

// Outcome is the settled result of a Pending send
type Outcome struct {
	Pending
	Exchange *session.Exchange
	Err      error
}

// Conversation is safe for concurrent use, but only one send may be in
// flight at a time.
type Conversation struct {
	transport Transport
	pointer   Pointer
	maxMsgs   int
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	exchanges metric.Int64Counter

	mu    sync.Mutex
	state State
	// gen changes on Reset so that a send started before it is ignored
	gen uint64
}

// New creates an empty conversation
func New(transport Transport, opts Options) *Conversation {
	c := &Conversation{
		transport: transport,
		pointer:   opts.Pointer,
		maxMsgs:   opts.MaxMessages,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if c.pointer == nil {
		c.pointer = store.NewMemory()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = func() string { return session.TempIDPrefix + uuid.NewString() }
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("CepaChat/internal/chat")
	}
	counter, err := meter.Int64Counter(
		"chat.exchanges",
		metric.WithDescription("Chat sends by outcome"),
	)
	if err != nil {
		c.logger.Warn("failed to create counter", "error", err)
	}
	c.exchanges = counter
	return c
}

// Snapshot returns a copy of the current state
func (c *Conversation) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Messages = append([]session.Message(nil), c.state.Messages...)
	return s
}

// Restore resumes the persisted session, if any. A session the server no
// longer knows is forgotten silently and the conversation starts fresh.
// It reports whether a session was restored.
func (c *Conversation) Restore(ctx context.Context) bool {
	id, err := c.pointer.Get(ctx)
	if err != nil {
		c.logger.Warn("failed to read session pointer", "error", err)
		return false
	}
	if id == "" {
		return false
	}

	sess, err := c.transport.GetSession(ctx, id)
	if err != nil {
		c.logger.Warn("stored session could not be loaded, starting fresh", "session_id", id, "error", err)
		if err := c.pointer.Clear(ctx); err != nil {
			c.logger.Warn("failed to clear session pointer", "error", err)
		}
		c.mu.Lock()
		c.state.SessionID = ""
		c.state.Messages = nil
		c.mu.Unlock()
		return false
	}

	c.adopt(sess)
	c.logger.Info("restored session", "session_id", sess.ID, "messages", len(sess.Messages))
	return true
}

// Resume loads the given session and makes it the active one. Unlike
// Restore, a failure is returned and the current state is kept.
// Restored and resumed sessions show the full server history; the cap
// applies from the next reconciliation on.
func (c *Conversation) Resume(ctx context.Context, id string) error {
	sess, err := c.transport.GetSession(ctx, id)
	if err != nil {
		return err
	}
	c.adopt(sess)
	c.persist(ctx, sess.ID)
	c.logger.Info("resumed session", "session_id", sess.ID)
	return nil
}

func (c *Conversation) adopt(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = State{
		SessionID: sess.ID,
		Messages:  append([]session.Message(nil), sess.Messages...),
	}
}

// Begin starts a send. It appends the optimistic user message and marks
// the conversation as awaiting a response. Blank input, or input while a
// send is already in flight, is ignored and ok is false.
func (c *Conversation) Begin(input string) (p Pending, ok bool) {
	query := strings.TrimSpace(input)
	if query == "" {
		return Pending{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Awaiting {
		return Pending{}, false
	}

	p = Pending{
		TempID:    c.newID(),
		Query:     query,
		SessionID: c.state.SessionID,
		gen:       c.gen,
	}
	c.state.Messages = append(c.state.Messages, session.UserMessage{
		ID:        p.TempID,
		Content:   query,
		Timestamp: c.now(),
		Pending:   true,
	})
	c.state.Awaiting = true
	c.state.Err = ""
	return p, true
}

// Dispatch performs the network send for p. It does not touch the state.
func (c *Conversation) Dispatch(ctx context.Context, p Pending) Outcome {
	ex, err := c.transport.SendMessage(ctx, p.Query, p.SessionID)
	return Outcome{Pending: p, Exchange: ex, Err: err}
}

// Settle applies the outcome of a send: on success the optimistic message
// is replaced by the confirmed user message and the assistant reply, on
// failure it is removed and the error recorded. The awaiting flag is
// cleared last either way.
func (c *Conversation) Settle(ctx context.Context, o Outcome) {
	if adopted := c.settle(o); adopted != "" {
		c.persist(ctx, adopted)
	}
}

// settle applies o under the lock and returns a newly adopted session id
// for the caller to persist once the lock is released
func (c *Conversation) settle(o Outcome) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.gen != c.gen {
		c.logger.Info("dropping response for a reset conversation", "temp_id", o.TempID)
		return ""
	}

	messages := withoutID(c.state.Messages, o.TempID)

	if o.Err != nil || o.Exchange == nil {
		msg := DefaultErrorMessage
		if o.Err != nil && strings.TrimSpace(o.Err.Error()) != "" {
			msg = o.Err.Error()
		}
		c.state.Messages = messages
		c.state.Err = msg
		c.record("rolled_back")
		c.logger.Error("failed to send message", "session_id", o.SessionID, "error", o.Err)
		c.state.Awaiting = false
		return ""
	}

	ex := o.Exchange
	messages = append(messages, ex.User, ex.Assistant)
	c.state.Messages = c.retain(messages)

	var adopted string
	if ex.SessionID != "" && ex.SessionID != c.state.SessionID {
		if c.state.SessionID != "" {
			c.logger.Warn("backend switched session", "from", c.state.SessionID, "to", ex.SessionID)
		}
		c.state.SessionID = ex.SessionID
		adopted = ex.SessionID
	}

	c.record("reconciled")
	c.state.Awaiting = false
	return adopted
}

// Submit is Begin, Dispatch and Settle in one call. accepted is false when
// the input was ignored; err is the send error after rollback.
func (c *Conversation) Submit(ctx context.Context, input string) (accepted bool, err error) {
	p, ok := c.Begin(input)
	if !ok {
		return false, nil
	}
	o := c.Dispatch(ctx, p)
	c.Settle(ctx, o)
	return true, o.Err
}

// Reset starts a new chat: the session id, transcript and error are
// discarded locally. The server-side session is left alone.
func (c *Conversation) Reset(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	old := c.state.SessionID
	c.state = State{}
	c.mu.Unlock()

	if err := c.pointer.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear session pointer", "error", err)
	}
	c.logger.Info("started new chat", "previous_session_id", old)
}

// retain applies the transcript cap
func (c *Conversation) retain(messages []session.Message) []session.Message {
	if c.maxMsgs <= 0 || len(messages) <= c.maxMsgs {
		return messages
	}
	return append([]session.Message(nil), messages[len(messages)-c.maxMsgs:]...)
}

func (c *Conversation) persist(ctx context.Context, id string) {
	if err := c.pointer.Set(ctx, id); err != nil {
		c.logger.Warn("failed to persist session pointer", "session_id", id, "error", err)
	}
}

func (c *Conversation) record(outcome string) {
	if c.exchanges == nil {
		return
	}
	c.exchanges.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func withoutID(messages []session.Message, id string) []session.Message {
	out := make([]session.Message, 0, len(messages))
	for _, m := range messages {
		if m.MessageID() != id {
			out = append(out, m)
		}
	}
	return out
}
