package session

import (
	"strings"
	"time"
)

// MessageType identifies who authored a chat message
type MessageType string

const (
	TypeUser      MessageType = "user"
	TypeAssistant MessageType = "assistant"
)

// TempIDPrefix marks ids generated on the client for optimistic messages
const TempIDPrefix = "temp-"

// Message is a single entry of a chat transcript.
// It is either a UserMessage or an AssistantMessage.
type Message interface {
	MessageID() string
	Type() MessageType
	Text() string
	CreatedAt() time.Time
	isMessage()
}

// UserMessage is a question typed by the user
type UserMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"created_at"`
	// Pending is set while the message has not been confirmed by the server
	Pending bool `json:"-"`
}

func (m UserMessage) MessageID() string    { return m.ID }
func (m UserMessage) Type() MessageType    { return TypeUser }
func (m UserMessage) Text() string         { return m.Content }
func (m UserMessage) CreatedAt() time.Time { return m.Timestamp }
func (UserMessage) isMessage()             {}

// Source is the document an assistant answer was drawn from
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Kind string `json:"type,omitempty"`
}

// AssistantMessage is a reply produced by the chat backend
type AssistantMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"created_at"`
	Source    *Source   `json:"source,omitempty"`
	// Confidence is in [0,1] when the backend reports one
	Confidence *float64 `json:"confidence,omitempty"`
}

func (m AssistantMessage) MessageID() string    { return m.ID }
func (m AssistantMessage) Type() MessageType    { return TypeAssistant }
func (m AssistantMessage) Text() string         { return m.Content }
func (m AssistantMessage) CreatedAt() time.Time { return m.Timestamp }
func (AssistantMessage) isMessage()             {}

// Session represents a chat session tracked by the backend
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"session_title,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	Active       bool      `json:"is_active"`
	MessageCount int       `json:"message_count,omitempty"`
	Messages     []Message `json:"-"`
}

// Exchange is the server-confirmed result of sending one message
type Exchange struct {
	SessionID string
	User      UserMessage
	Assistant AssistantMessage
}

// IsTemporary reports whether id was generated on the client
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
