package backend

import (
	"fmt"
	"time"

	"CepaChat/internal/session"
)

// SessionRequest represents the body for creating or renaming a session
type SessionRequest struct {
	Title string `json:"session_title,omitempty"`
}

// MessageResponse represents a stored message nested in a session
type MessageResponse struct {
	ID                 ID        `json:"id"`
	MessageType        string    `json:"message_type"`
	Content            string    `json:"content"`
	SourceDocumentName string    `json:"source_document_name"`
	SourceDocumentURL  string    `json:"source_document_url"`
	SourceDocumentType string    `json:"source_document_type"`
	Confidence         *float64  `json:"confidence"`
	CreatedAt          time.Time `json:"created_at"`
}

// SessionResponse represents a session returned by /chatbot/sessions/
type SessionResponse struct {
	ID           ID                `json:"id"`
	SessionTitle string            `json:"session_title"`
	StartedAt    time.Time         `json:"started_at"`
	LastActivity time.Time         `json:"last_activity"`
	IsActive     bool              `json:"is_active"`
	MessageCount int               `json:"message_count"`
	Messages     []MessageResponse `json:"messages"`
}

// SessionListResponse accepts both a bare array and a paginated envelope
type SessionListResponse struct {
	Count   int               `json:"count"`
	Results []SessionResponse `json:"results"`
}

// Message validates a stored message and converts it to its variant
func (m MessageResponse) Message() (session.Message, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: message without id", ErrMalformed)
	}
	switch session.MessageType(m.MessageType) {
	case session.TypeUser:
		return session.UserMessage{
			ID:        string(m.ID),
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		}, nil
	case session.TypeAssistant:
		if err := checkConfidence(m.Confidence); err != nil {
			return nil, err
		}
		return session.AssistantMessage{
			ID:         string(m.ID),
			Content:    m.Content,
			Timestamp:  m.CreatedAt,
			Source:     newSource(m.SourceDocumentName, m.SourceDocumentURL, m.SourceDocumentType),
			Confidence: m.Confidence,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message_type %q", ErrMalformed, m.MessageType)
	}
}

// Session validates the payload and converts it, including nested messages
func (r SessionResponse) Session() (*session.Session, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("%w: session without id", ErrMalformed)
	}

	messages := make([]session.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msg, err := m.Message()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	count := r.MessageCount
	if count == 0 {
		count = len(messages)
	}

	return &session.Session{
		ID:           string(r.ID),
		Title:        r.SessionTitle,
		StartedAt:    r.StartedAt,
		LastActivity: r.LastActivity,
		Active:       r.IsActive,
		MessageCount: count,
		Messages:     messages,
	}, nil
}
