package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"CepaChat/internal/session"
)

// ErrMalformed is returned when a backend payload fails validation
var ErrMalformed = errors.New("malformed backend response")

// ID accepts both numeric and string identifiers from the backend
type ID string

// UnmarshalJSON decodes a JSON string or number into an ID
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// ChatRequest represents the request body for POST /chatbot/chat/
type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse represents the response from POST /chatbot/chat/
type ChatResponse struct {
	SessionID          ID        `json:"session_id"`
	UserMessageID      ID        `json:"user_message_id"`
	AssistantMessageID ID        `json:"assistant_message_id"`
	Answer             string    `json:"answer"`
	SourceDocumentName string    `json:"source_document_name"`
	SourceDocumentURL  string    `json:"source_document_url"`
	SourceDocumentType string    `json:"source_document_type"`
	Confidence         *float64  `json:"confidence"`
	Timestamp          time.Time `json:"timestamp"`
}

// ErrorResponse covers the error shapes the backend uses
type ErrorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Text returns the first non-empty message of the error payload
func (e ErrorResponse) Text() string {
	for _, s := range []string{e.Error, e.Detail, e.Message} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Exchange validates the response and converts it into the confirmed
// user/assistant message pair. query is echoed as the user message text.
// now is used when the backend omits the timestamp.
func (r ChatResponse) Exchange(query string, now time.Time) (*session.Exchange, error) {
	if r.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session_id", ErrMalformed)
	}
	if r.UserMessageID == "" || r.AssistantMessageID == "" {
		return nil, fmt.Errorf("%w: missing message ids", ErrMalformed)
	}
	if err := checkConfidence(r.Confidence); err != nil {
		return nil, err
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}

	return &session.Exchange{
		SessionID: string(r.SessionID),
		User: session.UserMessage{
			ID:        string(r.UserMessageID),
			Content:   query,
			Timestamp: ts,
		},
		Assistant: session.AssistantMessage{
			ID:         string(r.AssistantMessageID),
			Content:    r.Answer,
			Timestamp:  ts,
			Source:     newSource(r.SourceDocumentName, r.SourceDocumentURL, r.SourceDocumentType),
			Confidence: r.Confidence,
		},
	}, nil
}

func newSource(name, url, kind string) *session.Source {
	if name == "" && url == "" {
		return nil
	}
	return &session.Source{Name: name, URL: url, Kind: kind}
}

func checkConfidence(c *float64) error {
	if c == nil {
		return nil
	}
	if *c < 0 || *c > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformed, *c)
	}
	return nil
}
