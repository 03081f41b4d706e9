package backend

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CepaChat/internal/session"
)

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var payload struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 42, "b": "abc-1", "c": null}`), &payload))
	assert.Equal(t, ID("42"), payload.A)
	assert.Equal(t, ID("abc-1"), payload.B)
	assert.Equal(t, ID(""), payload.C)

	var bad struct {
		A ID `json:"a"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"a": true}`), &bad))
}

func TestChatResponseExchange(t *testing.T) {
	raw := `{
		"session_id": "s-1",
		"user_message_id": 10,
		"assistant_message_id": 11,
		"answer": "CEPA is a policy think tank.",
		"source_document_name": "About CEPA",
		"source_document_url": "https://example.org/about.pdf",
		"source_document_type": "pdf",
		"confidence": 0.87,
		"timestamp": "2024-05-01T10:00:00Z"
	}`
	var resp ChatResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	ex, err := resp.Exchange("What is CEPA?", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "s-1", ex.SessionID)
	assert.Equal(t, "10", ex.User.ID)
	assert.Equal(t, "What is CEPA?", ex.User.Content)
	assert.False(t, ex.User.Pending)
	assert.Equal(t, "11", ex.Assistant.ID)
	assert.Equal(t, "CEPA is a policy think tank.", ex.Assistant.Content)
	require.NotNil(t, ex.Assistant.Source)
	assert.Equal(t, "About CEPA", ex.Assistant.Source.Name)
	assert.Equal(t, "pdf", ex.Assistant.Source.Kind)
	require.NotNil(t, ex.Assistant.Confidence)
	assert.InDelta(t, 0.87, *ex.Assistant.Confidence, 1e-9)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ex.Assistant.Timestamp.UTC())
}

func TestChatResponseExchangeRejectsMalformed(t *testing.T) {
	bad := 1.5
	cases := map[string]ChatResponse{
		"missing session":    {UserMessageID: "1", AssistantMessageID: "2"},
		"missing message id": {SessionID: "s", UserMessageID: "1"},
		"confidence range":   {SessionID: "s", UserMessageID: "1", AssistantMessageID: "2", Confidence: &bad},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resp.Exchange("q", time.Now())
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestChatResponseExchangeDefaultsTimestampAndSource(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	resp := ChatResponse{SessionID: "s", UserMessageID: "1", AssistantMessageID: "2", Answer: "hi"}
	ex, err := resp.Exchange("q", now)
	require.NoError(t, err)
	assert.Equal(t, now, ex.User.Timestamp)
	assert.Nil(t, ex.Assistant.Source)
	assert.Nil(t, ex.Assistant.Confidence)
}

func TestSessionResponseSession(t *testing.T) {
	raw := `{
		"id": 7,
		"session_title": "Budget questions",
		"started_at": "2024-05-01T10:00:00Z",
		"last_activity": "2024-05-01T10:05:00Z",
		"is_active": true,
		"messages": [
			{"id": 1, "message_type": "user", "content": "hello", "created_at": "2024-05-01T10:00:00Z"},
			{"id": 2, "message_type": "assistant", "content": "hi there", "confidence": 0.5,
			 "source_document_name": "Budget brief", "created_at": "2024-05-01T10:00:01Z"}
		]
	}`
	var resp SessionResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	sess, err := resp.Session()
	require.NoError(t, err)
	assert.Equal(t, "7", sess.ID)
	assert.Equal(t, "Budget questions", sess.Title)
	assert.True(t, sess.Active)
	assert.Equal(t, 2, sess.MessageCount)
	require.Len(t, sess.Messages, 2)

	user, ok := sess.Messages[0].(session.UserMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", user.Content)

	assistant, ok := sess.Messages[1].(session.AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, "Budget brief", assistant.Source.Name)
}

func TestSessionResponseRejectsUnknownMessageType(t *testing.T) {
	resp := SessionResponse{
		ID:       "1",
		Messages: []MessageResponse{{ID: "3", MessageType: "system", Content: "x"}},
	}
	_, err := resp.Session()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestErrorResponseText(t *testing.T) {
	assert.Equal(t, "boom", ErrorResponse{Error: "boom", Detail: "other"}.Text())
	assert.Equal(t, "Not found.", ErrorResponse{Detail: "Not found."}.Text())
	assert.Equal(t, "", ErrorResponse{Message: "   "}.Text())
}
