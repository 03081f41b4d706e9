package chatbot

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CepaChat/internal/chat"
	"CepaChat/internal/client"
	"CepaChat/internal/session"
)

type scriptedTransport struct {
	fail error
}

func (s *scriptedTransport) SendMessage(ctx context.Context, query, sessionID string) (*session.Exchange, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return &session.Exchange{
		SessionID: "abc",
		User:      session.UserMessage{ID: "1", Content: query},
		Assistant: session.AssistantMessage{
			ID:      "2",
			Content: "CEPA is an independent think tank.",
			Source:  &session.Source{Name: "About", URL: "https://example.org/about", Kind: "page"},
		},
	}, nil
}

func (s *scriptedTransport) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return nil, errors.New("not found")
}

func run(t *testing.T, transport chat.Transport, input string) (string, *chat.Conversation) {
	t.Helper()
	conv := chat.New(transport, chat.Options{MaxMessages: 10})
	var out bytes.Buffer
	bot := NewChatBot(conv, nil, nil, strings.NewReader(input), &out, "CEPA Assistant")
	require.NoError(t, bot.Run(context.Background()))
	return out.String(), conv
}

func TestRunAnswersQuestions(t *testing.T) {
	out, conv := run(t, &scriptedTransport{}, "What is CEPA?\n/quit\n")

	assert.Contains(t, out, "=== CEPA Assistant ===")
	assert.Contains(t, out, "Bot: CEPA is an independent think tank.")
	assert.Contains(t, out, "Source: About <https://example.org/about> [page]")
	assert.Contains(t, out, "Goodbye!")
	assert.Equal(t, "abc", conv.Snapshot().SessionID)
}

func TestRunReportsErrorsAndContinues(t *testing.T) {
	out, conv := run(t, &scriptedTransport{fail: errors.New("backend unreachable")}, "hello\n\n/session\n")

	assert.Contains(t, out, "Error: backend unreachable")
	assert.Contains(t, out, "No session yet")
	assert.Empty(t, conv.Snapshot().Messages)
}

func TestNewCommandResetsConversation(t *testing.T) {
	out, conv := run(t, &scriptedTransport{}, "hi\n/new\n")

	assert.Contains(t, out, "Started a new chat.")
	assert.Empty(t, conv.Snapshot().SessionID)
}

func TestUnknownCommand(t *testing.T) {
	out, _ := run(t, &scriptedTransport{}, "/dance\n")
	assert.Contains(t, out, "unknown command: /dance")
}

func TestCopyCommand(t *testing.T) {
	conv := chat.New(&scriptedTransport{}, chat.Options{})
	var out bytes.Buffer
	bot := NewChatBot(conv, nil, nil, strings.NewReader("/copy\nhi\n/copy\n"), &out, "t")
	var copied string
	bot.copy = func(s string) error {
		copied = s
		return nil
	}

	require.NoError(t, bot.Run(context.Background()))
	assert.Contains(t, out.String(), "nothing to copy yet")
	assert.Equal(t, "CEPA is an independent think tank.", copied)
}

func TestFormatSource(t *testing.T) {
	assert.Equal(t, "https://x", formatSource(&session.Source{URL: "https://x"}))
	assert.Equal(t, "Brief", formatSource(&session.Source{Name: "Brief"}))
	assert.Equal(t, "Brief [pdf]", formatSource(&session.Source{Name: "Brief", Kind: "pdf"}))
}

func TestSessionsCommandUsesCachedList(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chatbot/sessions/", r.URL.Path)
		hits.Add(1)
		w.Write([]byte(`[{"id": "abc", "session_title": "Budget", "message_count": 4}, {"id": "def", "message_count": 2}]`))
	}))
	defer srv.Close()

	c, err := client.New(client.Options{BaseURL: srv.URL + "/api", CacheTTL: time.Minute})
	require.NoError(t, err)

	conv := chat.New(&scriptedTransport{}, chat.Options{})
	var out bytes.Buffer
	bot := NewChatBot(conv, c, nil, strings.NewReader("/sessions\nhi\n/sessions\n"), &out, "t")
	require.NoError(t, bot.Run(context.Background()))

	assert.Equal(t, int32(1), hits.Load(), "the second listing is served from the cache")
	assert.Contains(t, out.String(), "  abc  Budget  (4 messages)")
	assert.Contains(t, out.String(), "* abc  Budget  (4 messages)")
	assert.Contains(t, out.String(), "  def  (untitled)  (2 messages)")
}

func TestSessionsCommandWithoutLister(t *testing.T) {
	out, _ := run(t, &scriptedTransport{}, "/sessions\n")
	assert.Contains(t, out, "session listing is not available")
}

func TestResumeCommand(t *testing.T) {
	out, conv := run(t, &scriptedTransport{}, "/resume\n/resume gone\n")
	assert.Contains(t, out, "usage: /resume <session id>")
	assert.Contains(t, out, "failed to resume session gone: not found")
	assert.Empty(t, conv.Snapshot().SessionID)
}
