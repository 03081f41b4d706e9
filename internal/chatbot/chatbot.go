package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"

	"CepaChat/internal/chat"
	"CepaChat/internal/session"
)

// SessionLister lists the sessions known to the backend
type SessionLister interface {
	ListSessions(ctx context.Context) ([]session.Session, error)
}

// ChatBot is the line-oriented chat used when no terminal UI is available
type ChatBot struct {
	conv     *chat.Conversation
	sessions SessionLister
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	title    string
	// copy defaults to the system clipboard
	copy func(string) error
}

// NewChatBot creates a ChatBot reading from in and writing to out.
// sessions may be nil, which disables /sessions.
func NewChatBot(conv *chat.Conversation, sessions SessionLister, logger *slog.Logger, in io.Reader, out io.Writer, title string) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatBot{
		conv:     conv,
		sessions: sessions,
		logger:   logger,
		in:       in,
		out:      out,
		title:    title,
		copy:     clipboard.WriteAll,
	}
}

// handleCommand handles slash commands. It reports whether to quit.
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new", "/new-session":
		cb.conv.Reset(ctx)
		fmt.Fprintln(cb.out, "Started a new chat.")
		return false, nil

	case "/session":
		st := cb.conv.Snapshot()
		if st.SessionID == "" {
			fmt.Fprintln(cb.out, "No session yet. It is created with your first message.")
		} else {
			fmt.Fprintf(cb.out, "Session: %s (%d messages shown)\n", st.SessionID, len(st.Messages))
		}
		return false, nil

	case "/sessions":
		if cb.sessions == nil {
			return false, fmt.Errorf("session listing is not available")
		}
		list, err := cb.sessions.ListSessions(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list sessions: %w", err)
		}
		cb.printSessions(list)
		return false, nil

	case "/resume":
		if len(parts) != 2 {
			return false, fmt.Errorf("usage: /resume <session id>")
		}
		if err := cb.conv.Resume(ctx, parts[1]); err != nil {
			return false, fmt.Errorf("failed to resume session %s: %w", parts[1], err)
		}
		st := cb.conv.Snapshot()
		fmt.Fprintf(cb.out, "Session: %s\n", st.SessionID)
		for _, m := range st.Messages {
			cb.printMessage(m)
		}
		return false, nil

	case "/copy":
		answer, ok := cb.conv.Snapshot().LastAnswer()
		if !ok {
			return false, fmt.Errorf("nothing to copy yet")
		}
		if err := cb.copy(answer.Content); err != nil {
			return false, fmt.Errorf("failed to copy answer: %w", err)
		}
		fmt.Fprintln(cb.out, "Copied the last answer to the clipboard.")
		return false, nil

	case "/help":
		fmt.Fprintln(cb.out, "Available commands:")
		fmt.Fprintln(cb.out, "  /new      - Start a new chat")
		fmt.Fprintln(cb.out, "  /session  - Show the current session")
		fmt.Fprintln(cb.out, "  /sessions - List your sessions")
		fmt.Fprintln(cb.out, "  /resume   - Continue a session: /resume <id>")
		fmt.Fprintln(cb.out, "  /copy     - Copy the last answer to the clipboard")
		fmt.Fprintln(cb.out, "  /help     - Show this help message")
		fmt.Fprintln(cb.out, "  /quit     - Exit")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

// Run reads questions line by line until EOF or /quit
func (cb *ChatBot) Run(ctx context.Context) error {
	fmt.Fprintf(cb.out, "=== %s ===\n", cb.title)
	st := cb.conv.Snapshot()
	if st.SessionID != "" {
		fmt.Fprintf(cb.out, "Session: %s\n", st.SessionID)
		for _, m := range st.Messages {
			cb.printMessage(m)
		}
	}
	fmt.Fprintln(cb.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(cb.out)

	scanner := bufio.NewScanner(cb.in)
	for {
		fmt.Fprint(cb.out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(cb.out, "Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if _, err := cb.conv.Submit(ctx, input); err != nil {
			fmt.Fprintf(cb.out, "Error: %s\n\n", cb.conv.Snapshot().Err)
			continue
		}
		if answer, ok := cb.conv.Snapshot().LastAnswer(); ok {
			cb.printMessage(answer)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Fprintln(cb.out, "Goodbye!")
	return nil
}

func (cb *ChatBot) printMessage(m session.Message) {
	switch m := m.(type) {
	case session.UserMessage:
		fmt.Fprintf(cb.out, "You: %s\n", m.Content)
	case session.AssistantMessage:
		fmt.Fprintf(cb.out, "Bot: %s\n", m.Content)
		if m.Source != nil {
			fmt.Fprintf(cb.out, "     Source: %s\n", formatSource(m.Source))
		}
		fmt.Fprintln(cb.out)
	}
}

func formatSource(s *session.Source) string {
	out := s.Name
	if out == "" {
		out = s.URL
	} else if s.URL != "" {
		out += " <" + s.URL + ">"
	}
	if s.Kind != "" {
		out += " [" + s.Kind + "]"
	}
	return out
}

func (cb *ChatBot) printSessions(list []session.Session) {
	if len(list) == 0 {
		fmt.Fprintln(cb.out, "No sessions.")
		return
	}
	current := cb.conv.Snapshot().SessionID
	for _, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(cb.out, "%s %s  %s  (%d messages)\n", marker, s.ID, title, s.MessageCount)
	}
}
