// Package tui is the terminal chat window: message bubbles, a typing
// indicator while an answer is on its way, and an input box that grows
// with its content.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"CepaChat/internal/chat"
	"CepaChat/internal/session"
)

const (
	maxInputLines = 6
	defaultWidth  = 80
	defaultHeight = 24
)

// sentMsg carries a settled send back into the update loop
type sentMsg struct {
	outcome chat.Outcome
}

// Model is the bubbletea model of the chat window
type Model struct {
	ctx     context.Context
	conv    *chat.Conversation
	title   string
	input   textarea.Model
	spinner spinner.Model
	width   int
	height  int
	notice  string

	// newRenderer builds the answer renderer for a wrap width; answers are
	// plain wrapped text when it is nil
	newRenderer func(width int) func(text string) string
	render      func(text string) string
	copy        func(string) error
}

// New creates the chat window for conv
func New(ctx context.Context, conv *chat.Conversation, title string) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about CEPA's research, events or publications..."
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(defaultWidth - 2)
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Points))

	return Model{
		ctx:         ctx,
		conv:        conv,
		title:       title,
		input:       ta,
		spinner:     sp,
		width:       defaultWidth,
		height:      defaultHeight,
		newRenderer: markdownRenderer,
		render:      markdownRenderer(bubbleWidth(defaultWidth) - 4),
		copy:        clipboard.WriteAll,
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(max(msg.Width-2, 10))
		if m.newRenderer != nil {
			m.render = m.newRenderer(bubbleWidth(m.width) - 4)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sentMsg:
		m.conv.Settle(m.ctx, msg.outcome)
		if m.conv.Snapshot().Awaiting {
			// an answer for an earlier chat; the current send still owns the input
			return m, nil
		}
		return m, m.input.Focus()

	case spinner.TickMsg:
		if !m.conv.Snapshot().Awaiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "ctrl+n":
		m.conv.Reset(m.ctx)
		m.notice = "Started a new chat."
		return m, m.input.Focus()

	case "ctrl+y":
		answer, ok := m.conv.Snapshot().LastAnswer()
		switch {
		case !ok:
			m.notice = "Nothing to copy yet."
		case m.copy(answer.Content) != nil:
			m.notice = "Could not access the clipboard."
		default:
			m.notice = "Copied the last answer."
		}
		return m, nil
	}

	// The input is disabled while an answer is on its way
	if m.conv.Snapshot().Awaiting {
		return m, nil
	}

	if msg.Type == tea.KeyEnter && !msg.Alt {
		p, ok := m.conv.Begin(m.input.Value())
		if !ok {
			return m, nil
		}
		m.notice = ""
		m.input.Reset()
		m.input.SetHeight(1)
		m.input.Blur()
		return m, tea.Batch(m.send(p), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.input.SetHeight(min(max(m.input.LineCount(), 1), maxInputLines))
	return m, cmd
}

// send runs the network call off the update loop
func (m Model) send(p chat.Pending) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		return sentMsg{outcome: conv.Dispatch(ctx, p)}
	}
}

func (m Model) View() string {
	st := m.conv.Snapshot()

	header := titleStyle.Render(m.title)
	if st.SessionID != "" {
		header += sessionStyle.Render("session " + st.SessionID)
	}

	var footer []string
	if st.Awaiting {
		footer = append(footer, "  "+m.spinner.View())
	}
	if st.Err != "" {
		footer = append(footer, errorStyle.Render(st.Err))
	}
	if m.notice != "" {
		footer = append(footer, noticeStyle.Render(m.notice))
	}
	footer = append(footer,
		m.input.View(),
		helpStyle.Render("enter send • alt+enter newline • ctrl+n new chat • ctrl+y copy answer • esc quit"),
	)
	bottom := strings.Join(footer, "\n")

	body := m.renderTranscript(st)
	room := m.height - lipgloss.Height(header) - lipgloss.Height(bottom)
	body = tail(body, max(room, 1))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, bottom)
}

func (m Model) renderTranscript(st chat.State) string {
	if len(st.Messages) == 0 {
		return emptyStyle.Render("Hi! Ask me anything about CEPA.")
	}

	width := bubbleWidth(m.width)
	blocks := make([]string, 0, len(st.Messages))
	for _, msg := range st.Messages {
		switch msg := msg.(type) {
		case session.UserMessage:
			style := userBubble
			if msg.Pending {
				style = pendingBubble
			}
			bubble := style.MaxWidth(width).Render(wrap(msg.Content, width-4))
			blocks = append(blocks, lipgloss.PlaceHorizontal(m.width, lipgloss.Right, bubble))
		case session.AssistantMessage:
			blocks = append(blocks, m.renderAnswer(msg, width))
		}
	}
	return strings.Join(blocks, "\n")
}

func (m Model) renderAnswer(msg session.AssistantMessage, width int) string {
	text := msg.Content
	if m.render != nil {
		text = m.render(text)
	} else {
		text = wrap(text, width-4)
	}

	lines := []string{strings.TrimRight(text, "\n")}
	if msg.Source != nil {
		src := "Source: " + msg.Source.Name
		if msg.Source.Name == "" {
			src = "Source: " + msg.Source.URL
		}
		if msg.Source.Kind != "" {
			src += " (" + msg.Source.Kind + ")"
		}
		lines = append(lines, sourceStyle.Render(src))
	}
	if msg.Confidence != nil {
		lines = append(lines, sourceStyle.Render(fmt.Sprintf("Confidence: %.0f%%", *msg.Confidence*100)))
	}
	return assistantBubble.MaxWidth(width).Render(strings.Join(lines, "\n"))
}

// bubbleWidth is the width of a message bubble in a window w columns wide
func bubbleWidth(w int) int {
	return max(w*3/4, 20)
}

// markdownRenderer returns a glamour renderer wrapping at width, or plain
// wrapping if glamour cannot be set up
func markdownRenderer(width int) func(string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(text string) string { return wrap(text, width) }
	}
	return func(text string) string {
		out, err := r.Render(text)
		if err != nil {
			return wrap(text, width)
		}
		return strings.Trim(out, "\n")
	}
}

// wrap soft-wraps text at width columns on word boundaries
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

// tail keeps the last n lines of s
func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
