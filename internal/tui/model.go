package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"assistant/internal/assistant"
)

// ChatPort is the TUI-facing subset of the orchestrator.
type ChatPort interface {
	Chat(ctx context.Context, req assistant.Request) (assistant.Answer, error)
}

type turn struct {
	question string
	answer   string
	sources  []string
	err      error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	chat     ChatPort
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	status   string
	useKB    bool
	waiting  bool
	ready    bool
}

// New creates a new chat model instance.
func New(chat ChatPort, status string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	if status == "" {
		status = "Ready. Type to chat, ctrl+g toggles the knowledge base."
	}
	return Model{chat: chat, input: ti, viewport: vp, status: status, useKB: true}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

type answerMsg struct {
	question string
	answer   assistant.Answer
	err      error
}

func (m Model) ask(question string) tea.Cmd {
	useKB := m.useKB
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		ans, err := m.chat.Chat(ctx, assistant.Request{
			Message:          question,
			UseKnowledgeBase: useKB,
		})
		return answerMsg{question: question, answer: ans, err: err}
	}
}

// Update handles key, window and answer events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + mode line
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case answerMsg:
		m.waiting = false
		t := turn{question: msg.question}
		if msg.err != nil {
			t.err = msg.err
			m.status = "Error: " + msg.err.Error()
		} else {
			t.answer = msg.answer.Response
			t.sources = msg.answer.Sources
			m.status = "Answered by " + msg.answer.Model
		}
		m.turns = append(m.turns, t)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.input.SetValue("")
				m.waiting = true
				m.status = "Thinking..."
				return m, m.ask(q)
			}
		case "ctrl+g":
			m.useKB = !m.useKB
			if m.useKB {
				m.status = "Knowledge base on"
			} else {
				m.status = "Knowledge base off"
			}
			return m, nil
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and conversation transcript.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Personal Assistant")
	mode := "knowledge base: on"
	if !m.useKB {
		mode = "knowledge base: off"
	}
	modeLine := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(mode)
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + modeLine + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + t.question))
		b.WriteString("\n")
		if t.err != nil {
			b.WriteString(errorStyle.Render("error: " + t.err.Error()))
			continue
		}
		b.WriteString(t.answer)
		if len(t.sources) > 0 {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render(fmt.Sprintf("sources: %s", strings.Join(t.sources, ", "))))
		}
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
