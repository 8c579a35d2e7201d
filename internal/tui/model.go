// Package tui drives one interview session from the terminal.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashureev/interview-chat/internal/domain"
	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/ashureev/interview-chat/internal/interviewer"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	title = "AI Excel Interviewer"

	// header + status line + bordered input
	chromeHeight = 1 + 1 + 3
)

// replyMsg carries the interviewer's answer for an accepted turn.
type replyMsg struct {
	turn  *interview.Turn
	reply *interviewer.Reply
	err   error
}

// Model is the bubbletea model for the terminal chat.
type Model struct {
	ctx       context.Context
	session   *interview.Session
	processor interviewer.Processor
	logger    *slog.Logger

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   styles

	width  int
	height int
	ready  bool
}

// New builds a model over session. ctx bounds every interviewer call.
func New(ctx context.Context, session *interview.Session, processor interviewer.Processor, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:       ctx,
		session:   session,
		processor: processor,
		logger:    logger,
		input:     ti,
		spinner:   sp,
		styles:    defaultStyles(),
	}
	m.syncInput()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case replyMsg:
		if msg.err != nil {
			m.logger.Warn("Interviewer call failed", "turn_id", msg.turn.ID, "error", msg.err)
		}
		m.session.Resolve(msg.turn, msg.reply, msg.err)
		m.syncInput()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.session.IsLoading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	turn, err := m.session.Begin(m.input.Value())
	if err != nil {
		if !errors.Is(err, interview.ErrEmptyInput) {
			m.logger.Debug("Submission rejected", "reason", err)
		}
		return m, nil
	}

	m.input.Reset()
	m.syncInput()
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.ask(turn))
}

// ask runs the interviewer call off the event loop.
func (m Model) ask(turn *interview.Turn) tea.Cmd {
	ctx, p := m.ctx, m.processor
	return func() tea.Msg {
		reply, err := p.Next(ctx, turn.Request)
		return replyMsg{turn: turn, reply: reply, err: err}
	}
}

// syncInput follows the session state: the input only accepts text while idle.
func (m *Model) syncInput() {
	snap := m.session.Snapshot()
	m.input.Placeholder = snap.Placeholder
	if snap.IsLoading || snap.IsInterviewOver {
		m.input.Blur()
	} else {
		m.input.Focus()
	}
}

func (m *Model) resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	m.width, m.height = width, height

	vpHeight := height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(width-6, 1)

	wrap := max(width-4, 20)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.logger.Debug("Markdown renderer unavailable", "error", err)
		renderer = nil
	}
	m.renderer = renderer
	m.refresh()
}

// refresh re-renders the transcript and keeps the newest message in view.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	var sb strings.Builder
	for _, msg := range m.session.Snapshot().Messages {
		switch msg.Role {
		case domain.RoleUser:
			sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
			sb.WriteString(m.styles.UserText.Render(msg.Content))
			sb.WriteString("\n")
		default:
			sb.WriteString(m.styles.AILabel.Render("Interviewer") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Content))
		}
	}
	return sb.String()
}

// safeRenderMarkdown falls back to plain text if glamour fails or panics.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content + "\n"
		}
	}()

	if m.renderer != nil && content != "" {
		if rendered, err := m.renderer.Render(content); err == nil {
			return rendered
		}
	}
	return content + "\n"
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var status string
	switch snap := m.session.Snapshot(); {
	case snap.IsLoading:
		status = m.styles.Status.Render(m.spinner.View() + " Interviewer is typing...")
	case snap.IsInterviewOver:
		status = m.styles.Ended.Render(domain.PlaceholderEnded + " Press Esc to exit.")
	default:
		status = m.styles.Status.Render("Enter to send, Esc to quit")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.viewport.View(),
		status,
		m.styles.InputBorder.Width(max(m.width-2, 1)).Render(m.input.View()),
	)
}
