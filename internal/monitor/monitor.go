// Package monitor is a Bubble Tea program that renders the coordinator's
// state stream and forwards cancel/reset/demo commands.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
	"github.com/TheOriginalAyaka/discord-package-app/internal/pubsub"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
)

// Controller is the part of the coordinator the monitor drives.
type Controller interface {
	State() session.State
	Subscribe(ctx context.Context) <-chan pubsub.Event[session.State]
	Cancel() bool
	Reset()
	StartDemo() error
}

const (
	defaultWidth = 80
	logTailSize  = 5
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB454"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	logLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// Option configures a Model.
type Option func(*Model)

// WithExitWhenDone quits the program once the session that was running (or
// had already run) when the model was created is no longer live.
func WithExitWhenDone() Option {
	return func(m *Model) { m.exitWhenDone = true }
}

// WithLogListener shows a tail of the debug log below the state.
func WithLogListener(l *log.LogListener) Option {
	return func(m *Model) { m.logs = l }
}

// WithKeyMap replaces the default keybindings.
func WithKeyMap(k KeyMap) Option {
	return func(m *Model) { m.keys = k }
}

// WithNow overrides the clock used for elapsed times.
func WithNow(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// Model renders coordinator snapshots.
type Model struct {
	ctx  context.Context
	ctrl Controller
	sub  <-chan pubsub.Event[session.State]
	logs *log.LogListener

	keys    KeyMap
	state   session.State
	spinner spinner.Model
	width   int
	notice  string
	logTail []string

	seenLive     bool
	exitWhenDone bool
	now          func() time.Time
}

// New creates a monitor model. The subscription is taken immediately so no
// snapshot published after New returns is missed.
func New(ctx context.Context, ctrl Controller, opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		ctx:     ctx,
		ctrl:    ctrl,
		sub:     ctrl.Subscribe(ctx),
		keys:    DefaultKeyMap(),
		state:   ctrl.State(),
		spinner: s,
		width:   defaultWidth,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.seenLive = m.state.IsLive() || m.state.SessionID != ""
	return m
}

// State returns the last snapshot the model rendered.
func (m Model) State() session.State { return m.state }

// Notice returns the transient message shown under the state, if any.
func (m Model) Notice() string { return m.notice }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, pubsub.ListenCmd(m.ctx, m.sub)}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Next())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[session.State]:
		m.state = msg.Payload
		listen := pubsub.ListenCmd(m.ctx, m.sub)
		if m.state.IsLive() {
			m.seenLive = true
			return m, listen
		}
		if m.exitWhenDone && m.seenLive {
			return m, tea.Quit
		}
		return m, listen

	case log.LogEvent:
		// Engine stderr may carry its own escape sequences.
		m.logTail = append(m.logTail, ansi.Strip(strings.TrimRight(msg.Payload, "\n")))
		if len(m.logTail) > logTailSize {
			m.logTail = m.logTail[len(m.logTail)-logTailSize:]
		}
		return m, m.logs.Next()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		if !m.ctrl.Cancel() {
			m.notice = "Nothing to cancel"
		}
	case key.Matches(msg, m.keys.Reset):
		m.ctrl.Reset()
	case key.Matches(msg, m.keys.Demo):
		if err := m.ctrl.StartDemo(); err != nil {
			m.notice = err.Error()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	s := m.state

	b.WriteString(titleStyle.Render("Discord data package"))
	b.WriteString("\n\n")

	b.WriteString(m.line("Status", m.status()))
	if s.SessionID != "" {
		b.WriteString(m.line("Session", fmt.Sprintf("%s (%s, gen %d)", s.SessionID, s.Source, s.Generation)))
	}
	if s.ArchivePath != "" {
		b.WriteString(m.line("Archive", s.ArchivePath))
	}
	if !s.StartedAt.IsZero() {
		b.WriteString(m.line("Elapsed", s.StartedSince(m.now()).Round(time.Second).String()))
	}

	if p := s.Primary; p != nil {
		guilds := len(p.Guilds)
		b.WriteString(m.line("Overview", okStyle.Render(fmt.Sprintf("%d messages, %d channels, %d servers", p.MessageCount, p.ChannelCount, guilds))))
		if p.User != nil {
			b.WriteString(m.line("Account", p.User.Username))
		}
	}
	if a := s.Analytics; a != nil {
		b.WriteString(m.line("Analytics", okStyle.Render(fmt.Sprintf("%d events", a.AllEvents))))
	}
	if f := s.AnalyticsFailure(); f != nil {
		b.WriteString(m.line("Analytics", warnStyle.Render(f.Text())))
	}
	if f := s.Failure; f != nil {
		b.WriteString(m.line("Error", errorStyle.Render(f.Text())))
	}
	if m.notice != "" {
		b.WriteString("\n" + warnStyle.Render(m.clip(m.notice)) + "\n")
	}

	if len(m.logTail) > 0 {
		b.WriteString("\n")
		for _, l := range m.logTail {
			b.WriteString(logLineStyle.Render(m.clip(l)) + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render(m.clip(m.keys.helpLine())) + "\n")
	return b.String()
}

func (m Model) status() string {
	s := m.state
	switch {
	case s.IsLive():
		msg := s.ProgressMessage
		if msg == "" {
			msg = s.Phase.String()
		}
		return m.spinner.View() + " " + msg
	case s.Phase == session.PhaseCancelled:
		return warnStyle.Render("Cancelled")
	case s.Failure != nil:
		return errorStyle.Render("Failed")
	case s.Primary != nil:
		return okStyle.Render("Done")
	default:
		return "Idle"
	}
}

func (m Model) line(label, value string) string {
	return m.clip(labelStyle.Render(fmt.Sprintf("%-10s", label))+" "+value) + "\n"
}

// clip truncates rendered text to the terminal width, ANSI aware.
func (m Model) clip(s string) string {
	if m.width <= 0 {
		return s
	}
	return truncate.StringWithTail(s, uint(m.width), "…") //nolint:gosec // width is positive
}

// Run starts the monitor program and blocks until it quits or ctx is done.
func Run(ctx context.Context, ctrl Controller, opts ...Option) error {
	m := New(ctx, ctrl, opts...)
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() == nil {
		log.ErrorErr(log.CatUI, "Monitor exited with error", err)
		return err
	}
	return nil
}
