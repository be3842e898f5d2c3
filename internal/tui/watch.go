package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lumenlaser/lumen/internal/dac"
	"github.com/lumenlaser/lumen/internal/protocol"
)

// DefaultPollInterval is how often the watch screen pings the device.
const DefaultPollInterval = 500 * time.Millisecond

// Message types for async operations
type connectedMsg struct {
	err error
}

type statusMsg struct {
	status protocol.DACStatus
	err    error
}

type pollTickMsg struct{}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Quit key.Binding
}

var watchKeys = watchKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// WatchModel is the live device dashboard: it connects to a device,
// polls its status with pings, and renders the playback engine state
// with the buffer fullness as a gauge.
type WatchModel struct {
	Addr         string
	PollInterval time.Duration

	session  *dac.Session
	capacity uint16

	spinner  spinner.Model
	progress progress.Model

	width     int
	connected bool
	status    protocol.DACStatus
	statusSet bool
	lastErr   error
	polls     uint64
}

// NewWatchModel creates the watch screen for a device address.
func NewWatchModel(addr string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return WatchModel{
		Addr:         addr,
		PollInterval: DefaultPollInterval,
		session:      dac.NewSession(),
		capacity:     protocol.BufferCapacity,
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient()),
		width:        80,
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.connectCmd())
}

func (m WatchModel) connectCmd() tea.Cmd {
	session, addr := m.session, m.Addr
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return connectedMsg{err: session.Connect(ctx, addr)}
	}
}

func (m WatchModel) pollCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := session.Ping(ctx)
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{status: resp.Status}
	}
}

func (m WatchModel) scheduleCmd() tea.Cmd {
	return tea.Tick(m.PollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, watchKeys.Quit) {
			_ = m.session.Close()
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 60 {
			m.progress.Width = 60
		}
		return m, nil

	case connectedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, tea.Quit
		}
		m.connected = true
		m.status = m.session.Status()
		m.statusSet = true
		return m, m.pollCmd()

	case statusMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, tea.Quit
		}
		m.polls++
		m.status = msg.status
		m.statusSet = true
		m.lastErr = nil
		return m, m.scheduleCmd()

	case pollTickMsg:
		return m, m.pollCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// Err returns the error that ended the watch, if any. Checked by the
// caller after the program exits.
func (m WatchModel) Err() error {
	return m.lastErr
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("LUMEN DEVICE WATCH"))
	b.WriteString("\n")
	b.WriteString(SubtitleStyle.Render(m.Addr))
	b.WriteString("\n\n")

	if !m.connected {
		b.WriteString(m.spinner.View())
		b.WriteString(" Connecting...\n")
		return b.String()
	}

	b.WriteString(BoxStyle.Render(m.renderStatus()))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m WatchModel) renderStatus() string {
	rows := []string{
		m.row("Playback", m.renderPlayback()),
		m.row("Point rate", fmt.Sprintf("%d pps", m.status.PointRate)),
		m.row("Points played", fmt.Sprintf("%d", m.status.PointCount)),
		m.row("Buffer", m.renderBuffer()),
	}
	if m.status.Underrun() {
		rows = append(rows, m.row("", WarnStyle.Render("UNDERRUN")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m WatchModel) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, LabelStyle.Render(label), ValueStyle.Render(value))
}

func (m WatchModel) renderPlayback() string {
	state := m.status.PlaybackState.String()
	switch m.status.PlaybackState {
	case protocol.PlaybackPlaying:
		return OKStyle.Render(state)
	case protocol.PlaybackPrepared:
		return WarnStyle.Render(state)
	default:
		return state
	}
}

func (m WatchModel) renderBuffer() string {
	frac := float64(m.status.BufferFullness) / float64(m.capacity)
	if frac > 1 {
		frac = 1
	}
	return fmt.Sprintf("%s %d/%d", m.progress.ViewAs(frac), m.status.BufferFullness, m.capacity)
}

// Watch runs the watch screen against a device until the user quits or
// the connection fails.
func Watch(addr string) error {
	model := NewWatchModel(addr)
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(WatchModel); ok && m.Err() != nil {
		return fmt.Errorf("watch ended: %w", m.Err())
	}
	return nil
}
