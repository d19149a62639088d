package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/chat"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/session"
)

// Controller is the part of session.Session the chat screen drives.
type Controller interface {
	Start(ctx context.Context) error
	Skip() error
	Reconnect() error
	Stop() error
	SetTrackEnabled(kind media.Kind, enabled bool) error
	SendChat(text string) error
	Snapshot() session.Snapshot
	Updates() <-chan session.Snapshot
	Done() <-chan struct{}
}

var _ Controller = (*session.Session)(nil)

type snapshotMsg session.Snapshot

type sessionDoneMsg struct{}

// actionMsg reports the outcome of a user action that failed.
type actionMsg struct {
	op  string
	err error
}

// ChatModel is the interactive session screen.
type ChatModel struct {
	ctx      context.Context
	ctl      Controller
	snap     session.Snapshot
	input    textinput.Model
	spinner  spinner.Model
	notice   string
	width    int
	height   int
	quitting bool
}

func NewChatModel(ctx context.Context, ctl Controller) *ChatModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "Say hi to the stranger..."
	in.CharLimit = chat.MaxLength
	in.Prompt = IconChat + " "
	in.Focus()

	return &ChatModel{
		ctx:     ctx,
		ctl:     ctl,
		snap:    ctl.Snapshot(),
		input:   in,
		spinner: s,
		width:   80,
		height:  24,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.act("start", func() error { return m.ctl.Start(m.ctx) }),
		m.waitForUpdates(),
	)
}

// waitForUpdates listens for the next session snapshot.
func (m *ChatModel) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-m.ctl.Updates():
			return snapshotMsg(snap)
		case <-m.ctl.Done():
			return sessionDoneMsg{}
		}
	}
}

// act runs fn off the UI goroutine and reports a failure.
func (m *ChatModel) act(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return actionMsg{op: op, err: err}
		}
		return nil
	}
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-10)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		prev := m.snap
		m.snap = session.Snapshot(msg)
		if prev.Room != m.snap.Room {
			m.notice = ""
		}
		return m, m.waitForUpdates()

	case sessionDoneMsg:
		m.quitting = true
		return m, tea.Quit

	case actionMsg:
		m.notice = describeActionError(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Sequence(m.act("stop", m.ctl.Stop), tea.Quit)

	case "ctrl+n":
		m.notice = ""
		return m, m.act("skip", m.ctl.Skip)

	case "ctrl+r":
		m.notice = ""
		if m.snap.Status.Startable() {
			return m, m.act("start", func() error { return m.ctl.Start(m.ctx) })
		}
		return m, m.act("reconnect", m.ctl.Reconnect)

	case "ctrl+a":
		enabled := !m.snap.Audio
		return m, m.act("toggle audio", func() error { return m.ctl.SetTrackEnabled(media.KindAudio, enabled) })

	case "ctrl+v":
		enabled := !m.snap.Video
		return m, m.act("toggle video", func() error { return m.ctl.SetTrackEnabled(media.KindVideo, enabled) })

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.act("send", func() error { return m.ctl.SendChat(text) })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func describeActionError(msg actionMsg) string {
	switch {
	case errors.Is(msg.err, chat.ErrNotInRoom), errors.Is(msg.err, session.ErrNotMatched):
		return "Nobody to talk to yet. Wait for a match."
	case errors.Is(msg.err, media.ErrNoStream), errors.Is(msg.err, media.ErrTrackMissing):
		return "No local " + strings.TrimPrefix(msg.op, "toggle ") + " to toggle."
	case errors.Is(msg.err, session.ErrBusy):
		return "Already chatting."
	case errors.Is(msg.err, session.ErrNotRunning):
		return "Not connected. Press ctrl+r to start."
	}
	return fmt.Sprintf("%s failed: %v", msg.op, msg.err)
}

func (m *ChatModel) View() string {
	if m.quitting {
		return MutedStyle.Render("Bye!") + "\n"
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(IconVideo+" omegle-clone") + "\n")
	b.WriteString(m.viewStatus() + "\n")
	b.WriteString(m.viewMedia() + "\n\n")

	if m.snap.Room != "" {
		b.WriteString(m.viewChat())
		b.WriteString("\n")
	}

	if m.snap.Err != nil {
		b.WriteString(m.viewError() + "\n")
	}
	if m.notice != "" {
		b.WriteString(WarningStyle.Render(IconWarning+" "+m.notice) + "\n")
	}

	b.WriteString("\n" + m.input.View() + "\n")
	b.WriteString(FooterStyle.Render("ctrl+n next • ctrl+a mic • ctrl+v camera • ctrl+r reconnect • esc quit"))

	return ContainerStyle.Render(b.String())
}

func (m *ChatModel) viewStatus() string {
	s := m.snap
	var line string
	switch s.Status {
	case session.StatusIdle:
		line = MutedStyle.Render("Idle. Press ctrl+r to start.")
	case session.StatusConnecting:
		line = m.spinner.View() + " Connecting to server..."
	case session.StatusJoining:
		line = m.spinner.View() + " Looking for someone to talk to..."
	case session.StatusMatched, session.StatusNegotiating:
		line = m.spinner.View() + " Matched! Setting up video in " + BoldStyle.Render(s.Room) + "..."
	case session.StatusConnected:
		line = SuccessStyle.Render(IconPeer+" You're now chatting with a random stranger") +
			MutedStyle.Render(" ("+s.Room+")")
	case session.StatusReconnecting:
		line = m.spinner.View() + " Finding someone new..."
	case session.StatusDisconnected:
		line = WarningStyle.Render(IconConnect + " Disconnected. Press ctrl+r to reconnect.")
	case session.StatusFailed:
		line = ErrorStyle.Render(IconError + " Session failed. Press ctrl+r to try again.")
	case session.StatusClosed:
		line = MutedStyle.Render("Session closed.")
	}

	online := ""
	if s.Online > 0 {
		online = MutedStyle.Render(fmt.Sprintf("  %s %d online", IconPeople, s.Online))
	}
	return StatusStyle.Render(strings.ToUpper(s.Status.String())) + " " + line + online
}

func (m *ChatModel) viewMedia() string {
	s := m.snap
	if !s.HasLocal {
		return MutedStyle.Render("No local camera or microphone")
	}

	mic := IconMic + " mic on"
	if !s.Audio {
		mic = IconMuted + " mic off"
	}
	cam := IconCamera + " camera on"
	if !s.Video {
		cam = IconCamera + " camera off"
	}
	parts := []string{mic, cam}

	if s.Remote != nil {
		remote := "stranger:"
		for _, t := range s.Remote.Tracks {
			remote += " " + string(t.Kind)
		}
		parts = append(parts, remote)
	}
	return MutedStyle.Render(strings.Join(parts, "  •  "))
}

// viewChat renders the newest messages that fit on screen.
func (m *ChatModel) viewChat() string {
	msgs := m.snap.Chat
	if len(msgs) == 0 {
		return BoxStyle.Width(max(20, m.width-8)).Render(MutedStyle.Render("No messages yet. Say hi!"))
	}

	limit := max(3, m.height-14)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		who := StrangerStyle.Render("Stranger:")
		if msg.Origin == chat.OriginSelf {
			who = SelfStyle.Render("You:")
		}
		lines = append(lines, who+" "+msg.Text)
	}
	return BoxStyle.Width(max(20, m.width-8)).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *ChatModel) viewError() string {
	err := m.snap.Err
	msg := ErrorStyle.Render(IconError + " " + err.Error())

	var access *media.AccessError
	if errors.As(err, &access) {
		msg += "\n" + HintStyle.Render(access.Hint())
	}
	return msg
}

// RunChat runs the chat screen until the user quits or the session ends.
func RunChat(ctx context.Context, ctl Controller, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(NewChatModel(ctx, ctl), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
