package ui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/chat"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/peer"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/session"
)

type fakeController struct {
	mu      sync.Mutex
	calls   []string
	sent    []string
	toggles map[media.Kind]bool
	err     error
	snap    session.Snapshot
	updates chan session.Snapshot
	done    chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		toggles: map[media.Kind]bool{},
		updates: make(chan session.Snapshot, 1),
		done:    make(chan struct{}),
	}
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) Start(context.Context) error { return f.record("start") }
func (f *fakeController) Skip() error                 { return f.record("skip") }
func (f *fakeController) Reconnect() error            { return f.record("reconnect") }
func (f *fakeController) Stop() error                 { return f.record("stop") }

func (f *fakeController) SetTrackEnabled(kind media.Kind, enabled bool) error {
	f.mu.Lock()
	f.toggles[kind] = enabled
	f.mu.Unlock()
	return f.record("toggle")
}

func (f *fakeController) SendChat(text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return f.record("send")
}

func (f *fakeController) Snapshot() session.Snapshot        { return f.snap }
func (f *fakeController) Updates() <-chan session.Snapshot { return f.updates }
func (f *fakeController) Done() <-chan struct{}            { return f.done }

func (f *fakeController) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+a":
		return tea.KeyMsg{Type: tea.KeyCtrlA}
	case "ctrl+v":
		return tea.KeyMsg{Type: tea.KeyCtrlV}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m *ChatModel, msg tea.Msg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(msg)
	if cmd == nil {
		return nil
	}
	return cmd()
}

// typeText feeds runes to the input without running the cursor blink
// commands it returns.
func typeText(m *ChatModel, text string) {
	for _, r := range text {
		m.Update(key(string(r)))
	}
}

func TestSkipKey(t *testing.T) {
	ctl := newFakeController()
	m := NewChatModel(context.Background(), ctl)

	assert.Nil(t, update(t, m, key("ctrl+n")))
	assert.Equal(t, []string{"skip"}, ctl.called())
}

func TestEnterSendsTrimmedText(t *testing.T) {
	ctl := newFakeController()
	m := NewChatModel(context.Background(), ctl)

	typeText(m, "  hello  ")
	update(t, m, key("enter"))

	assert.Equal(t, []string{"hello"}, ctl.sent)
	assert.Empty(t, m.input.Value())
}

func TestEnterWithBlankInputDoesNothing(t *testing.T) {
	ctl := newFakeController()
	m := NewChatModel(context.Background(), ctl)

	typeText(m, " ")
	assert.Nil(t, update(t, m, key("enter")))
	assert.Empty(t, ctl.called())
}

func TestToggleFlipsCurrentState(t *testing.T) {
	ctl := newFakeController()
	ctl.snap = session.Snapshot{HasLocal: true, Audio: true, Video: false}
	m := NewChatModel(context.Background(), ctl)

	update(t, m, key("ctrl+a"))
	update(t, m, key("ctrl+v"))

	assert.Equal(t, map[media.Kind]bool{media.KindAudio: false, media.KindVideo: true}, ctl.toggles)
}

func TestReconnectKeyDependsOnStatus(t *testing.T) {
	cases := []struct {
		status session.Status
		want   string
	}{
		{session.StatusIdle, "start"},
		{session.StatusDisconnected, "start"},
		{session.StatusFailed, "start"},
		{session.StatusConnected, "reconnect"},
		{session.StatusJoining, "reconnect"},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			ctl := newFakeController()
			ctl.snap = session.Snapshot{Status: tc.status}
			m := NewChatModel(context.Background(), ctl)

			update(t, m, key("ctrl+r"))
			assert.Equal(t, []string{tc.want}, ctl.called())
		})
	}
}

func TestActionErrorBecomesNotice(t *testing.T) {
	ctl := newFakeController()
	ctl.err = chat.ErrNotInRoom
	m := NewChatModel(context.Background(), ctl)

	typeText(m, "x")
	msg := update(t, m, key("enter"))
	require.IsType(t, actionMsg{}, msg)

	update(t, m, msg)
	assert.Contains(t, m.notice, "Nobody to talk to")
	assert.Contains(t, m.View(), "Nobody to talk to")
}

func TestSnapshotRendersRoomAndChat(t *testing.T) {
	ctl := newFakeController()
	m := NewChatModel(context.Background(), ctl)

	snap := session.Snapshot{
		Status: session.StatusConnected,
		Room:   "calm-heron-7",
		Remote: &peer.RemoteStream{Room: "calm-heron-7", Tracks: []peer.RemoteTrack{{Kind: media.KindVideo}}},
		Chat: []chat.Message{
			{Origin: chat.OriginSelf, Text: "hey there"},
			{Origin: chat.OriginRemote, Text: "hi!"},
		},
		Online:   12,
		HasLocal: true,
		Audio:    true,
		Video:    true,
	}
	_, cmd := m.Update(snapshotMsg(snap))
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "calm-heron-7")
	assert.Contains(t, view, "hey there")
	assert.Contains(t, view, "hi!")
	assert.Contains(t, view, "12 online")
	assert.Contains(t, view, "stranger: video")
}

func TestNewRoomClearsNotice(t *testing.T) {
	ctl := newFakeController()
	m := NewChatModel(context.Background(), ctl)
	m.notice = "skip failed"

	m.Update(snapshotMsg(session.Snapshot{Status: session.StatusMatched, Room: "r1"}))
	assert.Empty(t, m.notice)
}

func TestMediaErrorShowsHint(t *testing.T) {
	ctl := newFakeController()
	ctl.snap = session.Snapshot{
		Status: session.StatusFailed,
		Err:    &media.AccessError{Op: "acquire", Kind: media.ErrPermissionDenied},
	}
	m := NewChatModel(context.Background(), ctl)

	assert.Contains(t, m.View(), "Allow this program to use your camera")
}

func TestWaitForUpdates(t *testing.T) {
	ctl := newFakeController()
	m := NewChatModel(context.Background(), ctl)

	ctl.updates <- session.Snapshot{Status: session.StatusJoining, Seq: 3}
	msg := m.waitForUpdates()()
	assert.Equal(t, snapshotMsg(session.Snapshot{Status: session.StatusJoining, Seq: 3}), msg)

	close(ctl.done)
	assert.Equal(t, sessionDoneMsg{}, m.waitForUpdates()())
}

func TestSessionDoneQuits(t *testing.T) {
	ctl := newFakeController()
	m := NewChatModel(context.Background(), ctl)

	msg := update(t, m, sessionDoneMsg{})
	assert.Equal(t, tea.Quit(), msg)
	assert.Contains(t, m.View(), "Bye")
}

func TestReconnectWhenStoppedSuggestsStart(t *testing.T) {
	got := describeActionError(actionMsg{op: "reconnect", err: fmt.Errorf("%w (failed)", session.ErrNotRunning)})
	assert.Equal(t, "Not connected. Press ctrl+r to start.", got)
}

func TestDescribeUnknownError(t *testing.T) {
	got := describeActionError(actionMsg{op: "skip", err: errors.New("boom")})
	assert.Equal(t, "skip failed: boom", got)
}
