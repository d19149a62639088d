package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/chat"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/peer"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling"
)

var (
	ErrClosed     = errors.New("session closed")
	ErrNotMatched = errors.New("not matched with anyone")
	ErrBusy       = errors.New("session already running")
	ErrNotRunning = errors.New("session not running")
)

const acquireTimeout = 30 * time.Second

// Signaler is the part of signaling.Client a session uses.
type Signaler interface {
	Connect(ctx context.Context) error
	Send(event string, args ...any) error
	On(event string, fn signaling.Handler) (off func())
	Close() error
}

// Link is the part of peer.Link a session uses.
type Link interface {
	AttachLocalStream(stream *media.LocalStream) (int, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	ApplyRemoteDescription(desc webrtc.SessionDescription) error
	ApplyRemoteCandidate(c webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	LocalDescription() *webrtc.SessionDescription
	SetSink(s peer.Sink)
	Detach()
	Close() error
}

var (
	_ Signaler = (*signaling.Client)(nil)
	_ Link     = (*peer.Link)(nil)
)

// Dialer returns a Config.Dial creating signaling clients for endpoint.
func Dialer(endpoint string, opts ...signaling.Option) func() Signaler {
	return func() Signaler { return signaling.NewClient(endpoint, opts...) }
}

// Links returns a Config.NewLink creating pion-backed links.
func Links(opts peer.Options) func(peer.Handlers) (Link, error) {
	return func(h peer.Handlers) (Link, error) {
		l, err := peer.New(opts, h)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// Recorder receives the remote media of one room.
type Recorder interface {
	peer.Sink
	Close() error
}

// Config wires a session to its collaborators.
type Config struct {
	Media       *media.Controller
	Constraints media.Constraints

	// Dial returns a fresh, unconnected signaling client. Every room cycle
	// gets its own.
	Dial func() Signaler

	// NewLink creates the peer link for one room cycle.
	NewLink func(h peer.Handlers) (Link, error)

	// Record, when set, opens a recorder for every room.
	Record func(room string) (Recorder, error)

	// OnSnapshot is called on the session goroutine after every change.
	OnSnapshot func(Snapshot)

	Logger *zap.Logger
}

// Snapshot is a consistent view of the session. Room-scoped fields (Room,
// Remote, Chat) always belong to the same room.
type Snapshot struct {
	Status   Status
	Room     string
	Remote   *peer.RemoteStream
	Chat     []chat.Message
	Online   int
	HasLocal bool
	Audio    bool
	Video    bool
	Err      error
	Seq      uint64
}

type event struct {
	fn   func()
	drop func()
}

// Session is the room state machine. One goroutine owns all state below the
// mutex; public methods post commands to it and wait for the result.
type Session struct {
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cmds    chan func()
	events  chan event
	updates chan Snapshot
	done    chan struct{}

	snapMu sync.RWMutex
	snap   Snapshot

	// goroutines that hold resources until their completion is handled
	async sync.WaitGroup

	// loop state
	status    Status
	cycle     *cycle
	local     *media.LocalStream
	acquiring bool
	chat      *chat.Channel
	online    int
	lastErr   error
	seq       uint64
}

// New starts the session goroutine in StatusIdle.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Media == nil {
		cfg.Media = media.NewController(nil, cfg.Logger)
	}
	if cfg.Constraints == (media.Constraints{}) {
		cfg.Constraints = media.DefaultConstraints()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		logger:  cfg.Logger.Named("session"),
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan func()),
		events:  make(chan event, 256),
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
		chat:    chat.NewChannel(),
	}
	s.publish()
	go s.run()
	return s
}

func (s *Session) run() {
	for s.status != StatusClosed {
		select {
		case cmd := <-s.cmds:
			cmd()
		case ev := <-s.events:
			ev.fn()
		}
		s.publish()
	}

	s.cancel()
	close(s.done)
	s.async.Wait()
	s.drain()
}

// drain gives late completions a chance to release what they hold.
func (s *Session) drain() {
	for {
		select {
		case ev := <-s.events:
			if ev.drop != nil {
				ev.drop()
			}
		default:
			return
		}
	}
}

// do runs fn on the session goroutine.
func (s *Session) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// post queues fn for the session goroutine. drop runs instead when the
// session has already finished.
func (s *Session) post(fn, drop func()) {
	select {
	case <-s.done:
		if drop != nil {
			drop()
		}
		return
	default:
	}

	select {
	case s.events <- event{fn: fn, drop: drop}:
	case <-s.done:
		if drop != nil {
			drop()
		}
	}
}

// Start begins a session from Idle, Failed or Disconnected: media is
// acquired (once), and a signaling connection and peer link are opened.
func (s *Session) Start(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.status.Startable() {
			return fmt.Errorf("%w (%s)", ErrBusy, s.status)
		}
		s.lastErr = nil
		s.setStatus(StatusConnecting)
		s.ensureMedia()
		s.beginCycle()
		return nil
	})
}

// Skip leaves the current room and asks for a new match.
func (s *Session) Skip() error {
	return s.do(context.Background(), func() error {
		c := s.cycle
		if c == nil || c.room == "" {
			return ErrNotMatched
		}
		if err := c.sig.Send(signaling.EventLeaveRoom); err != nil {
			s.logger.Warn("leaveRoom not sent", zap.Error(err))
		}
		s.logger.Info("skipping room", zap.String("room", c.room))
		s.rematch()
		return nil
	})
}

// Reconnect tears down whatever cycle is running and starts a fresh one,
// keeping local media. From Idle, Failed or Disconnected only Start may
// begin again.
func (s *Session) Reconnect() error {
	return s.do(context.Background(), func() error {
		if s.status.Startable() {
			return fmt.Errorf("%w (%s)", ErrNotRunning, s.status)
		}
		if c := s.cycle; c != nil && c.room != "" {
			if err := c.sig.Send(signaling.EventLeaveRoom); err != nil {
				s.logger.Debug("leaveRoom not sent", zap.Error(err))
			}
		}
		s.lastErr = nil
		s.rematch()
		s.ensureMedia()
		return nil
	})
}

// Stop ends the session from any status: room torn down, local media
// released. The session cannot be used afterwards.
func (s *Session) Stop() error {
	err := s.do(context.Background(), func() error {
		s.teardown()
		if s.local != nil {
			s.cfg.Media.Release(s.local)
			s.local = nil
		}
		s.setStatus(StatusClosed)
		s.cancel()
		return nil
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// SetTrackEnabled toggles one local track without touching the other.
func (s *Session) SetTrackEnabled(kind media.Kind, enabled bool) error {
	return s.do(context.Background(), func() error {
		return s.cfg.Media.SetTrackEnabled(kind, enabled)
	})
}

// SendChat sends text to the current room.
func (s *Session) SendChat(text string) error {
	return s.do(context.Background(), func() error {
		c := s.cycle
		if c == nil || c.room == "" {
			return chat.ErrNotInRoom
		}
		_, err := s.chat.Send(c.room, text)
		if errors.Is(err, chat.ErrNotInRoom) || errors.Is(err, chat.ErrEmptyMessage) {
			return err
		}
		ChatMessagesTotal.WithLabelValues("out").Inc()
		if err != nil {
			s.lastErr = err
		}
		return err
	})
}

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Updates delivers snapshots. Only the newest unread one is kept.
func (s *Session) Updates() <-chan Snapshot { return s.updates }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setStatus(next Status) {
	if s.status == next {
		return
	}
	s.logger.Info("status", zap.Stringer("from", s.status), zap.Stringer("to", next))
	s.status = next
	recordTransition(next)
}

func (s *Session) fail(err error) {
	s.teardown()
	s.lastErr = err
	s.setStatus(StatusFailed)
}

func (s *Session) publish() {
	snap := Snapshot{
		Status:   s.status,
		Online:   s.online,
		HasLocal: s.local != nil && s.local.Live() > 0,
		Audio:    s.cfg.Media.TrackEnabled(media.KindAudio),
		Video:    s.cfg.Media.TrackEnabled(media.KindVideo),
		Err:      s.lastErr,
	}
	if c := s.cycle; c != nil && c.room != "" {
		snap.Room = c.room
		snap.Chat = s.chat.History()
		if c.remote != nil {
			remote := *c.remote
			remote.Tracks = append([]peer.RemoteTrack(nil), c.remote.Tracks...)
			snap.Remote = &remote
		}
	}

	s.snapMu.Lock()
	if s.seq > 0 && sameSnapshot(s.snap, snap) {
		s.snapMu.Unlock()
		return
	}
	s.seq++
	snap.Seq = s.seq
	s.snap = snap
	s.snapMu.Unlock()

	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap

	if s.cfg.OnSnapshot != nil {
		s.cfg.OnSnapshot(snap)
	}
}

func sameSnapshot(a, b Snapshot) bool {
	return a.Status == b.Status && a.Room == b.Room && a.Online == b.Online &&
		a.HasLocal == b.HasLocal && a.Audio == b.Audio && a.Video == b.Video &&
		a.Err == b.Err && len(a.Chat) == len(b.Chat) && sameRemote(a.Remote, b.Remote)
}

func sameRemote(a, b *peer.RemoteStream) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Room == b.Room && a.ID == b.ID && len(a.Tracks) == len(b.Tracks)
}

// ensureMedia acquires the local stream unless one is held or on its way.
func (s *Session) ensureMedia() {
	if s.acquiring || (s.local != nil && s.local.Live() > 0) {
		return
	}
	s.acquiring = true
	constraints := s.cfg.Constraints
	ctrl := s.cfg.Media

	s.async.Add(1)
	go func() {
		defer s.async.Done()

		ctx, cancel := context.WithTimeout(s.ctx, acquireTimeout)
		defer cancel()

		stream, err := ctrl.Acquire(ctx, constraints)
		s.post(func() { s.mediaReady(stream, err) }, func() { ctrl.Release(stream) })
	}()
}

func (s *Session) mediaReady(stream *media.LocalStream, err error) {
	s.acquiring = false

	if err != nil {
		var ae *media.AccessError
		if errors.As(err, &ae) {
			s.logger.Warn("media unavailable", zap.Error(err), zap.String("hint", ae.Hint()))
		}
		s.fail(err)
		return
	}

	if s.local != nil && s.local.Live() > 0 {
		s.cfg.Media.Release(stream)
		return
	}
	s.local = stream
	if c := s.cycle; c != nil && c.room != "" {
		s.attachLocal(c)
		s.flushPending(c)
	}
}
