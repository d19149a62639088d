package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/peer"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling"
)

const waitFor = 2 * time.Second

func fakeSDP(id uint64) string {
	return fmt.Sprintf("v=0\r\no=- %d 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n", id)
}

type sentEvent struct {
	name string
	args []any
}

type fakeSignaler struct {
	connectErr error

	mu       sync.Mutex
	next     int
	handlers map[string]map[int]signaling.Handler
	every    map[string][]signaling.Handler
	sent     []sentEvent
	closed   bool
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{
		handlers: make(map[string]map[int]signaling.Handler),
		every:    make(map[string][]signaling.Handler),
	}
}

func (f *fakeSignaler) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.emit(signaling.EventConnect)
	return nil
}

func (f *fakeSignaler) Send(event string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return signaling.ErrSendFailed
	}
	f.sent = append(f.sent, sentEvent{name: event, args: args})
	return nil
}

func (f *fakeSignaler) On(event string, fn signaling.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]signaling.Handler)
	}
	f.handlers[event][id] = fn
	f.every[event] = append(f.every[event], fn)
	return func() {
		f.mu.Lock()
		delete(f.handlers[event], id)
		f.mu.Unlock()
	}
}

func (f *fakeSignaler) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func encodeArgs(name string, args []any) signaling.Event {
	ev := signaling.Event{Name: name}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			panic(err)
		}
		ev.Args = append(ev.Args, raw)
	}
	return ev
}

// emit delivers an event to the current subscribers.
func (f *fakeSignaler) emit(name string, args ...any) {
	f.mu.Lock()
	var fns []signaling.Handler
	for _, fn := range f.handlers[name] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	ev := encodeArgs(name, args)
	for _, fn := range fns {
		fn(ev)
	}
}

// emitStale delivers an event to every handler ever registered, including
// unsubscribed ones, the way a callback already in flight would.
func (f *fakeSignaler) emitStale(name string, args ...any) {
	f.mu.Lock()
	fns := append([]signaling.Handler(nil), f.every[name]...)
	f.mu.Unlock()

	ev := encodeArgs(name, args)
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeSignaler) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.handlers {
		n += len(m)
	}
	return n
}

func (f *fakeSignaler) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSignaler) sentNamed(name string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSignaler) waitSent(t *testing.T, name string, n int) []sentEvent {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.sentNamed(name)) >= n }, waitFor, 5*time.Millisecond,
		"%s was not sent %d time(s)", name, n)
	return f.sentNamed(name)
}

type fakeLink struct {
	h         peer.Handlers
	sessionID uint64
	autoNeg   bool
	applyErr  error

	mu         sync.Mutex
	state      webrtc.SignalingState
	attached   map[string]bool
	local      *webrtc.SessionDescription
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	sink       peer.Sink
	detached   bool
	closed     bool
}

func (l *fakeLink) AttachLocalStream(stream *media.LocalStream) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, &peer.NegotiationError{Op: "attach", Kind: peer.ErrInvalidState}
	}
	n := 0
	for _, t := range stream.Tracks() {
		if !l.attached[t.ID()] {
			l.attached[t.ID()] = true
			n++
		}
	}
	fire := n > 0 && l.autoNeg && !l.detached
	l.mu.Unlock()

	if fire && l.h.NegotiationNeeded != nil {
		l.h.NegotiationNeeded()
	}
	return n, nil
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, &peer.NegotiationError{Op: "create offer", Kind: peer.ErrInvalidState}
	}
	l.state = webrtc.SignalingStateHaveLocalOffer
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fakeSDP(l.sessionID)}
	l.local = &offer
	return offer, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, &peer.NegotiationError{Op: "create answer", Kind: peer.ErrInvalidState}
	}
	l.state = webrtc.SignalingStateStable
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fakeSDP(l.sessionID)}
	l.local = &answer
	return answer, nil
}

func (l *fakeLink) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applyErr != nil {
		return &peer.NegotiationError{Op: "apply remote description", Kind: peer.ErrApplyFailed, Err: l.applyErr}
	}
	switch {
	case desc.Type == webrtc.SDPTypeAnswer && l.state == webrtc.SignalingStateHaveLocalOffer:
		l.state = webrtc.SignalingStateStable
	case desc.Type == webrtc.SDPTypeOffer && l.state != webrtc.SignalingStateHaveLocalOffer:
		l.state = webrtc.SignalingStateHaveRemoteOffer
	default:
		return &peer.NegotiationError{Op: "apply remote description", Kind: peer.ErrInvalidState}
	}
	l.remote = append(l.remote, desc)
	return nil
}

func (l *fakeLink) ApplyRemoteCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, c)
	return nil
}

func (l *fakeLink) SignalingState() webrtc.SignalingState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLink) LocalDescription() *webrtc.SessionDescription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.local
}

func (l *fakeLink) attachedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attached)
}

func (l *fakeLink) SetSink(s peer.Sink) {
	l.mu.Lock()
	l.sink = s
	l.mu.Unlock()
}

func (l *fakeLink) Detach() {
	l.mu.Lock()
	l.detached = true
	l.mu.Unlock()
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.detached = true
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) failApply(err error) {
	l.mu.Lock()
	l.applyErr = err
	l.mu.Unlock()
}

func (l *fakeLink) remoteCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.candidates)
}

func (l *fakeLink) currentSink() peer.Sink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink
}

// track delivers a remote track unless the link is detached.
func (l *fakeLink) track(kind media.Kind, id string) {
	l.mu.Lock()
	detached := l.detached
	l.mu.Unlock()
	if detached {
		return
	}
	l.h.RemoteTrack(peer.RemoteTrack{ID: id, StreamID: "remote-stream", Kind: kind})
}

func (l *fakeLink) snapshot() (closed, detached bool, remote []webrtc.SessionDescription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed, l.detached, append([]webrtc.SessionDescription(nil), l.remote...)
}

type fakeSource struct {
	mu     sync.Mutex
	err    error
	tracks []*media.LocalTrack
}

func (f *fakeSource) Open(_ context.Context, c media.Constraints) ([]*media.LocalTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var tracks []*media.LocalTrack
	for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
		if (kind == media.KindAudio && !c.Audio) || (kind == media.KindVideo && !c.Video) {
			continue
		}
		mime := webrtc.MimeTypeOpus
		if kind == media.KindVideo {
			mime = webrtc.MimeTypeVP8
		}
		local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, string(kind), "local")
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, media.NewLocalTrack(kind, local, nil))
	}
	f.tracks = append(f.tracks, tracks...)
	return tracks, nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tracks {
		if t.Live() {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu     sync.Mutex
	closed bool
}

func (r *fakeRecorder) WriteRTP(media.Kind, *rtp.Packet) error { return nil }

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("closed twice")
	}
	r.closed = true
	return nil
}

func (r *fakeRecorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type harness struct {
	t      *testing.T
	s      *Session
	source *fakeSource

	// applied to every link and signaler before it is handed out
	sessionID  uint64
	autoNeg    bool
	connectErr error

	mu       sync.Mutex
	sigs     []*fakeSignaler
	links    []*fakeLink
	statuses []Status
}

func newHarness(t *testing.T, opts ...func(*harness, *Config)) *harness {
	t.Helper()
	h := &harness{t: t, source: &fakeSource{}, sessionID: 100, autoNeg: true}
	cfg := Config{
		Media: media.NewController(h.source, nil),
		Dial:  h.dial,
		NewLink: func(handlers peer.Handlers) (Link, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			l := &fakeLink{
				h:         handlers,
				sessionID: h.sessionID,
				autoNeg:   h.autoNeg,
				state:     webrtc.SignalingStateStable,
				attached:  make(map[string]bool),
			}
			h.links = append(h.links, l)
			return l, nil
		},
		OnSnapshot: func(s Snapshot) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if n := len(h.statuses); n == 0 || h.statuses[n-1] != s.Status {
				h.statuses = append(h.statuses, s.Status)
			}
		},
	}
	for _, opt := range opts {
		opt(h, &cfg)
	}
	h.s = New(cfg)
	t.Cleanup(func() { h.s.Stop() })
	return h
}

func (h *harness) dial() Signaler {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := newFakeSignaler()
	f.connectErr = h.connectErr
	h.sigs = append(h.sigs, f)
	return f
}

func (h *harness) sig(i int) *fakeSignaler {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.sigs) > i
	}, waitFor, 5*time.Millisecond, "signaler %d never dialed", i)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sigs[i]
}

func (h *harness) link(i int) *fakeLink {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.links) > i
	}, waitFor, 5*time.Millisecond, "link %d never created", i)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.links[i]
}

func (h *harness) dials() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sigs)
}

func (h *harness) history() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.statuses...)
}

func (h *harness) waitStatus(want Status) Snapshot {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.s.Snapshot().Status == want }, waitFor, 5*time.Millisecond,
		"status never became %s (last %s)", want, h.s.Snapshot().Status)
	return h.s.Snapshot()
}

func (h *harness) waitSnapshot(cond func(Snapshot) bool, msg string) Snapshot {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.s.Snapshot()) }, waitFor, 5*time.Millisecond, msg)
	return h.s.Snapshot()
}

// match starts the session and drives cycle i into room.
func (h *harness) match(i int, room string) (*fakeSignaler, *fakeLink) {
	h.t.Helper()
	sig := h.sig(i)
	link := h.link(i)
	sig.waitSent(h.t, signaling.EventJoin, 1)
	sig.emit(signaling.EventJoined, signaling.Joined{Room: room})
	h.waitSnapshot(func(s Snapshot) bool { return s.Room == room && s.Status == StatusMatched }, "room "+room+" not assigned")
	return sig, link
}

// connect drives a matched cycle to Connected through an offer/answer round.
func (h *harness) connect(sig *fakeSignaler, link *fakeLink) {
	h.t.Helper()
	sig.waitSent(h.t, signaling.EventOffer, 1)
	sig.emit(signaling.EventAnswer, signaling.SessionDescription{Type: "answer", SDP: fakeSDP(7)})
	h.waitStatus(StatusNegotiating)
	link.track(media.KindVideo, "v")
	link.track(media.KindAudio, "a")
	h.waitSnapshot(func(s Snapshot) bool {
		return s.Status == StatusConnected && s.Remote != nil && len(s.Remote.Tracks) == 2
	}, "remote tracks never arrived")
}
