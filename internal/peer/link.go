package peer

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
)

// Handlers are invoked from pion goroutines. They must not block and must
// not call back into the Link.
type Handlers struct {
	ICECandidate      func(webrtc.ICECandidateInit)
	RemoteTrack       func(RemoteTrack)
	NegotiationNeeded func()
	ConnectionState   func(webrtc.PeerConnectionState)
}

// Link is one peer connection, bound to a single room.
type Link struct {
	pc       *webrtc.PeerConnection
	logger   *zap.Logger
	handlers Handlers

	detached *atomic.Bool
	closed   *atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	senders   map[string]*webrtc.RTPSender
	sink      Sink
}

// New creates a link and registers h.
func New(opts Options, h Handlers) (*Link, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := opts.API
	if api == nil {
		var err error
		if api, err = NewAPI(logger); err != nil {
			return nil, err
		}
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         opts.ICEServers,
		ICETransportPolicy: opts.Policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	l := &Link{
		pc:       pc,
		logger:   logger.Named("peer"),
		handlers: h,
		detached: atomic.NewBool(false),
		closed:   atomic.NewBool(false),
		done:     make(chan struct{}),
		senders:  make(map[string]*webrtc.RTPSender),
	}
	l.register()
	return l, nil
}

func (l *Link) register() {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || l.detached.Load() || l.handlers.ICECandidate == nil {
			return
		}
		l.handlers.ICECandidate(c.ToJSON())
	})

	l.pc.OnNegotiationNeeded(func() {
		if l.detached.Load() || l.handlers.NegotiationNeeded == nil {
			return
		}
		l.logger.Debug("negotiation needed")
		l.handlers.NegotiationNeeded()
	})

	l.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.logger.Debug("connection state changed", zap.String("state", state.String()))
		if l.detached.Load() || l.handlers.ConnectionState == nil {
			return
		}
		l.handlers.ConnectionState(state)
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		info := describe(track)

		l.mu.Lock()
		if l.closed.Load() {
			l.mu.Unlock()
			return
		}
		l.wg.Add(1)
		go l.pump(track, info)
		if info.Kind == media.KindVideo {
			l.wg.Add(1)
			go l.requestKeyframes(info.SSRC)
		}
		l.mu.Unlock()

		l.logger.Info("remote track",
			zap.String("track", info.ID),
			zap.String("kind", string(info.Kind)),
			zap.String("codec", info.Codec),
		)
		if l.detached.Load() || l.handlers.RemoteTrack == nil {
			return
		}
		l.handlers.RemoteTrack(info)
	})
}

// AttachLocalStream adds every live track of stream not yet attached and
// returns how many were added.
func (l *Link) AttachLocalStream(stream *media.LocalStream) (int, error) {
	if stream == nil {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return 0, invalidState("attach", "link closed")
	}

	added := 0
	for _, t := range stream.Tracks() {
		if !t.Live() {
			continue
		}
		if _, ok := l.senders[t.ID()]; ok {
			continue
		}
		sender, err := l.pc.AddTrack(t.Local())
		if err != nil {
			return added, applyFailed("attach "+string(t.Kind()), err)
		}
		l.senders[t.ID()] = sender
		l.wg.Add(1)
		go l.drainRTCP(sender)
		added++
	}
	return added, nil
}

// Attached reports how many local tracks have been added.
func (l *Link) Attached() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.senders)
}

// CreateOffer creates an offer and applies it locally.
func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	const op = "create offer"
	if l.closed.Load() {
		return webrtc.SessionDescription{}, invalidState(op, "link closed")
	}
	if state := l.pc.SignalingState(); state == webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, invalidState(op, "signaling state %s", state)
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, applyFailed(op, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, applyFailed(op, err)
	}
	return offer, nil
}

// CreateAnswer answers the pending remote offer and applies it locally.
func (l *Link) CreateAnswer() (webrtc.SessionDescription, error) {
	const op = "create answer"
	if l.closed.Load() {
		return webrtc.SessionDescription{}, invalidState(op, "link closed")
	}
	if state := l.pc.SignalingState(); state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, invalidState(op, "no pending remote offer (state %s)", state)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, applyFailed(op, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, applyFailed(op, err)
	}
	return answer, nil
}

// ApplyRemoteDescription applies desc and then flushes the candidates that
// arrived ahead of it.
func (l *Link) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	const op = "apply remote description"
	if l.closed.Load() {
		return invalidState(op, "link closed")
	}
	if err := validateDescription(desc); err != nil {
		return applyFailed(op, err)
	}
	state := l.pc.SignalingState()
	if desc.Type == webrtc.SDPTypeAnswer && state != webrtc.SignalingStateHaveLocalOffer {
		return invalidState(op, "answer without local offer (state %s)", state)
	}
	if desc.Type == webrtc.SDPTypeOffer && state == webrtc.SignalingStateHaveLocalOffer {
		return invalidState(op, "offer while local offer outstanding")
	}

	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return applyFailed(op, err)
	}

	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.logger.Warn("buffered candidate rejected", zap.Error(err))
		}
	}
	if len(pending) > 0 {
		l.logger.Debug("flushed buffered candidates", zap.Int("count", len(pending)))
	}
	return nil
}

// ApplyRemoteCandidate adds c, or buffers it until a remote description has
// been applied.
func (l *Link) ApplyRemoteCandidate(c webrtc.ICECandidateInit) error {
	const op = "apply remote candidate"

	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		return invalidState(op, "link closed")
	}
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(c); err != nil {
		return applyFailed(op, err)
	}
	return nil
}

// Buffered reports how many remote candidates wait for a remote description.
func (l *Link) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Link) SignalingState() webrtc.SignalingState { return l.pc.SignalingState() }

func (l *Link) ConnectionState() webrtc.PeerConnectionState { return l.pc.ConnectionState() }

// LocalDescription is the description last applied locally, nil before
// the first offer or answer.
func (l *Link) LocalDescription() *webrtc.SessionDescription { return l.pc.LocalDescription() }

// SetSink routes received RTP into s. A nil sink discards it.
func (l *Link) SetSink(s Sink) {
	l.mu.Lock()
	l.sink = s
	l.mu.Unlock()
}

func (l *Link) currentSink() Sink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink
}

// Detach stops all handler delivery. Once it returns no handler is invoked
// again, though a call already running may still finish.
func (l *Link) Detach() {
	if l.detached.Swap(true) {
		return
	}
	l.pc.OnICECandidate(func(*webrtc.ICECandidate) {})
	l.pc.OnNegotiationNeeded(func() {})
	l.pc.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
}

func (l *Link) Detached() bool { return l.detached.Load() }

// Close detaches and closes the connection, waiting for the media
// goroutines. Safe to call repeatedly.
func (l *Link) Close() error {
	l.Detach()

	l.mu.Lock()
	if l.closed.Swap(true) {
		l.mu.Unlock()
		return nil
	}
	close(l.done)
	l.pending = nil
	l.sink = nil
	l.mu.Unlock()

	err := l.pc.Close()
	l.wg.Wait()
	l.logger.Debug("link closed")
	return err
}

func (l *Link) Closed() bool { return l.closed.Load() }
