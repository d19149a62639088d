package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/peer"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling"
)

// ErrLinkFailed is reported when ICE or DTLS gives up on the current peer.
var ErrLinkFailed = errors.New("peer connection failed")

// cycle is one signaling connection plus one peer link, from connect until
// the room ends. Nothing survives into the next cycle.
type cycle struct {
	sig  Signaler
	link Link
	gen  int // bumped whenever link is replaced
	offs []func()

	room      string
	matchedAt time.Time
	remote    *peer.RemoteStream
	recorder  Recorder

	// negotiation bookkeeping for the current room
	pending         bool
	remoteOfferSeen bool
	offered         bool
	localCandidates []webrtc.ICECandidateInit
}

var cycleEvents = []string{
	signaling.EventConnect,
	signaling.EventDisconnect,
	signaling.EventJoined,
	signaling.EventLeaveRoom,
	signaling.EventMessage,
	signaling.EventOffer,
	signaling.EventAnswer,
	signaling.EventICECandidates,
	signaling.EventSendOffer,
	signaling.EventUserCount,
}

// cyclePost queues fn to run only while c is still the current cycle.
func (s *Session) cyclePost(c *cycle, fn func()) {
	s.post(func() {
		if s.cycle != c {
			return
		}
		fn()
	}, nil)
}

func (s *Session) beginCycle() {
	c := &cycle{}
	if err := s.openLink(c); err != nil {
		s.fail(fmt.Errorf("create peer link: %w", err))
		return
	}

	c.sig = s.cfg.Dial()
	for _, name := range cycleEvents {
		c.offs = append(c.offs, c.sig.On(name, func(ev signaling.Event) {
			s.cyclePost(c, func() { s.handle(c, ev) })
		}))
	}
	s.cycle = c

	sig := c.sig
	s.async.Add(1)
	go func() {
		defer s.async.Done()
		if err := sig.Connect(s.ctx); err != nil {
			s.cyclePost(c, func() { s.lost(err) })
		}
	}()
}

// openLink creates a peer link for c. Its callbacks are dropped once the
// cycle ends or the link is replaced.
func (s *Session) openLink(c *cycle) error {
	c.gen++
	gen := c.gen
	post := func(fn func()) {
		s.cyclePost(c, func() {
			if c.gen == gen {
				fn()
			}
		})
	}

	link, err := s.cfg.NewLink(peer.Handlers{
		ICECandidate: func(cand webrtc.ICECandidateInit) {
			post(func() { s.onLocalCandidate(c, cand) })
		},
		RemoteTrack: func(rt peer.RemoteTrack) {
			post(func() { s.onRemoteTrack(c, rt) })
		},
		NegotiationNeeded: func() {
			post(func() { s.onNegotiationNeeded(c) })
		},
		ConnectionState: func(state webrtc.PeerConnectionState) {
			post(func() { s.onConnectionState(c, state) })
		},
	})
	if err != nil {
		return err
	}
	c.link = link
	return nil
}

// closeLink silences and closes the link of c.
func (s *Session) closeLink(c *cycle) {
	if c.link == nil {
		return
	}
	c.link.Detach()
	c.link.SetSink(nil)
	if err := c.link.Close(); err != nil {
		s.logger.Debug("closing peer link", zap.Error(err))
	}
	c.link = nil
}

// replaceLink swaps the link of c for a fresh one in the same room. A link
// holding a local offer cannot take a remote offer, so this is how the side
// that loses glare gets back to stable.
func (s *Session) replaceLink(c *cycle) error {
	s.closeLink(c)
	c.remote = nil
	if err := s.openLink(c); err != nil {
		return err
	}
	if c.recorder != nil {
		c.link.SetSink(c.recorder)
	}
	return nil
}

// teardown ends the current cycle. Listeners are removed before anything
// else so no callback of this cycle reaches the loop afterwards.
func (s *Session) teardown() {
	c := s.cycle
	if c == nil {
		return
	}
	s.cycle = nil

	for _, off := range c.offs {
		off()
	}
	c.offs = nil

	s.closeLink(c)
	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			s.logger.Warn("closing recorder", zap.Error(err))
		}
	}
	c.remote = nil
	s.chat.Reset()

	if c.sig != nil {
		if err := c.sig.Close(); err != nil {
			s.logger.Debug("closing signaling", zap.Error(err))
		}
	}
	if c.room != "" {
		s.logger.Info("left room", zap.String("room", c.room))
	}
}

// rematch drops the current room and asks for a new one on a fresh cycle.
// Reconnecting is published on its own before the new cycle re-enters
// Connecting.
func (s *Session) rematch() {
	s.teardown()
	s.setStatus(StatusReconnecting)
	s.publish()
	s.setStatus(StatusConnecting)
	s.beginCycle()
}

func (s *Session) lost(err error) {
	s.teardown()
	s.lastErr = err
	s.setStatus(StatusDisconnected)
}

func (s *Session) handle(c *cycle, ev signaling.Event) {
	switch ev.Name {
	case signaling.EventConnect:
		s.onConnect(c)

	case signaling.EventDisconnect:
		var reason string
		_ = ev.Decode(0, &reason)
		s.logger.Warn("signaling disconnected", zap.String("reason", reason))
		s.lost(&signaling.Error{Op: "receive", Err: fmt.Errorf("%w: %s", signaling.ErrDisconnected, reason)})

	case signaling.EventJoined:
		var j signaling.Joined
		if err := ev.Decode(0, &j); err != nil || j.Room == "" {
			s.logger.Warn("malformed joined event", zap.Error(err))
			return
		}
		s.onJoined(c, j.Room)

	case signaling.EventLeaveRoom:
		if c.room == "" {
			return
		}
		s.logger.Info("room ended by server", zap.String("room", c.room))
		s.rematch()

	case signaling.EventMessage:
		var text string
		if err := ev.Decode(0, &text); err != nil {
			s.logger.Debug("malformed message event", zap.Error(err))
			return
		}
		if _, ok := s.chat.Receive(text); ok {
			ChatMessagesTotal.WithLabelValues("in").Inc()
		}

	case signaling.EventOffer, signaling.EventAnswer:
		var d signaling.SessionDescription
		if err := ev.Decode(0, &d); err != nil {
			s.negotiationFailed(ev.Name, err)
			return
		}
		if ev.Name == signaling.EventOffer {
			s.onRemoteOffer(c, d.WebRTC())
		} else {
			s.onRemoteAnswer(c, d.WebRTC())
		}

	case signaling.EventICECandidates:
		var cand signaling.Candidate
		if err := ev.Decode(0, &cand); err != nil {
			s.negotiationFailed(ev.Name, err)
			return
		}
		if err := c.link.ApplyRemoteCandidate(cand); err != nil {
			s.negotiationFailed("candidate", err)
		}

	case signaling.EventSendOffer:
		s.logger.Debug("server requested an offer")
		s.offer(c)

	case signaling.EventUserCount:
		var n int
		if err := ev.Decode(0, &n); err != nil {
			return
		}
		s.online = n
		OnlineUsers.Set(float64(n))
	}
}

func (s *Session) onConnect(c *cycle) {
	if s.status != StatusConnecting {
		return
	}
	s.setStatus(StatusJoining)
	if err := c.sig.Send(signaling.EventJoin); err != nil {
		s.lost(err)
	}
}

func (s *Session) onJoined(c *cycle, room string) {
	if c.room != "" {
		if room != c.room {
			s.logger.Warn("ignoring second room assignment", zap.String("room", c.room), zap.String("other", room))
		}
		return
	}

	c.room = room
	c.matchedAt = time.Now()
	s.setStatus(StatusMatched)
	RoomsMatchedTotal.Inc()
	s.logger.Info("matched", zap.String("room", room))

	sig := c.sig
	s.chat.Bind(room, func(room, text string) error {
		return sig.Send(signaling.EventMessage, room, text)
	})

	for _, cand := range c.localCandidates {
		s.sendCandidate(c, cand)
	}
	c.localCandidates = nil

	if s.cfg.Record != nil {
		rec, err := s.cfg.Record(room)
		if err != nil {
			s.logger.Warn("recording disabled for room", zap.String("room", room), zap.Error(err))
		} else {
			c.recorder = rec
			c.link.SetSink(rec)
		}
	}

	s.attachLocal(c)
	s.flushPending(c)
}

func (s *Session) attachLocal(c *cycle) {
	if s.local == nil || c.link == nil {
		return
	}
	n, err := c.link.AttachLocalStream(s.local)
	if err != nil {
		s.negotiationFailed("attach", err)
		return
	}
	if n > 0 {
		s.logger.Debug("local tracks attached", zap.Int("count", n))
	}
}

func (s *Session) flushPending(c *cycle) {
	if c.pending && !c.remoteOfferSeen {
		s.offer(c)
	}
}

func (s *Session) onNegotiationNeeded(c *cycle) {
	if c.remoteOfferSeen || c.offered {
		return
	}
	s.offer(c)
}

// offer creates and sends an offer, or defers it until both a room and
// local media exist.
func (s *Session) offer(c *cycle) {
	if c.room == "" || s.local == nil {
		c.pending = true
		return
	}
	c.pending = false

	desc, err := c.link.CreateOffer()
	if err != nil {
		s.negotiationFailed("offer", err)
		return
	}
	c.offered = true
	if err := c.sig.Send(signaling.EventOffer, c.room, signaling.FromWebRTC(desc)); err != nil {
		s.logger.Warn("offer not sent", zap.Error(err))
	}
}

func (s *Session) onRemoteOffer(c *cycle, desc webrtc.SessionDescription) {
	if c.room == "" {
		s.logger.Debug("offer before room assignment dropped")
		return
	}

	if c.link.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		local := c.link.LocalDescription()
		if local == nil {
			s.negotiationFailed("glare", &peer.NegotiationError{Op: "glare", Kind: peer.ErrInvalidState})
			return
		}
		win, err := peer.OfferWins(*local, desc)
		if err != nil {
			s.negotiationFailed("glare", err)
			return
		}
		if win {
			s.logger.Debug("glare: keeping our offer", zap.String("room", c.room))
			return
		}
		s.logger.Debug("glare: dropping our offer", zap.String("room", c.room))
		if err := s.replaceLink(c); err != nil {
			s.fail(fmt.Errorf("create peer link: %w", err))
			return
		}
	}

	c.remoteOfferSeen = true
	c.pending = false
	s.attachLocal(c)

	if err := c.link.ApplyRemoteDescription(desc); err != nil {
		s.negotiationFailed("apply offer", err)
		return
	}
	s.remoteApplied()

	answer, err := c.link.CreateAnswer()
	if err != nil {
		s.negotiationFailed("answer", err)
		return
	}
	if err := c.sig.Send(signaling.EventAnswer, c.room, signaling.FromWebRTC(answer)); err != nil {
		s.logger.Warn("answer not sent", zap.Error(err))
	}
}

func (s *Session) onRemoteAnswer(c *cycle, desc webrtc.SessionDescription) {
	if err := c.link.ApplyRemoteDescription(desc); err != nil {
		s.negotiationFailed("apply answer", err)
		return
	}
	s.remoteApplied()
}

func (s *Session) remoteApplied() {
	if s.status == StatusMatched {
		s.setStatus(StatusNegotiating)
	}
}

func (s *Session) onRemoteTrack(c *cycle, rt peer.RemoteTrack) {
	if c.room == "" {
		return
	}
	if c.remote == nil {
		c.remote = &peer.RemoteStream{Room: c.room, ID: rt.StreamID}
	}
	for _, t := range c.remote.Tracks {
		if t.ID == rt.ID {
			return
		}
	}
	c.remote.Tracks = append(c.remote.Tracks, rt)
	s.logger.Info("remote track", zap.String("room", c.room), zap.String("kind", string(rt.Kind)))

	if s.status == StatusMatched || s.status == StatusNegotiating {
		s.setStatus(StatusConnected)
		TimeToConnect.Observe(time.Since(c.matchedAt).Seconds())
	}
}

func (s *Session) onLocalCandidate(c *cycle, cand webrtc.ICECandidateInit) {
	if c.room == "" {
		c.localCandidates = append(c.localCandidates, cand)
		return
	}
	s.sendCandidate(c, cand)
}

func (s *Session) sendCandidate(c *cycle, cand webrtc.ICECandidateInit) {
	if err := c.sig.Send(signaling.EventICECandidates, c.room, cand); err != nil {
		s.logger.Debug("candidate not sent", zap.Error(err))
	}
}

func (s *Session) onConnectionState(c *cycle, state webrtc.PeerConnectionState) {
	if state != webrtc.PeerConnectionStateFailed {
		return
	}
	s.logger.Warn("peer connection failed", zap.String("room", c.room))
	s.lastErr = ErrLinkFailed
}

func (s *Session) negotiationFailed(op string, err error) {
	s.logger.Warn("negotiation failed", zap.String("op", op), zap.Error(err))
	s.lastErr = err
	recordNegotiationFailure(err)
}
