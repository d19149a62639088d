package peer

import (
	"errors"
	"io"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
)

const pliInterval = 3 * time.Second

// RemoteTrack describes one track received from the other side.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     media.Kind
	Codec    string
	SSRC     uint32
}

// RemoteStream is what the other side sends in the current room. It is
// rebuilt for every room and never outlives it.
type RemoteStream struct {
	Room   string
	ID     string
	Tracks []RemoteTrack
}

// HasKind reports whether a track of kind has arrived.
func (s *RemoteStream) HasKind(kind media.Kind) bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tracks {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// Sink consumes received RTP. media.Recorder is one.
type Sink interface {
	WriteRTP(kind media.Kind, pkt *rtp.Packet) error
}

func describe(track *webrtc.TrackRemote) RemoteTrack {
	return RemoteTrack{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Kind:     media.KindOf(track.Kind()),
		Codec:    track.Codec().MimeType,
		SSRC:     uint32(track.SSRC()),
	}
}

// pump drains a remote track until the link closes. RTP must be read for
// the interceptors to produce NACKs and receiver reports.
func (l *Link) pump(track *webrtc.TrackRemote, info RemoteTrack) {
	defer l.wg.Done()

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !l.closed.Load() {
				l.logger.Debug("remote track read ended", zap.String("track", info.ID), zap.Error(err))
			}
			return
		}
		if sink := l.currentSink(); sink != nil {
			if err := sink.WriteRTP(info.Kind, pkt); err != nil {
				l.logger.Debug("sink write failed", zap.String("track", info.ID), zap.Error(err))
			}
		}
	}
}

// requestKeyframes sends a PLI right away and then periodically so a lost
// keyframe does not freeze the picture.
func (l *Link) requestKeyframes(ssrc uint32) {
	defer l.wg.Done()

	send := func() bool {
		err := l.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
		if err != nil && !l.closed.Load() {
			l.logger.Debug("pli failed", zap.Uint32("ssrc", ssrc), zap.Error(err))
		}
		return err == nil
	}
	if !send() {
		return
	}

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

// drainRTCP reads sender reports and feedback for a local track.
func (l *Link) drainRTCP(sender *webrtc.RTPSender) {
	defer l.wg.Done()

	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
