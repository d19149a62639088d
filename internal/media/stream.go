package media

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"
)

// Kind names a track type.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// KindOf maps a pion codec type onto Kind.
func KindOf(t webrtc.RTPCodecType) Kind {
	if t == webrtc.RTPCodecTypeVideo {
		return KindVideo
	}
	return KindAudio
}

// LocalTrack is one captured track. Capture pumps must check Enabled before
// writing media into the pion track and exit once Live reports false.
type LocalTrack struct {
	kind    Kind
	local   webrtc.TrackLocal
	enabled *atomic.Bool
	live    *atomic.Bool

	stopOnce sync.Once
	stop     func()
}

// NewLocalTrack wraps a pion local track. stop releases the capture resource
// behind it and is called at most once.
func NewLocalTrack(kind Kind, local webrtc.TrackLocal, stop func()) *LocalTrack {
	return &LocalTrack{
		kind:    kind,
		local:   local,
		enabled: atomic.NewBool(true),
		live:    atomic.NewBool(true),
		stop:    stop,
	}
}

func (t *LocalTrack) Kind() Kind { return t.kind }

func (t *LocalTrack) ID() string { return t.local.ID() }

// Local returns the pion track handed to peer connections.
func (t *LocalTrack) Local() webrtc.TrackLocal { return t.local }

func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

func (t *LocalTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *LocalTrack) Live() bool { return t.live.Load() }

// Stop ends capture. Safe to call repeatedly.
func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() {
		t.live.Store(false)
		t.enabled.Store(false)
		if t.stop != nil {
			t.stop()
		}
	})
}

// LocalStream groups the tracks obtained from one acquisition.
type LocalStream struct {
	id     string
	tracks []*LocalTrack
}

func NewLocalStream(tracks ...*LocalTrack) *LocalStream {
	return &LocalStream{id: uuid.NewString(), tracks: tracks}
}

func (s *LocalStream) ID() string { return s.id }

func (s *LocalStream) Tracks() []*LocalTrack {
	out := make([]*LocalTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Track returns the first track of the given kind, or nil.
func (s *LocalStream) Track(kind Kind) *LocalTrack {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// Live reports the number of tracks still capturing.
func (s *LocalStream) Live() int {
	n := 0
	for _, t := range s.tracks {
		if t.Live() {
			n++
		}
	}
	return n
}

func (s *LocalStream) stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
