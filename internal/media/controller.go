package media

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Constraints narrows what Acquire asks the backend for.
type Constraints struct {
	Audio     bool
	Video     bool
	Width     int
	Height    int
	FrameRate float64
}

func DefaultConstraints() Constraints {
	return Constraints{
		Audio:     true,
		Video:     true,
		Width:     640,
		Height:    480,
		FrameRate: 30,
	}
}

// Source is a capture backend.
type Source interface {
	Open(ctx context.Context, c Constraints) ([]*LocalTrack, error)
}

// NoSource is used when no capture backend is configured.
type NoSource struct{}

func (NoSource) Open(context.Context, Constraints) ([]*LocalTrack, error) {
	return nil, ErrUnsupported
}

// Controller hands out exclusive access to the capture devices. It holds at
// most one live stream at a time.
type Controller struct {
	source Source
	logger *zap.Logger

	mu     sync.Mutex
	stream *LocalStream
}

func NewController(source Source, logger *zap.Logger) *Controller {
	if source == nil {
		source = NoSource{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{source: source, logger: logger.Named("media")}
}

// Acquire opens the camera and microphone. Every failure is an *AccessError.
func (c *Controller) Acquire(ctx context.Context, constraints Constraints) (*LocalStream, error) {
	c.mu.Lock()
	if c.stream != nil && c.stream.Live() > 0 {
		c.mu.Unlock()
		return nil, newAccessError("acquire", "", ErrDeviceBusy, nil)
	}
	c.mu.Unlock()

	if !constraints.Audio && !constraints.Video {
		return nil, newAccessError("acquire", "", ErrUnsupported, nil)
	}

	tracks, err := c.source.Open(ctx, constraints)
	if err != nil {
		ae := classify("acquire", "", err)
		c.logger.Warn("media acquisition failed", zap.Error(ae))
		return nil, ae
	}
	if err := ctx.Err(); err != nil {
		for _, t := range tracks {
			t.Stop()
		}
		return nil, newAccessError("acquire", "", ErrUnsupported, err)
	}

	stream := NewLocalStream(tracks...)

	c.mu.Lock()
	if c.stream != nil && c.stream.Live() > 0 {
		c.mu.Unlock()
		stream.stop()
		return nil, newAccessError("acquire", "", ErrDeviceBusy, nil)
	}
	c.stream = stream
	c.mu.Unlock()

	c.logger.Info("local stream acquired",
		zap.String("stream", stream.ID()),
		zap.Int("tracks", len(tracks)),
	)
	return stream, nil
}

// SetTrackEnabled toggles the named track of the held stream and leaves the
// other one alone.
func (c *Controller) SetTrackEnabled(kind Kind, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil || c.stream.Live() == 0 {
		return ErrNoStream
	}
	t := c.stream.Track(kind)
	if t == nil || !t.Live() {
		return ErrTrackMissing
	}
	t.SetEnabled(enabled)
	c.logger.Debug("track toggled", zap.String("kind", string(kind)), zap.Bool("enabled", enabled))
	return nil
}

// TrackEnabled reports the state of the named track; false when absent.
func (c *Controller) TrackEnabled(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return false
	}
	t := c.stream.Track(kind)
	return t != nil && t.Live() && t.Enabled()
}

// Release stops every track of stream. Releasing a stopped or nil stream is
// a no-op.
func (c *Controller) Release(stream *LocalStream) {
	if stream == nil {
		return
	}
	stream.stop()

	c.mu.Lock()
	if c.stream == stream {
		c.stream = nil
	}
	c.mu.Unlock()

	c.logger.Info("local stream released", zap.String("stream", stream.ID()))
}
