//go:build mediadevices

package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

const captureMTU = 1200

// DeviceSource captures from the system camera and microphone, encoding
// VP8 and Opus.
type DeviceSource struct {
	Logger *zap.Logger
}

func NewDeviceSource(logger *zap.Logger) Source {
	return &DeviceSource{Logger: logger}
}

func (s *DeviceSource) Open(ctx context.Context, c Constraints) ([]*LocalTrack, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, newAccessError("open", "camera", ErrUnsupported, err)
	}
	vpxParams.BitRate = 500_000
	vpxParams.KeyFrameInterval = 60

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, newAccessError("open", "microphone", ErrUnsupported, err)
	}
	opusParams.BitRate = 32_000
	opusParams.Latency = opus.Latency20ms

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	constraints := mediadevices.MediaStreamConstraints{Codec: selector}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			if c.Width > 0 {
				mc.Width = prop.Int(c.Width)
			}
			if c.Height > 0 {
				mc.Height = prop.Int(c.Height)
			}
			if c.FrameRate > 0 {
				mc.FrameRate = prop.Float(c.FrameRate)
			}
		}
	}
	if c.Audio {
		constraints.Audio = func(mc *mediadevices.MediaTrackConstraints) {
			mc.SampleRate = prop.Int(48000)
			mc.ChannelCount = prop.Int(1)
			mc.Latency = prop.Duration(20 * time.Millisecond)
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err == nil && ctx.Err() != nil {
		for _, t := range stream.GetTracks() {
			_ = t.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, classify("getUserMedia", "", err)
	}

	streamID := "local-" + uuid.NewString()[:8]
	var tracks []*LocalTrack
	for _, src := range stream.GetTracks() {
		t, err := forwardDevice(src, streamID, logger)
		if err != nil {
			for _, done := range tracks {
				done.Stop()
			}
			for _, rest := range stream.GetTracks() {
				_ = rest.Close()
			}
			return nil, classify("open", src.ID(), err)
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// forwardDevice pumps encoded RTP from a mediadevices track into a pion
// track that can be attached to any number of peer connections.
func forwardDevice(src mediadevices.Track, streamID string, logger *zap.Logger) (*LocalTrack, error) {
	kind := KindOf(src.Kind())
	mime := webrtc.MimeTypeVP8
	if kind == KindAudio {
		mime = webrtc.MimeTypeOpus
	}

	local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, string(kind), streamID)
	if err != nil {
		return nil, err
	}

	codecName := mime[strings.Index(mime, "/")+1:]
	reader, err := src.NewRTPReader(codecName, 0, captureMTU)
	if err != nil {
		return nil, err
	}

	track := NewLocalTrack(kind, local, func() {
		_ = reader.Close()
		_ = src.Close()
	})

	go func() {
		for track.Live() {
			pkts, release, err := reader.Read()
			if err != nil {
				if !errors.Is(err, io.EOF) && track.Live() {
					logger.Warn("capture read failed", zap.String("kind", string(kind)), zap.Error(err))
				}
				return
			}
			if track.Enabled() {
				for _, pkt := range pkts {
					if err := local.WriteRTP(pkt); err != nil {
						logger.Debug("capture packet dropped", zap.Error(err))
					}
				}
			}
			if release != nil {
				release()
			}
		}
	}()

	return track, nil
}
