package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"go.uber.org/zap"
)

const oggPageDuration = 20 * time.Millisecond

// FileSource plays an IVF (VP8) file as the camera and an Ogg/Opus file as
// the microphone. Both loop until the track is stopped.
type FileSource struct {
	VideoPath string
	AudioPath string
	Logger    *zap.Logger
}

func (s *FileSource) Open(ctx context.Context, c Constraints) ([]*LocalTrack, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	streamID := "local-" + uuid.NewString()[:8]

	var tracks []*LocalTrack
	fail := func(err error) ([]*LocalTrack, error) {
		for _, t := range tracks {
			t.Stop()
		}
		return nil, err
	}

	if c.Video && s.VideoPath != "" {
		t, err := openIVF(s.VideoPath, streamID, logger)
		if err != nil {
			return fail(classify("open video", s.VideoPath, err))
		}
		tracks = append(tracks, t)
	}
	if c.Audio && s.AudioPath != "" {
		t, err := openOgg(s.AudioPath, streamID, logger)
		if err != nil {
			return fail(classify("open audio", s.AudioPath, err))
		}
		tracks = append(tracks, t)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if len(tracks) == 0 {
		return nil, newAccessError("open", "", ErrDeviceNotFound, errors.New("no media file configured"))
	}
	return tracks, nil
}

func openIVF(path, streamID string, logger *zap.Logger) (*LocalTrack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if header.FourCC != "VP80" {
		f.Close()
		return nil, fmt.Errorf("%w: fourcc %q", ErrUnsupported, header.FourCC)
	}

	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	frameDuration := time.Second / 30
	if header.TimebaseDenominator > 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator)/float64(header.TimebaseDenominator)*1000) * time.Millisecond
	}

	done := make(chan struct{})
	track := NewLocalTrack(KindVideo, local, func() { close(done) })

	go func() {
		defer f.Close()
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()

		reader, _, _ := ivfreader.NewWith(rewind(f))
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				if reader, _, err = ivfreader.NewWith(rewind(f)); err != nil {
					logger.Warn("ivf rewind failed", zap.String("path", path), zap.Error(err))
					return
				}
				continue
			}
			if err != nil {
				logger.Warn("ivf read failed", zap.String("path", path), zap.Error(err))
				return
			}
			if !track.Enabled() {
				continue
			}
			if err := local.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
				logger.Debug("video sample dropped", zap.Error(err))
			}
		}
	}()

	return track, nil
}

func openOgg(path, streamID string, logger *zap.Logger) (*LocalTrack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := oggreader.NewWith(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	done := make(chan struct{})
	track := NewLocalTrack(KindAudio, local, func() { close(done) })

	go func() {
		defer f.Close()
		ticker := time.NewTicker(oggPageDuration)
		defer ticker.Stop()

		reader, _, _ := oggreader.NewWith(rewind(f))
		var lastGranule uint64
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) {
				if reader, _, err = oggreader.NewWith(rewind(f)); err != nil {
					logger.Warn("ogg rewind failed", zap.String("path", path), zap.Error(err))
					return
				}
				lastGranule = 0
				continue
			}
			if err != nil {
				logger.Warn("ogg read failed", zap.String("path", path), zap.Error(err))
				return
			}

			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			if !track.Enabled() {
				continue
			}
			duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond
			if err := local.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
				logger.Debug("audio sample dropped", zap.Error(err))
			}
		}
	}()

	return track, nil
}

func rewind(f *os.File) io.Reader {
	_, _ = f.Seek(0, io.SeekStart)
	return f
}
