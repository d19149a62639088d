package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"go.uber.org/zap"
)

var ErrRecorderClosed = errors.New("recorder closed")

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// Recorder writes a remote stream to disk: VP8 into an IVF file and Opus
// into an Ogg file. Files are created on the first packet of each kind.
type Recorder struct {
	dir    string
	prefix string
	logger *zap.Logger

	mu      sync.Mutex
	writers map[Kind]rtpWriter
	paths   []string
	closed  bool
}

func NewRecorder(dir, room string, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	if room == "" {
		room = "session"
	}
	return &Recorder{
		dir:     dir,
		prefix:  fmt.Sprintf("%s-%s", room, time.Now().Format("20060102-150405")),
		logger:  logger.Named("recorder"),
		writers: make(map[Kind]rtpWriter),
	}, nil
}

// WriteRTP appends one packet of the given kind.
func (r *Recorder) WriteRTP(kind Kind, pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}
	w, ok := r.writers[kind]
	if !ok {
		var err error
		if w, err = r.open(kind); err != nil {
			return err
		}
		r.writers[kind] = w
	}
	return w.WriteRTP(pkt)
}

func (r *Recorder) open(kind Kind) (rtpWriter, error) {
	switch kind {
	case KindVideo:
		path := filepath.Join(r.dir, r.prefix+".ivf")
		w, err := ivfwriter.New(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		r.paths = append(r.paths, path)
		r.logger.Info("recording video", zap.String("path", path))
		return w, nil
	case KindAudio:
		path := filepath.Join(r.dir, r.prefix+".ogg")
		w, err := oggwriter.New(path, 48000, 2)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		r.paths = append(r.paths, path)
		r.logger.Info("recording audio", zap.String("path", path))
		return w, nil
	}
	return nil, fmt.Errorf("unknown track kind %q", kind)
}

// Paths lists the files written so far.
func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// Close finalizes all files. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for kind, w := range r.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}
