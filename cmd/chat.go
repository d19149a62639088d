package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/config"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/debugserver"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/peer"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/profile"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/session"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/ui"
)

var (
	flagVideoFile   string
	flagAudioFile   string
	flagUseDevice   bool
	flagRecordDir   string
	flagMetricsAddr string
	flagNoAudio     bool
	flagNoVideo     bool
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c", "start"},
	Short:   "Start chatting with a random stranger",
	Long: `Connect to the matchmaking server, get paired with a random stranger and
start a video call with text chat.

Keys:
  enter    send the typed message
  ctrl+n   skip to the next stranger
  ctrl+a   toggle microphone
  ctrl+v   toggle camera
  ctrl+r   reconnect
  esc      quit

Examples:
  omegle-clone chat --video cam.ivf --audio mic.ogg
  omegle-clone chat --device
  omegle-clone chat --record ./calls --metrics-addr 127.0.0.1:9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func runChat(ctx context.Context) error {
	cfg, err := LoadConfig(func(o *config.Options) {
		o.VideoFile = flagVideoFile
		o.AudioFile = flagAudioFile
		o.UseDevice = flagUseDevice
		o.RecordDir = flagRecordDir
		o.MetricsAddr = flagMetricsAddr
	})
	if err != nil {
		return err
	}

	prof, err := profile.NewStore(cfg.ProfilePath).LoadOrCreate()
	if err != nil {
		return newError("load profile", err)
	}

	logger := zap.L().With(
		zap.String("profile", prof.ID),
		zap.String("preference", string(prof.EffectivePreference())),
	)

	api, err := peer.NewAPI(logger)
	if err != nil {
		return newError("set up webrtc", err)
	}

	constraints := media.DefaultConstraints()
	constraints.Audio = !flagNoAudio
	constraints.Video = !flagNoVideo

	scfg := session.Config{
		Media:       media.NewController(mediaSource(cfg, logger), logger),
		Constraints: constraints,
		Dial:        session.Dialer(cfg.SignalingURL, signaling.WithLogger(logger)),
		NewLink:     session.Links(peer.OptionsFromConfig(cfg, api, logger)),
		Logger:      logger,
	}
	if cfg.RecordDir != "" {
		scfg.Record = func(room string) (session.Recorder, error) {
			rec, err := media.NewRecorder(cfg.RecordDir, room, logger)
			if err != nil {
				return nil, err
			}
			return rec, nil
		}
	}

	sess := session.New(scfg)
	defer sess.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := debugserver.New(cfg.MetricsAddr, sess.Snapshot, prof.ID, logger)
		g.Go(func() error {
			if err := srv.Run(ctx); err != nil {
				return newError("serve metrics", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		if err := ui.RunChat(ctx, sess); err != nil {
			return newError("run chat screen", err)
		}
		return sess.Stop()
	})

	return g.Wait()
}

// mediaSource picks the capture backend: media files first, then real
// devices when asked for, otherwise none.
func mediaSource(cfg *config.Config, logger *zap.Logger) media.Source {
	switch {
	case cfg.VideoFile != "" || cfg.AudioFile != "":
		return &media.FileSource{VideoPath: cfg.VideoFile, AudioPath: cfg.AudioFile, Logger: logger}
	case cfg.UseDevice:
		return media.NewDeviceSource(logger)
	default:
		return media.NoSource{}
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&flagVideoFile, "video", "", "IVF (VP8) file to use as camera")
	chatCmd.Flags().StringVar(&flagAudioFile, "audio", "", "Ogg (Opus) file to use as microphone")
	chatCmd.Flags().BoolVar(&flagUseDevice, "device", false, "Capture from the real camera and microphone")
	chatCmd.Flags().StringVar(&flagRecordDir, "record", "", "Record the stranger's media into this directory")
	chatCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve /metrics and /session on this address")
	chatCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Do not send audio")
	chatCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Do not send video")
}
