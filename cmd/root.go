package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/config"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/ui"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/version"
)

var (
	flagDomain       string
	flagSignalingURL string
	flagStatusURL    string
	flagSTUN         string
	flagTURN         string
	flagTURNUser     string
	flagTURNPass     string
	flagRelay        bool
	flagProfilePath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "omegle-clone",
	Short: "Random one-to-one video chat with strangers, from the terminal",
	Long: `omegle-clone pairs you with a random stranger through a matchmaking server
and opens a direct WebRTC audio/video call plus text chat between the two of you.
Skip to meet someone new at any time.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			cmdErr.Print()
		} else {
			ui.PrintError(err.Error())
		}
		stop()
		os.Exit(1)
	}
}

// LoadConfig merges the persistent flags with the environment.
func LoadConfig(extra func(*config.Options)) (*config.Config, error) {
	opts := config.Options{
		Domain:       flagDomain,
		SignalingURL: flagSignalingURL,
		StatusURL:    flagStatusURL,
		STUNServer:   flagSTUN,
		TURNServer:   flagTURN,
		TURNUser:     flagTURNUser,
		TURNPass:     flagTURNPass,
		ForceRelay:   flagRelay,
		ProfilePath:  flagProfilePath,
	}
	if extra != nil {
		extra(&opts)
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, newError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagDomain, "domain", "d", "", "Matchmaking server domain")
	pf.StringVar(&flagSignalingURL, "signaling-url", "", "Signaling server URL (default https://<domain>)")
	pf.StringVar(&flagStatusURL, "status-url", "", "Status endpoint URL (default <signaling-url>/status)")
	pf.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	pf.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	pf.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	pf.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	pf.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	pf.StringVar(&flagProfilePath, "profile", "", "Profile file (default in the user config dir)")
}
