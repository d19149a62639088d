package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/status"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/ui"
)

var (
	flagFormat string
	flagWatch  time.Duration
	flagCheck  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many people are online on the matchmaking server",
	Long: `Query the matchmaking server's status endpoint.

Examples:
  omegle-clone status
  omegle-clone status --format markdown
  omegle-clone status --watch 5s
  omegle-clone status --check && omegle-clone chat`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context())
	},
}

func runStatus(ctx context.Context) error {
	format, err := ui.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(nil)
	if err != nil {
		return err
	}
	client := status.NewClient(cfg.StatusURL, status.WithLogger(zap.L()))

	if flagCheck {
		if !client.Reachable(ctx) {
			return newError("check server", fmt.Errorf("%w at %s", status.ErrUnavailable, cfg.StatusURL))
		}
		ui.PrintSuccessf("Server is up at %s", cfg.SignalingURL)
		return nil
	}

	if flagWatch > 0 {
		client.Poll(ctx, flagWatch, func(stats status.Stats, err error) {
			if err != nil {
				ui.PrintWarning(err.Error())
				return
			}
			fmt.Println(time.Now().Format(time.TimeOnly))
			if err := ui.StatsTable(stats, cfg.SignalingURL).Write(os.Stdout, format); err != nil {
				ui.PrintWarning(err.Error())
			}
		})
		return nil
	}

	stopSpinner := ui.RunConnectionSpinner("Asking the server who's online...")
	stats, err := client.Fetch(ctx)
	stopSpinner()
	if err != nil {
		return newError("fetch status", err)
	}
	return ui.StatsTable(stats, cfg.SignalingURL).Write(os.Stdout, format)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&flagFormat, "format", "f", "", "Output format: styled, table, markdown or csv")
	statusCmd.Flags().DurationVarP(&flagWatch, "watch", "w", 0, "Refresh every interval until interrupted")
	statusCmd.Flags().BoolVar(&flagCheck, "check", false, "Only check that the server answers")
}
