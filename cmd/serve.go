package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-gateway/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	Long: `Serves the Graph proxy, the sign-in enrichment endpoint and, when the webhook
settings are complete, the change notification endpoint. The subscription
heartbeat runs in the same process unless --no-heartbeat is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("error creating app: %w", err)
		}
		noHeartbeat, _ := cmd.Flags().GetBool("no-heartbeat")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveLogic(ctx, a, !noHeartbeat)
	},
}

func serveLogic(ctx context.Context, a *app.App, withHeartbeat bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, coalescer, err := a.Server(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if withHeartbeat {
		job, err := a.Heartbeat()
		switch {
		case errors.Is(err, app.ErrWebhookDisabled):
			a.Logger.Warn("heartbeat disabled", "reason", err)
		case err != nil:
			return err
		default:
			wg.Add(1)
			go func() {
				defer wg.Done()
				job.Start(ctx, a.Config.HeartbeatInterval)
			}()
		}
	}

	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	if coalescer != nil {
		coalescer.Wait()
	}
	return err
}

func init() {
	serveCmd.Flags().Bool("no-heartbeat", false, "Do not renew the change subscription from this process")
	rootCmd.AddCommand(serveCmd)
}
