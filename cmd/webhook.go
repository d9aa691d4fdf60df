package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-gateway/internal/app"
	"github.com/tonimelisma/onedrive-gateway/internal/delta"
	"github.com/tonimelisma/onedrive-gateway/internal/heartbeat"
	"github.com/tonimelisma/onedrive-gateway/internal/session"
	"github.com/tonimelisma/onedrive-gateway/internal/ui"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the change subscription",
	Long:  "Inspect, renew, drain and remove the Graph change subscription of the managed drive.",
}

var webhookRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Run one heartbeat: create or extend the subscription",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("error creating app: %w", err)
		}
		return webhookRenewLogic(cmd.Context(), a, os.Stdout)
	},
}

var webhookSyncCmd = &cobra.Command{
	Use:   "sync [resource]",
	Short: "Read pending changes and run the folder handlers",
	Long: `Performs the same pass a change notification triggers: reads the delta feed
from the stored checkpoint, prints the classified changes and dispatches them to
the sidecar handler. Defaults to the managed drive root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("error creating app: %w", err)
		}
		resource := a.Config.WebhookResource()
		if len(args) > 0 {
			resource = args[0]
		}
		noHandlers, _ := cmd.Flags().GetBool("no-handlers")
		return webhookSyncLogic(cmd.Context(), a, os.Stdout, resource, !noHandlers)
	},
}

var webhookStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the registration document and the last heartbeat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("error creating app: %w", err)
		}
		return webhookStatusLogic(cmd.Context(), a, os.Stdout)
	},
}

var webhookRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete the subscription and its registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("error creating app: %w", err)
		}
		return webhookRemoveLogic(cmd.Context(), a, os.Stdout)
	},
}

func webhookRenewLogic(ctx context.Context, a *app.App, w io.Writer) error {
	job, err := a.Heartbeat()
	if err != nil {
		return err
	}
	outcome, err := job.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", outcome, err)
	}
	switch outcome {
	case heartbeat.Completed:
		ui.Success(w, "Subscription renewed.")
	case heartbeat.Retreated:
		fmt.Fprintln(w, "Another worker holds the registration file; nothing to do.")
	case heartbeat.Skipped:
		fmt.Fprintln(w, "A heartbeat is already running on this host; nothing to do.")
	default:
		fmt.Fprintf(w, "Heartbeat %s.\n", outcome)
	}
	return nil
}

func webhookSyncLogic(ctx context.Context, a *app.App, w io.Writer, resource string, runHandlers bool) error {
	if a.Config.RegistrationFileID == "" {
		return fmt.Errorf("%w: WEBHOOK_REGISTRATION_FILE_ID is required", app.ErrWebhookDisabled)
	}
	spinner := ui.NewSpinner("Reading changes...")
	syncer := a.Synchronizer(delta.WithPageObserver(func(_, items int) {
		_ = spinner.Add(items)
	}))

	batch, err := syncer.Sync(ctx, resource)
	_ = spinner.Finish()
	if err != nil {
		return err
	}
	events, classifyErr := delta.Events(batch)
	ui.DisplayBatch(w, batch, events)

	if !runHandlers || len(events) == 0 {
		return classifyErr
	}
	handler, err := a.SidecarHandler()
	if err != nil {
		return errors.Join(classifyErr, err)
	}
	if err := delta.Dispatch(ctx, handler, events); err != nil {
		return errors.Join(classifyErr, err)
	}
	ui.Success(w, fmt.Sprintf("Dispatched %d change(s).", len(events)))
	return classifyErr
}

func webhookStatusLogic(ctx context.Context, a *app.App, w io.Writer) error {
	if a.Config.RegistrationFileID == "" {
		return fmt.Errorf("%w: WEBHOOK_REGISTRATION_FILE_ID is required", app.ErrWebhookDisabled)
	}
	doc, _, err := a.Store(a.DriveID()).Load(ctx)
	if err != nil {
		return err
	}
	ui.DisplayRegistrations(w, doc)

	checkedOut, err := a.Locker().HasFileBeenCheckedOut(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	if checkedOut {
		fmt.Fprintln(w, "Registration file: checked out")
	} else {
		fmt.Fprintln(w, "Registration file: available")
	}

	sessions, err := session.NewManager(a.Config.LockDir)
	if err != nil {
		return err
	}
	state, err := sessions.Load()
	if err != nil {
		return err
	}
	ui.DisplayHeartbeat(w, state)
	return nil
}

func webhookRemoveLogic(ctx context.Context, a *app.App, w io.Writer) error {
	registrar, err := a.Registrar()
	if err != nil {
		return err
	}
	resource := a.Config.WebhookResource()
	err = a.Locker().WithCheckout(ctx, func(ctx context.Context) error {
		return registrar.Remove(ctx, resource)
	})
	if err != nil {
		return err
	}
	ui.Success(w, fmt.Sprintf("Removed subscription for %s.", resource))
	return nil
}

func init() {
	webhookSyncCmd.Flags().Bool("no-handlers", false, "Only print the changes; do not write sidecar documents")

	webhookCmd.AddCommand(webhookRenewCmd, webhookSyncCmd, webhookStatusCmd, webhookRemoveCmd)
	rootCmd.AddCommand(webhookCmd)
}
