package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-gateway/internal/access"
	"github.com/tonimelisma/onedrive-gateway/internal/app"
	"github.com/tonimelisma/onedrive-gateway/internal/ui"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Inspect sign-in authorization",
}

var accessCheckCmd = &cobra.Command{
	Use:   "check <email>",
	Short: "Show the roles and folders a sign-in with this email would receive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("error creating app: %w", err)
		}
		return accessCheckLogic(cmd.Context(), a, os.Stdout, args[0])
	},
}

func accessCheckLogic(ctx context.Context, a *app.App, w io.Writer, email string) error {
	decision, err := a.Enricher().Evaluate(ctx, email)
	if errors.Is(err, access.ErrNoRoles) {
		fmt.Fprintf(w, "%s would be blocked: %s\n", email, access.BlockMessage)
		return nil
	}
	if err != nil {
		return err
	}
	ui.DisplayDecision(w, email, decision)
	return nil
}

func init() {
	accessCmd.AddCommand(accessCheckCmd)
	rootCmd.AddCommand(accessCmd)
}
