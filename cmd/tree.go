package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-gateway/internal/app"
	"github.com/tonimelisma/onedrive-gateway/internal/tree"
	"github.com/tonimelisma/onedrive-gateway/internal/ui"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Inspect the folder hierarchy of the managed drive",
}

var treeCheckCmd = &cobra.Command{
	Use:   "check <item-id> <folder-id>...",
	Short: "Report whether an item lies inside any of the given folders",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("error creating app: %w", err)
		}
		depth, err := ui.ParseDepthFlag(cmd)
		if err != nil {
			return err
		}
		return treeCheckLogic(cmd.Context(), a, os.Stdout, args[0], args[1:], depth)
	},
}

func treeCheckLogic(ctx context.Context, a *app.App, w io.Writer, id string, folders []string, depth int) error {
	inside, err := a.Resolver().IsInFolder(ctx, id, folders, tree.WithDepth(depth))
	if err != nil {
		return err
	}
	ui.DisplayContainment(w, id, folders, depth, inside)
	return nil
}

func init() {
	ui.AddDepthFlag(treeCheckCmd)
	treeCmd.AddCommand(treeCheckCmd)
	rootCmd.AddCommand(treeCmd)
}
