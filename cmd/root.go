// Package cmd defines the onedrive-gateway command line: the server and the
// operator commands around the webhook subscription and the folder tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "onedrive-gateway",
	Short: "Authorizing gateway in front of a OneDrive document library",
	Long: `onedrive-gateway proxies Microsoft Graph requests for a single approved
drive, decides per request whether the caller may read or write the target
item, enriches sign-in tokens with roles and keeps a change subscription alive
so new folders receive their metadata sidecar documents.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file (overrides $ONEDRIVE_GATEWAY_CONFIG)")
}
