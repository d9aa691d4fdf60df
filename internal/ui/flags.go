package ui

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-gateway/internal/tree"
)

// AddDepthFlag adds the ancestry depth flag to a command.
func AddDepthFlag(cmd *cobra.Command) {
	cmd.Flags().Int("depth", tree.Unbounded, "Maximum ancestor distance; 0 means direct children only, -1 means unbounded")
}

// ParseDepthFlag returns the depth option the flag selects.
func ParseDepthFlag(cmd *cobra.Command) (int, error) {
	depth, err := cmd.Flags().GetInt("depth")
	if err != nil {
		return 0, fmt.Errorf("error parsing depth flag: %w", err)
	}
	if depth < tree.Unbounded {
		return 0, fmt.Errorf("depth must be -1 or greater, got %d", depth)
	}
	return depth, nil
}
