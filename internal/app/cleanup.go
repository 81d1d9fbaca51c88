package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/build"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune leftover build artifacts",
	Long: `Remove dangling docker artifacts from previous provisioning builds:
project-labeled containers, networks and caches, plus dangling images.
The prune commands are best-effort and bounded in time.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	for _, line := range build.Prune(newLogger()) {
		fmt.Println(line)
	}
	return nil
}
