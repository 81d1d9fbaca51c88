// Package app implements the forgekeeper CLI commands.
package app

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/registry"
	"github.com/forgekeeper/forgekeeper/internal/store"
)

var (
	cfgFile string
	verbose bool

	// RootCmd is the root command for forgekeeper.
	RootCmd = &cobra.Command{
		Use:   "forgekeeper",
		Short: "Dev container runtime and build management",
		Long: `forgekeeper manages the language runtimes inside a development
container and drives its provisioning builds.

Runtime modules (python, node, go, ...) are installed and removed through
a catalog of idempotent actions; installation state is durable and
survives restarts. The build commands assemble the container image from
the selected modules and supervise docker compose.

Examples:
  # Show every module and whether it is installed
  forgekeeper list

  # Install and remove runtimes
  forgekeeper install go
  forgekeeper remove ruby

  # Provision the container with selected runtimes
  forgekeeper build --lang go --lang python

  # Run the HTTP portal
  forgekeeper serve

  # Import a devcontainer.json
  forgekeeper import .devcontainer/devcontainer.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /etc/forgekeeper/config.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(removeCmd)
	RootCmd.AddCommand(auditCmd)
	RootCmd.AddCommand(buildCmd)
	RootCmd.AddCommand(cleanupCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(importCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

// newLogger builds the CLI logger honoring --verbose.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// loadConfig reads the process configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the state database, creating its schema if needed.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return st, nil
}

// newManager assembles the lifecycle manager from config: catalog,
// store, and the process-runner executor.
func newManager(cfg *config.Config, st *store.Store, logger *log.Logger) (*lifecycle.Manager, error) {
	reg, err := registry.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load module catalog: %w", err)
	}
	return lifecycle.New(reg, st, nil, logger, cfg.InstallTimeout), nil
}
