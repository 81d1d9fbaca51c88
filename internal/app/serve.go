package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/build"
	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/portal"
	"github.com/forgekeeper/forgekeeper/internal/registry"
	"github.com/forgekeeper/forgekeeper/internal/shell"
	"github.com/forgekeeper/forgekeeper/internal/watcher"
)

var (
	servePort int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP API",
		Long: `Run the daemon: the HTTP portal for runtime and build operations,
plus the marker file watcher that keeps legacy installer state in sync
with the state database.`,
		Example: `  forgekeeper serve
  forgekeeper serve --port 7100`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg, err := registry.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load module catalog: %w", err)
	}

	mgr := lifecycle.New(reg, st, nil, logger, cfg.InstallTimeout)
	session := build.NewSession(cfg, st, logger)

	// Login shells pick up the container environment through profile.d.
	// Not fatal when the directory is read-only (tests, containers
	// without /etc access).
	if added, path, err := shell.EnsureEnvSnippet(cfg.ProfileDir, cfg.EnvFilePath()); err != nil {
		logger.Warn("could not write shell profile snippet", "err", err)
	} else if added {
		logger.Info("wrote shell profile snippet", "path", path)
	}

	w, err := watcher.New(cfg.MarkerDir, st, reg, logger)
	if err != nil {
		return fmt.Errorf("failed to create marker watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start marker watcher: %w", err)
	}
	defer w.Stop()

	port := cfg.PortalPort
	if servePort != 0 {
		port = servePort
	}

	srv := portal.New(mgr, session, cfg, logger)
	return srv.ListenAndServe(port)
}
