package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/build"
	"github.com/forgekeeper/forgekeeper/internal/config"
)

var (
	buildLangs     []string
	buildHandle    string
	buildEmail     string
	buildWorkspace string

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Provision the container with the selected runtimes",
		Long: `Assemble the container image from the base Dockerfile plus the
selected language module snippets and run docker compose up --build.
The build log streams to stdout; Ctrl-C stops the build by terminating
the whole compose process group.`,
		Example: `  forgekeeper build --lang go
  forgekeeper build --lang python --lang node --handle dev`,
		RunE: runBuild,
	}
)

func init() {
	buildCmd.Flags().StringArrayVar(&buildLangs, "lang", nil, "language module to include (repeatable)")
	buildCmd.Flags().StringVar(&buildHandle, "handle", "", "user handle written to the container environment")
	buildCmd.Flags().StringVar(&buildEmail, "email", "", "user email written to the container environment")
	buildCmd.Flags().StringVar(&buildWorkspace, "workspace", "", "workspace directory name")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := newLogger()
	session := build.NewSession(cfg, st, logger)

	setup := config.Setup{
		Handle:    buildHandle,
		Email:     buildEmail,
		Workspace: buildWorkspace,
		Languages: buildLangs,
	}

	attempt, err := session.Start(setup)
	if err != nil {
		return fmt.Errorf("failed to start build: %w", err)
	}
	fmt.Println("Build started:", attempt)

	// Ctrl-C stops the build rather than orphaning compose.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		_ = session.Stop()
	}()

	// Stream the log until the session reaches a terminal state.
	offset := 0
	for {
		lines, next, done := session.TailLog(offset)
		for _, line := range lines {
			fmt.Println(line)
		}
		offset = next
		if done && len(lines) == 0 {
			break
		}
		if len(lines) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}

	switch session.Status().State {
	case build.StateDone:
		return nil
	case build.StateStopped:
		return fmt.Errorf("build stopped")
	default:
		return fmt.Errorf("build failed")
	}
}
