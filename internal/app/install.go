package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/output"
	"github.com/forgekeeper/forgekeeper/internal/runner"
)

var installCmd = &cobra.Command{
	Use:   "install <module>...",
	Short: "Install one or more runtime modules",
	Long: `Install runtime modules by running their catalog install actions.
Already-installed modules are skipped without running anything. Each
action runs under the configured timeout; on failure the trailing output
of the action is shown.`,
	Example: `  forgekeeper install go
  forgekeeper install python node rust`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr, err := newManager(cfg, st, newLogger())
	if err != nil {
		return err
	}

	for _, id := range args {
		spinner := output.NewSpinner("Installing " + id).WithTimeout(cfg.InstallTimeout)
		spinner.Start()

		outcome, err := mgr.Install(id)
		if err != nil {
			spinner.StopWithMessage("Failed to install " + id)
			printActionFailure(err)
			return fmt.Errorf("install %s failed", id)
		}

		switch outcome {
		case lifecycle.OutcomeNoop:
			spinner.StopWithMessage(id + " is already installed")
		default:
			spinner.StopWithMessage("Installed " + id)
		}
	}
	return nil
}

// printActionFailure surfaces the captured log tail of a failed action.
func printActionFailure(err error) {
	fmt.Println("Error:", err)

	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) && len(exitErr.LogTail) > 0 {
		fmt.Println("\nLast output:")
		fmt.Println("  " + strings.Join(exitErr.LogTail, "\n  "))
	}
}
