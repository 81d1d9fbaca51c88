package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/output"
)

var removeCmd = &cobra.Command{
	Use:   "remove <module>...",
	Short: "Remove one or more runtime modules",
	Long: `Remove runtime modules by running their catalog remove actions.
Modules that are not installed are skipped. Built-in remove actions are
best-effort: a partially failing uninstall still marks the module
removed, and the exit code is recorded in the audit log.`,
	Example: `  forgekeeper remove ruby
  forgekeeper remove java dotnet`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
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
		spinner := output.NewSpinner("Removing " + id).WithTimeout(cfg.InstallTimeout)
		spinner.Start()

		outcome, err := mgr.Remove(id)
		if err != nil {
			spinner.StopWithMessage("Failed to remove " + id)
			printActionFailure(err)
			return fmt.Errorf("remove %s failed", id)
		}

		switch outcome {
		case lifecycle.OutcomeNoop:
			spinner.StopWithMessage(id + " is not installed")
		default:
			spinner.StopWithMessage("Removed " + id)
		}
	}
	return nil
}
