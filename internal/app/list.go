package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List runtime modules and their installation state",
	Long: `List every module in the catalog together with its durable
installation state. Modules are shown in catalog order; state comes from
the state database, not from probing the filesystem.`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
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

	statuses, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list modules: %w", err)
	}

	fmt.Print(output.RenderModuleTable(statuses))
	return nil
}
