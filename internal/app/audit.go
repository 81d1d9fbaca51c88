package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/output"
)

var (
	auditLimit int

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Show the lifecycle audit log",
		Long: `Show recorded lifecycle events: installs, removes, build starts
and stops, and marker file syncs. Entries are shown newest first.`,
		Example: `  forgekeeper audit
  forgekeeper audit --limit 10`,
		RunE: runAudit,
	}
)

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries to show (0 for all)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ListAudit(auditLimit)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	fmt.Print(output.RenderAuditTable(entries))
	return nil
}
