// Package output renders CLI tables and progress indicators. Tables use
// plain ASCII with ANSI colors when stdout is a terminal; the spinner
// degrades to a single printed line on non-TTY writers.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/store"
)

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorGray  = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderModuleTable renders the catalog with installation state, in
// catalog order.
func RenderModuleTable(statuses []lifecycle.ModuleStatus) string {
	if len(statuses) == 0 {
		return "No modules in the catalog.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-10s %-14s %s\n", "Module", "Name", "Status"))
	sb.WriteString(strings.Repeat("─", 40))
	sb.WriteString("\n")

	for _, s := range statuses {
		status := colorize(colorGray, "not installed")
		if s.Installed {
			status = colorize(colorGreen, "installed")
		}
		sb.WriteString(fmt.Sprintf("%-10s %-14s %s\n",
			truncate(s.ID, 10), truncate(s.Name, 14), status))
	}

	return sb.String()
}

// RenderAuditTable renders audit log entries, newest first as the store
// returns them.
func RenderAuditTable(entries []*store.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-14s %-12s %-10s %-30s %s\n",
		"When", "Action", "Target", "Outcome", "Detail"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, e := range entries {
		outcome := e.Outcome
		if IsColorEnabled() {
			if strings.HasPrefix(outcome, "success") {
				outcome = colorGreen + outcome + colorReset
			} else if outcome == "failed" {
				outcome = colorRed + outcome + colorReset
			}
		}
		sb.WriteString(fmt.Sprintf("%-14s %-12s %-10s %-30s %s\n",
			formatRelativeTime(e.Timestamp),
			e.Action,
			truncate(e.Target, 10),
			outcome,
			truncate(e.Detail, 40)))
	}

	return sb.String()
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24/7), "week")
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month")
	default:
		return plural(int(diff.Hours()/24/365), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
