package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/store"
)

func TestRenderModuleTable(t *testing.T) {
	statuses := []lifecycle.ModuleStatus{
		{ID: "python", Name: "Python", Installed: true},
		{ID: "go", Name: "Go", Installed: false},
	}

	out := RenderModuleTable(statuses)

	for _, want := range []string{"python", "Python", "installed", "go", "not installed"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	// Catalog order is preserved.
	if strings.Index(out, "python") > strings.Index(out, "go") {
		t.Error("rows must keep catalog order")
	}
}

func TestRenderModuleTableEmpty(t *testing.T) {
	out := RenderModuleTable(nil)
	if !strings.Contains(out, "No modules") {
		t.Errorf("unexpected empty-table output: %q", out)
	}
}

func TestRenderAuditTable(t *testing.T) {
	entries := []*store.AuditEntry{
		{
			Timestamp: time.Now().Add(-2 * time.Hour),
			Action:    store.ActionInstall,
			Target:    "go",
			Outcome:   "success",
		},
		{
			Timestamp: time.Now().Add(-3 * 24 * time.Hour),
			Action:    store.ActionRemove,
			Target:    "python",
			Outcome:   "failed",
			Detail:    "process exited with code 1",
		},
	}

	out := RenderAuditTable(entries)

	for _, want := range []string{"2 hours ago", "3 days ago", "install", "remove", "failed", "exited with code 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	cases := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "never"},
		{time.Now().Add(-10 * time.Second), "just now"},
		{time.Now().Add(-time.Minute), "1 minute ago"},
		{time.Now().Add(-90 * time.Minute), "1 hour ago"},
		{time.Now().Add(-48 * time.Hour), "2 days ago"},
		{time.Now().Add(-400 * 24 * time.Hour), "1 year ago"},
	}
	for _, tc := range cases {
		if got := formatRelativeTime(tc.t); got != tc.want {
			t.Errorf("formatRelativeTime(%v) = %q, want %q", tc.t, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("averylongmodulename", 10); got != "averylo..." {
		t.Errorf("truncate = %q, want averylo...", got)
	}
}

func TestSpinnerNonTTYPrintsOnce(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("Installing go")
	s.SetWriter(&buf)

	s.Start()
	time.Sleep(250 * time.Millisecond)
	s.StopWithMessage("Installed go")

	out := buf.String()
	if strings.Count(out, "Installing go") != 1 {
		t.Errorf("non-TTY spinner should print the message once:\n%q", out)
	}
	if !strings.Contains(out, "Installed go") {
		t.Errorf("final message missing:\n%q", out)
	}
}
