package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultCatalogOrder(t *testing.T) {
	r := Default()

	ids := r.IDs()
	expected := []string{"python", "node", "go", "rust", "java", "dotnet", "ruby", "php", "swift", "dart"}

	if len(ids) != len(expected) {
		t.Fatalf("Default() has %d modules, want %d", len(ids), len(expected))
	}
	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("IDs()[%d] = %s, want %s", i, id, expected[i])
		}
	}
}

func TestDescribeUnknownModule(t *testing.T) {
	r := Default()

	_, err := r.Describe("cobol")
	if err == nil {
		t.Fatal("Describe() should fail for unknown module")
	}
	if !errors.Is(err, ErrUnknownModule) {
		t.Errorf("Describe() error = %v; want errors.Is(err, ErrUnknownModule)", err)
	}
}

func TestDescribeReturnsActions(t *testing.T) {
	r := Default()

	mod, err := r.Describe("go")
	if err != nil {
		t.Fatalf("Describe() failed: %v", err)
	}

	if mod.Name != "Go" {
		t.Errorf("Name = %s, want Go", mod.Name)
	}
	if !mod.Remove.BestEffort {
		t.Error("built-in remove actions should be best-effort")
	}
	if mod.Install.BestEffort {
		t.Error("built-in install actions should not be best-effort")
	}

	argv, err := mod.Install.Argv()
	if err != nil {
		t.Fatalf("Argv() failed: %v", err)
	}
	want := []string{"forgekeeper-runtime", "install", "go"}
	if len(argv) != len(want) {
		t.Fatalf("Argv() = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("Argv()[%d] = %s, want %s", i, argv[i], want[i])
		}
	}
}

func TestActionArgvQuoting(t *testing.T) {
	a := Action{Command: `sh -c "apt-get install -y golang"`}

	argv, err := a.Argv()
	if err != nil {
		t.Fatalf("Argv() failed: %v", err)
	}
	if len(argv) != 3 {
		t.Fatalf("Argv() = %v, want 3 fields", argv)
	}
	if argv[2] != "apt-get install -y golang" {
		t.Errorf("Argv()[2] = %q, want quoted string preserved", argv[2])
	}
}

func TestActionArgvEmpty(t *testing.T) {
	a := Action{Command: "   "}
	if _, err := a.Argv(); err == nil {
		t.Error("Argv() should fail for an empty command")
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Module{
		{ID: "go", Name: "Go"},
		{ID: "go", Name: "Go again"},
	})
	if err == nil {
		t.Error("New() should reject duplicate ids")
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !r.Known("python") {
		t.Error("missing catalog file should fall back to the built-in catalog")
	}
}

func TestLoadCatalogOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modules.toml")

	catalog := `
[[module]]
id = "zig"
name = "Zig"
install = "apt-get install -y zig"
remove = "apt-get remove -y zig"
best_effort_remove = true
timeout_minutes = 5
`
	if err := os.WriteFile(path, []byte(catalog), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if r.Known("python") {
		t.Error("override catalog should replace the built-in catalog, not extend it")
	}

	mod, err := r.Describe("zig")
	if err != nil {
		t.Fatalf("Describe() failed: %v", err)
	}
	if mod.Name != "Zig" {
		t.Errorf("Name = %s, want Zig", mod.Name)
	}
	if !mod.Remove.BestEffort {
		t.Error("best_effort_remove should carry through")
	}
	if mod.Install.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", mod.Install.Timeout)
	}
}

func TestLoadCatalogRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modules.toml")

	catalog := `
[[module]]
id = "zig"
install = "apt-get install -y zig"
`
	if err := os.WriteFile(path, []byte(catalog), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() should reject a module without a remove action")
	}
}
