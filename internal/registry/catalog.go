package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// runtimeScript is the privileged helper baked into the container image.
// It knows how to install and remove each language toolchain.
const runtimeScript = "forgekeeper-runtime"

// builtin is the default catalog. Order is presentation order.
// Remove actions are best-effort: the runtime scripts tolerate sub-step
// failures as long as the toolchain's primary artifact is gone.
var builtin = []struct {
	id   string
	name string
}{
	{"python", "Python"},
	{"node", "Node.js"},
	{"go", "Go"},
	{"rust", "Rust"},
	{"java", "Java"},
	{"dotnet", ".NET"},
	{"ruby", "Ruby"},
	{"php", "PHP"},
	{"swift", "Swift"},
	{"dart", "Dart"},
}

// Default returns the built-in module catalog. Actions carry no timeout
// of their own; the lifecycle manager applies the configured default.
func Default() *Registry {
	modules := make([]Module, 0, len(builtin))
	for _, b := range builtin {
		modules = append(modules, Module{
			ID:   b.id,
			Name: b.name,
			Install: Action{
				Command: fmt.Sprintf("%s install %s", runtimeScript, b.id),
			},
			Remove: Action{
				Command:    fmt.Sprintf("%s remove %s", runtimeScript, b.id),
				BestEffort: true,
			},
		})
	}
	r, err := New(modules)
	if err != nil {
		// The built-in table is static; a duplicate here is a programming error.
		panic(err)
	}
	return r
}

// catalogFile is the on-disk override format.
type catalogFile struct {
	Modules []catalogModule `toml:"module"`
}

type catalogModule struct {
	ID               string `toml:"id"`
	Name             string `toml:"name"`
	Install          string `toml:"install"`
	Remove           string `toml:"remove"`
	BestEffortRemove bool   `toml:"best_effort_remove"`
	TimeoutMinutes   int    `toml:"timeout_minutes"`
}

// Load reads a catalog override file. If the file does not exist the
// built-in catalog is returned, mirroring how missing config is treated
// elsewhere: absence is not an error.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(file.Modules) == 0 {
		return nil, fmt.Errorf("catalog %s declares no modules", path)
	}

	modules := make([]Module, 0, len(file.Modules))
	for _, cm := range file.Modules {
		if cm.ID == "" || cm.Install == "" || cm.Remove == "" {
			return nil, fmt.Errorf("catalog %s: module %q must set id, install and remove", path, cm.ID)
		}
		name := cm.Name
		if name == "" {
			name = cm.ID
		}
		// Zero leaves the timeout to the lifecycle manager's default.
		var timeout time.Duration
		if cm.TimeoutMinutes > 0 {
			timeout = time.Duration(cm.TimeoutMinutes) * time.Minute
		}
		modules = append(modules, Module{
			ID:   cm.ID,
			Name: name,
			Install: Action{
				Command: cm.Install,
				Timeout: timeout,
			},
			Remove: Action{
				Command:    cm.Remove,
				BestEffort: cm.BestEffortRemove,
				Timeout:    timeout,
			},
		})
	}
	return New(modules)
}
