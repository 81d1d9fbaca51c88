package devcontainer

import (
	"fmt"
	"sort"

	"github.com/forgekeeper/forgekeeper/internal/config"
)

// Merge layers an imported devcontainer mapping under the wizard's setup.
// User inputs win; conflicts on environment variables keep the user value
// and produce a warning. Languages are the union of both, sorted; ports
// are deduplicated with user ports first.
func Merge(user config.Setup, imported MappingResult) (config.Setup, []string) {
	var warnings []string

	env := make(map[string]string, len(imported.EnvVars)+len(user.EnvVars))
	for k, v := range imported.EnvVars {
		env[k] = v
	}
	for k, v := range user.EnvVars {
		if imp, ok := imported.EnvVars[k]; ok && imp != v {
			warnings = append(warnings, fmt.Sprintf(
				"environment variable %q conflict: keeping user value %q over imported value %q",
				k, v, imp))
		}
		env[k] = v
	}
	user.EnvVars = env

	langs := map[string]bool{}
	for _, l := range user.Languages {
		langs[l] = true
	}
	for _, l := range imported.Languages {
		langs[l] = true
	}
	merged := make([]string, 0, len(langs))
	for l := range langs {
		merged = append(merged, l)
	}
	sort.Strings(merged)
	user.Languages = merged

	seen := map[int]bool{}
	var ports []int
	for _, p := range append(append([]int{}, user.Ports...), imported.Ports...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		ports = append(ports, p)
	}
	user.Ports = ports

	return user, warnings
}
