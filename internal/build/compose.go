package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgekeeper/forgekeeper/internal/runner"
)

// Well-known names inside the build root.
const (
	composeFile    = "docker-compose.yml"
	overrideFile   = "docker-compose.override.yml"
	dockerfileBase = "Dockerfile"
	dockerfileOut  = "Dockerfile.built"
	langModuleDir  = "dockerfiles"
)

// defaultExpose is used when the base Dockerfile has no EXPOSE line.
const defaultExpose = "EXPOSE 8080 7000 7681 11434 8085 4000"

// writeComposeOverride points compose at the assembled Dockerfile.
func writeComposeOverride(root string) error {
	override := map[string]any{
		"services": map[string]any{
			"forgekeeper": map[string]any{
				"build": map[string]any{
					"dockerfile": dockerfileOut,
				},
			},
		},
	}
	data, err := yaml.Marshal(override)
	if err != nil {
		return fmt.Errorf("marshal compose override: %w", err)
	}
	path := filepath.Join(root, overrideFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// assembleDockerfile appends the selected language module snippets to the
// base Dockerfile, keeping the EXPOSE line last. Missing snippets are
// skipped with a warning rather than failing the build.
func assembleDockerfile(root string, langs []string) ([]string, error) {
	basePath := filepath.Join(root, dockerfileBase)
	base, err := os.ReadFile(basePath)
	if err != nil {
		return nil, fmt.Errorf("read base dockerfile %s: %w", basePath, err)
	}

	expose := defaultExpose
	var kept []string
	for _, line := range strings.Split(string(base), "\n") {
		if strings.HasPrefix(line, "EXPOSE") {
			expose = line
			continue
		}
		kept = append(kept, line)
	}

	var warnings []string
	var out strings.Builder
	out.WriteString(strings.Join(kept, "\n"))
	out.WriteString("\n")

	for _, lang := range langs {
		snippet := filepath.Join(root, langModuleDir, "lang-"+lang+".dockerfile")
		data, err := os.ReadFile(snippet)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("module snippet not found for %s, skipping", lang))
			continue
		}
		fmt.Fprintf(&out, "\n# Language module: %s\n", lang)
		out.Write(data)
		if !strings.HasSuffix(string(data), "\n") {
			out.WriteString("\n")
		}
	}

	out.WriteString("\n" + expose + "\n")

	outPath := filepath.Join(root, dockerfileOut)
	if err := os.WriteFile(outPath, []byte(out.String()), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", outPath, err)
	}
	return warnings, nil
}

// composeSpec is the provisioning command for one attempt.
func composeSpec(root string, grace time.Duration) runner.Spec {
	return runner.Spec{
		Command: "docker",
		Args:    []string{"compose", "-f", filepath.Join(root, composeFile), "up", "--build", "-d"},
		// Pin the project name so Cleanup's label filter matches.
		Env:   []string{"COMPOSE_PROJECT_NAME=forgekeeper"},
		Dir:   root,
		Grace: grace,
	}
}

// cleanupSpecs are the best-effort prune commands run by Cleanup, with the
// same bounds the portal has always used.
func cleanupSpecs() []runner.Spec {
	return []runner.Spec{
		{
			Command: "docker",
			Args: []string{"system", "prune", "-f",
				"--filter", "label=com.docker.compose.project=forgekeeper"},
			Timeout: 120 * time.Second,
		},
		{
			Command: "docker",
			Args:    []string{"image", "prune", "-f"},
			Timeout: 60 * time.Second,
		},
	}
}
