package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/devcontainer"
)

var (
	importInstall bool

	importCmd = &cobra.Command{
		Use:   "import <devcontainer.json>",
		Short: "Import a devcontainer.json configuration",
		Long: `Parse a devcontainer.json file and map it onto the module catalog:
features and the base image select language modules, remoteEnv becomes
container environment variables, and forwardPorts are validated.

Sensitive environment values (tokens, keys, passwords) are masked in the
output. With --install, the detected language modules are installed
immediately.`,
		Example: `  forgekeeper import .devcontainer/devcontainer.json
  forgekeeper import devcontainer.json --install`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
)

func init() {
	importCmd.Flags().BoolVar(&importInstall, "install", false, "install the detected language modules")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	ok, err := devcontainer.ValidateFileSize(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s exceeds the %d byte limit", path, devcontainer.MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := devcontainer.Parse(data)
	if err != nil {
		return fmt.Errorf("invalid devcontainer.json: %w", err)
	}

	// A dockerfile reference must stay inside the devcontainer's own
	// directory; anything else is a traversal attempt.
	if cfg.Dockerfile != "" {
		baseDir := filepath.Dir(path)
		if !devcontainer.ValidatePath(cfg.Dockerfile, baseDir) {
			return fmt.Errorf("dockerfile reference %q escapes %s", cfg.Dockerfile, baseDir)
		}
	}

	mapping := devcontainer.MapFeatures(cfg)
	validPorts, invalidPorts := devcontainer.ValidatePorts(mapping.Ports)
	for _, p := range invalidPorts {
		mapping.Warnings = append(mapping.Warnings,
			fmt.Sprintf("forwarded port %d is outside 1-65535, dropped", p))
	}

	merged, mergeWarnings := devcontainer.Merge(config.Setup{}, devcontainer.MappingResult{
		Languages: mapping.Languages,
		EnvVars:   mapping.EnvVars,
		Ports:     validPorts,
	})
	warnings := append(mapping.Warnings, mergeWarnings...)

	if len(merged.Languages) > 0 {
		fmt.Println("Languages:", strings.Join(merged.Languages, ", "))
	} else {
		fmt.Println("Languages: none detected")
	}
	if len(merged.EnvVars) > 0 {
		fmt.Println("Environment:")
		for _, line := range maskedEnvLines(merged.EnvVars) {
			fmt.Println("  " + line)
		}
	}
	if len(merged.Ports) > 0 {
		fmt.Println("Ports:", strings.Trim(fmt.Sprint(merged.Ports), "[]"))
	}
	for _, w := range warnings {
		fmt.Println("Warning:", w)
	}

	if !importInstall || len(merged.Languages) == 0 {
		return nil
	}

	fmt.Println()
	return runInstall(cmd, merged.Languages)
}

// maskedEnvLines renders env vars sorted, hiding credential values.
func maskedEnvLines(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := env[k]
		if devcontainer.IsSensitive(k) {
			v = devcontainer.MaskValue(v)
		}
		lines = append(lines, k+"="+v)
	}
	return lines
}
