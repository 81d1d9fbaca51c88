// Package shell writes the login-shell glue that exposes the container
// environment file to interactive sessions.
package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// marker identifies a snippet we wrote, so repeat calls do not duplicate it.
const marker = "# forgekeeper environment"

// DefaultProfileDir is where login shells pick up extra configuration.
const DefaultProfileDir = "/etc/profile.d"

// EnsureEnvSnippet writes a profile.d snippet that sources envPath with
// allexport, so every variable in the env file lands in login shells.
// Returns (added bool, snippetPath string, err error). added=false means
// the snippet was already in place.
func EnsureEnvSnippet(profileDir, envPath string) (added bool, snippetPath string, err error) {
	if profileDir == "" {
		profileDir = DefaultProfileDir
	}
	snippetPath = filepath.Join(profileDir, "forgekeeper.sh")

	existing, readErr := os.ReadFile(snippetPath)
	if readErr == nil && strings.Contains(string(existing), marker) {
		return false, snippetPath, nil
	}

	if err := os.MkdirAll(profileDir, 0755); err != nil {
		return false, "", fmt.Errorf("cannot create profile directory %s: %w", profileDir, err)
	}

	content := fmt.Sprintf("%s\nif [ -f %q ]; then\n  set -a\n  . %q\n  set +a\nfi\n",
		marker, envPath, envPath)
	if err := os.WriteFile(snippetPath, []byte(content), 0644); err != nil {
		return false, "", fmt.Errorf("cannot write profile snippet %s: %w", snippetPath, err)
	}

	return true, snippetPath, nil
}
