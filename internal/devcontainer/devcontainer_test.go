package devcontainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekeeper/forgekeeper/internal/config"
)

func TestParseFullConfig(t *testing.T) {
	data := `{
		"name": "demo",
		"image": "mcr.microsoft.com/devcontainers/python:3.11",
		"features": {
			"ghcr.io/devcontainers/features/go:1": {},
			"ghcr.io/devcontainers/features/docker-in-docker:2": {}
		},
		"forwardPorts": [8080, "9090", "127.0.0.1:3000", "not-a-port"],
		"remoteEnv": {"FOO": "bar", "NUM": 7},
		"customizations": {"vscode": {"extensions": ["golang.go"]}}
	}`

	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "mcr.microsoft.com/devcontainers/python:3.11", cfg.Image)
	assert.Len(t, cfg.Features, 2)
	assert.Equal(t, []int{8080, 9090, 3000}, cfg.ForwardPorts, "host:container keeps the container port, junk is dropped")
	assert.Equal(t, map[string]string{"FOO": "bar"}, cfg.RemoteEnv, "non-string env values are dropped")
	assert.Contains(t, cfg.Customizations, "vscode")
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"image": `))
	assert.Error(t, err)
}

func TestParseRootMustBeObject(t *testing.T) {
	_, err := Parse([]byte(`["not", "an", "object"]`))
	assert.Error(t, err)
}

func TestParseWrongPropertyTypes(t *testing.T) {
	_, err := Parse([]byte(`{"features": [], "image": 42}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'features' must be an object")
	assert.Contains(t, err.Error(), "'image' must be a string")
}

func TestMapFeaturesKnownPrefixes(t *testing.T) {
	cfg := &Config{
		Features: map[string]any{
			"ghcr.io/devcontainers/features/python:1":         map[string]any{},
			"ghcr.io/devcontainers-contrib/features/node:2":   map[string]any{},
			"ghcr.io/microsoft/devcontainers/features/dotnet": map[string]any{},
			"ghcr.io/devcontainers/features/docker-in-docker": map[string]any{},
		},
		RemoteEnv:    map[string]string{"DEBUG": "1"},
		ForwardPorts: []int{8080},
	}

	result := MapFeatures(cfg)

	assert.Equal(t, []string{"dotnet", "node", "python"}, result.Languages)
	assert.Equal(t, []string{"ghcr.io/devcontainers/features/docker-in-docker"}, result.UnrecognizedFeatures)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "docker-in-docker")
	assert.Equal(t, map[string]string{"DEBUG": "1"}, result.EnvVars)
	assert.Equal(t, []int{8080}, result.Ports)
}

func TestMapFeaturesImageSupplementsLanguages(t *testing.T) {
	cfg := &Config{Image: "golang:1.22-bookworm"}
	result := MapFeatures(cfg)
	assert.Equal(t, []string{"go"}, result.Languages)
}

func TestDetectImageLanguages(t *testing.T) {
	cases := []struct {
		image string
		want  []string
	}{
		{"python:3.11", []string{"python"}},
		{"node:20-bullseye", []string{"node"}},
		{"golang:1.22", []string{"go"}},
		{"mcr.microsoft.com/devcontainers/python:3.11", []string{"python"}},
		{"registry.example.com/team/rust_nightly@sha256:abcd", []string{"rust"}},
		{"python-node-dev:latest", []string{"python", "node"}},
		{"ubuntu:24.04", nil},
		{"", nil},
		{"  ", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectImageLanguages(tc.image), "image %q", tc.image)
	}
}

func TestMergeUserWinsOnEnvConflict(t *testing.T) {
	user := config.Setup{
		Languages: []string{"go"},
		EnvVars:   map[string]string{"FOO": "user", "ONLY_USER": "1"},
		Ports:     []int{7000},
	}
	imported := MappingResult{
		Languages: []string{"python", "go"},
		EnvVars:   map[string]string{"FOO": "imported", "ONLY_IMPORTED": "2"},
		Ports:     []int{8080, 7000},
	}

	merged, warnings := Merge(user, imported)

	assert.Equal(t, "user", merged.EnvVars["FOO"])
	assert.Equal(t, "1", merged.EnvVars["ONLY_USER"])
	assert.Equal(t, "2", merged.EnvVars["ONLY_IMPORTED"])
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"FOO"`)

	assert.Equal(t, []string{"go", "python"}, merged.Languages)
	assert.Equal(t, []int{7000, 8080}, merged.Ports, "user ports first, duplicates dropped")
}

func TestMergeNoConflictNoWarnings(t *testing.T) {
	merged, warnings := Merge(config.Setup{Handle: "dev"}, MappingResult{
		Languages: []string{"rust"},
		EnvVars:   map[string]string{"A": "1"},
	})
	assert.Empty(t, warnings)
	assert.Equal(t, "dev", merged.Handle, "non-merged fields pass through")
	assert.Equal(t, []string{"rust"}, merged.Languages)
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()

	assert.True(t, ValidatePath("devcontainer.json", base))
	assert.True(t, ValidatePath("nested/devcontainer.json", base))
	assert.False(t, ValidatePath("../escape.json", base))
	assert.False(t, ValidatePath("nested/../../escape.json", base))
	assert.False(t, ValidatePath("/etc/passwd", base))
}

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"GITHUB_TOKEN", "api_key", "DbPassword", "AUTH_HEADER", "private_pem", "MY_SECRET"} {
		assert.True(t, IsSensitive(key), "%s should be sensitive", key)
	}
	for _, key := range []string{"PATH", "HOME", "FORGEKEEPER_HANDLE", "DEBUG"} {
		assert.False(t, IsSensitive(key), "%s should not be sensitive", key)
	}
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "***", MaskValue("abcd"))
	assert.Equal(t, "***", MaskValue(""))
	assert.Equal(t, "gh***yz", MaskValue("ghp_secretxyz"))
	assert.Equal(t, "ab***ef", MaskValue("abcdef"))
}

func TestValidatePorts(t *testing.T) {
	valid, invalid := ValidatePorts([]int{80, 0, 65535, 65536, -1, 8080})
	assert.Equal(t, []int{80, 65535, 8080}, valid)
	assert.Equal(t, []int{0, 65536, -1}, invalid)
}
