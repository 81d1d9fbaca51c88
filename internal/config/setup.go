package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Setup is the wizard payload: identity and credential fields plus the
// selected language modules. It is passed opaquely into the build
// session's provisioning command via the env file.
type Setup struct {
	Handle       string            `json:"handle"`
	Email        string            `json:"email"`
	Workspace    string            `json:"workspace"`
	GitName      string            `json:"git_name"`
	GitEmail     string            `json:"git_email"`
	GithubToken  string            `json:"github_token"`
	OpenAIKey    string            `json:"openai_key"`
	AnthropicKey string            `json:"anthropic_key"`
	AWSRegion    string            `json:"aws_region"`
	OllamaModels []string          `json:"ollama_models"`
	Languages    []string          `json:"languages"`
	EnvVars      map[string]string `json:"env_vars,omitempty"`
	Ports        []int             `json:"ports,omitempty"`
}

// defaults applied when fields are blank, matching the wizard's behavior.
func (s Setup) withDefaults() Setup {
	if s.Handle == "" {
		s.Handle = "forgekeeper"
	}
	if s.Email == "" {
		s.Email = "dev@example.com"
	}
	if s.Workspace == "" {
		s.Workspace = "workspace"
	}
	if s.AWSRegion == "" {
		s.AWSRegion = "us-east-1"
	}
	if len(s.OllamaModels) == 0 {
		s.OllamaModels = []string{"llama3"}
	}
	return s
}

// EnvLines renders the environment file contents.
func (s Setup) EnvLines() []string {
	s = s.withDefaults()
	lines := []string{
		"FORGEKEEPER_HANDLE=" + s.Handle,
		"FORGEKEEPER_USER_EMAIL=" + s.Email,
		"FORGEKEEPER_WORKSPACE=" + s.Workspace,
		"GIT_USER_NAME=" + s.GitName,
		"GIT_USER_EMAIL=" + s.GitEmail,
		"GITHUB_TOKEN=" + s.GithubToken,
		"OPENAI_API_KEY=" + s.OpenAIKey,
		"ANTHROPIC_API_KEY=" + s.AnthropicKey,
		"AWS_DEFAULT_REGION=" + s.AWSRegion,
		"OLLAMA_MODELS=" + strings.Join(s.OllamaModels, ","),
	}

	// Extra variables from a devcontainer import, sorted for stable output.
	keys := make([]string, 0, len(s.EnvVars))
	for k := range s.EnvVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+"="+s.EnvVars[k])
	}
	return lines
}

// WriteEnvFile writes the setup's environment to path, creating parent
// directories as needed.
func WriteEnvFile(path string, s Setup) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create env dir: %w", err)
	}
	content := strings.Join(s.EnvLines(), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("write env file %s: %w", path, err)
	}
	return nil
}
