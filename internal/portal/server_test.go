package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekeeper/forgekeeper/internal/build"
	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/registry"
	"github.com/forgekeeper/forgekeeper/internal/runner"
	"github.com/forgekeeper/forgekeeper/internal/store"
)

// scriptedExecutor returns canned results for lifecycle actions.
type scriptedExecutor struct {
	result runner.Result
	err    error
}

func (f *scriptedExecutor) Execute(runner.Spec) (runner.Result, []string, error) {
	return f.result, nil, f.err
}

// newTestServer wires a portal over an in-memory store and a temp build
// root. A fake docker binary is placed on PATH so builds run for real
// without the daemon's dependencies. The store and config come back for
// assertions about side effects.
func newTestServer(t *testing.T, exec lifecycle.Executor) (*httptest.Server, *store.Store, *config.Config) {
	t.Helper()

	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.CreateSchema())

	root := t.TempDir()
	base := "FROM ubuntu:24.04\nEXPOSE 8080\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "Dockerfile"), []byte(base), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dockerfiles"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "dockerfiles", "lang-go.dockerfile"),
		[]byte("RUN apt-get install -y golang\n"), 0644))

	binDir := t.TempDir()
	script := "#!/bin/sh\necho compose build output\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "docker"), []byte(script), 0755))
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	cfg := &config.Config{
		StateDir:   t.TempDir(),
		BuildRoot:  root,
		ProfileDir: filepath.Join(t.TempDir(), "profile.d"),
		StopGrace:  time.Second,
	}

	logger := log.New(io.Discard)
	mgr := lifecycle.New(registry.Default(), st, exec, logger, 0)
	session := build.NewSession(cfg, st, logger)

	ts := httptest.NewServer(New(mgr, session, cfg, logger).Router())
	t.Cleanup(ts.Close)
	return ts, st, cfg
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRuntimeListAndInstall(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp := postJSON(t, ts.URL+"/forgekeeper/runtime", map[string]string{
		"action": "install", "lang": "go",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "applied", body["outcome"])

	resp, err := http.Get(ts.URL + "/forgekeeper/runtime/list")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody(t, resp)

	modules := list["modules"].([]any)
	assert.Len(t, modules, len(registry.Default().IDs()))
	var goInstalled bool
	for _, m := range modules {
		row := m.(map[string]any)
		if row["id"] == "go" {
			goInstalled = row["installed"].(bool)
		}
	}
	assert.True(t, goInstalled)
}

func TestRuntimeUnknownModule(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp := postJSON(t, ts.URL+"/forgekeeper/runtime", map[string]string{
		"action": "install", "lang": "fortran",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRuntimeBadAction(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp := postJSON(t, ts.URL+"/forgekeeper/runtime", map[string]string{
		"action": "upgrade", "lang": "go",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRuntimeActionFailureCarriesLogTail(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{
		result: runner.Result{
			ExitCode: 1,
			Err:      &runner.ExitError{Code: 1, LogTail: []string{"E: unable to fetch"}},
		},
	})

	resp := postJSON(t, ts.URL+"/forgekeeper/runtime", map[string]string{
		"action": "install", "lang": "go",
	})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeBody(t, resp)

	tail := body["log_tail"].([]any)
	assert.Contains(t, tail[0], "unable to fetch")
}

func TestBuildLifecycleOverHTTP(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp := postJSON(t, ts.URL+"/forgekeeper/setup", config.Setup{
		Handle: "dev", Languages: []string{"go"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Post(ts.URL+"/setup/build", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := decodeBody(t, resp)
	assert.NotEmpty(t, started["attempt"])

	// Poll the log until the build reaches a terminal state.
	deadline := time.Now().Add(10 * time.Second)
	var last map[string]any
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/setup/build-log?offset=0")
		require.NoError(t, err)
		last = decodeBody(t, resp)
		if last["done"].(bool) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotNil(t, last)
	require.True(t, last["done"].(bool), "build never finished")
	assert.Equal(t, "done", last["state"])

	var lines []string
	for _, l := range last["lines"].([]any) {
		lines = append(lines, l.(string))
	}
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "compose build output")
	assert.Contains(t, joined, "exit code 0")

	resp, err = http.Post(ts.URL+"/setup/cleanup", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleaned := decodeBody(t, resp)
	assert.NotEmpty(t, cleaned["output"])
}

func TestStopWithoutBuildConflicts(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp, err := http.Post(ts.URL+"/setup/stop", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCleanupWithoutBuildConflicts(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp, err := http.Post(ts.URL+"/setup/cleanup", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestBuildLogBeforeAnyBuild(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp, err := http.Get(ts.URL + "/setup/build-log")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "idle", body["state"])
	assert.True(t, body["done"].(bool))
}

func TestSetupSubmitWritesEnvAndInstalls(t *testing.T) {
	ts, st, cfg := newTestServer(t, &scriptedExecutor{})

	resp := postJSON(t, ts.URL+"/forgekeeper/setup", config.Setup{
		Handle:    "dev",
		Languages: []string{"go", "rust"},
		EnvVars:   map[string]string{"FOO": "bar"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "saved", body["status"])

	env, err := os.ReadFile(cfg.EnvFilePath())
	require.NoError(t, err, "submit must write the env file")
	assert.Contains(t, string(env), "FORGEKEEPER_HANDLE=dev")
	assert.Contains(t, string(env), "FOO=bar")

	_, err = os.Stat(filepath.Join(cfg.ProfileDir, "forgekeeper.sh"))
	assert.NoError(t, err, "submit must write the profile snippet")

	// The selected modules are installed in the background.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		goDone, err := st.IsInstalled("go")
		require.NoError(t, err)
		rustDone, err := st.IsInstalled("rust")
		require.NoError(t, err)
		if goDone && rustDone {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("setup submit never installed the selected modules")
}

func TestControlResetClearsModuleState(t *testing.T) {
	ts, st, _ := newTestServer(t, &scriptedExecutor{})

	resp := postJSON(t, ts.URL+"/forgekeeper/runtime", map[string]string{
		"action": "install", "lang": "go",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/forgekeeper/control", map[string]string{"action": "reset"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "reset", body["status"])

	installed, err := st.IsInstalled("go")
	require.NoError(t, err)
	assert.False(t, installed, "reset must clear module state")
}

func TestControlUnknownAction(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp := postJSON(t, ts.URL+"/forgekeeper/control", map[string]string{"action": "restart"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestImportMergesAndMasks(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	// Seed a saved setup so the import has something to merge under.
	resp := postJSON(t, ts.URL+"/forgekeeper/setup", config.Setup{
		Languages: []string{"rust"},
		EnvVars:   map[string]string{"FOO": "user"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	payload := `{
		"image": "python:3.11",
		"features": {"ghcr.io/devcontainers/features/go:1": {}},
		"remoteEnv": {"FOO": "imported", "GITHUB_TOKEN": "ghp_abcdef123456"},
		"forwardPorts": [8080, 99999]
	}`
	resp, err := http.Post(ts.URL+"/setup/import", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	var langs []string
	for _, l := range body["languages"].([]any) {
		langs = append(langs, l.(string))
	}
	assert.Equal(t, []string{"go", "python", "rust"}, langs)

	env := body["env_vars"].(map[string]any)
	assert.Equal(t, "user", env["FOO"], "user value wins the conflict")
	assert.Equal(t, "gh***56", env["GITHUB_TOKEN"], "credentials are masked in the response")

	warnings := body["warnings"].([]any)
	joined := fmt.Sprint(warnings)
	assert.Contains(t, joined, "FOO")
	assert.Contains(t, joined, "99999")
}

func TestImportRejectsInvalidJSON(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	resp, err := http.Post(ts.URL+"/setup/import", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestImportRejectsOversizedBody(t *testing.T) {
	ts, _, _ := newTestServer(t, &scriptedExecutor{})

	huge := `{"image": "` + strings.Repeat("x", 1024*1024+10) + `"}`
	resp, err := http.Post(ts.URL+"/setup/import", "application/json", strings.NewReader(huge))
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}
