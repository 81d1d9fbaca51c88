package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/forgekeeper/forgekeeper/internal/build"
	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/devcontainer"
	"github.com/forgekeeper/forgekeeper/internal/lifecycle"
	"github.com/forgekeeper/forgekeeper/internal/registry"
	"github.com/forgekeeper/forgekeeper/internal/runner"
	"github.com/forgekeeper/forgekeeper/internal/shell"
)

// handleRuntimeList returns every cataloged module with its state.
func (s *Server) handleRuntimeList(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.mgr.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": statuses})
}

type runtimeRequest struct {
	Action string `json:"action"`
	Lang   string `json:"lang"`
}

// handleRuntimeAction installs or removes one language module.
func (s *Server) handleRuntimeAction(w http.ResponseWriter, r *http.Request) {
	var req runtimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	var outcome lifecycle.Outcome
	var err error
	switch req.Action {
	case "install":
		outcome, err = s.mgr.Install(req.Lang)
	case "remove":
		outcome, err = s.mgr.Remove(req.Lang)
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("unknown action %q: want install or remove", req.Action))
		return
	}
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"lang":    req.Lang,
		"action":  req.Action,
		"outcome": outcome.String(),
	})
}

// writeLifecycleError maps lifecycle failures onto HTTP statuses.
func (s *Server) writeLifecycleError(w http.ResponseWriter, err error) {
	var exitErr *runner.ExitError
	switch {
	case errors.Is(err, registry.ErrUnknownModule):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, lifecycle.ErrInProgress):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &exitErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   err.Error(),
			LogTail: exitErr.LogTail,
		})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// handleSaveSetup applies the wizard payload: the env file and profile
// snippet are written immediately, the selected language modules are
// installed in the background, and the payload is kept for the next build.
func (s *Server) handleSaveSetup(w http.ResponseWriter, r *http.Request) {
	var setup config.Setup
	if err := json.NewDecoder(r.Body).Decode(&setup); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid setup payload: %w", err))
		return
	}
	s.saveSetup(setup)

	if err := config.WriteEnvFile(s.envPath, setup); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Login shells miss the env until the snippet can be written, but a
	// read-only profile dir must not fail the wizard.
	if _, _, err := shell.EnsureEnvSnippet(s.profileDir, s.envPath); err != nil {
		s.logger.Warn("could not write shell profile snippet", "err", err)
	}

	// Installs run detached from the request; progress lands in the
	// store and audit log. Repeats and unknowns are the manager's to
	// reject.
	for _, lang := range setup.Languages {
		go func(id string) {
			if _, err := s.mgr.Install(id); err != nil {
				s.logger.Error("setup install failed", "module", id, "err", err)
			}
		}(lang)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "saved",
		"installing": setup.Languages,
	})
}

type controlRequest struct {
	Action string `json:"action"`
}

// handleControl serves container-level control actions. reset clears the
// stored module state so the container can be reprovisioned from scratch.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	switch req.Action {
	case "reset":
		if err := s.mgr.Reset(); err != nil {
			s.writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("unknown control action %q: want reset", req.Action))
	}
}

// handleBuildStart launches a build from the request body, or from the
// saved setup when the body is empty.
func (s *Server) handleBuildStart(w http.ResponseWriter, r *http.Request) {
	setup := s.savedSetup()
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&setup); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid setup payload: %w", err))
			return
		}
		s.saveSetup(setup)
	}

	attempt, err := s.session.Start(setup)
	if err != nil {
		if errors.Is(err, build.ErrAlreadyBuilding) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"attempt": attempt})
}

// handleBuildLog streams log lines from an offset, for polling clients.
func (s *Server) handleBuildLog(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid offset %q", raw))
			return
		}
		offset = n
	}

	lines, next, done := s.session.TailLog(offset)
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":       lines,
		"next_offset": next,
		"done":        done,
		"state":       s.session.Status().State,
	})
}

// handleBuildStop cancels the in-flight build.
func (s *Server) handleBuildStop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Stop(); err != nil {
		if errors.Is(err, build.ErrNoBuild) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.session.Status().State})
}

// handleCleanup prunes artifacts from the last build.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	output, err := s.session.Cleanup()
	if err != nil {
		if errors.Is(err, build.ErrBuildInProgress) || errors.Is(err, build.ErrNoBuild) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": output})
}

// handleImport parses an uploaded devcontainer.json, maps it onto the
// module catalog and merges it under the saved setup. Sensitive imported
// values are masked in the response; the merged setup keeps the real
// values and becomes the payload for the next build.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := readLimited(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	cfg, err := devcontainer.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	mapping := devcontainer.MapFeatures(cfg)
	validPorts, invalidPorts := devcontainer.ValidatePorts(mapping.Ports)
	mapping.Ports = validPorts
	for _, p := range invalidPorts {
		mapping.Warnings = append(mapping.Warnings,
			fmt.Sprintf("forwarded port %d is outside 1-65535, dropped", p))
	}

	merged, mergeWarnings := devcontainer.Merge(s.savedSetup(), mapping)
	s.saveSetup(merged)

	warnings := append(mapping.Warnings, mergeWarnings...)

	// Mask credentials before they go back over the wire.
	display := make(map[string]string, len(merged.EnvVars))
	for k, v := range merged.EnvVars {
		if devcontainer.IsSensitive(k) {
			display[k] = devcontainer.MaskValue(v)
		} else {
			display[k] = v
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"languages": merged.Languages,
		"env_vars":  display,
		"ports":     merged.Ports,
		"warnings":  warnings,
	})
}

func readLimited(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, devcontainer.MaxFileSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("devcontainer.json exceeds %d bytes", devcontainer.MaxFileSize)
		}
		return nil, err
	}
	return body, nil
}
