// Package build orchestrates container provisioning: it assembles the
// Dockerfile from the selected language modules, runs docker compose
// through the process runner, streams the build log, and handles stop
// and cleanup requests.
package build

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/runner"
	"github.com/forgekeeper/forgekeeper/internal/store"
)

// ErrAlreadyBuilding is returned by Start while a build is in flight.
var ErrAlreadyBuilding = errors.New("a build is already in progress")

// ErrBuildInProgress is returned by Cleanup while a build is in flight.
var ErrBuildInProgress = errors.New("cannot clean up while a build is in progress")

// ErrNoBuild is returned by Stop and Cleanup when nothing has been built.
var ErrNoBuild = errors.New("no build to act on")

// State names the session's position in its lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateBuilding State = "building"
	StateStopped  State = "stopped"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// terminal reports whether the state will not change without a new Start.
func (s State) terminal() bool {
	return s == StateStopped || s == StateDone || s == StateFailed
}

// Status is the externally visible session snapshot.
type Status struct {
	State   State  `json:"state"`
	Attempt string `json:"attempt,omitempty"`
}

// Session is the singleton build orchestrator. At most one provisioning
// attempt runs at a time; each attempt gets a fresh id and a fresh log.
type Session struct {
	root    string
	envPath string
	grace   time.Duration
	st      *store.Store
	logger  *log.Logger

	// seams for tests
	start func(runner.Spec) (*runner.Handle, error)
	exec  func(runner.Spec) (runner.Result, []string, error)

	mu      sync.Mutex
	state   State
	attempt string
	handle  *runner.Handle
	buf     *runner.LogBuffer
	result  *runner.Result
}

// NewSession creates an idle session rooted at cfg.BuildRoot. st may be
// nil, in which case build start/stop events are not audited.
func NewSession(cfg *config.Config, st *store.Store, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Session{
		root:    cfg.BuildRoot,
		envPath: cfg.EnvFilePath(),
		grace:   cfg.StopGrace,
		st:      st,
		logger:  logger.WithPrefix("build"),
		start:   runner.Start,
		exec:    runner.Exec,
		state:   StateIdle,
		buf:     runner.NewLogBuffer(),
	}
}

// Status returns the current state and attempt id.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Attempt: s.attempt}
}

// Result returns the runner result of the last finished attempt, or nil
// while building or before any build.
func (s *Session) Result() *runner.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Start launches a provisioning attempt: write the env file, the compose
// override and the assembled Dockerfile, then run docker compose up
// detached from the rest of the session. Returns ErrAlreadyBuilding if an
// attempt is in flight; a previous terminal state is replaced.
func (s *Session) Start(setup config.Setup) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateBuilding {
		return "", ErrAlreadyBuilding
	}

	if err := config.WriteEnvFile(s.envPath, setup); err != nil {
		return "", err
	}
	if err := writeComposeOverride(s.root); err != nil {
		return "", err
	}
	warnings, err := assembleDockerfile(s.root, setup.Languages)
	if err != nil {
		return "", err
	}

	attempt := uuid.NewString()
	handle, err := s.start(composeSpec(s.root, s.grace))
	if err != nil {
		s.state = StateFailed
		s.attempt = attempt
		s.buf = runner.NewLogBuffer()
		s.buf.Append(fmt.Sprintf("Failed to start build: %v", err))
		s.result = &runner.Result{ExitCode: -1, Err: err}
		s.audit(store.ActionBuildStart, "failed", err.Error())
		return "", err
	}

	s.state = StateBuilding
	s.attempt = attempt
	s.handle = handle
	s.buf = handle.Log()
	s.result = nil
	for _, w := range warnings {
		s.buf.Append("WARNING: " + w)
	}

	s.logger.Info("build started", "attempt", attempt, "languages", strings.Join(setup.Languages, ","))
	s.audit(store.ActionBuildStart, "started", "attempt "+attempt)

	go s.watch(handle, attempt)
	return attempt, nil
}

// watch waits for the attempt's process and records its terminal state.
func (s *Session) watch(h *runner.Handle, attempt string) {
	res := h.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt {
		return // superseded by a later attempt
	}

	s.result = &res
	s.buf.Append(fmt.Sprintf("Build finished with exit code %d", res.ExitCode))

	if s.state == StateStopped {
		// Stop already claimed the attempt; the exit is just the
		// process group going away.
		return
	}
	if res.Err == nil && res.ExitCode == 0 {
		s.state = StateDone
		s.logger.Info("build done", "attempt", attempt)
	} else {
		s.state = StateFailed
		s.logger.Error("build failed", "attempt", attempt, "exit", res.ExitCode, "err", res.Err)
	}
}

// TailLog returns the log lines at and after offset plus the next offset
// to poll from, and whether the attempt has reached a terminal state.
func (s *Session) TailLog(offset int) ([]string, int, bool) {
	s.mu.Lock()
	buf := s.buf
	done := s.state != StateBuilding
	s.mu.Unlock()

	lines, next := buf.Since(offset)
	return lines, next, done
}

// Stop cancels the in-flight attempt. If the process exits concurrently,
// the terminal state produced by the exit wins and Stop is a no-op. Stop
// on an already-terminal session is also a no-op; Stop before any build
// returns ErrNoBuild.
func (s *Session) Stop() error {
	s.mu.Lock()

	switch {
	case s.state == StateIdle:
		s.mu.Unlock()
		return ErrNoBuild
	case s.state.terminal():
		s.mu.Unlock()
		return nil
	}

	handle := s.handle
	select {
	case <-handle.Done():
		// Exited already; let watch record the real outcome.
		s.mu.Unlock()
		return nil
	default:
	}

	s.state = StateStopped
	s.buf.Append("Build stopped by user")
	s.logger.Info("build stopped", "attempt", s.attempt)
	s.audit(store.ActionBuildStop, "success", "attempt "+s.attempt)
	s.mu.Unlock()

	handle.Cancel()
	return nil
}

// Cleanup prunes build artifacts left behind by the last attempt. Valid
// only once the session is terminal; the prune commands are best-effort
// and their output is returned for display.
func (s *Session) Cleanup() ([]string, error) {
	s.mu.Lock()
	switch {
	case s.state == StateBuilding:
		s.mu.Unlock()
		return nil, ErrBuildInProgress
	case s.state == StateIdle:
		s.mu.Unlock()
		return nil, ErrNoBuild
	}
	attempt := s.attempt
	s.mu.Unlock()

	output := runPrune(s.exec, s.logger)

	s.mu.Lock()
	if s.attempt == attempt && s.state.terminal() {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.logger.Info("cleanup finished", "attempt", attempt)
	return output, nil
}

// runPrune executes the prune commands best-effort and collects output.
func runPrune(exec func(runner.Spec) (runner.Result, []string, error), logger *log.Logger) []string {
	var output []string
	for _, spec := range cleanupSpecs() {
		res, lines, err := exec(spec)
		if err != nil {
			logger.Warn("cleanup command could not start", "command", spec.Command, "err", err)
			continue
		}
		if res.Err != nil {
			logger.Warn("cleanup command failed", "command", spec.Command, "exit", res.ExitCode)
		}
		output = append(output, lines...)
	}
	if len(output) == 0 {
		output = []string{"Dangling build artifacts removed"}
	}
	return output
}

// Prune runs the artifact prune commands outside any session, for the
// standalone cleanup command.
func Prune(logger *log.Logger) []string {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return runPrune(runner.Exec, logger)
}

// audit records a build event; failures are logged and not fatal.
func (s *Session) audit(action, outcome, detail string) {
	if s.st == nil {
		return
	}
	entry := store.AuditEntry{Action: action, Target: "container", Outcome: outcome, Detail: detail}
	if err := s.st.AppendAudit(entry); err != nil {
		s.logger.Warn("failed to record audit entry", "action", action, "err", err)
	}
}
