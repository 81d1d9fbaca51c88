// Package lifecycle validates and executes module install/remove requests,
// keeping the state store and audit log in step with the actions it runs.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/forgekeeper/forgekeeper/internal/registry"
	"github.com/forgekeeper/forgekeeper/internal/runner"
	"github.com/forgekeeper/forgekeeper/internal/store"
)

// ErrInProgress is returned when an install or remove is requested for a
// module that already has one in flight. Requests are rejected, not queued.
var ErrInProgress = errors.New("operation already in progress")

// DefaultActionTimeout bounds actions whose catalog entry sets no timeout
// of its own, when no timeout was configured either.
const DefaultActionTimeout = 10 * time.Minute

// Outcome tells the caller whether an operation changed anything.
type Outcome int

const (
	// OutcomeApplied means the action ran and state was updated.
	OutcomeApplied Outcome = iota
	// OutcomeNoop means the request was already satisfied. Repeated
	// installs are a success path, not an error, and run no action.
	OutcomeNoop
)

func (o Outcome) String() string {
	if o == OutcomeNoop {
		return "no-op"
	}
	return "applied"
}

// ModuleStatus is one row of List output.
type ModuleStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
}

// Executor runs one action to completion. Production code wraps the
// process runner; tests substitute fakes.
type Executor interface {
	Execute(spec runner.Spec) (runner.Result, []string, error)
}

type execRunner struct{}

func (execRunner) Execute(spec runner.Spec) (runner.Result, []string, error) {
	return runner.Exec(spec)
}

// DefaultExecutor returns the process-runner-backed executor.
func DefaultExecutor() Executor {
	return execRunner{}
}

// Manager coordinates lifecycle operations for all modules.
type Manager struct {
	reg     *registry.Registry
	st      *store.Store
	exec    Executor
	logger  *log.Logger
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a manager. A nil executor selects the process runner; a nil
// logger discards nothing and uses the package default. timeout bounds
// actions that carry no timeout in the catalog; zero selects
// DefaultActionTimeout.
func New(reg *registry.Registry, st *store.Store, exec Executor, logger *log.Logger, timeout time.Duration) *Manager {
	if exec == nil {
		exec = DefaultExecutor()
	}
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	return &Manager{
		reg:      reg,
		st:       st,
		exec:     exec,
		logger:   logger.WithPrefix("lifecycle"),
		timeout:  timeout,
		inflight: make(map[string]struct{}),
	}
}

// begin claims the per-module exclusion slot. Operations on different
// modules proceed concurrently; a second operation on the same module is
// rejected.
func (m *Manager) begin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Manager) end(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

// Install installs a module. Already-installed modules return OutcomeNoop
// without running the action.
func (m *Manager) Install(id string) (Outcome, error) {
	mod, err := m.reg.Describe(id)
	if err != nil {
		return OutcomeNoop, err
	}
	if !m.begin(id) {
		return OutcomeNoop, fmt.Errorf("%w: %s", ErrInProgress, id)
	}
	defer m.end(id)

	installed, err := m.st.IsInstalled(id)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("install %s: %w", id, err)
	}
	if installed {
		m.logger.Debug("already installed", "module", id)
		return OutcomeNoop, nil
	}

	res, err := m.runAction(mod.Install)
	if err != nil {
		m.audit(store.ActionInstall, id, "failed", err.Error())
		return OutcomeNoop, fmt.Errorf("install %s: %w", id, err)
	}
	if res.Err != nil {
		m.audit(store.ActionInstall, id, "failed", res.Err.Error())
		return OutcomeNoop, fmt.Errorf("install %s: %w", id, res.Err)
	}

	if err := m.st.MarkInstalled(id); err != nil {
		m.audit(store.ActionInstall, id, "failed", "state write: "+err.Error())
		return OutcomeNoop, fmt.Errorf("install %s succeeded but state write failed: %w", id, err)
	}
	m.audit(store.ActionInstall, id, "success", "")
	m.logger.Info("module installed", "module", id)
	return OutcomeApplied, nil
}

// Remove removes a module. Not-installed modules return OutcomeNoop
// without running the action. A best-effort remove action that exits
// non-zero still marks the module removed; the exit code is audited.
func (m *Manager) Remove(id string) (Outcome, error) {
	mod, err := m.reg.Describe(id)
	if err != nil {
		return OutcomeNoop, err
	}
	if !m.begin(id) {
		return OutcomeNoop, fmt.Errorf("%w: %s", ErrInProgress, id)
	}
	defer m.end(id)

	installed, err := m.st.IsInstalled(id)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("remove %s: %w", id, err)
	}
	if !installed {
		m.logger.Debug("already removed", "module", id)
		return OutcomeNoop, nil
	}

	outcome := "success"
	res, err := m.runAction(mod.Remove)
	if err != nil {
		m.audit(store.ActionRemove, id, "failed", err.Error())
		return OutcomeNoop, fmt.Errorf("remove %s: %w", id, err)
	}
	if res.Err != nil {
		var exitErr *runner.ExitError
		if !mod.Remove.BestEffort || !errors.As(res.Err, &exitErr) {
			m.audit(store.ActionRemove, id, "failed", res.Err.Error())
			return OutcomeNoop, fmt.Errorf("remove %s: %w", id, res.Err)
		}
		// Best-effort: sub-steps may fail as long as the primary
		// artifact is gone. Recorded, not swallowed.
		outcome = fmt.Sprintf("success (best-effort, exit %d)", exitErr.Code)
		m.logger.Warn("remove action exited non-zero, treating as removed",
			"module", id, "exit", exitErr.Code)
	}

	if err := m.st.MarkRemoved(id); err != nil {
		m.audit(store.ActionRemove, id, "failed", "state write: "+err.Error())
		return OutcomeNoop, fmt.Errorf("remove %s succeeded but state write failed: %w", id, err)
	}
	m.audit(store.ActionRemove, id, outcome, "")
	m.logger.Info("module removed", "module", id)
	return OutcomeApplied, nil
}

// List joins the registry's catalog with stored installation status, in
// registration order.
func (m *Manager) List() ([]ModuleStatus, error) {
	status, err := m.st.ListStatus(m.reg.IDs())
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	mods := m.reg.List()
	out := make([]ModuleStatus, len(mods))
	for i, mod := range mods {
		out[i] = ModuleStatus{ID: mod.ID, Name: mod.Name, Installed: status[mod.ID]}
	}
	return out, nil
}

// Reset clears every module's installed state so the container can be
// reprovisioned from scratch. Rejected while any operation is in flight;
// the audit log is kept.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.inflight); n > 0 {
		return fmt.Errorf("%w: %d operations running", ErrInProgress, n)
	}
	if err := m.st.Reset(); err != nil {
		return fmt.Errorf("reset module state: %w", err)
	}
	m.audit(store.ActionReset, "all", "success", "")
	m.logger.Info("module state reset")
	return nil
}

func (m *Manager) runAction(a registry.Action) (runner.Result, error) {
	argv, err := a.Argv()
	if err != nil {
		return runner.Result{}, err
	}
	timeout := a.Timeout
	if timeout == 0 {
		timeout = m.timeout
	}
	res, _, err := m.exec.Execute(runner.Spec{
		Command: argv[0],
		Args:    argv[1:],
		Timeout: timeout,
	})
	if err != nil {
		return runner.Result{}, err
	}
	return res, nil
}

// audit appends a diagnostic entry. Audit failures never fail the
// operation that produced them; they are logged and dropped.
func (m *Manager) audit(action, target, outcome, detail string) {
	err := m.st.AppendAudit(store.AuditEntry{
		Action:  action,
		Target:  target,
		Outcome: outcome,
		Detail:  detail,
	})
	if err != nil {
		m.logger.Warn("failed to append audit entry", "action", action, "target", target, "err", err)
	}
}
