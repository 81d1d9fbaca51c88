// Package registry defines the fixed catalog of language runtime modules
// that can be installed into or removed from a ForgeKeeper container.
package registry

import (
	"errors"
	"fmt"
	"time"

	"mvdan.cc/sh/v3/shell"
)

// ErrUnknownModule is returned when a module id is not present in the catalog.
var ErrUnknownModule = errors.New("unknown module")

// Action describes an external command that installs or removes a module.
type Action struct {
	// Command is a shell-style command line, split into argv with
	// POSIX word-splitting rules before execution.
	Command string

	// BestEffort marks a remove action that may exit non-zero and still
	// be treated as removed. The module's runtime script tolerates
	// individual sub-step failures; the primary artifact is gone either way.
	BestEffort bool

	// Timeout bounds the action's execution. Zero means the caller's default.
	Timeout time.Duration
}

// Argv splits the action's command line into an argv slice.
func (a Action) Argv() ([]string, error) {
	fields, err := shell.Fields(a.Command, nil)
	if err != nil {
		return nil, fmt.Errorf("parse action command %q: %w", a.Command, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("action command %q is empty", a.Command)
	}
	return fields, nil
}

// Module is one installable language runtime. Modules are immutable after
// registration; the registry is the only place they are defined.
type Module struct {
	ID      string
	Name    string
	Install Action
	Remove  Action
}

// Registry is an ordered, read-only collection of modules.
type Registry struct {
	modules []Module
	index   map[string]int
}

// New builds a registry from the given modules, preserving order.
// Duplicate ids are rejected.
func New(modules []Module) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(modules))}
	for _, m := range modules {
		if m.ID == "" {
			return nil, errors.New("module with empty id")
		}
		if _, dup := r.index[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %q", m.ID)
		}
		r.index[m.ID] = len(r.modules)
		r.modules = append(r.modules, m)
	}
	return r, nil
}

// Describe returns the module for the given id.
func (r *Registry) Describe(id string) (Module, error) {
	i, ok := r.index[id]
	if !ok {
		return Module{}, fmt.Errorf("%w: %q", ErrUnknownModule, id)
	}
	return r.modules[i], nil
}

// Known reports whether id is in the catalog.
func (r *Registry) Known(id string) bool {
	_, ok := r.index[id]
	return ok
}

// List returns all modules in registration order. The returned slice is a
// copy; callers may not mutate the catalog.
func (r *Registry) List() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// IDs returns the module ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.modules))
	for i, m := range r.modules {
		ids[i] = m.ID
	}
	return ids
}
