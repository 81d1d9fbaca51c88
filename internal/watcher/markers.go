// Package watcher keeps the state store in sync with legacy marker
// files. Installers from earlier releases touch
// <marker-dir>/<module>.installed instead of talking to the daemon; the
// watcher folds those markers into the store so both worlds agree. The
// store remains the only read authority.
package watcher

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/forgekeeper/forgekeeper/internal/registry"
	"github.com/forgekeeper/forgekeeper/internal/store"
)

const markerSuffix = ".installed"

// MarkerWatcher mirrors marker file creation and removal into the store.
type MarkerWatcher struct {
	dir    string
	st     *store.Store
	reg    *registry.Registry
	logger *log.Logger

	fw     *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a watcher over dir, creating it if needed. Only markers for
// modules known to the registry are synced; stray files are ignored.
func New(dir string, st *store.Store, reg *registry.Registry, logger *log.Logger) (*MarkerWatcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create marker dir %s: %w", dir, err)
	}
	return &MarkerWatcher{
		dir:    dir,
		st:     st,
		reg:    reg,
		logger: logger.WithPrefix("watcher"),
		stopCh: make(chan struct{}),
	}, nil
}

// Start scans existing markers, then follows filesystem events until Stop.
func (w *MarkerWatcher) Start() error {
	if err := w.scan(); err != nil {
		w.logger.Warn("initial marker scan failed", "err", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fw = fw

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop halts event processing.
func (w *MarkerWatcher) Stop() error {
	close(w.stopCh)
	err := w.fw.Close()
	w.wg.Wait()
	return err
}

func (w *MarkerWatcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("marker watch error", "err", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *MarkerWatcher) handleEvent(event fsnotify.Event) {
	module, ok := w.moduleFor(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.sync(module, true)
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.sync(module, false)
	}
}

// moduleFor maps a marker path to a registry module ID.
func (w *MarkerWatcher) moduleFor(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, markerSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(name, markerSuffix)
	if !w.reg.Known(id) {
		w.logger.Debug("ignoring marker for unknown module", "module", id)
		return "", false
	}
	return id, true
}

// sync writes the marker's state into the store, skipping and not
// auditing events that change nothing.
func (w *MarkerWatcher) sync(module string, installed bool) {
	current, err := w.st.IsInstalled(module)
	if err != nil {
		w.logger.Warn("marker sync read failed", "module", module, "err", err)
		return
	}
	if current == installed {
		return
	}

	if installed {
		err = w.st.MarkInstalled(module)
	} else {
		err = w.st.MarkRemoved(module)
	}
	if err != nil {
		w.logger.Warn("marker sync write failed", "module", module, "err", err)
		return
	}

	outcome := "installed"
	if !installed {
		outcome = "removed"
	}
	w.logger.Info("marker synced", "module", module, "state", outcome)
	if err := w.st.AppendAudit(store.AuditEntry{
		Action:  store.ActionMarkerSync,
		Target:  module,
		Outcome: outcome,
		Detail:  "marker file " + outcome,
	}); err != nil {
		w.logger.Warn("failed to record audit entry", "module", module, "err", err)
	}
}

// scan folds markers that already exist into the store. Missing markers
// do not unmark anything: a module installed through the daemon has no
// marker file.
func (w *MarkerWatcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if module, ok := w.moduleFor(entry.Name()); ok {
			w.sync(module, true)
		}
	}
	return nil
}
