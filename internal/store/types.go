package store

import "time"

// ModuleState is one durable record: whether a module is installed and
// when that last changed.
type ModuleState struct {
	Module        string
	Installed     bool
	LastChangedAt time.Time
}

// Audit actions. Kept as plain strings in the table; these constants are
// the complete set the core writes.
const (
	ActionInstall    = "install"
	ActionRemove     = "remove"
	ActionBuildStart = "build-start"
	ActionBuildStop  = "build-stop"
	ActionMarkerSync = "marker-sync"
	ActionReset      = "reset"
)

// AuditEntry is one append-only diagnostic record. Entries are written on
// state changes and failures, never read back by lifecycle logic.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	Action    string
	Target    string
	Outcome   string
	Detail    string
}
