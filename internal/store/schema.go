package store

// One row per module that has ever been the target of a lifecycle action.
// A module absent from module_state is equivalent to installed = false, so
// adding new modules to the catalog never invalidates existing records.
const schema = `
CREATE TABLE IF NOT EXISTS module_state (
    module TEXT PRIMARY KEY,
    installed BOOLEAN NOT NULL,
    last_changed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TIMESTAMP NOT NULL,
    action TEXT NOT NULL,
    target TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target);
`
