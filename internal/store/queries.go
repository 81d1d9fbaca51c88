package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Module state operations

// IsInstalled reports whether a module is currently installed. A module
// with no record is not installed.
func (s *Store) IsInstalled(id string) (bool, error) {
	var installed bool
	err := s.db.QueryRow(
		`SELECT installed FROM module_state WHERE module = ?`, id,
	).Scan(&installed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapQueryErr(fmt.Sprintf("query state for %s", id), err)
	}
	return installed, nil
}

// MarkInstalled records a module as installed. Idempotent: marking an
// already-installed module changes nothing, including last_changed_at.
func (s *Store) MarkInstalled(id string) error {
	return s.setInstalled(id, true)
}

// MarkRemoved records a module as not installed. Idempotent like
// MarkInstalled.
func (s *Store) MarkRemoved(id string) error {
	return s.setInstalled(id, false)
}

func (s *Store) setInstalled(id string, installed bool) error {
	query := `
		INSERT INTO module_state (module, installed, last_changed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(module) DO UPDATE SET
			installed = excluded.installed,
			last_changed_at = excluded.last_changed_at
		WHERE module_state.installed != excluded.installed
	`
	_, err := s.db.Exec(query, id, installed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return wrapQueryErr(fmt.Sprintf("mark %s installed=%v", id, installed), err)
	}
	return nil
}

// getState returns the full record for a module, or nil if none exists.
func (s *Store) getState(id string) (*ModuleState, error) {
	var st ModuleState
	var changedAt string
	err := s.db.QueryRow(
		`SELECT module, installed, last_changed_at FROM module_state WHERE module = ?`, id,
	).Scan(&st.Module, &st.Installed, &changedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapQueryErr(fmt.Sprintf("get state for %s", id), err)
	}

	st.LastChangedAt, err = time.Parse(time.RFC3339, changedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_changed_at for %s: %w", id, err)
	}
	return &st, nil
}

// ListStatus returns installed status for every id in known, defaulting to
// false for modules that have never been recorded.
func (s *Store) ListStatus(known []string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT module, installed FROM module_state`)
	if err != nil {
		return nil, wrapQueryErr("list module state", err)
	}
	defer rows.Close()

	recorded := make(map[string]bool)
	for rows.Next() {
		var id string
		var installed bool
		if err := rows.Scan(&id, &installed); err != nil {
			return nil, fmt.Errorf("failed to scan module state row: %w", err)
		}
		recorded[id] = installed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating module state: %w", err)
	}

	status := make(map[string]bool, len(known))
	for _, id := range known {
		status[id] = recorded[id]
	}
	return status, nil
}

// Reset clears all module state. Used when the container is reset; the
// audit log is retained.
func (s *Store) Reset() error {
	_, err := s.db.Exec(`DELETE FROM module_state`)
	return wrapQueryErr("reset module state", err)
}

// Audit log operations

// AppendAudit appends one audit entry. The timestamp is set here if zero.
func (s *Store) AppendAudit(e AuditEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_log (timestamp, action, target, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339), e.Action, e.Target, e.Outcome, e.Detail,
	)
	if err != nil {
		return wrapQueryErr(fmt.Sprintf("append audit entry for %s", e.Target), err)
	}
	return nil
}

// ListAudit returns the most recent limit entries, newest first.
// limit <= 0 returns everything.
func (s *Store) ListAudit(limit int) ([]*AuditEntry, error) {
	query := `
		SELECT id, timestamp, action, target, outcome, detail
		FROM audit_log
		ORDER BY id DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, wrapQueryErr("list audit log", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Action, &e.Target, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return entries, nil
}

// CountAudit returns the number of audit entries for a target, or all
// entries when target is empty.
func (s *Store) CountAudit(target string) (int, error) {
	var count int
	var err error
	if target == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE target = ?`, target).Scan(&count)
	}
	if err != nil {
		return 0, wrapQueryErr("count audit log", err)
	}
	return count, nil
}
