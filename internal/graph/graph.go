// Package graph persists the bitemporal entity/state/audit model on
// SQLite. It owns the only process -> backend boundary: every exported
// mutation runs as a single transaction, labels and relationship types
// are whitelisted before interpolation, and values are always bound as
// parameters.
package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/thefounder-seb/btmg/internal/apperr"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	deleted_at TEXT,
	deleted_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_entities_label ON entities(label);

-- The CURRENT link is the is_head marker; the PREVIOUS chain is the dense
-- version sequence. Both live only here and are traversed by queries.
CREATE TABLE IF NOT EXISTS states (
	entity_id   TEXT NOT NULL REFERENCES entities(id),
	version     INTEGER NOT NULL,
	label       TEXT NOT NULL,
	props       TEXT NOT NULL DEFAULT '{}',
	valid_from  TEXT NOT NULL,
	valid_to    TEXT,
	recorded_at TEXT NOT NULL,
	actor       TEXT NOT NULL,
	is_head     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_id, version)
);

CREATE INDEX IF NOT EXISTS idx_states_head ON states(entity_id) WHERE is_head = 1;
CREATE INDEX IF NOT EXISTS idx_states_label_head ON states(label) WHERE is_head = 1;
CREATE INDEX IF NOT EXISTS idx_states_interval ON states(entity_id, valid_from);

CREATE TABLE IF NOT EXISTS audit_log (
	id           TEXT PRIMARY KEY,
	entity_id    TEXT NOT NULL,
	entity_label TEXT NOT NULL,
	action       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	ts           TEXT NOT NULL,
	changes      TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id, ts);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);

CREATE TABLE IF NOT EXISTS relationships (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	rel_type   TEXT NOT NULL,
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	props      TEXT NOT NULL DEFAULT '{}',
	valid_from TEXT NOT NULL,
	valid_to   TEXT,
	actor      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rel_active_from ON relationships(from_id, rel_type) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_rel_active_to ON relationships(to_id, rel_type) WHERE valid_to IS NULL;
`

// Store wraps a sql.DB with temporal graph operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database, applies the core schema and
// any schema-declared constraint statements.
func Open(dsn string, constraints []string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("graph: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graph: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graph: apply core schema: %w", err)
	}
	for _, stmt := range constraints {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("graph: apply constraint: %w", err)
		}
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

const txAttempts = 3

// withTx runs fn inside an immediate transaction, retrying a bounded
// number of times on transient lock contention. Rolls back on error or
// context cancellation; partial state is never observable.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	var last error
	for attempt := 0; attempt < txAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			last = err
			if !transient(err) {
				return &apperr.StorageError{Op: op, Err: err}
			}
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		err = fn(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
		} else {
			tx.Rollback() //nolint:errcheck // best-effort on failure path
		}
		if !transient(err) {
			return err
		}
		last = err
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return &apperr.StorageError{Op: op, Transient: true, Err: last}
}

// transient reports whether err is a lock-contention class failure.
func transient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// timeLayout is fixed-width so that lexicographic comparison of stored
// timestamps matches chronological order. All times are stored UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
