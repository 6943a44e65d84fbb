package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thefounder-seb/btmg/internal/apperr"
	"github.com/thefounder-seb/btmg/internal/schema"
)

// CreateEntity creates the entity row, its first state (version 1, head)
// and the audit entry, all in one transaction.
func (s *Store) CreateEntity(ctx context.Context, id, label string, props map[string]any, actor string, now time.Time, auditID string) error {
	if !schema.ValidIdent(label) {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("graph: marshal props: %w", err)
	}
	ts := fmtTime(now)
	return s.withTx(ctx, "createEntity", func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO entities (id, label, created_at) VALUES (?, ?, ?)`,
			id, label, ts,
		); err != nil {
			return fmt.Errorf("graph: insert entity: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO states (entity_id, version, label, props, valid_from, recorded_at, actor, is_head)
			 VALUES (?, 1, ?, ?, ?, ?, ?, 1)`,
			id, label, string(propsJSON), ts, ts, actor,
		); err != nil {
			return fmt.Errorf("graph: insert state: %w", err)
		}
		return appendAudit(tx, auditID, id, label, ActionCreate, actor, ts, "")
	})
}

// UpdateEntity closes the head state, appends the successor with the next
// dense version, and records the audit entry.
func (s *Store) UpdateEntity(ctx context.Context, id string, props map[string]any, actor string, now time.Time, auditID, changes string) error {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("graph: marshal props: %w", err)
	}
	ts := fmtTime(now)
	return s.withTx(ctx, "updateEntity", func(tx *sql.Tx) error {
		var label string
		var version int
		err := tx.QueryRow(
			`SELECT label, version FROM states WHERE entity_id = ? AND is_head = 1`, id,
		).Scan(&label, &version)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: entity %s has no current state", apperr.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("graph: read head: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE states SET valid_to = ?, is_head = 0 WHERE entity_id = ? AND is_head = 1`,
			ts, id,
		); err != nil {
			return fmt.Errorf("graph: close head: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO states (entity_id, version, label, props, valid_from, recorded_at, actor, is_head)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			id, version+1, label, string(propsJSON), ts, ts, actor,
		); err != nil {
			return fmt.Errorf("graph: insert state: %w", err)
		}
		return appendAudit(tx, auditID, id, label, ActionUpdate, actor, ts, changes)
	})
}

// SoftDeleteEntity closes the head state and marks the entity deleted.
// Deleting an already-deleted entity is a no-op.
func (s *Store) SoftDeleteEntity(ctx context.Context, id, actor string, now time.Time, auditID string) error {
	ts := fmtTime(now)
	return s.withTx(ctx, "softDeleteEntity", func(tx *sql.Tx) error {
		var label string
		var deletedAt sql.NullString
		err := tx.QueryRow(`SELECT label, deleted_at FROM entities WHERE id = ?`, id).Scan(&label, &deletedAt)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: entity %s", apperr.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("graph: read entity: %w", err)
		}
		if deletedAt.Valid {
			return nil
		}
		if _, err := tx.Exec(
			`UPDATE states SET valid_to = ? WHERE entity_id = ? AND is_head = 1`, ts, id,
		); err != nil {
			return fmt.Errorf("graph: close head: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE entities SET deleted_at = ?, deleted_by = ? WHERE id = ?`, ts, actor, id,
		); err != nil {
			return fmt.Errorf("graph: mark deleted: %w", err)
		}
		return appendAudit(tx, auditID, id, label, ActionDelete, actor, ts, "")
	})
}

// CreateRelationship opens a typed edge between two existing entities.
func (s *Store) CreateRelationship(ctx context.Context, from, to, relType string, props map[string]any, actor string, now time.Time, auditID string) error {
	if !schema.ValidIdent(relType) {
		return fmt.Errorf("graph: invalid relationship type %q", relType)
	}
	if props == nil {
		props = map[string]any{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("graph: marshal props: %w", err)
	}
	ts := fmtTime(now)
	return s.withTx(ctx, "createRelationship", func(tx *sql.Tx) error {
		var fromLabel string
		if err := tx.QueryRow(`SELECT label FROM entities WHERE id = ?`, from).Scan(&fromLabel); err != nil {
			return fmt.Errorf("%w: entity %s", apperr.ErrNotFound, from)
		}
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(1) FROM entities WHERE id = ?`, to).Scan(&exists); err != nil || exists == 0 {
			return fmt.Errorf("%w: entity %s", apperr.ErrNotFound, to)
		}
		if _, err := tx.Exec(
			`INSERT INTO relationships (rel_type, from_id, to_id, props, valid_from, actor)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			relType, from, to, string(propsJSON), ts, actor,
		); err != nil {
			return fmt.Errorf("graph: insert relationship: %w", err)
		}
		return appendAudit(tx, auditID, from, fromLabel, ActionRelate, actor, ts,
			fmt.Sprintf(`{"type":%q,"to":%q}`, relType, to))
	})
}

// CloseRelationship ends the active edge of relType between from and to.
// Returns ErrNotFound when no such edge is active.
func (s *Store) CloseRelationship(ctx context.Context, from, to, relType, actor string, now time.Time, auditID string) error {
	if !schema.ValidIdent(relType) {
		return fmt.Errorf("graph: invalid relationship type %q", relType)
	}
	ts := fmtTime(now)
	return s.withTx(ctx, "closeRelationship", func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE relationships SET valid_to = ?
			 WHERE from_id = ? AND to_id = ? AND rel_type = ? AND valid_to IS NULL`,
			ts, from, to, relType,
		)
		if err != nil {
			return fmt.Errorf("graph: close relationship: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("%w: no active %s edge %s -> %s", apperr.ErrNotFound, relType, from, to)
		}
		var fromLabel string
		if err := tx.QueryRow(`SELECT label FROM entities WHERE id = ?`, from).Scan(&fromLabel); err != nil {
			fromLabel = ""
		}
		return appendAudit(tx, auditID, from, fromLabel, ActionUnrelate, actor, ts,
			fmt.Sprintf(`{"type":%q,"to":%q}`, relType, to))
	})
}

func appendAudit(tx *sql.Tx, auditID, entityID, label, action, actor, ts, changes string) error {
	var ch any
	if changes != "" {
		ch = changes
	}
	if _, err := tx.Exec(
		`INSERT INTO audit_log (id, entity_id, entity_label, action, actor, ts, changes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		auditID, entityID, label, action, actor, ts, ch,
	); err != nil {
		return fmt.Errorf("graph: append audit: %w", err)
	}
	return nil
}
