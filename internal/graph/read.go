package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/thefounder-seb/btmg/internal/schema"
)

// GetCurrent returns the entity and its head state, or nil when the
// entity does not exist or has been soft-deleted.
func (s *Store) GetCurrent(ctx context.Context, id string) (*EntityState, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT e.id, e.label, e.created_at, e.deleted_at, e.deleted_by,
		       st.version, st.props, st.valid_from, st.valid_to, st.recorded_at, st.actor
		FROM entities e
		JOIN states st ON st.entity_id = e.id AND st.is_head = 1
		WHERE e.id = ? AND e.deleted_at IS NULL`, id)
	es, err := scanEntityState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get current: %w", err)
	}
	return es, nil
}

// GetEntity returns the identity row regardless of deletion, or nil.
func (s *Store) GetEntity(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	var created string
	var deletedAt, deletedBy sql.NullString
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, label, created_at, deleted_at, deleted_by FROM entities WHERE id = ?`, id,
	).Scan(&e.ID, &e.Label, &created, &deletedAt, &deletedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get entity: %w", err)
	}
	e.CreatedAt = parseTime(created)
	e.DeletedAt = parseTimePtr(deletedAt)
	e.DeletedBy = deletedBy.String
	return &e, nil
}

// GetAtTime returns the state valid at t, or nil when the entity did not
// exist (or no state covers t).
func (s *Store) GetAtTime(ctx context.Context, id string, t time.Time) (*EntityState, error) {
	ts := fmtTime(t)
	row := s.conn.QueryRowContext(ctx, `
		SELECT e.id, e.label, e.created_at, e.deleted_at, e.deleted_by,
		       st.version, st.props, st.valid_from, st.valid_to, st.recorded_at, st.actor
		FROM entities e
		JOIN states st ON st.entity_id = e.id
		WHERE e.id = ? AND st.valid_from <= ? AND (st.valid_to IS NULL OR st.valid_to > ?)
		ORDER BY st.version DESC LIMIT 1`, id, ts, ts)
	es, err := scanEntityState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get at time: %w", err)
	}
	return es, nil
}

// GetHistory returns all states of an entity, newest first.
func (s *Store) GetHistory(ctx context.Context, id string) ([]State, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT entity_id, version, label, props, valid_from, valid_to, recorded_at, actor
		FROM states WHERE entity_id = ? ORDER BY version DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("graph: history: %w", err)
	}
	defer rows.Close()
	var out []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// QueryByLabel returns every non-deleted entity of the label with its
// head state.
func (s *Store) QueryByLabel(ctx context.Context, label string) ([]EntityState, error) {
	if !schema.ValidIdent(label) {
		return nil, fmt.Errorf("graph: invalid label %q", label)
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT e.id, e.label, e.created_at, e.deleted_at, e.deleted_by,
		       st.version, st.props, st.valid_from, st.valid_to, st.recorded_at, st.actor
		FROM entities e
		JOIN states st ON st.entity_id = e.id AND st.is_head = 1
		WHERE e.label = ? AND e.deleted_at IS NULL
		ORDER BY e.created_at`, label)
	if err != nil {
		return nil, fmt.Errorf("graph: query by label: %w", err)
	}
	defer rows.Close()
	var out []EntityState
	for rows.Next() {
		es, err := scanEntityState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *es)
	}
	return out, rows.Err()
}

// GetRelationships returns the active edges touching id, direction-tagged.
// Structural links never appear here: they live in their own tables.
func (s *Store) GetRelationships(ctx context.Context, id string) ([]Relationship, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT rel_type, from_id, to_id, props, valid_from, valid_to, actor
		FROM relationships
		WHERE (from_id = ? OR to_id = ?) AND valid_to IS NULL
		ORDER BY valid_from`, id, id)
	if err != nil {
		return nil, fmt.Errorf("graph: relationships: %w", err)
	}
	defer rows.Close()
	var out []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		if rel.FromID == id {
			rel.Direction = "outgoing"
		} else {
			rel.Direction = "incoming"
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// ChangesSince returns entities whose audit log has entries after t,
// most recently active first.
func (s *Store) ChangesSince(ctx context.Context, t time.Time, labels, actors []string, limit int) ([]EntitySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var sb strings.Builder
	args := []any{fmtTime(t)}
	sb.WriteString(`
		SELECT a.entity_id, a.entity_label, a.action, a.actor, a.ts
		FROM audit_log a
		JOIN (SELECT entity_id, MAX(ts) AS max_ts FROM audit_log WHERE ts > ? GROUP BY entity_id) latest
		  ON latest.entity_id = a.entity_id AND latest.max_ts = a.ts`)
	var conds []string
	if len(labels) > 0 {
		conds = append(conds, "a.entity_label IN ("+placeholders(len(labels))+")")
		for _, l := range labels {
			args = append(args, l)
		}
	}
	if len(actors) > 0 {
		conds = append(conds, "a.actor IN ("+placeholders(len(actors))+")")
		for _, a := range actors {
			args = append(args, a)
		}
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY a.ts DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("graph: changes since: %w", err)
	}
	defer rows.Close()
	var out []EntitySummary
	for rows.Next() {
		var es EntitySummary
		var ts string
		if err := rows.Scan(&es.ID, &es.Label, &es.LastAction, &es.LastActor, &ts); err != nil {
			return nil, err
		}
		es.LastActivity = parseTime(ts)
		out = append(out, es)
	}
	return out, rows.Err()
}

// Search filters the current head states of a label by conjunctive
// predicates. Property names are whitelisted; values are bound.
func (s *Store) Search(ctx context.Context, label string, filters []Filter, limit int, order *OrderBy) ([]EntityState, error) {
	if !schema.ValidIdent(label) {
		return nil, fmt.Errorf("graph: invalid label %q", label)
	}
	if limit <= 0 {
		limit = 50
	}
	var sb strings.Builder
	sb.WriteString(`
		SELECT e.id, e.label, e.created_at, e.deleted_at, e.deleted_by,
		       st.version, st.props, st.valid_from, st.valid_to, st.recorded_at, st.actor
		FROM entities e
		JOIN states st ON st.entity_id = e.id AND st.is_head = 1
		WHERE e.label = ? AND e.deleted_at IS NULL`)
	args := []any{label}

	for _, f := range filters {
		if !schema.ValidIdent(f.Property) {
			return nil, fmt.Errorf("graph: invalid filter property %q", f.Property)
		}
		expr := fmt.Sprintf("json_extract(st.props, '$.%s')", f.Property)
		switch f.Op {
		case "eq":
			sb.WriteString(" AND " + expr + " = ?")
			args = append(args, bindable(f.Value))
		case "contains":
			// Substring match on the JSON text form; covers strings and
			// membership in string lists.
			sb.WriteString(" AND " + expr + " LIKE '%' || ? || '%'")
			args = append(args, fmt.Sprint(f.Value))
		case "gt":
			sb.WriteString(" AND " + expr + " > ?")
			args = append(args, bindable(f.Value))
		case "lt":
			sb.WriteString(" AND " + expr + " < ?")
			args = append(args, bindable(f.Value))
		case "gte":
			sb.WriteString(" AND " + expr + " >= ?")
			args = append(args, bindable(f.Value))
		case "lte":
			sb.WriteString(" AND " + expr + " <= ?")
			args = append(args, bindable(f.Value))
		case "in":
			list, ok := f.Value.([]any)
			if !ok {
				if ls, ok2 := f.Value.([]string); ok2 {
					list = make([]any, len(ls))
					for i, v := range ls {
						list[i] = v
					}
				} else {
					return nil, fmt.Errorf("graph: filter %s: in requires a list", f.Property)
				}
			}
			if len(list) == 0 {
				return nil, fmt.Errorf("graph: filter %s: empty in list", f.Property)
			}
			sb.WriteString(" AND " + expr + " IN (" + placeholders(len(list)) + ")")
			for _, v := range list {
				args = append(args, bindable(v))
			}
		default:
			return nil, fmt.Errorf("graph: unknown filter op %q", f.Op)
		}
	}

	if order != nil {
		if !schema.ValidIdent(order.Property) {
			return nil, fmt.Errorf("graph: invalid order property %q", order.Property)
		}
		dir := "ASC"
		if order.Descending {
			dir = "DESC"
		}
		sb.WriteString(fmt.Sprintf(" ORDER BY json_extract(st.props, '$.%s') %s", order.Property, dir))
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("graph: search: %w", err)
	}
	defer rows.Close()
	var out []EntityState
	for rows.Next() {
		es, err := scanEntityState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *es)
	}
	return out, rows.Err()
}

// SnapshotAt reconstructs the graph as of t: every entity state valid at
// t plus all edges active at t.
func (s *Store) SnapshotAt(ctx context.Context, t time.Time, labels []string) (*Snapshot, error) {
	ts := fmtTime(t)
	var sb strings.Builder
	sb.WriteString(`
		SELECT e.id, e.label, e.created_at, e.deleted_at, e.deleted_by,
		       st.version, st.props, st.valid_from, st.valid_to, st.recorded_at, st.actor
		FROM entities e
		JOIN states st ON st.entity_id = e.id
		WHERE st.valid_from <= ? AND (st.valid_to IS NULL OR st.valid_to > ?)`)
	args := []any{ts, ts}
	if len(labels) > 0 {
		sb.WriteString(" AND e.label IN (" + placeholders(len(labels)) + ")")
		for _, l := range labels {
			if !schema.ValidIdent(l) {
				return nil, fmt.Errorf("graph: invalid label %q", l)
			}
			args = append(args, l)
		}
	}
	sb.WriteString(" ORDER BY e.created_at")

	rows, err := s.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("graph: snapshot entities: %w", err)
	}
	defer rows.Close()
	snap := &Snapshot{At: t}
	for rows.Next() {
		es, err := scanEntityState(rows)
		if err != nil {
			return nil, err
		}
		snap.Entities = append(snap.Entities, *es)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := s.conn.QueryContext(ctx, `
		SELECT rel_type, from_id, to_id, props, valid_from, valid_to, actor
		FROM relationships
		WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY valid_from`, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("graph: snapshot edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		rel, err := scanRelationship(edgeRows)
		if err != nil {
			return nil, err
		}
		snap.Edges = append(snap.Edges, rel)
	}
	return snap, edgeRows.Err()
}

// GetAuditLog returns all audit entries for an entity, oldest first.
func (s *Store) GetAuditLog(ctx context.Context, id string) ([]AuditEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, entity_id, entity_label, action, actor, ts, changes
		FROM audit_log WHERE entity_id = ? ORDER BY ts`, id)
	if err != nil {
		return nil, fmt.Errorf("graph: audit log: %w", err)
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var a AuditEntry
		var ts string
		var changes sql.NullString
		if err := rows.Scan(&a.ID, &a.EntityID, &a.EntityLabel, &a.Action, &a.Actor, &ts, &changes); err != nil {
			return nil, err
		}
		a.Timestamp = parseTime(ts)
		a.Changes = changes.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// rowScanner abstracts sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntityState(r rowScanner) (*EntityState, error) {
	var es EntityState
	var created, validFrom, recorded, propsJSON string
	var deletedAt, deletedBy, validTo sql.NullString
	err := r.Scan(
		&es.Entity.ID, &es.Entity.Label, &created, &deletedAt, &deletedBy,
		&es.State.Version, &propsJSON, &validFrom, &validTo, &recorded, &es.State.Actor,
	)
	if err != nil {
		return nil, err
	}
	es.Entity.CreatedAt = parseTime(created)
	es.Entity.DeletedAt = parseTimePtr(deletedAt)
	es.Entity.DeletedBy = deletedBy.String
	es.State.EntityID = es.Entity.ID
	es.State.Label = es.Entity.Label
	es.State.ValidFrom = parseTime(validFrom)
	es.State.ValidTo = parseTimePtr(validTo)
	es.State.RecordedAt = parseTime(recorded)
	if err := json.Unmarshal([]byte(propsJSON), &es.State.Props); err != nil {
		return nil, fmt.Errorf("graph: decode props: %w", err)
	}
	return &es, nil
}

func scanState(r rowScanner) (State, error) {
	var st State
	var propsJSON, validFrom, recorded string
	var validTo sql.NullString
	if err := r.Scan(&st.EntityID, &st.Version, &st.Label, &propsJSON, &validFrom, &validTo, &recorded, &st.Actor); err != nil {
		return st, err
	}
	st.ValidFrom = parseTime(validFrom)
	st.ValidTo = parseTimePtr(validTo)
	st.RecordedAt = parseTime(recorded)
	if err := json.Unmarshal([]byte(propsJSON), &st.Props); err != nil {
		return st, fmt.Errorf("graph: decode props: %w", err)
	}
	return st, nil
}

func scanRelationship(r rowScanner) (Relationship, error) {
	var rel Relationship
	var propsJSON, validFrom string
	var validTo sql.NullString
	if err := r.Scan(&rel.Type, &rel.FromID, &rel.ToID, &propsJSON, &validFrom, &validTo, &rel.Actor); err != nil {
		return rel, err
	}
	rel.ValidFrom = parseTime(validFrom)
	rel.ValidTo = parseTimePtr(validTo)
	if err := json.Unmarshal([]byte(propsJSON), &rel.Props); err != nil {
		return rel, fmt.Errorf("graph: decode props: %w", err)
	}
	return rel, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// bindable converts filter values to driver-friendly primitives.
func bindable(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
