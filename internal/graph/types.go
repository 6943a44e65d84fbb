package graph

import "time"

// Entity is the immutable identity layer. Entities are never destroyed,
// only soft-deleted.
type Entity struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`
}

// State is one versioned snapshot of an entity's user properties.
// ValidTo == nil marks the head state.
type State struct {
	EntityID   string         `json:"entityId"`
	Version    int            `json:"version"`
	Label      string         `json:"label"`
	Props      map[string]any `json:"props"`
	ValidFrom  time.Time      `json:"validFrom"`
	ValidTo    *time.Time     `json:"validTo,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
	Actor      string         `json:"actor"`
}

// Audit actions.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionRelate   = "relate"
	ActionUnrelate = "unrelate"
)

// AuditEntry is an append-only record of one mutation.
type AuditEntry struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entityId"`
	EntityLabel string    `json:"entityLabel"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
	Changes     string    `json:"changes,omitempty"`
}

// Relationship is a typed, directional, temporal edge.
type Relationship struct {
	Type      string         `json:"type"`
	FromID    string         `json:"fromId"`
	ToID      string         `json:"toId"`
	Props     map[string]any `json:"props,omitempty"`
	ValidFrom time.Time      `json:"validFrom"`
	ValidTo   *time.Time     `json:"validTo,omitempty"`
	Actor     string         `json:"actor"`
	// Direction is "outgoing" or "incoming" relative to the queried
	// entity; empty in snapshot results.
	Direction string `json:"direction,omitempty"`
}

// EntitySummary is a changes-since result row.
type EntitySummary struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	LastAction   string    `json:"lastAction"`
	LastActor    string    `json:"lastActor"`
	LastActivity time.Time `json:"lastActivity"`
}

// Snapshot is the graph as of one instant: every matching entity's state
// plus all edges active at that time.
type Snapshot struct {
	At       time.Time      `json:"at"`
	Entities []EntityState  `json:"entities"`
	Edges    []Relationship `json:"edges"`
}

// EntityState pairs an entity with one of its states.
type EntityState struct {
	Entity Entity `json:"entity"`
	State  State  `json:"state"`
}

// Filter is one conjunctive predicate for Search.
type Filter struct {
	Property string `json:"property"`
	Op       string `json:"op"` // eq, contains, gt, lt, gte, lte, in
	Value    any    `json:"value"`
}

// OrderBy names a property to sort Search results on.
type OrderBy struct {
	Property   string `json:"property"`
	Descending bool   `json:"descending,omitempty"`
}
