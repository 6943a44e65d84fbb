package api

import (
	"github.com/thefounder-seb/btmg/internal/graph"
	"github.com/thefounder-seb/btmg/internal/memory"
	"github.com/thefounder-seb/btmg/internal/reconcile"
)

// UpsertRequest is the request body for creating or updating an entity.
type UpsertRequest struct {
	Label string         `json:"label" validate:"required"`
	ID    string         `json:"id,omitempty"`
	Props map[string]any `json:"props"`
	Actor string         `json:"actor" validate:"required"`
}

// BatchUpsertRequest is the request body for a batch of upserts.
type BatchUpsertRequest struct {
	Items []memory.BatchItem `json:"items" validate:"required"`
	Actor string             `json:"actor" validate:"required"`
}

// RelateRequest is the request body for opening a relationship.
type RelateRequest struct {
	FromID    string         `json:"fromId" validate:"required"`
	ToID      string         `json:"toId" validate:"required"`
	Type      string         `json:"type" validate:"required"`
	FromLabel string         `json:"fromLabel" validate:"required"`
	ToLabel   string         `json:"toLabel" validate:"required"`
	Props     map[string]any `json:"props,omitempty"`
	Actor     string         `json:"actor" validate:"required"`
}

// UnrelateRequest is the request body for closing a relationship.
type UnrelateRequest struct {
	FromID string `json:"fromId" validate:"required"`
	ToID   string `json:"toId" validate:"required"`
	Type   string `json:"type" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
}

// SearchRequest filters current head states of one label.
type SearchRequest struct {
	Label   string         `json:"label" validate:"required"`
	Filters []graph.Filter `json:"filters,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	OrderBy *graph.OrderBy `json:"orderBy,omitempty"`
}

// SyncRequest triggers a reconciliation run.
type SyncRequest struct {
	Strategy reconcile.Strategy `json:"strategy,omitempty"`
	Actor    string             `json:"actor" validate:"required"`
	Labels   []string           `json:"labels,omitempty"`
}

// ScanRequest triggers a codebase scan.
type ScanRequest struct {
	Target string `json:"target" validate:"required"`
	DryRun bool   `json:"dryRun,omitempty"`
	Actor  string `json:"actor" validate:"required"`
}

// ValidateRequest checks props against a label without mutating.
type ValidateRequest struct {
	Label string         `json:"label" validate:"required"`
	Props map[string]any `json:"props"`
}

// ValidateResponse reports the validation outcome.
type ValidateResponse struct {
	Valid      bool           `json:"valid"`
	Normalized map[string]any `json:"normalized,omitempty"`
	Error      string         `json:"error,omitempty"`
	Fields     any            `json:"fields,omitempty"`
}

// EntityListResponse wraps label query results.
type EntityListResponse struct {
	Entities []graph.EntityState `json:"entities"`
	Total    int                 `json:"total"`
}
