// Package reconcile keeps the graph and the document projection in
// two-way agreement. It computes a changeset from both sides, resolves
// conflicts by strategy, applies graph writes through the mutation
// pipeline, and re-projects the surviving tree.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/thefounder-seb/btmg/internal/apperr"
	"github.com/thefounder-seb/btmg/internal/docs"
	"github.com/thefounder-seb/btmg/internal/graph"
	"github.com/thefounder-seb/btmg/internal/memory"
)

// Strategy selects how conflicting drift is resolved.
type Strategy string

const (
	GraphWins Strategy = "graph-wins"
	DocsWins  Strategy = "docs-wins"
	Merge     Strategy = "merge"
	Fail      Strategy = "fail"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case GraphWins, DocsWins, Merge, Fail:
		return true
	}
	return false
}

// ConflictRecord describes one entity that drifted on both sides.
type ConflictRecord struct {
	EntityID   string `json:"entityId"`
	Label      string `json:"label"`
	GraphHash  string `json:"graphHash"`
	DocHash    string `json:"docHash"`
	Resolution string `json:"resolution"`
}

// ChangeError is one non-fatal per-change failure.
type ChangeError struct {
	EntityID string `json:"entityId"`
	Message  string `json:"message"`
}

// SyncResult summarizes one reconciliation run.
type SyncResult struct {
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Deleted   int              `json:"deleted"`
	Conflicts []ConflictRecord `json:"conflicts"`
	Errors    []ChangeError    `json:"errors"`
}

// Engine drives reconciliation between the graph and one doc tree. The
// tree is owned by the engine while Sync runs; concurrent syncs against
// the same directory are unsupported.
type Engine struct {
	svc      *memory.Service
	renderer *docs.Renderer
	logger   *slog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(svc *memory.Service, renderer *docs.Renderer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{svc: svc, renderer: renderer, logger: logger}
}

// Sync reconciles the target labels (all declared labels when empty)
// with the doc tree, applying strategy to conflicts. Graph writes happen
// first; the current-state tree is then re-rendered so every surviving
// document carries the current sync hash.
func (e *Engine) Sync(ctx context.Context, strategy Strategy, actor string, labels []string) (*SyncResult, error) {
	if !ValidStrategy(strategy) {
		return nil, fmt.Errorf("reconcile: unknown strategy %q", strategy)
	}
	if len(labels) == 0 {
		labels = e.svc.Registry().Labels()
	}
	labelSet := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		labelSet[l] = struct{}{}
	}

	// Graph side.
	graphByID := make(map[string]graph.EntityState)
	for _, label := range labels {
		states, err := e.svc.Store().QueryByLabel(ctx, label)
		if err != nil {
			return nil, err
		}
		for _, es := range states {
			graphByID[es.Entity.ID] = es
		}
	}

	// Doc side.
	parsed, err := docs.ParseTree(e.renderer.OutputDir(), e.renderer.Extension(), e.logger)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			parsed = nil
		} else {
			return nil, err
		}
	}
	docByID := make(map[string]docs.ParsedDoc, len(parsed))
	for _, d := range parsed {
		if _, ok := labelSet[d.Label()]; !ok {
			continue
		}
		docByID[d.ID()] = d
	}

	result := &SyncResult{Conflicts: []ConflictRecord{}, Errors: []ChangeError{}}

	// Docs with no graph counterpart: new entity, or leftover of a
	// soft-deleted one.
	for id, d := range docByID {
		if _, inGraph := graphByID[id]; inGraph {
			continue
		}
		entity, err := e.svc.Store().GetEntity(ctx, id)
		if err != nil {
			result.Errors = append(result.Errors, ChangeError{EntityID: id, Message: err.Error()})
			continue
		}
		if entity != nil && entity.DeletedAt != nil {
			if err := os.Remove(d.FilePath); err != nil && !os.IsNotExist(err) {
				result.Errors = append(result.Errors, ChangeError{EntityID: id, Message: err.Error()})
				continue
			}
			result.Deleted++
			e.logger.Debug("sync: removed doc of deleted entity", slog.String("id", id))
			continue
		}
		if _, err := e.svc.Upsert(ctx, d.Label(), id, e.docProps(d), actor); err != nil {
			result.Errors = append(result.Errors, ChangeError{EntityID: id, Message: err.Error()})
			continue
		}
		result.Created++
	}

	// Entities present on both sides.
	for id, es := range graphByID {
		d, inDocs := docByID[id]
		if !inDocs {
			// Graph only: the re-render below creates the doc.
			result.Created++
			continue
		}

		graphHash := docs.ComputeSyncHash(es.State.Props)
		docHash := d.SyncHash()
		graphProps := normalizeProps(es.State.Props)
		docProps := e.docProps(d)

		if graphHash == docHash {
			if docs.PropsEqual(graphProps, docProps) {
				continue
			}
			// Doc edited since last projection; the graph follows.
			if _, err := e.svc.Upsert(ctx, es.Entity.Label, id, docProps, actor); err != nil {
				result.Errors = append(result.Errors, ChangeError{EntityID: id, Message: err.Error()})
				continue
			}
			result.Updated++
			continue
		}

		// Both sides drifted.
		record := ConflictRecord{
			EntityID:  id,
			Label:     es.Entity.Label,
			GraphHash: graphHash,
			DocHash:   docHash,
		}
		switch strategy {
		case Fail:
			return result, &apperr.ConflictError{
				EntityID:  id,
				Label:     es.Entity.Label,
				GraphHash: graphHash,
				DocHash:   docHash,
			}
		case GraphWins:
			// Winning properties are the graph's; the re-render below
			// rewrites the doc.
			record.Resolution = string(GraphWins)
		case DocsWins:
			record.Resolution = string(DocsWins)
			if _, err := e.svc.Upsert(ctx, es.Entity.Label, id, docProps, actor); err != nil {
				result.Errors = append(result.Errors, ChangeError{EntityID: id, Message: err.Error()})
				continue
			}
		case Merge:
			record.Resolution = string(Merge)
			merged := make(map[string]any, len(graphProps)+len(docProps))
			for k, v := range graphProps {
				merged[k] = v
			}
			for k, v := range docProps {
				merged[k] = v
			}
			if _, err := e.svc.Upsert(ctx, es.Entity.Label, id, merged, actor); err != nil {
				result.Errors = append(result.Errors, ChangeError{EntityID: id, Message: err.Error()})
				continue
			}
		}
		result.Conflicts = append(result.Conflicts, record)
	}

	// Re-project the full current tree; byte-identical files are left
	// untouched, everything else ends with the current sync hash.
	for _, label := range labels {
		states, err := e.svc.Store().QueryByLabel(ctx, label)
		if err != nil {
			return result, err
		}
		if _, err := e.renderer.RenderAll(states, func(id string) ([]graph.Relationship, error) {
			return e.svc.Store().GetRelationships(ctx, id)
		}); err != nil {
			return result, err
		}
	}

	e.logger.Info("sync: completed",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted),
		slog.Int("conflicts", len(result.Conflicts)),
		slog.Int("errors", len(result.Errors)))
	return result, nil
}

// docProps extracts the entity properties from a parsed document,
// dropping frontmatter keys the label does not declare (adapters may add
// cosmetic ones) and normalizing the content body.
func (e *Engine) docProps(d docs.ParsedDoc) map[string]any {
	props := d.Props()
	if def, ok := e.svc.Registry().NodeDef(d.Label()); ok {
		for k := range props {
			if _, declared := def.Properties[k]; !declared {
				delete(props, k)
			}
		}
	}
	return normalizeProps(props)
}

// normalizeProps canonicalizes the content property so that the
// renderer's trailing-newline convention never reads as drift.
func normalizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	if content, ok := out["content"].(string); ok {
		trimmed := strings.TrimRight(content, "\n")
		if trimmed == "" {
			delete(out, "content")
		} else {
			out["content"] = trimmed + "\n"
		}
	}
	return out
}
