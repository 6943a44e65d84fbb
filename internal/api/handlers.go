package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/thefounder-seb/btmg/internal/memory"
	"github.com/thefounder-seb/btmg/internal/reconcile"
	"github.com/thefounder-seb/btmg/internal/scanner"
)

// Handler holds API route handlers.
type Handler struct {
	svc     *memory.Service
	engine  *reconcile.Engine
	scan    *scanner.Scanner
	defStrt reconcile.Strategy
}

// NewHandler creates a Handler. engine and scan may be nil when the
// corresponding subsystems are disabled.
func NewHandler(svc *memory.Service, engine *reconcile.Engine, scan *scanner.Scanner, defaultStrategy reconcile.Strategy) *Handler {
	return &Handler{svc: svc, engine: engine, scan: scan, defStrt: defaultStrategy}
}

func decode[T any](r *http.Request, into *T) error {
	return json.NewDecoder(r.Body).Decode(into)
}

// Upsert handles POST /entities.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.Label == "" || req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("label and actor are required"))
		return
	}
	res, err := h.svc.Upsert(r.Context(), req.Label, req.ID, req.Props, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// BatchUpsert handles POST /entities/batch.
func (h *Handler) BatchUpsert(w http.ResponseWriter, r *http.Request) {
	var req BatchUpsertRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("actor is required"))
		return
	}
	res, err := h.svc.BatchUpsert(r.Context(), req.Items, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Query handles GET /entities?label=X.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("label query parameter is required"))
		return
	}
	entities, err := h.svc.Store().QueryByLabel(r.Context(), label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: entities, Total: len(entities)})
}

// GetEntity handles GET /entities/{id}.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	es, err := h.svc.Store().GetCurrent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if es == nil {
		writeJSON(w, http.StatusNotFound, errorBody("entity not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, es)
}

// DeleteEntity handles DELETE /entities/{id}.
func (h *Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("actor query parameter is required"))
		return
	}
	if err := h.svc.Delete(r.Context(), id, actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// GetAtTime handles GET /entities/{id}/at?timestamp=RFC3339.
func (h *Handler) GetAtTime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := parseTimestamp(w, r.URL.Query().Get("timestamp"))
	if !ok {
		return
	}
	es, err := h.svc.Store().GetAtTime(r.Context(), id, t)
	if err != nil {
		writeError(w, err)
		return
	}
	if es == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no state at requested time"))
		return
	}
	writeJSON(w, http.StatusOK, es)
}

// History handles GET /entities/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	states, err := h.svc.Store().GetHistory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// Changelog handles GET /entities/{id}/changelog.
func (h *Handler) Changelog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	diffs, err := h.svc.Changelog(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diffs)
}

// Diff handles GET /entities/{id}/diff?from=1&to=2.
func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from, err1 := strconv.Atoi(r.URL.Query().Get("from"))
	to, err2 := strconv.Atoi(r.URL.Query().Get("to"))
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to versions are required"))
		return
	}
	diff, err := h.svc.Diff(r.Context(), id, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// Audit handles GET /entities/{id}/audit.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.svc.Store().GetAuditLog(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Relationships handles GET /entities/{id}/relationships.
func (h *Handler) Relationships(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rels, err := h.svc.Store().GetRelationships(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rels)
}

// Relate handles POST /relationships.
func (h *Handler) Relate(w http.ResponseWriter, r *http.Request) {
	var req RelateRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	err := h.svc.Relate(r.Context(), req.FromID, req.ToID, req.Type, req.FromLabel, req.ToLabel, req.Props, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "related"})
}

// Unrelate handles DELETE /relationships.
func (h *Handler) Unrelate(w http.ResponseWriter, r *http.Request) {
	var req UnrelateRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := h.svc.Unrelate(r.Context(), req.FromID, req.ToID, req.Type, req.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unrelated"})
}

// Search handles POST /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	entities, err := h.svc.Store().Search(r.Context(), req.Label, req.Filters, req.Limit, req.OrderBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: entities, Total: len(entities)})
}

// Snapshot handles GET /snapshot?timestamp=&labels=a,b.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	t, ok := parseTimestamp(w, r.URL.Query().Get("timestamp"))
	if !ok {
		return
	}
	snap, err := h.svc.Store().SnapshotAt(r.Context(), t, splitCSV(r.URL.Query().Get("labels")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ChangesSince handles GET /changes?since=&labels=&actors=&limit=.
func (h *Handler) ChangesSince(w http.ResponseWriter, r *http.Request) {
	t, ok := parseTimestamp(w, r.URL.Query().Get("since"))
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	summaries, err := h.svc.Store().ChangesSince(r.Context(), t,
		splitCSV(r.URL.Query().Get("labels")),
		splitCSV(r.URL.Query().Get("actors")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Sync handles POST /sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("doc projection is not configured"))
		return
	}
	var req SyncRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = h.defStrt
	}
	res, err := h.engine.Sync(r.Context(), strategy, req.Actor, req.Labels)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Scan handles POST /scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	if h.scan == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("scanner is not configured"))
		return
	}
	var req ScanRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	res, err := h.scan.Scan(r.Context(), req.Target, req.DryRun, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Validate handles POST /validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	normalized, err := h.svc.Validate(req.Label, req.Props)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, Normalized: normalized})
}

// Schema handles GET /schema.
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Registry().Describe())
}

func parseTimestamp(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("timestamp is required"))
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339Nano, raw); err2 == nil {
			return t2, true
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid timestamp: "+raw))
		return time.Time{}, false
	}
	return t, true
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
