package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/thefounder-seb/btmg/internal/graph"
	"github.com/thefounder-seb/btmg/internal/reconcile"
)

func (s *Server) upsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := req.RequireString("actor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	props, err := propsArg(req, "props")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Upsert(ctx, label, optString(req, "id"), props, actor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) delete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := req.RequireString("actor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id, actor); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) relate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromID, err := req.RequireString("fromId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	toID, err := req.RequireString("toId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	relType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fromLabel, err := req.RequireString("fromLabel")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	toLabel, err := req.RequireString("toLabel")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := req.RequireString("actor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	props, err := propsArg(req, "props")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Relate(ctx, fromID, toID, relType, fromLabel, toLabel, props, actor); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("related: %s -[%s]-> %s", fromID, relType, toID)), nil
}

func (s *Server) unrelate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromID, err := req.RequireString("fromId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	toID, err := req.RequireString("toId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	relType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := req.RequireString("actor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Unrelate(ctx, fromID, toID, relType, actor); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unrelated: %s -[%s]-> %s", fromID, relType, toID)), nil
}

func (s *Server) query(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := optString(req, "id")
	label := optString(req, "label")
	switch {
	case id != "":
		es, err := s.svc.Store().GetCurrent(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if es == nil {
			return mcp.NewToolResultText("null"), nil
		}
		return jsonResult(es), nil
	case label != "":
		entities, err := s.svc.Store().QueryByLabel(ctx, label)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(entities), nil
	default:
		return mcp.NewToolResultError("either id or label is required"), nil
	}
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawFilters, err := req.RequireString("filters")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var filters []graph.Filter
	if err := json.Unmarshal([]byte(rawFilters), &filters); err != nil {
		return mcp.NewToolResultError("filters must be a JSON list: " + err.Error()), nil
	}
	limit := int(req.GetFloat("limit", 0))
	var order *graph.OrderBy
	if p := optString(req, "orderBy"); p != "" {
		order = &graph.OrderBy{Property: p}
	}
	entities, err := s.svc.Store().Search(ctx, label, filters, limit, order)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entities), nil
}

func (s *Server) getAt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("timestamp")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := parseTS(raw)
	if err != nil {
		return mcp.NewToolResultError("invalid timestamp: " + raw), nil
	}
	es, err := s.svc.Store().GetAtTime(ctx, id, t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if es == nil {
		return mcp.NewToolResultText("null"), nil
	}
	return jsonResult(es), nil
}

func (s *Server) history(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	states, err := s.svc.Store().GetHistory(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(states), nil
}

func (s *Server) changelog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	diffs, err := s.svc.Changelog(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(diffs), nil
}

func (s *Server) diff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from := int(req.GetFloat("fromVersion", 0))
	to := int(req.GetFloat("toVersion", 0))
	if from <= 0 || to <= 0 {
		return mcp.NewToolResultError("fromVersion and toVersion are required"), nil
	}
	d, err := s.svc.Diff(ctx, id, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) snapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("timestamp")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := parseTS(raw)
	if err != nil {
		return mcp.NewToolResultError("invalid timestamp: " + raw), nil
	}
	snap, err := s.svc.Store().SnapshotAt(ctx, t, splitCSV(optString(req, "labels")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap), nil
}

func (s *Server) changesSince(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("since")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := parseTS(raw)
	if err != nil {
		return mcp.NewToolResultError("invalid timestamp: " + raw), nil
	}
	summaries, err := s.svc.Store().ChangesSince(ctx, t,
		splitCSV(optString(req, "labels")),
		splitCSV(optString(req, "actors")),
		int(req.GetFloat("limit", 0)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summaries), nil
}

func (s *Server) sync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.engine == nil {
		return mcp.NewToolResultError("doc projection is not configured"), nil
	}
	actor, err := req.RequireString("actor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	strategy := s.strategy
	if raw := optString(req, "strategy"); raw != "" {
		strategy = reconcile.Strategy(raw)
	}
	res, err := s.engine.Sync(ctx, strategy, actor, splitCSV(optString(req, "labels")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) validate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	props, err := propsArg(req, "props")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	normalized, err := s.svc.Validate(label, props)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"valid": true, "normalized": normalized}), nil
}

func (s *Server) runScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.scan == nil {
		return mcp.NewToolResultError("scanner is not configured"), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := req.RequireString("actor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.scan.Scan(ctx, target, req.GetBool("dryRun", false), actor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}
