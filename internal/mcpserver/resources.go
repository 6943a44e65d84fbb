package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readSchema(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(req.Params.URI, s.svc.Registry().Describe())
}

func (s *Server) readEntity(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := extractPathID(req.Params.URI)
	es, err := s.svc.Store().GetCurrent(ctx, id)
	if err != nil {
		return nil, err
	}
	if es == nil {
		return nil, fmt.Errorf("entity not found: %s", id)
	}
	return jsonContents(req.Params.URI, es)
}

func (s *Server) readChangelog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := extractPathID(req.Params.URI)
	diffs, err := s.svc.Changelog(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, diffs)
}

func (s *Server) readAudit(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := extractPathID(req.Params.URI)
	entries, err := s.svc.Store().GetAuditLog(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, entries)
}
