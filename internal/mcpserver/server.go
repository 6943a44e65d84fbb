// Package mcpserver exposes the memory graph to agents over the Model
// Context Protocol via stdio transport.
package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/thefounder-seb/btmg/internal/memory"
	"github.com/thefounder-seb/btmg/internal/reconcile"
	"github.com/thefounder-seb/btmg/internal/scanner"
)

// Server wraps the MCP server with graph tools and resources.
type Server struct {
	mcp      *server.MCPServer
	svc      *memory.Service
	engine   *reconcile.Engine
	scan     *scanner.Scanner
	strategy reconcile.Strategy
}

// New creates an MCP server with all graph tools registered. engine and
// scan may be nil when those subsystems are disabled.
func New(svc *memory.Service, engine *reconcile.Engine, scan *scanner.Scanner, strategy reconcile.Strategy) *Server {
	s := &Server{mcp: server.NewMCPServer(
		"btmg",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	), svc: svc, engine: engine, scan: scan, strategy: strategy}

	s.mcp.AddTool(mcp.NewTool("upsert",
		mcp.WithDescription("Create or update a typed entity. Properties are validated against the schema; "+
			"every write is versioned and audited. Read the schema resource first to learn the declared labels."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Schema node label")),
		mcp.WithString("id", mcp.Description("Entity id; omit to create a new entity")),
		mcp.WithString("props", mcp.Required(), mcp.Description("Entity properties as a JSON object")),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who is making this change")),
	), s.upsert)

	s.mcp.AddTool(mcp.NewTool("delete",
		mcp.WithDescription("Soft-delete an entity. History and audit log are preserved."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id")),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who is deleting")),
	), s.delete)

	s.mcp.AddTool(mcp.NewTool("relate",
		mcp.WithDescription("Create a typed relationship between two entities."),
		mcp.WithString("fromId", mcp.Required(), mcp.Description("Source entity id")),
		mcp.WithString("toId", mcp.Required(), mcp.Description("Target entity id")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Relationship type")),
		mcp.WithString("fromLabel", mcp.Required(), mcp.Description("Source entity label")),
		mcp.WithString("toLabel", mcp.Required(), mcp.Description("Target entity label")),
		mcp.WithString("props", mcp.Description("Edge properties as a JSON object")),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who is relating")),
	), s.relate)

	s.mcp.AddTool(mcp.NewTool("unrelate",
		mcp.WithDescription("Close the active relationship of a type between two entities."),
		mcp.WithString("fromId", mcp.Required(), mcp.Description("Source entity id")),
		mcp.WithString("toId", mcp.Required(), mcp.Description("Target entity id")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Relationship type")),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who is unrelating")),
	), s.unrelate)

	s.mcp.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Fetch one entity by id, or all current entities of a label."),
		mcp.WithString("id", mcp.Description("Entity id")),
		mcp.WithString("label", mcp.Description("Schema node label")),
	), s.query)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Filter current entities of a label by conjunctive predicates "+
			"(eq, contains, gt, lt, gte, lte, in)."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Schema node label")),
		mcp.WithString("filters", mcp.Required(), mcp.Description(`JSON list of {"property","op","value"}`)),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50)")),
		mcp.WithString("orderBy", mcp.Description("Property to sort on")),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("get_at",
		mcp.WithDescription("Read an entity's state as of a past timestamp."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id")),
		mcp.WithString("timestamp", mcp.Required(), mcp.Description("RFC3339 timestamp")),
	), s.getAt)

	s.mcp.AddTool(mcp.NewTool("history",
		mcp.WithDescription("List all versions of an entity, newest first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id")),
	), s.history)

	s.mcp.AddTool(mcp.NewTool("changelog",
		mcp.WithDescription("Property-level diffs between each adjacent version of an entity, oldest first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id")),
	), s.changelog)

	s.mcp.AddTool(mcp.NewTool("diff",
		mcp.WithDescription("Property deltas between two versions of an entity."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id")),
		mcp.WithNumber("fromVersion", mcp.Required(), mcp.Description("Older version")),
		mcp.WithNumber("toVersion", mcp.Required(), mcp.Description("Newer version")),
	), s.diff)

	s.mcp.AddTool(mcp.NewTool("snapshot",
		mcp.WithDescription("Reconstruct the whole graph as of a timestamp: entity states plus active edges."),
		mcp.WithString("timestamp", mcp.Required(), mcp.Description("RFC3339 timestamp")),
		mcp.WithString("labels", mcp.Description("Comma-separated label filter")),
	), s.snapshot)

	s.mcp.AddTool(mcp.NewTool("changes_since",
		mcp.WithDescription("Entities touched after a timestamp, most recently active first."),
		mcp.WithString("since", mcp.Required(), mcp.Description("RFC3339 timestamp")),
		mcp.WithString("labels", mcp.Description("Comma-separated label filter")),
		mcp.WithString("actors", mcp.Description("Comma-separated actor filter")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50)")),
	), s.changesSince)

	s.mcp.AddTool(mcp.NewTool("sync",
		mcp.WithDescription("Reconcile the graph with the document tree and re-render it."),
		mcp.WithString("strategy", mcp.Description("graph-wins, docs-wins, merge or fail (default from config)")),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who is syncing")),
		mcp.WithString("labels", mcp.Description("Comma-separated label filter")),
	), s.sync)

	s.mcp.AddTool(mcp.NewTool("validate",
		mcp.WithDescription("Check properties against a label's schema without writing anything."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Schema node label")),
		mcp.WithString("props", mcp.Required(), mcp.Description("Properties as a JSON object")),
	), s.validate)

	s.mcp.AddTool(mcp.NewTool("scan",
		mcp.WithDescription("Scan a codebase (local path or git URL) and ingest its artifacts as entities."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Local directory or remote repository URL")),
		mcp.WithBoolean("dryRun", mcp.Description("Map artifacts without writing to the graph")),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who is scanning")),
	), s.runScan)

	// Resources.
	s.mcp.AddResource(
		mcp.NewResource("btmg://schema", "Graph Schema",
			mcp.WithResourceDescription("Compiled node labels and relationship types with their property declarations."),
			mcp.WithMIMEType("application/json"),
		),
		s.readSchema,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("btmg://entity/{id}", "Entity",
			mcp.WithTemplateDescription("Current state of one entity."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.readEntity,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("btmg://changelog/{id}", "Entity Changelog",
			mcp.WithTemplateDescription("Version-to-version property diffs of one entity."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.readChangelog,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("btmg://audit/{id}", "Entity Audit Log",
			mcp.WithTemplateDescription("Append-only mutation records of one entity."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.readAudit,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func optString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func propsArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	raw := optString(req, key)
	if raw == "" {
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("%s must be a JSON object: %w", key, err)
	}
	return props, nil
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

func parseTS(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func extractPathID(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return ""
}
