package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/thefounder-seb/btmg/internal/docs"
	"github.com/thefounder-seb/btmg/internal/reconcile"
	"github.com/thefounder-seb/btmg/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	svc := testutil.TestService(t)
	renderer := docs.NewRenderer(t.TempDir(), "", "")
	engine := reconcile.NewEngine(svc, renderer, slog.Default())
	return New(svc, engine, nil, reconcile.GraphWins)
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return tc.Text
}

func TestUpsertQueryRoundtrip(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()

	res, err := srv.upsert(ctx, callReq("upsert", map[string]any{
		"label": "Service",
		"props": `{"name":"Auth","status":"active"}`,
		"actor": "agent-1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("upsert errored: %s", resultText(t, res))
	}
	var up struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
		Created bool   `json:"created"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &up); err != nil {
		t.Fatal(err)
	}
	if !up.Created || up.Version != 1 {
		t.Errorf("upsert = %+v", up)
	}

	q, err := srv.query(ctx, callReq("query", map[string]any{"id": up.ID}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, q), `"Auth"`) {
		t.Errorf("query result = %s", resultText(t, q))
	}
}

func TestUpsert_RejectsBadProps(t *testing.T) {
	srv := testServer(t)
	res, err := srv.upsert(context.Background(), callReq("upsert", map[string]any{
		"label": "Service",
		"props": `{"status":"active"}`,
		"actor": "agent-1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("missing required name must surface as a tool error")
	}
}

func TestUpsert_RejectsNonJSONProps(t *testing.T) {
	srv := testServer(t)
	res, _ := srv.upsert(context.Background(), callReq("upsert", map[string]any{
		"label": "Service",
		"props": `not json`,
		"actor": "agent-1",
	}))
	if !res.IsError {
		t.Error("malformed props must surface as a tool error")
	}
}

func TestValidateTool(t *testing.T) {
	srv := testServer(t)
	res, _ := srv.validate(context.Background(), callReq("validate", map[string]any{
		"label": "Service",
		"props": `{"name":"x"}`,
	}))
	if res.IsError {
		t.Fatalf("validate errored: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), `"valid": true`) {
		t.Errorf("validate result = %s", resultText(t, res))
	}
}

func TestHistoryAndDiffTools(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()

	res, _ := srv.upsert(ctx, callReq("upsert", map[string]any{
		"label": "Service", "props": `{"name":"A","status":"active"}`, "actor": "a",
	}))
	var up struct {
		ID string `json:"id"`
	}
	json.Unmarshal([]byte(resultText(t, res)), &up)

	srv.upsert(ctx, callReq("upsert", map[string]any{
		"label": "Service", "id": up.ID, "props": `{"name":"A","status":"deprecated"}`, "actor": "a",
	}))

	hist, _ := srv.history(ctx, callReq("history", map[string]any{"id": up.ID}))
	var states []json.RawMessage
	if err := json.Unmarshal([]byte(resultText(t, hist)), &states); err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Errorf("history = %d states", len(states))
	}

	d, _ := srv.diff(ctx, callReq("diff", map[string]any{
		"id": up.ID, "fromVersion": float64(1), "toVersion": float64(2),
	}))
	if !strings.Contains(resultText(t, d), "deprecated") {
		t.Errorf("diff = %s", resultText(t, d))
	}
}

func TestSyncTool(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()

	srv.upsert(ctx, callReq("upsert", map[string]any{
		"label": "Service", "props": `{"name":"A"}`, "actor": "a",
	}))
	res, _ := srv.sync(ctx, callReq("sync", map[string]any{"actor": "a"}))
	if res.IsError {
		t.Fatalf("sync errored: %s", resultText(t, res))
	}
	var sr struct {
		Created int `json:"created"`
	}
	json.Unmarshal([]byte(resultText(t, res)), &sr)
	if sr.Created != 1 {
		t.Errorf("sync created = %d, want 1", sr.Created)
	}
}

func TestSchemaResource(t *testing.T) {
	srv := testServer(t)
	req := mcp.ReadResourceRequest{}
	req.Params.URI = "btmg://schema"
	contents, err := srv.readSchema(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "Service") {
		t.Errorf("schema resource = %s", text)
	}
}

func TestEntityResource_NotFound(t *testing.T) {
	srv := testServer(t)
	req := mcp.ReadResourceRequest{}
	req.Params.URI = "btmg://entity/ghost"
	if _, err := srv.readEntity(context.Background(), req); err == nil {
		t.Error("missing entity must error")
	}
}
