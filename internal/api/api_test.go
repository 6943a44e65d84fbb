package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thefounder-seb/btmg/internal/api"
	"github.com/thefounder-seb/btmg/internal/memory"
	"github.com/thefounder-seb/btmg/internal/reconcile"
	"github.com/thefounder-seb/btmg/internal/testutil"
)

func testEnv(t *testing.T, authToken string) (*memory.Service, http.Handler) {
	t.Helper()
	svc := testutil.TestService(t)
	h := api.NewHandler(svc, nil, nil, reconcile.GraphWins)
	router := api.NewRouter(h, authToken != "", authToken, nil)
	return svc, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUpsertAndGet(t *testing.T) {
	_, router := testEnv(t, "")

	rec := doJSON(t, router, http.MethodPost, "/entities", api.UpsertRequest{
		Label: "Service",
		Props: map[string]any{"name": "Auth", "status": "active"},
		Actor: "alice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
		Created bool   `json:"created"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Version != 1 {
		t.Errorf("upsert result = %+v", res)
	}

	got := doJSON(t, router, http.MethodGet, "/entities/"+res.ID, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d", got.Code)
	}

	// Second write bumps the version.
	rec2 := doJSON(t, router, http.MethodPost, "/entities", api.UpsertRequest{
		Label: "Service", ID: res.ID,
		Props: map[string]any{"name": "Auth", "status": "deprecated"},
		Actor: "alice",
	})
	if rec2.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec2.Code, rec2.Body.String())
	}

	hist := doJSON(t, router, http.MethodGet, "/entities/"+res.ID+"/history", nil)
	var states []json.RawMessage
	if err := json.Unmarshal(hist.Body.Bytes(), &states); err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Errorf("history = %d states, want 2", len(states))
	}

	diff := doJSON(t, router, http.MethodGet, "/entities/"+res.ID+"/diff?from=1&to=2", nil)
	if diff.Code != http.StatusOK {
		t.Fatalf("diff status = %d", diff.Code)
	}
}

func TestUpsert_ValidationFails422(t *testing.T) {
	_, router := testEnv(t, "")
	rec := doJSON(t, router, http.MethodPost, "/entities", api.UpsertRequest{
		Label: "Service",
		Props: map[string]any{"status": "active"},
		Actor: "alice",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422; body %s", rec.Code, rec.Body.String())
	}
}

func TestUpsert_UnknownLabel400(t *testing.T) {
	_, router := testEnv(t, "")
	rec := doJSON(t, router, http.MethodPost, "/entities", api.UpsertRequest{
		Label: "Nope", Props: map[string]any{}, Actor: "a",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetMissing404(t *testing.T) {
	_, router := testEnv(t, "")
	rec := doJSON(t, router, http.MethodGet, "/entities/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteRequiresActor(t *testing.T) {
	_, router := testEnv(t, "")
	rec := doJSON(t, router, http.MethodDelete, "/entities/x", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRelateAndQuery(t *testing.T) {
	_, router := testEnv(t, "")

	mk := func(name string) string {
		rec := doJSON(t, router, http.MethodPost, "/entities", api.UpsertRequest{
			Label: "Service", Props: map[string]any{"name": name}, Actor: "a",
		})
		var res struct {
			ID string `json:"id"`
		}
		json.Unmarshal(rec.Body.Bytes(), &res)
		return res.ID
	}
	a, b := mk("A"), mk("B")

	rec := doJSON(t, router, http.MethodPost, "/relationships", api.RelateRequest{
		FromID: a, ToID: b, Type: "DEPENDS_ON",
		FromLabel: "Service", ToLabel: "Service", Actor: "a",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("relate status = %d, body %s", rec.Code, rec.Body.String())
	}

	rels := doJSON(t, router, http.MethodGet, "/entities/"+a+"/relationships", nil)
	var list []map[string]any
	json.Unmarshal(rels.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("relationships = %+v", list)
	}

	all := doJSON(t, router, http.MethodGet, "/entities?label=Service", nil)
	var lr api.EntityListResponse
	json.Unmarshal(all.Body.Bytes(), &lr)
	if lr.Total != 2 {
		t.Errorf("label query total = %d, want 2", lr.Total)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	doJSON(t, router, http.MethodPost, "/entities", api.UpsertRequest{
		Label: "Service", Props: map[string]any{"name": "auth", "status": "active"}, Actor: "a",
	})
	doJSON(t, router, http.MethodPost, "/entities", api.UpsertRequest{
		Label: "Service", Props: map[string]any{"name": "billing", "status": "deprecated"}, Actor: "a",
	})

	rec := doJSON(t, router, http.MethodPost, "/search", map[string]any{
		"label":   "Service",
		"filters": []map[string]any{{"property": "status", "op": "eq", "value": "active"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body.String())
	}
	var lr api.EntityListResponse
	json.Unmarshal(rec.Body.Bytes(), &lr)
	if lr.Total != 1 {
		t.Errorf("search total = %d, want 1", lr.Total)
	}
}

func TestValidateEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	ok := doJSON(t, router, http.MethodPost, "/validate", api.ValidateRequest{
		Label: "Service", Props: map[string]any{"name": "x"},
	})
	if ok.Code != http.StatusOK {
		t.Errorf("valid props status = %d", ok.Code)
	}
	bad := doJSON(t, router, http.MethodPost, "/validate", api.ValidateRequest{
		Label: "Service", Props: map[string]any{"name": "x", "bogus": 1},
	})
	if bad.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid props status = %d, want 422", bad.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	rec := doJSON(t, router, http.MethodGet, "/schema", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schema status = %d", rec.Code)
	}
	var def struct {
		Nodes []struct {
			Label string `json:"label"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &def); err != nil {
		t.Fatal(err)
	}
	if len(def.Nodes) == 0 {
		t.Error("schema must list node labels")
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "secret")

	rec := doJSON(t, router, http.MethodGet, "/schema", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/schema", nil)
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	router.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", ok.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/schema", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	badRec := httptest.NewRecorder()
	router.ServeHTTP(badRec, req)
	if badRec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", badRec.Code)
	}
}
