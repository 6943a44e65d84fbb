package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/thefounder-seb/btmg/internal/apperr"
	"github.com/thefounder-seb/btmg/internal/graph"
	"github.com/thefounder-seb/btmg/internal/memory"
	"github.com/thefounder-seb/btmg/internal/testutil"
)

var ctx = context.Background()

func TestUpsert_FirstWrite(t *testing.T) {
	svc := testutil.TestService(t)

	res, err := svc.Upsert(ctx, "Service", "", map[string]any{"name": "Auth", "status": "active"}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Version != 1 || res.ID == "" {
		t.Errorf("result = %+v, want created v1 with fresh id", res)
	}

	es, err := svc.Store().GetCurrent(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if es.State.Props["name"] != "Auth" {
		t.Errorf("name = %v", es.State.Props["name"])
	}

	audit, _ := svc.Store().GetAuditLog(ctx, res.ID)
	if len(audit) != 1 || audit[0].Action != "create" || audit[0].Actor != "alice" {
		t.Errorf("audit = %+v", audit)
	}
}

func TestUpsert_VersionChainAndDiff(t *testing.T) {
	svc := testutil.TestService(t)

	res, err := svc.Upsert(ctx, "Service", "", map[string]any{"name": "Auth", "status": "active"}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	res2, err := svc.Upsert(ctx, "Service", res.ID, map[string]any{"name": "Auth", "status": "deprecated"}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Created || res2.Version != 2 {
		t.Errorf("second upsert = %+v, want update to v2", res2)
	}

	history, _ := svc.Store().GetHistory(ctx, res.ID)
	if len(history) != 2 {
		t.Fatalf("history = %d, want 2", len(history))
	}

	diff, err := svc.Diff(ctx, res.ID, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(diff.Changes) != 1 {
		t.Fatalf("changes = %+v, want exactly one", diff.Changes)
	}
	ch := diff.Changes[0]
	if ch.Property != "status" || ch.Old != "active" || ch.New != "deprecated" {
		t.Errorf("change = %+v", ch)
	}
}

func TestUpsert_ValidationError(t *testing.T) {
	svc := testutil.TestService(t)
	_, err := svc.Upsert(ctx, "Service", "", map[string]any{"status": "active"}, "alice")
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpsert_UnknownLabel(t *testing.T) {
	svc := testutil.TestService(t)
	_, err := svc.Upsert(ctx, "Nope", "", map[string]any{"name": "x"}, "alice")
	if !errors.Is(err, apperr.ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	svc := testutil.TestService(t)
	res, err := svc.Upsert(ctx, "Service", "", map[string]any{"name": "Auth"}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, res.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, res.ID, "alice"); err != nil {
		t.Fatalf("second delete should succeed silently: %v", err)
	}
	es, _ := svc.Store().GetCurrent(ctx, res.ID)
	if es != nil {
		t.Error("deleted entity must read as nil")
	}
}

func TestRelate_ValidatesEdge(t *testing.T) {
	svc := testutil.TestService(t)
	a, _ := svc.Upsert(ctx, "Service", "", map[string]any{"name": "A"}, "x")
	b, _ := svc.Upsert(ctx, "Service", "", map[string]any{"name": "B"}, "x")

	if err := svc.Relate(ctx, a.ID, b.ID, "DEPENDS_ON", "Service", "Service", nil, "x"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Relate(ctx, a.ID, b.ID, "NO_SUCH_EDGE", "Service", "Service", nil, "x"); !errors.Is(err, apperr.ErrUnknownEdge) {
		t.Fatalf("expected ErrUnknownEdge, got %v", err)
	}

	rels, _ := svc.Store().GetRelationships(ctx, a.ID)
	if len(rels) != 1 {
		t.Errorf("relationships = %+v", rels)
	}
}

func TestRelate_EdgePropsValidated(t *testing.T) {
	svc := testutil.TestService(t)
	a, _ := svc.Upsert(ctx, "Function", "", map[string]any{"name": "f"}, "x")
	b, _ := svc.Upsert(ctx, "Function", "", map[string]any{"name": "g"}, "x")

	err := svc.Relate(ctx, a.ID, b.ID, "CALLS", "Function", "Function", map[string]any{"count": "many"}, "x")
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for edge props, got %v", err)
	}
	if err := svc.Relate(ctx, a.ID, b.ID, "CALLS", "Function", "Function", map[string]any{"count": 3}, "x"); err != nil {
		t.Fatal(err)
	}
}

func TestUnrelate_SilentOnMissing(t *testing.T) {
	svc := testutil.TestService(t)
	a, _ := svc.Upsert(ctx, "Service", "", map[string]any{"name": "A"}, "x")
	b, _ := svc.Upsert(ctx, "Service", "", map[string]any{"name": "B"}, "x")
	if err := svc.Unrelate(ctx, a.ID, b.ID, "DEPENDS_ON", "x"); err != nil {
		t.Fatalf("unrelate on nothing must be tolerated: %v", err)
	}
}

func TestChangelog(t *testing.T) {
	svc := testutil.TestService(t)
	res, _ := svc.Upsert(ctx, "Service", "", map[string]any{"name": "A", "status": "active"}, "x")
	if _, err := svc.Upsert(ctx, "Service", res.ID, map[string]any{"name": "A", "status": "deprecated"}, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upsert(ctx, "Service", res.ID, map[string]any{"name": "B", "status": "deprecated"}, "x"); err != nil {
		t.Fatal(err)
	}

	log, err := svc.Changelog(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 {
		t.Fatalf("changelog = %d entries, want 2", len(log))
	}
	if log[0].FromVersion != 1 || log[0].ToVersion != 2 {
		t.Errorf("first diff versions = %d->%d", log[0].FromVersion, log[0].ToVersion)
	}
	if log[0].Changes[0].Property != "status" || log[1].Changes[0].Property != "name" {
		t.Errorf("changelog = %+v", log)
	}
}

func TestDiffStates_SelfIsEmpty(t *testing.T) {
	st := &graph.State{EntityID: "e", Version: 1, Props: map[string]any{
		"name": "x", "tags": []any{"a", "b"}, "meta": map[string]any{"k": float64(1)},
	}}
	diff := memory.DiffStates(st, st)
	if len(diff.Changes) != 0 {
		t.Errorf("diff(s,s) = %+v, want no changes", diff.Changes)
	}
}

func TestDiffStates_AddRemove(t *testing.T) {
	oldState := &graph.State{EntityID: "e", Version: 1, Props: map[string]any{"name": "x", "gone": "v"}}
	newState := &graph.State{EntityID: "e", Version: 2, Props: map[string]any{"name": "x", "added": "w"}}
	diff := memory.DiffStates(oldState, newState)
	if len(diff.Changes) != 2 {
		t.Fatalf("changes = %+v", diff.Changes)
	}
	for _, ch := range diff.Changes {
		switch ch.Property {
		case "gone":
			if ch.Old != "v" || ch.New != nil {
				t.Errorf("remove delta = %+v", ch)
			}
		case "added":
			if ch.Old != nil || ch.New != "w" {
				t.Errorf("add delta = %+v", ch)
			}
		default:
			t.Errorf("unexpected property %s", ch.Property)
		}
	}
}

func TestBatchUpsert_ValidatesAllThenCommitsEach(t *testing.T) {
	svc := testutil.TestService(t)

	res, err := svc.BatchUpsert(ctx, []memory.BatchItem{
		{Label: "Service", Props: map[string]any{"name": "A"}},
		{Label: "Service", Props: map[string]any{"status": "active"}}, // missing name
		{Label: "Nope", Props: map[string]any{"name": "C"}},
		{Label: "Service", Props: map[string]any{"name": "D"}},
	}, "batcher")
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 2 || res.Failed != 2 {
		t.Fatalf("batch = %+v", res)
	}
	if res.Items[1].Error == "" || res.Items[2].Error == "" {
		t.Errorf("failed items must carry errors: %+v", res.Items)
	}
	// Valid members committed despite the failures.
	out, _ := svc.Store().QueryByLabel(ctx, "Service")
	if len(out) != 2 {
		t.Errorf("committed entities = %d, want 2", len(out))
	}
}

func TestConcurrentUpserts_LinearizableVersions(t *testing.T) {
	svc := testutil.TestService(t)
	res, err := svc.Upsert(ctx, "Service", "", map[string]any{"name": "Auth"}, "init")
	if err != nil {
		t.Fatal(err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Upsert(ctx, "Service", res.ID, map[string]any{"name": "Auth", "description": "w"}, "writer")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		t.Fatal("no concurrent upsert succeeded")
	}

	history, err := svc.Store().GetHistory(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Dense, contiguous versions with a single head.
	heads := 0
	for i, st := range history {
		if want := len(history) - i; st.Version != want {
			t.Errorf("version at %d = %d, want %d", i, st.Version, want)
		}
		if st.ValidTo == nil {
			heads++
		}
	}
	if heads != 1 {
		t.Errorf("head states = %d, want exactly 1", heads)
	}

	audit, _ := svc.Store().GetAuditLog(ctx, res.ID)
	if len(audit) != len(history) {
		t.Errorf("audit entries = %d, states = %d; must match", len(audit), len(history))
	}
}
