package schema

import (
	"strings"
	"testing"
)

func compile(t *testing.T, def *Def) *Registry {
	t.Helper()
	reg, err := Compile(def)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return reg
}

func serviceDef() *Def {
	return &Def{
		Nodes: []NodeDef{
			{
				Label: "Service",
				Properties: map[string]PropertyDef{
					"name":     {Kind: KindString, Required: true},
					"status":   {Kind: KindEnum, Values: []string{"active", "deprecated"}, Default: "active"},
					"docs":     {Kind: KindURL},
					"owner":    {Kind: KindEmail},
					"replicas": {Kind: KindNumber},
					"critical": {Kind: KindBoolean},
					"launched": {Kind: KindDate},
					"tags":     {Kind: KindStringList},
					"meta":     {Kind: KindJSON},
				},
			},
			{Label: "Team", Properties: map[string]PropertyDef{
				"name": {Kind: KindString, Required: true},
			}},
		},
		Edges: []EdgeDef{
			{Type: "OWNED_BY", From: "Service", To: "Team"},
		},
	}
}

func TestCompile_ReservedEdgeTypeRejected(t *testing.T) {
	def := serviceDef()
	def.Edges = append(def.Edges, EdgeDef{Type: "CURRENT", From: "Service", To: "Team"})
	if _, err := Compile(def); err == nil {
		t.Fatal("expected error for reserved edge type")
	}
}

func TestCompile_EmptyEnumFatal(t *testing.T) {
	def := serviceDef()
	def.Nodes[0].Properties["bad"] = PropertyDef{Kind: KindEnum}
	if _, err := Compile(def); err == nil {
		t.Fatal("expected error for enum with no members")
	}
}

func TestCompile_UnknownEdgeEndpoint(t *testing.T) {
	def := serviceDef()
	def.Edges = append(def.Edges, EdgeDef{Type: "USES", From: "Service", To: "Nope"})
	if _, err := Compile(def); err == nil {
		t.Fatal("expected error for dangling edge endpoint")
	}
}

func TestCompile_InvalidLabel(t *testing.T) {
	def := serviceDef()
	def.Nodes = append(def.Nodes, NodeDef{Label: "Bad Label"})
	if _, err := Compile(def); err == nil {
		t.Fatal("expected error for invalid label")
	}
}

func TestCompile_BadDefault(t *testing.T) {
	def := serviceDef()
	def.Nodes[0].Properties["weird"] = PropertyDef{Kind: KindNumber, Default: "ten"}
	if _, err := Compile(def); err == nil {
		t.Fatal("expected error for mistyped default")
	}
}

func TestValidate_UnknownKeyRejected(t *testing.T) {
	reg := compile(t, serviceDef())
	v, err := reg.Node("Service")
	if err != nil {
		t.Fatal(err)
	}
	_, verr := v(map[string]any{"name": "auth", "mystery": 1})
	if verr == nil {
		t.Fatal("expected validation error for unknown key")
	}
	if !strings.Contains(verr.Error(), "mystery") {
		t.Errorf("error should name the offending key: %v", verr)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	reg := compile(t, serviceDef())
	v, _ := reg.Node("Service")
	_, verr := v(map[string]any{})
	if verr == nil {
		t.Fatal("expected validation error for missing name")
	}
	found := false
	for _, f := range verr.Fields {
		if f.Path == "name" {
			found = true
		}
	}
	if !found {
		t.Errorf("fields should include name: %+v", verr.Fields)
	}
}

func TestValidate_DefaultAppliedOnlyWhenAbsent(t *testing.T) {
	reg := compile(t, serviceDef())
	v, _ := reg.Node("Service")

	out, verr := v(map[string]any{"name": "auth"})
	if verr != nil {
		t.Fatal(verr)
	}
	if out["status"] != "active" {
		t.Errorf("status default = %v, want active", out["status"])
	}

	out, verr = v(map[string]any{"name": "auth", "status": "deprecated"})
	if verr != nil {
		t.Fatal(verr)
	}
	if out["status"] != "deprecated" {
		t.Errorf("status = %v, want deprecated", out["status"])
	}
}

func TestValidate_EnumCanonicalized(t *testing.T) {
	reg := compile(t, serviceDef())
	v, _ := reg.Node("Service")
	out, verr := v(map[string]any{"name": "auth", "status": "ACTIVE"})
	if verr != nil {
		t.Fatal(verr)
	}
	if out["status"] != "active" {
		t.Errorf("status = %v, want canonical member casing", out["status"])
	}
}

func TestValidate_KindMismatches(t *testing.T) {
	reg := compile(t, serviceDef())
	v, _ := reg.Node("Service")

	cases := map[string]any{
		"replicas": "three",
		"critical": "yes",
		"launched": "not-a-date",
		"docs":     "not a url",
		"owner":    "not-an-email",
		"tags":     []any{"ok", 7},
		"status":   "retired",
	}
	for key, bad := range cases {
		_, verr := v(map[string]any{"name": "auth", key: bad})
		if verr == nil {
			t.Errorf("%s = %v should be rejected", key, bad)
		}
	}
}

func TestValidate_AcceptedKinds(t *testing.T) {
	reg := compile(t, serviceDef())
	v, _ := reg.Node("Service")

	out, verr := v(map[string]any{
		"name":     "auth",
		"replicas": 3,
		"critical": true,
		"launched": "2025-06-01",
		"docs":     "https://example.com/docs",
		"owner":    "team@example.com",
		"tags":     []any{"a", "b"},
		"meta":     map[string]any{"anything": []any{1, 2}},
	})
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if out["replicas"] != float64(3) {
		t.Errorf("replicas normalized = %v, want 3", out["replicas"])
	}
	if tags, ok := out["tags"].([]string); !ok || len(tags) != 2 {
		t.Errorf("tags normalized = %#v", out["tags"])
	}
}

func TestValidate_DateTimeWithOffset(t *testing.T) {
	reg := compile(t, serviceDef())
	v, _ := reg.Node("Service")
	if _, verr := v(map[string]any{"name": "a", "launched": "2025-06-01T10:00:00+02:00"}); verr != nil {
		t.Fatalf("RFC3339 date-time rejected: %v", verr)
	}
}

func TestEdgeValidator_NoDeclaredPropsAcceptsAny(t *testing.T) {
	reg := compile(t, serviceDef())
	v, err := reg.Edge("Service", "OWNED_BY", "Team")
	if err != nil {
		t.Fatal(err)
	}
	out, verr := v(map[string]any{"whatever": 1})
	if verr != nil {
		t.Fatalf("edge without declared props must accept any map: %v", verr)
	}
	if out["whatever"] != 1 {
		t.Errorf("props passed through = %v", out)
	}
	if _, verr := v(nil); verr != nil {
		t.Fatalf("nil props must be accepted: %v", verr)
	}
}

func TestEdge_UnknownLookup(t *testing.T) {
	reg := compile(t, serviceDef())
	if _, err := reg.Edge("Team", "OWNED_BY", "Service"); err == nil {
		t.Fatal("reversed endpoints must not resolve")
	}
}

func TestValidIdent(t *testing.T) {
	for _, ok := range []string{"Service", "_x", "A1_b"} {
		if !ValidIdent(ok) {
			t.Errorf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "1a", "a-b", "a b", "a;DROP"} {
		if ValidIdent(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}
