package scanner

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestPropertyMapping_YAMLForms(t *testing.T) {
	src := `
- artifact_kind: function
  label: Function
  properties:
    name: name
    kind: {value: func}
    receiver: {from: meta.receiver}
`
	var rules []MappingRule
	if err := yaml.Unmarshal([]byte(src), &rules); err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %+v", rules)
	}
	props := rules[0].Properties
	if props["name"].Field != "name" {
		t.Errorf("bare scalar = %+v", props["name"])
	}
	if props["kind"].Value != "func" {
		t.Errorf("value form = %+v", props["kind"])
	}
	if props["receiver"].From != "meta.receiver" {
		t.Errorf("from form = %+v", props["receiver"])
	}
}

func TestResolveProps(t *testing.T) {
	art := RawArtifact{
		Kind: KindFunction, Name: "Get", FilePath: "store/store.go",
		Language: LangGo, Line: 12,
		Meta: map[string]any{"receiver": "Store", "nested": map[string]any{"deep": "v"}},
	}
	rule := MappingRule{
		ArtifactKind: KindFunction,
		Label:        "Function",
		Properties: map[string]PropertyMapping{
			"name":     {Field: "name"},
			"file":     {Field: "filePath"},
			"line":     {Field: "line"},
			"receiver": {Field: "receiver"},
			"deep":     {From: "meta.nested.deep"},
			"fixed":    {Value: "constant"},
			"computed": {Compute: func(a RawArtifact) any { return a.Name + "@" + a.FilePath }},
		},
	}
	props := resolveProps(rule, art)
	if props["name"] != "Get" || props["file"] != "store/store.go" || props["line"] != 12 {
		t.Errorf("top-level fields = %+v", props)
	}
	if props["receiver"] != "Store" {
		t.Errorf("meta fallback = %v", props["receiver"])
	}
	if props["deep"] != "v" {
		t.Errorf("dotted path = %v", props["deep"])
	}
	if props["fixed"] != "constant" {
		t.Errorf("literal = %v", props["fixed"])
	}
	if props["computed"] != "Get@store/store.go" {
		t.Errorf("compute = %v", props["computed"])
	}
}

func TestFirstMatch_FilterShortCircuits(t *testing.T) {
	rules := []MappingRule{
		{
			ArtifactKind: KindFunction,
			Label:        "Exported",
			Filter: func(a RawArtifact) bool {
				exported, _ := a.Meta["exported"].(bool)
				return exported
			},
		},
		{ArtifactKind: KindFunction, Label: "Function"},
	}

	exported := RawArtifact{Kind: KindFunction, Name: "F", Meta: map[string]any{"exported": true}}
	if rule, ok := firstMatch(rules, exported); !ok || rule.Label != "Exported" {
		t.Errorf("exported matched %v", rule.Label)
	}

	private := RawArtifact{Kind: KindFunction, Name: "g", Meta: map[string]any{}}
	if rule, ok := firstMatch(rules, private); !ok || rule.Label != "Function" {
		t.Errorf("private matched %v", rule.Label)
	}

	other := RawArtifact{Kind: KindClass, Name: "C"}
	if _, ok := firstMatch(rules, other); ok {
		t.Error("class must not match function rules")
	}
}

func TestValidateMappings(t *testing.T) {
	if err := validateMappings([]MappingRule{{ArtifactKind: "widget", Label: "X"}}); err == nil {
		t.Error("unknown artifact kind must be rejected")
	}
	if err := validateMappings([]MappingRule{{ArtifactKind: KindFile}}); err == nil {
		t.Error("missing label must be rejected")
	}
	if err := validateMappings(nil); err != nil {
		t.Errorf("empty mappings are fine: %v", err)
	}
}
