package scanner

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PropertyMapping resolves one entity property from an artifact. Exactly
// one of Field, From, Value or Compute is set. In YAML a bare string is
// a field name; maps use the from/value forms. Compute is code-only.
type PropertyMapping struct {
	Field   string
	From    string
	Value   any
	Compute func(RawArtifact) any
}

// UnmarshalYAML accepts either a scalar field name or a {from}/{value}
// map.
func (p *PropertyMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&p.Field)
	}
	var m struct {
		From  string `yaml:"from"`
		Value any    `yaml:"value"`
	}
	if err := node.Decode(&m); err != nil {
		return err
	}
	p.From = m.From
	p.Value = m.Value
	return nil
}

// MappingRule turns artifacts of one kind into entities of one label.
// First matching rule wins; Filter short-circuits.
type MappingRule struct {
	ArtifactKind ArtifactKind               `yaml:"artifact_kind"`
	Label        string                     `yaml:"label"`
	Properties   map[string]PropertyMapping `yaml:"properties"`
	Filter       func(RawArtifact) bool     `yaml:"-"`
}

// mapped is one artifact resolved to a schema-labeled entity.
type mapped struct {
	artifact RawArtifact
	label    string
	props    map[string]any
}

// applyMappings resolves every artifact through the rule list. Artifacts
// whose winning rule names a label unknown to the registry are routed to
// unmapped instead of emitting a broken entity.
func (s *Scanner) applyMappings(artifacts []RawArtifact) (out []mapped, unmapped []RawArtifact) {
	for _, art := range artifacts {
		rule, ok := firstMatch(s.opts.Mappings, art)
		if !ok {
			unmapped = append(unmapped, art)
			continue
		}
		if !s.svc.Registry().HasLabel(rule.Label) {
			unmapped = append(unmapped, art)
			continue
		}
		out = append(out, mapped{
			artifact: art,
			label:    rule.Label,
			props:    resolveProps(rule, art),
		})
	}
	return out, unmapped
}

func firstMatch(rules []MappingRule, art RawArtifact) (MappingRule, bool) {
	for _, rule := range rules {
		if rule.ArtifactKind != art.Kind {
			continue
		}
		if rule.Filter != nil && !rule.Filter(art) {
			continue
		}
		return rule, true
	}
	return MappingRule{}, false
}

func resolveProps(rule MappingRule, art RawArtifact) map[string]any {
	props := make(map[string]any, len(rule.Properties))
	for name, pm := range rule.Properties {
		var v any
		switch {
		case pm.Compute != nil:
			v = pm.Compute(art)
		case pm.Value != nil:
			v = pm.Value
		case pm.From != "":
			v = lookupPath(art, pm.From)
		case pm.Field != "":
			v = lookupField(art, pm.Field)
		}
		if v != nil {
			props[name] = v
		}
	}
	return props
}

// lookupField resolves a bare name against the artifact's top level,
// then its meta map.
func lookupField(art RawArtifact, field string) any {
	switch field {
	case "name":
		return art.Name
	case "kind":
		return string(art.Kind)
	case "filePath":
		return art.FilePath
	case "language":
		return string(art.Language)
	case "line":
		if art.Line == 0 {
			return nil
		}
		return art.Line
	}
	if art.Meta != nil {
		if v, ok := art.Meta[field]; ok {
			return v
		}
	}
	return nil
}

// lookupPath resolves a dotted path, rooted like lookupField.
func lookupPath(art RawArtifact, path string) any {
	parts := strings.Split(path, ".")
	var cur any = lookupField(art, parts[0])
	if cur == nil && parts[0] == "meta" && art.Meta != nil {
		cur = map[string]any(art.Meta)
	}
	for _, part := range parts[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// validateMappings rejects rules referencing unknown artifact kinds at
// startup.
func validateMappings(rules []MappingRule) error {
	valid := map[ArtifactKind]struct{}{
		KindFile: {}, KindModule: {}, KindFunction: {}, KindClass: {},
		KindInterface: {}, KindType: {}, KindAPIEndpoint: {}, KindDependency: {},
		KindEnvVar: {}, KindConfigKey: {}, KindExport: {},
	}
	for _, r := range rules {
		if _, ok := valid[r.ArtifactKind]; !ok {
			return fmt.Errorf("scanner: mapping rule for unknown artifact kind %q", r.ArtifactKind)
		}
		if r.Label == "" {
			return fmt.Errorf("scanner: mapping rule for %s has no label", r.ArtifactKind)
		}
	}
	return nil
}
