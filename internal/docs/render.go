package docs

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thefounder-seb/btmg/internal/graph"
)

// diagramMarker separates the user content from the generated
// relationship diagram inside a rendered body.
const diagramMarker = "<!-- btmg:relationships -->"

// DefaultPathTemplate places each entity under its label directory.
const DefaultPathTemplate = "{label}/{id}.{ext}"

// Renderer maps current-state entities to files under an output dir.
type Renderer struct {
	outputDir    string
	adapter      FormatAdapter
	pathTemplate string
}

// NewRenderer creates a renderer for the given framework adapter name.
// An empty pathTemplate selects the default layout.
func NewRenderer(outputDir, framework, pathTemplate string) *Renderer {
	if pathTemplate == "" {
		pathTemplate = DefaultPathTemplate
	}
	return &Renderer{
		outputDir:    outputDir,
		adapter:      ResolveAdapter(framework),
		pathTemplate: pathTemplate,
	}
}

// OutputDir returns the tree root this renderer writes into.
func (r *Renderer) OutputDir() string { return r.outputDir }

// Extension returns the adapter's target file extension.
func (r *Renderer) Extension() string { return r.adapter.Extension() }

// RelPath computes the relative output path for an entity.
func (r *Renderer) RelPath(label, id string) string {
	p := strings.ReplaceAll(r.pathTemplate, "{label}", label)
	p = strings.ReplaceAll(p, "{id}", id)
	p = strings.ReplaceAll(p, "{ext}", r.adapter.Extension())
	return p
}

// RenderEntity produces the full document bytes for one entity state.
func (r *Renderer) RenderEntity(es graph.EntityState, rels []graph.Relationship) ([]byte, error) {
	fm := map[string]any{
		"_id":       es.Entity.ID,
		"_label":    es.Entity.Label,
		"_version":  es.State.Version,
		"_syncHash": ComputeSyncHash(es.State.Props),
	}
	for k, v := range es.State.Props {
		if strings.HasPrefix(k, "_") || k == "content" {
			continue
		}
		fm[k] = v
	}
	fm = r.adapter.TransformFrontmatter(fm)

	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("docs: marshal frontmatter for %s: %w", es.Entity.ID, err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(fmBytes)
	sb.WriteString("---\n")

	if content, ok := es.State.Props["content"].(string); ok && content != "" {
		sb.WriteString("\n")
		sb.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			sb.WriteString("\n")
		}
	}

	if len(rels) > 0 {
		sb.WriteString("\n")
		sb.WriteString(diagramMarker)
		sb.WriteString("\n")
		sb.WriteString(r.adapter.WrapDiagram(relationshipDiagram(rels)))
	}

	return []byte(sb.String()), nil
}

// WriteEntity renders and writes one entity, skipping byte-identical
// files.
func (r *Renderer) WriteEntity(es graph.EntityState, rels []graph.Relationship) error {
	data, err := r.RenderEntity(es, rels)
	if err != nil {
		return err
	}
	return writeFileIfChanged(r.outputDir, r.RelPath(es.Entity.Label, es.Entity.ID), data)
}

// RenderAll projects every entity and regenerates the adapter index.
// relsOf supplies the active relationships of one entity.
func (r *Renderer) RenderAll(entities []graph.EntityState, relsOf func(id string) ([]graph.Relationship, error)) (int, error) {
	written := 0
	index := make(map[string][]string)
	for _, es := range entities {
		var rels []graph.Relationship
		if relsOf != nil {
			var err error
			rels, err = relsOf(es.Entity.ID)
			if err != nil {
				return written, err
			}
		}
		if err := r.WriteEntity(es, rels); err != nil {
			return written, err
		}
		written++
		index[es.Entity.Label] = append(index[es.Entity.Label], es.Entity.ID)
	}
	if err := r.adapter.GenerateIndex(index, r.outputDir); err != nil {
		return written, err
	}
	return written, nil
}

// relationshipDiagram renders active edges as a mermaid graph
// description.
func relationshipDiagram(rels []graph.Relationship) string {
	sorted := make([]graph.Relationship, len(rels))
	copy(sorted, rels)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		return a.ToID < b.ToID
	})

	var sb strings.Builder
	sb.WriteString("graph LR\n")
	for _, rel := range sorted {
		fmt.Fprintf(&sb, "  %s -->|%s| %s\n", nodeRef(rel.FromID), rel.Type, nodeRef(rel.ToID))
	}
	return sb.String()
}

// nodeRef produces a mermaid-safe node identifier.
func nodeRef(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	return safe + "[\"" + id + "\"]"
}
