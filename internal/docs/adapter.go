package docs

import (
	"fmt"
	"sort"
	"strings"
)

// FormatAdapter customizes the rendered output for a documentation
// framework. Adapters may add frontmatter keys but must preserve _id,
// _label, _syncHash and _version.
type FormatAdapter interface {
	Name() string
	Extension() string
	TransformFrontmatter(base map[string]any) map[string]any
	WrapDiagram(code string) string
	// GenerateIndex optionally writes framework index files. entities is
	// label -> list of entity ids rendered under that label.
	GenerateIndex(entities map[string][]string, outputDir string) error
}

// ResolveAdapter returns the named adapter, falling back to pass-through
// for unknown names.
func ResolveAdapter(name string) FormatAdapter {
	switch name {
	case "obsidian":
		return obsidianAdapter{}
	case "docusaurus":
		return docusaurusAdapter{}
	default:
		return passthroughAdapter{}
	}
}

type passthroughAdapter struct{}

func (passthroughAdapter) Name() string      { return "passthrough" }
func (passthroughAdapter) Extension() string { return "md" }

func (passthroughAdapter) TransformFrontmatter(base map[string]any) map[string]any {
	return base
}

func (passthroughAdapter) WrapDiagram(code string) string {
	return "```mermaid\n" + code + "```\n"
}

func (passthroughAdapter) GenerateIndex(map[string][]string, string) error { return nil }

// obsidianAdapter emits vault-friendly notes: aliases for graph search
// and mermaid fences Obsidian renders natively.
type obsidianAdapter struct{}

func (obsidianAdapter) Name() string      { return "obsidian" }
func (obsidianAdapter) Extension() string { return "md" }

func (obsidianAdapter) TransformFrontmatter(base map[string]any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	if name, ok := base["name"].(string); ok && name != "" {
		out["aliases"] = []string{name}
	}
	return out
}

func (obsidianAdapter) WrapDiagram(code string) string {
	return "```mermaid\n" + code + "```\n"
}

func (obsidianAdapter) GenerateIndex(map[string][]string, string) error { return nil }

// docusaurusAdapter adds sidebar metadata and writes a single index page
// listing entities grouped by label.
type docusaurusAdapter struct{}

func (docusaurusAdapter) Name() string      { return "docusaurus" }
func (docusaurusAdapter) Extension() string { return "mdx" }

func (docusaurusAdapter) TransformFrontmatter(base map[string]any) map[string]any {
	out := make(map[string]any, len(base)+2)
	for k, v := range base {
		out[k] = v
	}
	if name, ok := base["name"].(string); ok && name != "" {
		out["sidebar_label"] = name
	}
	if label, ok := base["_label"].(string); ok {
		out["sidebar_class_name"] = "entity-" + strings.ToLower(label)
	}
	return out
}

func (docusaurusAdapter) WrapDiagram(code string) string {
	return "```mermaid\n" + code + "```\n"
}

func (docusaurusAdapter) GenerateIndex(entities map[string][]string, outputDir string) error {
	labels := make([]string, 0, len(entities))
	for l := range entities {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var sb strings.Builder
	sb.WriteString("---\nsidebar_position: 1\n---\n\n# Index\n\n")
	for _, label := range labels {
		ids := entities[label]
		sort.Strings(ids)
		sb.WriteString("## " + label + "\n\n")
		for _, id := range ids {
			fmt.Fprintf(&sb, "- [%s](./%s/%s.mdx)\n", id, label, id)
		}
		sb.WriteString("\n")
	}
	return writeFileIfChanged(outputDir, "index.mdx", []byte(sb.String()))
}
