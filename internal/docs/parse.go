package docs

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParsedDoc is one document read back from the projection tree.
type ParsedDoc struct {
	FilePath     string
	RelativePath string
	Frontmatter  map[string]any
	Content      string
	Raw          []byte
}

// ID returns the frontmatter _id, or empty.
func (d *ParsedDoc) ID() string {
	s, _ := d.Frontmatter["_id"].(string)
	return s
}

// Label returns the frontmatter _label, or empty.
func (d *ParsedDoc) Label() string {
	s, _ := d.Frontmatter["_label"].(string)
	return s
}

// SyncHash returns the frontmatter _syncHash, or empty.
func (d *ParsedDoc) SyncHash() string {
	s, _ := d.Frontmatter["_syncHash"].(string)
	return s
}

// Props reconstructs the entity's user properties from the document:
// every non-underscore frontmatter key plus the body as "content".
func (d *ParsedDoc) Props() map[string]any {
	out := make(map[string]any, len(d.Frontmatter)+1)
	for k, v := range d.Frontmatter {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	if d.Content != "" {
		out["content"] = d.Content
	}
	return out
}

// ParseTree reads every *.ext file under dir. Documents missing _id or
// _label are skipped with a warning rather than aborting the walk.
func ParseTree(dir, ext string, logger *slog.Logger) ([]ParsedDoc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	suffix := "." + strings.TrimPrefix(ext, ".")
	var out []ParsedDoc
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		doc := ParseDoc(data)
		doc.FilePath = p
		doc.RelativePath = rel
		if doc.ID() == "" || doc.Label() == "" {
			logger.Warn("docs: skipping file without _id/_label", slog.String("path", rel))
			return nil
		}
		out = append(out, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docs: parse tree: %w", err)
	}
	return out, nil
}

// ParseDoc splits raw document bytes into frontmatter and content. The
// generated relationship diagram is stripped from the content.
func ParseDoc(data []byte) ParsedDoc {
	doc := ParsedDoc{Raw: data}
	fm, body := splitFrontmatter(data)
	doc.Frontmatter = fm
	if i := strings.Index(body, diagramMarker); i >= 0 {
		body = body[:i]
	}
	doc.Content = strings.TrimRight(body, "\n")
	if doc.Content != "" {
		doc.Content += "\n"
	}
	return doc
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the body. Missing or invalid frontmatter yields a nil
// map and the whole input as body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}
