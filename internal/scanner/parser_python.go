package scanner

import (
	"regexp"
	"strings"
)

var (
	pyDefRe       = regexp.MustCompile(`^def\s+([A-Za-z_]\w*)\s*\(`)
	pyClassRe     = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*(?:\(([^)]*)\))?\s*:`)
	pyDecoratorRe = regexp.MustCompile(`^@([\w.]+)`)
	pyImportRe    = regexp.MustCompile(`^import\s+([\w.]+)`)
	pyFromRe      = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)`)
)

func parsePython(f *FileInfo) ([]RawArtifact, error) {
	var out []RawArtifact
	var imports []Ref
	var decorators []string

	lines := strings.Split(string(f.Content), "\n")
	for i, line := range lines {
		if m := pyDecoratorRe.FindStringSubmatch(line); m != nil {
			decorators = append(decorators, m[1])
			continue
		}

		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Ref{Kind: RefImports, Target: m[1]})
			decorators = nil
			continue
		}
		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Ref{Kind: RefImports, Target: m[1]})
			decorators = nil
			continue
		}

		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindFunction, Name: m[1], FilePath: f.RelativePath,
				Language: LangPython, Line: i + 1,
				Meta: map[string]any{},
			}
			if len(decorators) > 0 {
				art.Meta["decorators"] = append([]string(nil), decorators...)
			}
			out = append(out, art)
			decorators = nil
			continue
		}
		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindClass, Name: m[1], FilePath: f.RelativePath,
				Language: LangPython, Line: i + 1,
				Meta: map[string]any{},
			}
			for _, base := range splitNameList(m[2]) {
				if base == "object" {
					continue
				}
				art.Meta["bases"] = appendMetaList(art.Meta["bases"], base)
				art.Refs = append(art.Refs, Ref{Kind: RefExtends, Target: base})
			}
			out = append(out, art)
			decorators = nil
			continue
		}

		if strings.TrimSpace(line) != "" {
			decorators = nil
		}
	}

	if len(imports) > 0 {
		out = append(out, RawArtifact{
			Kind: KindFile, Name: f.RelativePath, FilePath: f.RelativePath,
			Language: LangPython, Refs: imports,
		})
	}
	return out, nil
}

func appendMetaList(existing any, item string) []string {
	list, _ := existing.([]string)
	return append(list, item)
}
