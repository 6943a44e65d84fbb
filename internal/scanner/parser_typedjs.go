package scanner

import (
	"regexp"
	"strings"
)

// Forgiving line-oriented patterns for the typed-JS family. They chase
// exported declarations and literal import sources, nothing more.
var (
	jsFuncRe      = regexp.MustCompile(`^\s*export\s+(?:default\s+)?(?:async\s+)?function\s+([A-Za-z_$][\w$]*)`)
	jsArrowRe     = regexp.MustCompile(`^\s*export\s+const\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s*)?\(`)
	jsClassRe     = regexp.MustCompile(`^\s*export\s+(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)(?:\s+extends\s+([\w$.]+))?(?:\s+implements\s+([\w$.][\w$.,\s]*))?`)
	jsInterfaceRe = regexp.MustCompile(`^\s*export\s+interface\s+([A-Za-z_$][\w$]*)(?:\s+extends\s+([\w$.][\w$.,\s]*))?`)
	jsTypeRe      = regexp.MustCompile(`^\s*export\s+type\s+([A-Za-z_$][\w$]*)`)
	jsImportRe    = regexp.MustCompile(`^\s*import\s+(?:[^'"]*\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequireRe   = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
)

func parseTypedJS(f *FileInfo) ([]RawArtifact, error) {
	var out []RawArtifact
	var imports []Ref

	lines := strings.Split(string(f.Content), "\n")
	for i, line := range lines {
		if m := jsImportRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Ref{Kind: RefImports, Target: m[1]})
			continue
		}
		if m := jsRequireRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Ref{Kind: RefImports, Target: m[1]})
		}

		if m := jsFuncRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindFunction, Name: m[1], FilePath: f.RelativePath,
				Language: f.Language, Line: i + 1,
				Meta: map[string]any{"exported": true},
			})
			continue
		}
		if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindFunction, Name: m[1], FilePath: f.RelativePath,
				Language: f.Language, Line: i + 1,
				Meta: map[string]any{"exported": true, "arrow": true},
			})
			continue
		}
		if m := jsClassRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindClass, Name: m[1], FilePath: f.RelativePath,
				Language: f.Language, Line: i + 1,
				Meta: map[string]any{"exported": true},
			}
			if m[2] != "" {
				art.Meta["extends"] = m[2]
				art.Refs = append(art.Refs, Ref{Kind: RefExtends, Target: m[2]})
			}
			for _, impl := range splitNameList(m[3]) {
				art.Refs = append(art.Refs, Ref{Kind: RefImplements, Target: impl})
			}
			out = append(out, art)
			continue
		}
		if m := jsInterfaceRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindInterface, Name: m[1], FilePath: f.RelativePath,
				Language: f.Language, Line: i + 1,
				Meta: map[string]any{"exported": true},
			}
			for _, base := range splitNameList(m[2]) {
				art.Refs = append(art.Refs, Ref{Kind: RefExtends, Target: base})
			}
			out = append(out, art)
			continue
		}
		if m := jsTypeRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindType, Name: m[1], FilePath: f.RelativePath,
				Language: f.Language, Line: i + 1,
				Meta: map[string]any{"exported": true},
			})
		}
	}

	// Imports hang off the file artifact itself.
	if len(imports) > 0 {
		out = append(out, RawArtifact{
			Kind: KindFile, Name: f.RelativePath, FilePath: f.RelativePath,
			Language: f.Language, Refs: imports,
		})
	}
	return out, nil
}

func splitNameList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "{"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
