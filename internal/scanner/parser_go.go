package scanner

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	goFuncRe       = regexp.MustCompile(`^func\s+(?:\(\s*\w+\s+\*?([\w]+)\s*\)\s+)?([A-Za-z_]\w*)\s*\(`)
	goStructRe     = regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+struct\b`)
	goInterfaceRe  = regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+interface\b`)
	goImportOneRe  = regexp.MustCompile(`^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportLineRe = regexp.MustCompile(`^\s*(?:\w+\s+|\.\s+|_\s+)?"([^"]+)"`)
	goModuleRe     = regexp.MustCompile(`^module\s+(\S+)`)
	goRequireRe    = regexp.MustCompile(`^\s*([\w./-]+\.[\w./-]+)\s+v\S+`)
)

func parseGo(f *FileInfo) ([]RawArtifact, error) {
	if filepath.Base(f.RelativePath) == "go.mod" {
		return parseGoMod(f), nil
	}

	var out []RawArtifact
	var imports []Ref
	inImportBlock := false

	lines := strings.Split(string(f.Content), "\n")
	for i, line := range lines {
		if inImportBlock {
			if strings.HasPrefix(strings.TrimSpace(line), ")") {
				inImportBlock = false
				continue
			}
			if m := goImportLineRe.FindStringSubmatch(line); m != nil {
				imports = append(imports, Ref{Kind: RefImports, Target: m[1]})
			}
			continue
		}
		if strings.HasPrefix(line, "import (") {
			inImportBlock = true
			continue
		}
		if m := goImportOneRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Ref{Kind: RefImports, Target: m[1]})
			continue
		}

		if m := goStructRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindType, Name: m[1], FilePath: f.RelativePath,
				Language: LangGo, Line: i + 1,
				Meta: map[string]any{"form": "struct"},
			})
			continue
		}
		if m := goInterfaceRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindInterface, Name: m[1], FilePath: f.RelativePath,
				Language: LangGo, Line: i + 1,
			})
			continue
		}
		if m := goFuncRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindFunction, Name: m[2], FilePath: f.RelativePath,
				Language: LangGo, Line: i + 1,
				Meta: map[string]any{},
			}
			if m[1] != "" {
				art.Meta["receiver"] = m[1]
			}
			out = append(out, art)
		}
	}

	if len(imports) > 0 {
		out = append(out, RawArtifact{
			Kind: KindFile, Name: f.RelativePath, FilePath: f.RelativePath,
			Language: LangGo, Refs: imports,
		})
	}
	return out, nil
}

// parseGoMod yields the module artifact plus one dependency per require.
func parseGoMod(f *FileInfo) []RawArtifact {
	var out []RawArtifact
	moduleIdx := -1
	inRequire := false

	for i, line := range strings.Split(string(f.Content), "\n") {
		if m := goModuleRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindModule, Name: m[1], FilePath: f.RelativePath,
				Language: LangGo, Line: i + 1,
			})
			moduleIdx = len(out) - 1
			continue
		}
		if strings.HasPrefix(line, "require (") {
			inRequire = true
			continue
		}
		if inRequire && strings.HasPrefix(strings.TrimSpace(line), ")") {
			inRequire = false
			continue
		}
		target := ""
		if inRequire {
			if m := goRequireRe.FindStringSubmatch(line); m != nil {
				target = m[1]
			}
		} else if strings.HasPrefix(line, "require ") {
			if m := goRequireRe.FindStringSubmatch(strings.TrimPrefix(line, "require ")); m != nil {
				target = m[1]
			}
		}
		if target == "" {
			continue
		}
		out = append(out, RawArtifact{
			Kind: KindDependency, Name: target, FilePath: f.RelativePath,
			Language: LangGo, Line: i + 1,
		})
		if moduleIdx >= 0 {
			out[moduleIdx].Refs = append(out[moduleIdx].Refs, Ref{Kind: RefDependsOn, Target: target})
		}
	}
	return out
}
