package scanner

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	envLineRe      = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=`)
	dockerEnvRe    = regexp.MustCompile(`^ENV\s+([A-Za-z_][A-Za-z0-9_]*)[= ]`)
	dockerFromRe   = regexp.MustCompile(`^FROM\s+(\S+)`)
	dockerExposeRe = regexp.MustCompile(`^EXPOSE\s+(\d+)`)
)

// parseGeneric dispatches on recognized basenames, falls back to JSON
// top-level keys, and finally yields nothing beyond the file artifact.
func parseGeneric(f *FileInfo) ([]RawArtifact, error) {
	switch base := filepath.Base(f.RelativePath); {
	case base == "package.json":
		return parsePackageJSON(f), nil
	case base == "tsconfig.json":
		return parseTSConfig(f), nil
	case base == ".env" || strings.HasPrefix(base, ".env."):
		return parseEnvFile(f), nil
	case base == "Dockerfile":
		return parseDockerfile(f), nil
	case strings.HasSuffix(base, ".json"):
		return parseJSONKeys(f), nil
	default:
		return nil, nil
	}
}

func parsePackageJSON(f *FileInfo) []RawArtifact {
	var pkg struct {
		Name            string            `json:"name"`
		Version         string            `json:"version"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(f.Content, &pkg); err != nil {
		return nil
	}
	var out []RawArtifact
	module := RawArtifact{
		Kind: KindModule, Name: pkg.Name, FilePath: f.RelativePath,
		Language: LangGeneric,
		Meta:     map[string]any{"version": pkg.Version},
	}
	if module.Name == "" {
		module.Name = f.RelativePath
	}

	addDeps := func(deps map[string]string, dev bool) {
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, RawArtifact{
				Kind: KindDependency, Name: name, FilePath: f.RelativePath,
				Language: LangGeneric,
				Meta:     map[string]any{"version": deps[name], "dev": dev},
			})
			module.Refs = append(module.Refs, Ref{Kind: RefDependsOn, Target: name})
		}
	}
	addDeps(pkg.Dependencies, false)
	addDeps(pkg.DevDependencies, true)

	return append([]RawArtifact{module}, out...)
}

func parseTSConfig(f *FileInfo) []RawArtifact {
	var cfg struct {
		CompilerOptions map[string]any `json:"compilerOptions"`
	}
	if err := json.Unmarshal(f.Content, &cfg); err != nil {
		return nil
	}
	keys := make([]string, 0, len(cfg.CompilerOptions))
	for k := range cfg.CompilerOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []RawArtifact
	for _, k := range keys {
		out = append(out, RawArtifact{
			Kind: KindConfigKey, Name: k, FilePath: f.RelativePath,
			Language: LangGeneric,
			Meta:     map[string]any{"section": "compilerOptions"},
		})
	}
	return out
}

func parseEnvFile(f *FileInfo) []RawArtifact {
	var out []RawArtifact
	for i, line := range strings.Split(string(f.Content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m := envLineRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindEnvVar, Name: m[1], FilePath: f.RelativePath,
				Language: LangGeneric, Line: i + 1,
			})
		}
	}
	return out
}

func parseDockerfile(f *FileInfo) []RawArtifact {
	var out []RawArtifact
	for i, line := range strings.Split(string(f.Content), "\n") {
		line = strings.TrimSpace(line)
		if m := dockerFromRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindDependency, Name: m[1], FilePath: f.RelativePath,
				Language: LangGeneric, Line: i + 1,
				Meta: map[string]any{"baseImage": true},
			})
			continue
		}
		if m := dockerEnvRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindEnvVar, Name: m[1], FilePath: f.RelativePath,
				Language: LangGeneric, Line: i + 1,
			})
			continue
		}
		if m := dockerExposeRe.FindStringSubmatch(line); m != nil {
			out = append(out, RawArtifact{
				Kind: KindConfigKey, Name: "expose:" + m[1], FilePath: f.RelativePath,
				Language: LangGeneric, Line: i + 1,
			})
		}
	}
	return out
}

func parseJSONKeys(f *FileInfo) []RawArtifact {
	var doc map[string]any
	if err := json.Unmarshal(f.Content, &doc); err != nil {
		return nil
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []RawArtifact
	for _, k := range keys {
		out = append(out, RawArtifact{
			Kind: KindConfigKey, Name: k, FilePath: f.RelativePath,
			Language: LangGeneric,
		})
	}
	return out
}
