package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thefounder-seb/btmg/internal/checksum"
)

// defaultIncludes are basename globs covering common source files and
// generic manifests.
var defaultIncludes = []string{
	"*.ts", "*.tsx", "*.js", "*.jsx", "*.mjs",
	"*.py", "*.go",
	"*.json", "*.yaml", "*.yml", "*.toml",
	".env", ".env.*",
	"Dockerfile", "go.mod", "package.json", "tsconfig.json",
}

// defaultExcludes are directory names pruned unconditionally.
var defaultExcludes = []string{
	"node_modules", "vendor", ".git", "dist", "build", "out",
	".next", "__pycache__", ".venv", "venv", "target",
	".cache", "coverage", ".scanstate",
}

// discovery is the output of the discover stage.
type discovery struct {
	fingerprints map[string]FileFingerprint
	parseable    []*FileInfo
	removed      []string
}

// discover expands the include globs against root, prunes the exclude
// set, hashes every surviving file in parallel, and gates the parseable
// subset against the previous fingerprint store.
func (s *Scanner) discover(ctx context.Context, root string, prior map[string]FileFingerprint) (*discovery, error) {
	includes := s.opts.Include
	if len(includes) == 0 {
		includes = defaultIncludes
	}
	excluded := make(map[string]struct{}, len(defaultExcludes)+len(s.opts.Exclude))
	for _, e := range defaultExcludes {
		excluded[e] = struct{}{}
	}
	for _, e := range s.opts.Exclude {
		excluded[e] = struct{}{}
	}

	var candidates []*FileInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if _, skip := excluded[d.Name()]; skip && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchAny(includes, d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		candidates = append(candidates, &FileInfo{
			RelativePath: rel,
			AbsPath:      p,
			Language:     detectLanguage(d.Name()),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: discover: %w", err)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RelativePath < candidates[j].RelativePath
	})

	// Content hashing fans out across cores.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, f := range candidates {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.AbsPath)
			if err != nil {
				return fmt.Errorf("scanner: read %s: %w", f.RelativePath, err)
			}
			f.Content = data
			f.Hash = checksum.Sum(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := &discovery{fingerprints: make(map[string]FileFingerprint, len(candidates))}
	for _, f := range candidates {
		out.fingerprints[f.RelativePath] = FileFingerprint{
			RelativePath: f.RelativePath,
			Hash:         f.Hash,
			Size:         f.Size,
			RecordedAt:   now,
		}
	}

	languages := s.parseLanguages()
	for _, f := range candidates {
		if _, ok := languages[f.Language]; !ok {
			continue
		}
		if prev, seen := prior[f.RelativePath]; seen && prev.Hash == f.Hash {
			continue
		}
		out.parseable = append(out.parseable, f)
	}

	for rel := range prior {
		if _, still := out.fingerprints[rel]; !still {
			out.removed = append(out.removed, rel)
		}
	}
	sort.Strings(out.removed)

	return out, nil
}

// parseLanguages returns the language filter set; empty config means all
// built-in languages.
func (s *Scanner) parseLanguages() map[Language]struct{} {
	langs := s.opts.Languages
	if len(langs) == 0 {
		langs = []Language{LangTypeScript, LangJavaScript, LangPython, LangGo, LangGeneric}
	}
	set := make(map[Language]struct{}, len(langs))
	for _, l := range langs {
		set[l] = struct{}{}
	}
	return set
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// detectLanguage checks the basename first, then the extension, falling
// through to generic.
func detectLanguage(name string) Language {
	switch name {
	case "go.mod":
		return LangGo
	case "Dockerfile", "package.json", "tsconfig.json":
		return LangGeneric
	}
	if name == ".env" || strings.HasPrefix(name, ".env.") {
		return LangGeneric
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ts", ".tsx":
		return LangTypeScript
	case ".js", ".jsx", ".mjs":
		return LangJavaScript
	case ".py":
		return LangPython
	case ".go":
		return LangGo
	default:
		return LangGeneric
	}
}
