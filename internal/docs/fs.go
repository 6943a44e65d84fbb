package docs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// safeJoin resolves rel against root and rejects any result escaping it.
func safeJoin(root, rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("docs: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(root, cleaned))
	if err != nil {
		return "", fmt.Errorf("docs: resolve path: %w", err)
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("docs: resolve root: %w", err)
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("docs: path escapes output dir: %s", rel)
	}
	return abs, nil
}

// writeFileIfChanged atomically writes content to root/rel, skipping the
// write entirely when the file already holds exactly those bytes.
func writeFileIfChanged(root, rel string, content []byte) error {
	abs, err := safeJoin(root, rel)
	if err != nil {
		return err
	}
	if existing, readErr := os.ReadFile(abs); readErr == nil && bytes.Equal(existing, content) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("docs: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".btmg-tmp-*")
	if err != nil {
		return fmt.Errorf("docs: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("docs: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("docs: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("docs: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("docs: rename: %w", err)
	}
	return nil
}
