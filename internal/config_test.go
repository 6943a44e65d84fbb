package internal

import (
	"os"
	"path/filepath"
	"testing"

	pkgconfig "github.com/thefounder-seb/btmg/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Sync.Strategy() != "graph-wins" {
		t.Errorf("default strategy = %s", cfg.Sync.Strategy())
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 must be rejected")
	}

	cfg = NewDefaultConfig()
	cfg.Auth.Mode = AuthModeToken
	if err := cfg.Validate(); err == nil {
		t.Error("token mode without token must be rejected")
	}

	cfg = NewDefaultConfig()
	cfg.Sync.ConflictStrategy = "coin-flip"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown strategy must be rejected")
	}

	cfg = NewDefaultConfig()
	cfg.Storage.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty storage path must be rejected")
	}
}

func TestLoadConfigWithEnvExpansion(t *testing.T) {
	t.Setenv("BTMG_TEST_PORT", "9191")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  log_level: debug
  http:
    port: ${BTMG_TEST_PORT}
storage:
  path: ./test.db
schema:
  path: ./schema.yaml
sync:
  conflict_strategy: merge
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.HTTP.Port != 9191 {
		t.Errorf("port = %d, want expanded 9191", cfg.App.HTTP.Port)
	}
	if cfg.Sync.Strategy() != "merge" {
		t.Errorf("strategy = %s", cfg.Sync.Strategy())
	}
	// Defaults survive for untouched sections.
	if cfg.Docs.OutputDir != "./docs" {
		t.Errorf("docs dir = %s", cfg.Docs.OutputDir)
	}
}

func TestAuthEnabled(t *testing.T) {
	c := AuthConfig{Mode: AuthModeToken, Token: "s"}
	if !c.AuthEnabled() {
		t.Error("token mode must report enabled")
	}
	c = AuthConfig{Mode: AuthModeDisabled}
	if c.AuthEnabled() {
		t.Error("disabled mode must not report enabled")
	}
}
