package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/thefounder-seb/btmg/internal/reconcile"
	"github.com/thefounder-seb/btmg/internal/scanner"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Auth    AuthConfig        `yaml:"auth"`
	Storage StorageConfig     `yaml:"storage"`
	Schema  SchemaConfig      `yaml:"schema"`
	Docs    DocsConfig        `yaml:"docs"`
	Sync    SyncConfig        `yaml:"sync"`
	Scan    ScanConfig        `yaml:"scan"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.Auth, &c.Storage, &c.Schema, &c.Docs, &c.Sync, &c.Scan,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// StorageConfig holds the graph database location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SchemaConfig points at the declarative schema file.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the schema configuration.
func (c *SchemaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DocsConfig configures the document projection.
type DocsConfig struct {
	OutputDir    string `yaml:"output_dir"`
	Format       string `yaml:"format"`
	Framework    string `yaml:"framework"`
	PathTemplate string `yaml:"path_template"`
	Watch        bool   `yaml:"watch"`
}

// Validate validates the docs configuration. An empty OutputDir disables
// the projection entirely.
func (c *DocsConfig) Validate() error {
	return nil
}

// Enabled reports whether the doc projection is configured.
func (c *DocsConfig) Enabled() bool {
	return c.OutputDir != ""
}

// SyncConfig configures reconciliation.
type SyncConfig struct {
	ConflictStrategy string `yaml:"conflict_strategy"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.ConflictStrategy == "" {
		c.ConflictStrategy = string(reconcile.GraphWins)
	}
	if !reconcile.ValidStrategy(reconcile.Strategy(c.ConflictStrategy)) {
		return fmt.Errorf("sync: unknown conflict strategy %q", c.ConflictStrategy)
	}
	return nil
}

// Strategy returns the configured conflict strategy.
func (c *SyncConfig) Strategy() reconcile.Strategy {
	if c.ConflictStrategy == "" {
		return reconcile.GraphWins
	}
	return reconcile.Strategy(c.ConflictStrategy)
}

// RemoteConfig bounds shallow clones of remote scan targets.
type RemoteConfig struct {
	Depth  int    `yaml:"depth"`
	Branch string `yaml:"branch"`
}

// ScanConfig configures the codebase scanner.
type ScanConfig struct {
	Include   []string              `yaml:"include"`
	Exclude   []string              `yaml:"exclude"`
	Languages []string              `yaml:"languages"`
	Mappings  []scanner.MappingRule `yaml:"mappings"`
	Remote    RemoteConfig          `yaml:"remote"`
}

// Validate validates the scan configuration.
func (c *ScanConfig) Validate() error {
	if c.Remote.Depth < 0 {
		return fmt.Errorf("scan: remote depth must not be negative")
	}
	return nil
}

// Options converts the config block into scanner options.
func (c *ScanConfig) Options() scanner.Options {
	langs := make([]scanner.Language, 0, len(c.Languages))
	for _, l := range c.Languages {
		langs = append(langs, scanner.Language(l))
	}
	return scanner.Options{
		Include:      c.Include,
		Exclude:      c.Exclude,
		Languages:    langs,
		Mappings:     c.Mappings,
		RemoteDepth:  c.Remote.Depth,
		RemoteBranch: c.Remote.Branch,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Storage: StorageConfig{
			Path: "./btmg.db",
		},
		Schema: SchemaConfig{
			Path: "./schema.yaml",
		},
		Docs: DocsConfig{
			OutputDir: "./docs",
			Format:    "md",
		},
		Sync: SyncConfig{
			ConflictStrategy: string(reconcile.GraphWins),
		},
		Scan: ScanConfig{
			Remote: RemoteConfig{Depth: 1},
		},
	}
}
