package internal

import (
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kiln/internal/changetree"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Kiln    KilnConfig        `yaml:"kiln"`
	Storage StorageConfig     `yaml:"storage"`
	Auth    AuthConfig        `yaml:"auth"`
	Query   QueryConfig       `yaml:"query"`
	Changes ChangesConfig     `yaml:"changes"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Kiln.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	return c.Changes.Validate()
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

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// KilnConfig locates the Markdown corpus. Ignore holds doublestar globs
// relative to Path; a matching directory excludes everything below it.
type KilnConfig struct {
	Path   string   `yaml:"path"`
	Ignore []string `yaml:"ignore"`
}

// Validate validates the kiln configuration.
func (c *KilnConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Ignore, validation.Each(validation.By(validGlob))),
	)
}

func validGlob(v any) error {
	s, _ := v.(string)
	if !doublestar.ValidatePattern(s) {
		return fmt.Errorf("invalid glob %q", s)
	}
	return nil
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(BackendSQLite, BackendMemory)),
	); err != nil {
		return err
	}
	if c.Backend == BackendSQLite {
		return c.SQLite.Validate()
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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

// QueryConfig limits POST /api/query. RateLimit is requests per second;
// zero disables limiting.
type QueryConfig struct {
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// Validate validates the query configuration.
func (c *QueryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.When(c.RateLimit > 0, validation.Required, validation.Min(1))),
	)
}

// ChangesConfig controls change detection during ingestion.
type ChangesConfig struct {
	DiffMode string `yaml:"diff_mode"`
}

// Validate validates the changes configuration.
func (c *ChangesConfig) Validate() error {
	if c.DiffMode == "" {
		c.DiffMode = "positional"
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.DiffMode, validation.By(func(v any) error {
			if _, ok := changetree.ParseDiffMode(v.(string)); !ok {
				return fmt.Errorf("must be positional or content_set")
			}
			return nil
		})),
	)
}

// Mode returns the parsed diff mode.
func (c *ChangesConfig) Mode() changetree.DiffMode {
	m, _ := changetree.ParseDiffMode(c.DiffMode)
	return m
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
		Kiln: KilnConfig{
			Path:   "./kiln",
			Ignore: []string{".git", ".obsidian", ".trash"},
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				Path: "./kiln.db",
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Query: QueryConfig{
			RateLimit: 10,
			Burst:     20,
		},
		Changes: ChangesConfig{
			DiffMode: "positional",
		},
	}
}
