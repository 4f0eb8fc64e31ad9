package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	gap "github.com/muesli/go-app-paths"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

const appName = "lockchime"

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Catalog  CatalogConfig     `yaml:"catalog"`
	Cache    CacheConfig       `yaml:"cache"`
	Download DownloadConfig    `yaml:"download"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Download.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplyEnv overrides fields from LOCKCHIME_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("config: env overrides: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" env:"LOCKCHIME_LOG_LEVEL"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" env:"LOCKCHIME_HTTP_PORT"`
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

// CatalogConfig points at the catalog document. An empty path selects the
// catalog embedded in the binary.
type CatalogConfig struct {
	Path string `yaml:"path" env:"LOCKCHIME_CATALOG_PATH"`
}

// Embedded reports whether the built-in catalog is used.
func (c *CatalogConfig) Embedded() bool {
	return c.Path == ""
}

// CacheConfig holds the download cache locations.
type CacheConfig struct {
	Dir        string `yaml:"dir" env:"LOCKCHIME_CACHE_DIR"`
	SQLitePath string `yaml:"sqlite_path" env:"LOCKCHIME_SQLITE_PATH"`
	Watch      bool   `yaml:"watch" env:"LOCKCHIME_CACHE_WATCH"`
}

// Validate validates the cache configuration. The index database must live
// outside AudioDir because clearing the cache empties that directory.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.SQLitePath, validation.Required, validation.By(c.outsideDir)),
	)
}

func (c *CacheConfig) outsideDir(value interface{}) error {
	dbPath, _ := value.(string)
	if c.Dir == "" || dbPath == "" {
		return nil
	}
	dir, err := filepath.Abs(c.AudioDir())
	if err != nil {
		return err
	}
	db, err := filepath.Abs(dbPath)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(dir, db)
	if err != nil {
		return nil
	}
	if rel == "." || !strings.HasPrefix(rel, "..") {
		return errors.New("must not be inside the audio cache dir")
	}
	return nil
}

// AudioDir returns the directory holding cached audio files.
func (c *CacheConfig) AudioDir() string {
	return filepath.Join(c.Dir, "sounds")
}

// DownloadConfig tunes the download manager.
type DownloadConfig struct {
	Timeout           time.Duration `yaml:"timeout" env:"LOCKCHIME_DOWNLOAD_TIMEOUT"`
	Concurrency       int           `yaml:"concurrency" env:"LOCKCHIME_DOWNLOAD_CONCURRENCY"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"LOCKCHIME_DOWNLOAD_RPS"`
	UserAgent         string        `yaml:"user_agent" env:"LOCKCHIME_DOWNLOAD_USER_AGENT"`
}

// Validate validates the download configuration.
func (c *DownloadConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(32)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" env:"LOCKCHIME_AUTH_MODE"`
	Token string `yaml:"token" env:"LOCKCHIME_AUTH_TOKEN"`
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

// defaultCacheDir resolves the per-user cache directory, falling back to a
// local directory when the platform location is unknown.
func defaultCacheDir() string {
	dir, err := gap.NewScope(gap.User, appName).CacheDir()
	if err != nil || dir == "" {
		return filepath.Join(os.TempDir(), appName)
	}
	return dir
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	dir := defaultCacheDir()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Cache: CacheConfig{
			Dir:        dir,
			SQLitePath: filepath.Join(dir, "index.db"),
			Watch:      true,
		},
		Download: DownloadConfig{
			Timeout:           2 * time.Minute,
			Concurrency:       3,
			RequestsPerSecond: 4,
			UserAgent:         "lockchime/1.0",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
