package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sidenote/internal/autosave"
	"github.com/starford/sidenote/internal/document"
	"github.com/starford/sidenote/internal/recent"
	"github.com/starford/sidenote/internal/storage"
	"github.com/starford/sidenote/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Editor    EditorConfig      `yaml:"editor"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Recent    RecentConfig      `yaml:"recent"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.App),
		validation.Field(&c.Workspace),
		validation.Field(&c.Editor),
		validation.Field(&c.SQLite),
		validation.Field(&c.Recent),
		validation.Field(&c.Auth),
	)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig selects the folder being edited and which files count as
// documents.
type WorkspaceConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
}

// Validate validates the workspace configuration.
func (c WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.Length(2, 0))),
	)
}

// EditorConfig tunes autosave and file watching.
type EditorConfig struct {
	AutosaveDelay time.Duration `yaml:"autosave_delay"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	DefaultMode   string        `yaml:"default_mode"`
}

// Validate validates the editor configuration.
func (c EditorConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AutosaveDelay, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.DefaultMode, validation.In("read", "view", "edit")),
	)
}

// Mode returns the configured initial view mode.
func (c EditorConfig) Mode() document.Mode {
	m, err := document.ParseMode(c.DefaultMode)
	if err != nil {
		return document.ModeRead
	}
	return m
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c SQLiteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RecentConfig bounds the recent workspaces list.
type RecentConfig struct {
	Max int `yaml:"max"`
}

// Validate validates the recent configuration.
func (c RecentConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Max, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration. An empty mode means disabled.
func (c AuthConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Token,
			validation.When(c.Mode == AuthModeToken,
				validation.Required.Error(fmt.Sprintf("must be set when mode is %q", AuthModeToken)))),
	)
}

// AuthEnabled returns true when authentication is active.
func (c AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
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
		Workspace: WorkspaceConfig{
			Root:       ".",
			Extensions: append([]string(nil), storage.DefaultExtensions...),
		},
		Editor: EditorConfig{
			AutosaveDelay: autosave.DefaultDelay,
			WatchDebounce: watch.DefaultDebounce,
			DefaultMode:   "read",
		},
		SQLite: SQLiteConfig{
			Path: "./sidenote.db",
		},
		Recent: RecentConfig{
			Max: recent.DefaultMax,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
