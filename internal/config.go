package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gitnotes/internal/snippet"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app" toml:"app"`
	Repository RepositoryConfig  `yaml:"repository" toml:"repository"`
	Editor     EditorConfig      `yaml:"editor" toml:"editor"`
	Snippet    SnippetConfig     `yaml:"snippet" toml:"snippet"`
	Auth       AuthConfig        `yaml:"auth" toml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Repository.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
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

// RepositoryConfig locates the notes repository and the identity used for
// its commits. An empty user name or email falls back to the global git
// configuration.
//
// With UseWorkingDir, paths given on the command line are taken relative
// to the process working directory mapped into BaseDir, instead of the
// virtual working directory of the session.
type RepositoryConfig struct {
	Path          string `yaml:"path" toml:"path"`
	UserName      string `yaml:"user_name" toml:"user_name"`
	UserEmail     string `yaml:"user_email" toml:"user_email"`
	BaseDir       string `yaml:"base_dir" toml:"base_dir"`
	UseWorkingDir bool   `yaml:"use_working_dir" toml:"use_working_dir"`
}

// Validate validates the repository configuration.
func (c *RepositoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.BaseDir, validation.When(c.UseWorkingDir, validation.Required)),
	)
}

// EditorConfig holds the external editor settings.
type EditorConfig struct {
	Command string `yaml:"command" toml:"command"`
	// AllowStdin lets add and edit take the note content from piped input.
	AllowStdin bool `yaml:"allow_stdin" toml:"allow_stdin"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
	)
}

// SnippetConfig overrides the toolchains used to run code blocks. Zero
// values keep the runner defaults.
type SnippetConfig struct {
	Python snippet.PythonConfig `yaml:"python" toml:"python"`
	Cpp    snippet.CppConfig    `yaml:"cpp" toml:"cpp"`
	Rust   snippet.RustConfig   `yaml:"rust" toml:"rust"`
}

// Languages returns the configured language overrides.
func (c *SnippetConfig) Languages() []snippet.LanguageConfig {
	var out []snippet.LanguageConfig
	if c.Python.Executable != "" {
		out = append(out, c.Python)
	}
	if c.Cpp.Compiler != "" {
		out = append(out, c.Cpp)
	}
	if c.Rust.Compiler != "" {
		out = append(out, c.Rust)
	}
	return out
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	repo := ".gitnotes"
	if home, err := os.UserHomeDir(); err == nil {
		repo = filepath.Join(home, ".gitnotes")
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Repository: RepositoryConfig{
			Path: repo,
		},
		Editor: EditorConfig{
			Command:    "code",
			AllowStdin: true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
