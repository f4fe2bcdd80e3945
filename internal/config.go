package internal

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mind/internal/tree"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Tree        TreeConfig        `yaml:"tree"`
	Data        DataConfig        `yaml:"data"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Persistence.Validate(); err != nil {
		return err
	}
	if err := c.Tree.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// HTTPConfig holds HTTP server configuration. The server binds to loopback
// unless Host says otherwise.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// PersistenceConfig locates global state: the global tree, global-project
// trees and the project registry.
type PersistenceConfig struct {
	StateDir string `yaml:"state_dir"`
	// RegistryPath defaults to registry.db inside StateDir.
	RegistryPath string `yaml:"registry_path"`
}

// Validate validates the persistence configuration.
func (c *PersistenceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StateDir, validation.Required),
	)
}

// Registry returns the project registry database path.
func (c *PersistenceConfig) Registry() string {
	if c.RegistryPath != "" {
		return c.RegistryPath
	}
	return filepath.Join(c.StateDir, "registry.db")
}

// TreeConfig holds the root of implicitly created trees.
type TreeConfig struct {
	RootName string `yaml:"root_name"`
	RootIcon string `yaml:"root_icon"`
}

// Validate validates the tree configuration.
func (c *TreeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RootName, validation.Required),
	)
}

// DataConfig holds data file defaults. Templates are keyed by content type
// name and may use ${id}, ${text} and ${content_type}.
type DataConfig struct {
	ContentType string            `yaml:"content_type"`
	Templates   map[string]string `yaml:"templates"`
}

var contentTypeRule = validation.By(func(v any) error {
	s, _ := v.(string)
	if _, err := tree.ParseContentType(s); err != nil {
		return err
	}
	return nil
})

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ContentType, contentTypeRule),
	); err != nil {
		return err
	}
	for name := range c.Templates {
		if err := validation.Validate(name, contentTypeRule); err != nil {
			return fmt.Errorf("data: templates: %w", err)
		}
	}
	return nil
}

// DefaultContentType returns the content type of new data nodes.
func (c *DataConfig) DefaultContentType() tree.ContentType {
	ct, err := tree.ParseContentType(c.ContentType)
	if err != nil {
		return tree.ContentMarkdown
	}
	return ct
}

// TreeTemplates converts the configured templates.
func (c *DataConfig) TreeTemplates() tree.Templates {
	out := make(tree.Templates, len(c.Templates))
	for name, tmpl := range c.Templates {
		if ct, err := tree.ParseContentType(name); err == nil {
			out[ct] = tmpl
		}
	}
	return out
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for loopback use.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelWarn,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 7878,
			},
		},
		Persistence: PersistenceConfig{
			StateDir: DefaultStateDir(),
		},
		Tree: TreeConfig{
			RootName: "mind",
		},
		Data: DataConfig{
			ContentType: string(tree.ContentMarkdown),
			Templates: map[string]string{
				string(tree.ContentMarkdown): "# ${text}\n",
				string(tree.ContentOrg):      "#+TITLE: ${text}\n",
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

// DefaultStateDir is $XDG_DATA_HOME/mind, falling back to ~/.local/share/mind.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "mind")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".mind-state")
	}
	return filepath.Join(home, ".local", "share", "mind")
}

// DefaultConfigFile is $XDG_CONFIG_HOME/mind/config.yaml.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("config", "config.yaml")
	}
	return filepath.Join(dir, "mind", "config.yaml")
}
