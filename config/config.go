// Package config loads the ferrule configuration from TOML files and the
// environment and converts it into the Config structs the language server
// and tool server managers consume.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/langserver"
	"github.com/ferrule-dev/ferrule/toolserver"
)

// Config is the root ferrule configuration. The toml, json, and yaml tags
// keep "ferrule config show" output pasteable back into ferrule.toml.
type Config struct {
	Log       LogConfig                 `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
	Code      CodeConfig                `mapstructure:"code" toml:"code" json:"code" yaml:"code"`
	Languages map[string]LanguageConfig `mapstructure:"languages" toml:"languages" json:"languages" yaml:"languages"`
	Servers   map[string]ServerConfig   `mapstructure:"servers" toml:"servers,omitempty" json:"servers,omitempty" yaml:"servers,omitempty"`
}

// LogConfig configures CLI logging
type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level" json:"level" yaml:"level"`     // debug, info, warn, error (default: info)
	Format string `mapstructure:"format" toml:"format" json:"format" yaml:"format"` // console or json (default: console)
}

// CodeConfig configures language intelligence behavior
type CodeConfig struct {
	WorkspaceRoot string `mapstructure:"workspace_root" toml:"workspace_root" json:"workspace_root" yaml:"workspace_root"`                // Root sent in the initialize handshake (default: ".")
	ServersDir    string `mapstructure:"servers_dir" toml:"servers_dir,omitempty" json:"servers_dir,omitempty" yaml:"servers_dir,omitempty"` // Standalone tool server descriptors (default: ~/.ferrule/servers)
}

// LanguageConfig configures one language server under [languages.<id>]
type LanguageConfig struct {
	Command          string            `mapstructure:"command" toml:"command" json:"command" yaml:"command"` // Executable plus flags in one string, e.g. "pylsp --stdio"
	Env              map[string]string `mapstructure:"env" toml:"env,omitempty" json:"env,omitempty" yaml:"env,omitempty"`
	Enabled          *bool             `mapstructure:"enabled" toml:"enabled,omitempty" json:"enabled,omitempty" yaml:"enabled,omitempty"`                 // nil = enabled
	Linter           string            `mapstructure:"linter" toml:"linter,omitempty" json:"linter,omitempty" yaml:"linter,omitempty"`                     // Named linter override, e.g. "pyright"
	MinVersion       string            `mapstructure:"min_version" toml:"min_version,omitempty" json:"min_version,omitempty" yaml:"min_version,omitempty"` // Semver constraint checked by doctor
	MaxRetries       int               `mapstructure:"max_retries" toml:"max_retries,omitempty" json:"max_retries,omitempty" yaml:"max_retries,omitempty"` // 0 = default 3, negative disables
	InitialBackoffMS int               `mapstructure:"initial_backoff_ms" toml:"initial_backoff_ms,omitempty" json:"initial_backoff_ms,omitempty" yaml:"initial_backoff_ms,omitempty"`
	MaxBackoffMS     int               `mapstructure:"max_backoff_ms" toml:"max_backoff_ms,omitempty" json:"max_backoff_ms,omitempty" yaml:"max_backoff_ms,omitempty"`
}

// ServerConfig configures one MCP tool server under [servers.<name>]
type ServerConfig struct {
	Command    string            `mapstructure:"command" toml:"command" json:"command" yaml:"command"`
	Env        map[string]string `mapstructure:"env" toml:"env,omitempty" json:"env,omitempty" yaml:"env,omitempty"`
	Enabled    *bool             `mapstructure:"enabled" toml:"enabled,omitempty" json:"enabled,omitempty" yaml:"enabled,omitempty"`                 // nil = enabled
	MinVersion string            `mapstructure:"min_version" toml:"min_version,omitempty" json:"min_version,omitempty" yaml:"min_version,omitempty"` // Semver constraint checked by doctor
	MaxRetries int               `mapstructure:"max_retries" toml:"max_retries,omitempty" json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// ServersDir returns the tool server descriptor directory, defaulting to
// ~/.ferrule/servers when unset
func (c *Config) ServersDir() string {
	if c.Code.ServersDir != "" {
		return c.Code.ServersDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ferrule", "servers")
}

// LanguageServers expands [languages.*] into langserver configs keyed by
// language id. Entries with enabled = false are omitted.
func (c *Config) LanguageServers() (map[string]langserver.Config, error) {
	out := make(map[string]langserver.Config, len(c.Languages))
	for lang, lc := range c.Languages {
		if lc.Enabled != nil && !*lc.Enabled {
			continue
		}
		words, err := shellquote.Split(lc.Command)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse command for language %q", lang)
		}
		if len(words) == 0 {
			return nil, errors.Newf("language %q has no command", lang)
		}
		out[lang] = langserver.Config{
			Language:       lang,
			Command:        words[0],
			Args:           words[1:],
			RootDir:        c.Code.WorkspaceRoot,
			Env:            upperKeys(lc.Env),
			MaxRetries:     lc.MaxRetries,
			InitialBackoff: time.Duration(lc.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(lc.MaxBackoffMS) * time.Millisecond,
		}
	}
	return out, nil
}

// ToolServers merges [servers.*] entries with standalone descriptor files
// from the servers directory. Config file entries win on name collisions.
func (c *Config) ToolServers() (map[string]toolserver.Config, error) {
	out, err := toolserver.DiscoverDir(c.ServersDir())
	if err != nil {
		return nil, err
	}
	for name, sc := range c.Servers {
		words, err := shellquote.Split(sc.Command)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse command for server %q", name)
		}
		if len(words) == 0 {
			return nil, errors.Newf("server %q has no command", name)
		}
		out[name] = toolserver.Config{
			Name:       name,
			Command:    words[0],
			Args:       words[1:],
			Env:        upperKeys(sc.Env),
			Enabled:    sc.Enabled == nil || *sc.Enabled,
			MaxRetries: sc.MaxRetries,
		}
	}
	return out, nil
}

// upperKeys restores conventional environment variable names. Viper
// lowercases every TOML key, so GITHUB_TOKEN arrives as github_token.
func upperKeys(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToUpper(k)] = v
	}
	return out
}
