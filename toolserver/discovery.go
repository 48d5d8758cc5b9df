package toolserver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kballard/go-shellquote"

	"github.com/ferrule-dev/ferrule/errors"
)

// descriptor is the on-disk TOML shape of one tool server:
//
//	name = "github"
//	command = "npx -y @modelcontextprotocol/server-github"
//	enabled = true
//
//	[env]
//	GITHUB_TOKEN = "..."
type descriptor struct {
	Name       string            `toml:"name"`
	Command    string            `toml:"command"`
	Enabled    *bool             `toml:"enabled"`
	Env        map[string]string `toml:"env"`
	MaxRetries int               `toml:"max_retries"`
}

// DiscoverDir loads every *.toml descriptor in dir, keyed by server name.
// The name defaults to the file stem; enabled defaults to true. A missing
// directory yields an empty map.
func DiscoverDir(dir string) (map[string]Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Config{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read server directory %s", dir)
	}

	cfgs := make(map[string]Config)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var d descriptor
		if _, err := toml.DecodeFile(path, &d); err != nil {
			return nil, errors.Wrapf(err, "failed to parse server descriptor %s", path)
		}

		cfg, err := d.toConfig(strings.TrimSuffix(entry.Name(), ".toml"))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid server descriptor %s", path)
		}
		if _, dup := cfgs[cfg.Name]; dup {
			return nil, errors.Newf("duplicate tool server name %q in %s", cfg.Name, path)
		}
		cfgs[cfg.Name] = cfg
	}
	return cfgs, nil
}

func (d descriptor) toConfig(stem string) (Config, error) {
	name := d.Name
	if name == "" {
		name = stem
	}
	if d.Command == "" {
		return Config{}, errors.Newf("server %q has no command", name)
	}

	words, err := shellquote.Split(d.Command)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse command for server %q", name)
	}
	if len(words) == 0 {
		return Config{}, errors.Newf("server %q has an empty command", name)
	}

	return Config{
		Name:       name,
		Command:    words[0],
		Args:       words[1:],
		Env:        d.Env,
		Enabled:    d.Enabled == nil || *d.Enabled,
		MaxRetries: d.MaxRetries,
	}, nil
}
