package config

import (
	"os"
	"path/filepath"

	"github.com/ferrule-dev/ferrule/errors"
)

// defaultTOML is the starter config written by `ferrule config init`.
// Everything is commented out so defaults stay in charge until edited.
const defaultTOML = `# ferrule configuration
#
# Sources in order of precedence (later overrides earlier):
#   built-in defaults < /etc/ferrule/ferrule.toml < ~/.ferrule/ferrule.toml
#   < project ferrule.toml (searched upward from the working directory)
#   < FERRULE_* environment variables

[log]
# level = "info"     # debug, info, warn, error
# format = "console" # console or json

[code]
# workspace_root = "."
# servers_dir = "~/.ferrule/servers"

# Language servers are spawned on demand, one per language id.
# Defaults exist for go, python, rust, typescript and javascript.
#
# [languages.python]
# command = "pylsp --stdio"
# linter = "pyright"       # swap the default linter (ruff) for this language
# max_retries = 3
# min_version = "1.10.0"

# MCP tool servers. Standalone descriptor files in servers_dir are merged
# with these entries; entries here win on name collisions.
#
# [servers.github]
# command = "npx -y @modelcontextprotocol/server-github"
# enabled = true
# [servers.github.env]
# GITHUB_PERSONAL_ACCESS_TOKEN = "..."
`

// WriteDefault writes a commented starter config to path. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory %s", filepath.Dir(path))
	}

	if err := os.WriteFile(path, []byte(defaultTOML), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}

	return nil
}
