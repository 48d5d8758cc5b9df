package config

import "github.com/spf13/viper"

// Standard file permission constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// SetDefaults configures default values for ferrule configuration
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Language intelligence defaults
	v.SetDefault("code.workspace_root", ".")

	// Well-known language servers. Retry and backoff tuning is normalized by
	// the client itself, so only commands are seeded here.
	v.SetDefault("languages.go.command", "gopls")
	v.SetDefault("languages.python.command", "pylsp")
	v.SetDefault("languages.rust.command", "rust-analyzer")
	v.SetDefault("languages.typescript.command", "typescript-language-server --stdio")
	v.SetDefault("languages.javascript.command", "typescript-language-server --stdio")
}

// BindEnvOverrides explicitly binds environment variables so they resolve
// during Unmarshal even when no config file or default mentions the key, and
// gives the common ones a short alias alongside the automatic FERRULE_* form
func BindEnvOverrides(v *viper.Viper) {
	v.BindEnv("code.workspace_root", "FERRULE_WORKSPACE_ROOT", "FERRULE_CODE_WORKSPACE_ROOT")
	v.BindEnv("code.servers_dir", "FERRULE_SERVERS_DIR", "FERRULE_CODE_SERVERS_DIR")
	v.BindEnv("log.level", "FERRULE_LOG_LEVEL")
}
