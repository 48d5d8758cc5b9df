package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ferrule.toml")
	content := `
[log]
level = "debug"

[languages.python]
command = "pylsp --stdio"
max_retries = 2

[servers.github]
command = "npx -y @modelcontextprotocol/server-github"
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got %q", cfg.Log.Level)
	}
	if cfg.Languages["python"].Command != "pylsp --stdio" {
		t.Errorf("unexpected python command %q", cfg.Languages["python"].Command)
	}
	if cfg.Languages["python"].MaxRetries != 2 {
		t.Errorf("expected max retries 2, got %d", cfg.Languages["python"].MaxRetries)
	}

	// Defaults fill in what the file does not mention
	if cfg.Log.Format != "console" {
		t.Errorf("expected default format 'console', got %q", cfg.Log.Format)
	}
	if cfg.Languages["go"].Command != "gopls" {
		t.Errorf("expected default go command 'gopls', got %q", cfg.Languages["go"].Command)
	}

	github := cfg.Servers["github"]
	if github.Enabled == nil || *github.Enabled {
		t.Error("expected github disabled")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FERRULE_LOG_LEVEL", "debug")
	t.Setenv("FERRULE_SERVERS_DIR", "/opt/ferrule/servers")

	// Wired the same way initViper wires the global instance
	v := viper.New()
	v.SetEnvPrefix("FERRULE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvOverrides(v)
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected env override level 'debug', got %q", cfg.Log.Level)
	}
	if cfg.Code.ServersDir != "/opt/ferrule/servers" {
		t.Errorf("expected env servers dir, got %q", cfg.Code.ServersDir)
	}
}

func TestFindProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("prefers ferrule.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test1", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		os.WriteFile(filepath.Join(tmpDir, "test1", "ferrule.toml"), []byte(""), DefaultFilePermissions)
		os.WriteFile(filepath.Join(tmpDir, "test1", ".ferrule.toml"), []byte(""), DefaultFilePermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Fatal("expected to find config file")
		}
		if !filepath.IsAbs(result) {
			t.Error("expected absolute path")
		}
		if filepath.Base(result) != "ferrule.toml" {
			t.Errorf("expected ferrule.toml, got %s", filepath.Base(result))
		}
	})

	t.Run("fallback to hidden file", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test2", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		os.WriteFile(filepath.Join(tmpDir, "test2", ".ferrule.toml"), []byte(""), DefaultFilePermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Fatal("expected to find config file")
		}
		if filepath.Base(result) != ".ferrule.toml" {
			t.Errorf("expected .ferrule.toml, got %s", filepath.Base(result))
		}
	})

	t.Run("no config found", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test3", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})
}

func TestMergeConfigFiles(t *testing.T) {
	// Point HOME at a fake user dir so the user config is under our control
	home := t.TempDir()
	t.Setenv("HOME", home)
	userDir := filepath.Join(home, ".ferrule")
	os.MkdirAll(userDir, DefaultDirPermissions)

	userConf := `
[log]
level = "warn"
format = "json"
`
	if err := os.WriteFile(filepath.Join(userDir, "ferrule.toml"), []byte(userConf), DefaultFilePermissions); err != nil {
		t.Fatal(err)
	}

	projectDir := t.TempDir()
	projectConf := `
[log]
level = "debug"
`
	if err := os.WriteFile(filepath.Join(projectDir, "ferrule.toml"), []byte(projectConf), DefaultFilePermissions); err != nil {
		t.Fatal(err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	os.Chdir(projectDir)

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v)

	// Project wins on conflicting keys
	if got := v.GetString("log.level"); got != "debug" {
		t.Errorf("expected project level 'debug', got %q", got)
	}
	// User settings survive on keys the project file does not touch
	if got := v.GetString("log.format"); got != "json" {
		t.Errorf("expected user format 'json', got %q", got)
	}
}
