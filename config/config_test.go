package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	// Isolated viper instance without user/system config or env vars
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("expected default log format 'console', got %q", cfg.Log.Format)
	}
	if cfg.Code.WorkspaceRoot != "." {
		t.Errorf("expected default workspace root '.', got %q", cfg.Code.WorkspaceRoot)
	}
	if cfg.Languages["go"].Command != "gopls" {
		t.Errorf("expected default go command 'gopls', got %q", cfg.Languages["go"].Command)
	}
	if cfg.Languages["typescript"].Command != "typescript-language-server --stdio" {
		t.Errorf("unexpected default typescript command %q", cfg.Languages["typescript"].Command)
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"log.level", "info"},
		{"log.format", "console"},
		{"code.workspace_root", "."},
		{"languages.go.command", "gopls"},
		{"languages.python.command", "pylsp"},
		{"languages.rust.command", "rust-analyzer"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := v.Get(tt.key)
			if got != tt.expected {
				t.Errorf("default %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestLanguageServers(t *testing.T) {
	disabled := false
	cfg := &Config{
		Code: CodeConfig{WorkspaceRoot: "/src/repo"},
		Languages: map[string]LanguageConfig{
			"python": {
				Command:    "pylsp --stdio",
				Env:        map[string]string{"pylsp_debug": "1"},
				MaxRetries: 5,
			},
			"ruby": {Command: "solargraph stdio", Enabled: &disabled},
		},
	}

	servers, err := cfg.LanguageServers()
	if err != nil {
		t.Fatalf("LanguageServers() failed: %v", err)
	}

	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}

	py, ok := servers["python"]
	if !ok {
		t.Fatal("expected python server")
	}
	if py.Language != "python" {
		t.Errorf("expected language 'python', got %q", py.Language)
	}
	if py.Command != "pylsp" {
		t.Errorf("expected command 'pylsp', got %q", py.Command)
	}
	if len(py.Args) != 1 || py.Args[0] != "--stdio" {
		t.Errorf("expected args ['--stdio'], got %v", py.Args)
	}
	if py.RootDir != "/src/repo" {
		t.Errorf("expected root dir '/src/repo', got %q", py.RootDir)
	}
	if py.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", py.MaxRetries)
	}
	if py.Env["PYLSP_DEBUG"] != "1" {
		t.Errorf("expected uppercased env key PYLSP_DEBUG, got %v", py.Env)
	}
}

func TestLanguageServersQuotedCommand(t *testing.T) {
	cfg := &Config{
		Languages: map[string]LanguageConfig{
			"go": {Command: `gopls -logfile "/tmp/log dir/gopls.log" serve`},
		},
	}

	servers, err := cfg.LanguageServers()
	if err != nil {
		t.Fatalf("LanguageServers() failed: %v", err)
	}

	gopls := servers["go"]
	if gopls.Command != "gopls" {
		t.Errorf("expected command 'gopls', got %q", gopls.Command)
	}
	want := []string{"-logfile", "/tmp/log dir/gopls.log", "serve"}
	if len(gopls.Args) != len(want) {
		t.Fatalf("expected %d args, got %v", len(want), gopls.Args)
	}
	for i, arg := range want {
		if gopls.Args[i] != arg {
			t.Errorf("arg %d = %q, want %q", i, gopls.Args[i], arg)
		}
	}
}

func TestLanguageServersMissingCommand(t *testing.T) {
	cfg := &Config{
		Languages: map[string]LanguageConfig{
			"zig": {Command: "   "},
		},
	}

	if _, err := cfg.LanguageServers(); err == nil {
		t.Fatal("expected error for empty command")
	} else if !strings.Contains(err.Error(), `language "zig" has no command`) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestToolServers(t *testing.T) {
	// Descriptor directory with one server that also appears in the config
	// file and one that does not
	serversDir := t.TempDir()
	descriptor := `command = "mcp-github --legacy"` + "\n"
	if err := os.WriteFile(filepath.Join(serversDir, "github.toml"), []byte(descriptor), 0644); err != nil {
		t.Fatal(err)
	}
	extra := `command = "mcp-sqlite"` + "\n"
	if err := os.WriteFile(filepath.Join(serversDir, "sqlite.toml"), []byte(extra), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		Code: CodeConfig{ServersDir: serversDir},
		Servers: map[string]ServerConfig{
			"github": {
				Command: "npx -y @modelcontextprotocol/server-github",
				Env:     map[string]string{"github_personal_access_token": "tok"},
			},
			"jira": {Command: "mcp-jira"},
		},
	}

	servers, err := cfg.ToolServers()
	if err != nil {
		t.Fatalf("ToolServers() failed: %v", err)
	}

	if len(servers) != 3 {
		t.Fatalf("expected 3 servers, got %d: %v", len(servers), servers)
	}

	// Config file entry wins over the descriptor
	github := servers["github"]
	if github.Command != "npx" {
		t.Errorf("expected config entry to win, got command %q", github.Command)
	}
	if github.Env["GITHUB_PERSONAL_ACCESS_TOKEN"] != "tok" {
		t.Errorf("expected uppercased env key, got %v", github.Env)
	}
	if !github.Enabled {
		t.Error("expected github enabled by default")
	}

	if servers["jira"].Command != "mcp-jira" {
		t.Errorf("expected jira from config, got %q", servers["jira"].Command)
	}
	if servers["sqlite"].Command != "mcp-sqlite" {
		t.Errorf("expected sqlite from descriptor, got %q", servers["sqlite"].Command)
	}
}

func TestToolServersMissingCommand(t *testing.T) {
	cfg := &Config{
		Code:    CodeConfig{ServersDir: t.TempDir()},
		Servers: map[string]ServerConfig{"broken": {}},
	}

	if _, err := cfg.ToolServers(); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestServersDirDefault(t *testing.T) {
	cfg := &Config{Code: CodeConfig{ServersDir: "/opt/servers"}}
	if got := cfg.ServersDir(); got != "/opt/servers" {
		t.Errorf("expected configured dir, got %q", got)
	}

	cfg = &Config{}
	got := cfg.ServersDir()
	if got == "" {
		t.Fatal("expected a default servers dir")
	}
	if filepath.Base(filepath.Dir(got)) != ".ferrule" || filepath.Base(got) != "servers" {
		t.Errorf("expected ~/.ferrule/servers, got %q", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "ferrule.toml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	// The starter file must parse and leave defaults in charge
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed on starter config: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected starter config to keep defaults, got level %q", cfg.Log.Level)
	}

	// Second write must refuse to clobber
	if err := WriteDefault(path); err == nil {
		t.Fatal("expected error on existing file")
	}
}
