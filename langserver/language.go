package langserver

import (
	"path/filepath"
	"strings"

	"github.com/ferrule-dev/ferrule/errors"
)

// languageIDs maps file extensions to LSP language identifiers
var languageIDs = map[string]string{
	".go":   "go",
	".py":   "python",
	".pyi":  "python",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".php":  "php",
	".lua":  "lua",
	".zig":  "zig",
	".sh":   "shellscript",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".md":   "markdown",
}

// LanguageForPath returns the LSP language id for a file path. Unknown
// extensions mean no server can take the file; callers treat that as the
// capability being unavailable rather than a hard failure.
func LanguageForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := languageIDs[ext]; ok {
		return id, nil
	}
	return "", errors.NewNotFoundf("no language registered for extension %q", ext)
}
