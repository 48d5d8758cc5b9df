package langserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrule-dev/ferrule/errors"
)

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"/abs/path/server.go", "go"},
		{"script.py", "python"},
		{"stubs.pyi", "python"},
		{"app.ts", "typescript"},
		{"component.tsx", "typescriptreact"},
		{"index.js", "javascript"},
		{"lib.rs", "rust"},
		{"kernel.c", "c"},
		{"engine.cpp", "cpp"},
		{"Main.java", "java"},
		{"config.yaml", "yaml"},
		{"config.yml", "yaml"},
		{"Cargo.toml", "toml"},
		{"README.md", "markdown"},
	}
	for _, tt := range tests {
		got, err := LanguageForPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestLanguageForPathUnknown(t *testing.T) {
	for _, path := range []string{"binary.dat", "Makefile", ""} {
		_, err := LanguageForPath(path)
		require.Error(t, err, path)
		assert.True(t, errors.IsNotFound(err), path)
	}
}
