package langserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileToURI(t *testing.T) {
	tests := []struct {
		name          string
		workspaceRoot string
		file          string
		want          string
	}{
		{
			name:          "simple file in root",
			workspaceRoot: "/home/user/project",
			file:          "main.go",
			want:          "file:///home/user/project/main.go",
		},
		{
			name:          "nested file",
			workspaceRoot: "/home/user/project",
			file:          "cmd/app/main.go",
			want:          "file:///home/user/project/cmd/app/main.go",
		},
		{
			name:          "absolute file ignores root",
			workspaceRoot: "/home/user/project",
			file:          "/opt/other/main.go",
			want:          "file:///opt/other/main.go",
		},
		{
			name:          "workspace with spaces",
			workspaceRoot: "/home/user/my project",
			file:          "main.go",
			want:          "file:///home/user/my project/main.go",
		},
		{
			name:          "file with spaces",
			workspaceRoot: "/home/user/project",
			file:          "my file.go",
			want:          "file:///home/user/project/my file.go",
		},
		{
			name:          "empty file path",
			workspaceRoot: "/home/user/project",
			file:          "",
			want:          "file:///home/user/project",
		},
		{
			name:          "special characters in filename",
			workspaceRoot: "/home/user/project",
			file:          "test-file_v2.go",
			want:          "file:///home/user/project/test-file_v2.go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileToURI(tt.workspaceRoot, tt.file))
		})
	}
}

func TestURIToFile(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "file URI",
			uri:  "file:///home/user/project/main.go",
			want: "/home/user/project/main.go",
		},
		{
			name: "uri with spaces",
			uri:  "file:///home/user/my project/my file.go",
			want: "/home/user/my project/my file.go",
		},
		{
			name: "bare path passes through",
			uri:  "/absolute/path/file.go",
			want: "/absolute/path/file.go",
		},
		{
			name: "empty",
			uri:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URIToFile(tt.uri))
		})
	}
}

func TestURIRoundTrip(t *testing.T) {
	files := []string{
		"main.go",
		"cmd/app/main.go",
		"internal/server/handlers/http.go",
		"my file.go",
		"test-file_v2.go",
	}
	for _, file := range files {
		uri := FileToURI("/home/user/project", file)
		assert.Equal(t, "/home/user/project/"+file, URIToFile(uri))
	}
}
