package langserver

import (
	"path/filepath"
	"strings"
)

// FileToURI converts a path to a file:// URI. Relative paths are resolved
// against the workspace root; language servers reject anything that is not
// absolute.
func FileToURI(workspaceRoot, file string) string {
	if file == "" {
		return "file://" + workspaceRoot
	}
	if filepath.IsAbs(file) {
		return "file://" + file
	}
	return "file://" + filepath.Join(workspaceRoot, file)
}

// URIToFile strips the file:// scheme from a URI, leaving the path
func URIToFile(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
