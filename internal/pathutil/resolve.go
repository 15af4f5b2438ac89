// Package pathutil resolves paths given on the command line.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand turns a command-line path into an absolute one. A leading ~ is
// the home directory. Symlinks are kept: the folder a user typed is the
// folder whose name the workflow inspects.
func Expand(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
