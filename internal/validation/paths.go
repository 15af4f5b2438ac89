package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilename checks a single path component that becomes part of a
// folder or job name (task code, run number). It rejects empty names, path
// separators, ".." and null bytes.
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("name contains null byte: %s", filename)
	}
	if strings.ContainsRune(filename, '/') || strings.ContainsRune(filename, '\\') {
		return fmt.Errorf("name cannot contain path separators: %s", filename)
	}
	// Separators are rejected above, so only the literal ".." can traverse.
	if filename == ".." || filename == "." {
		return fmt.Errorf("name cannot be %q", filename)
	}
	return nil
}

// ResolveInDirectory joins a relative path onto baseDir and returns the cleaned
// absolute result, failing when it escapes baseDir.
//
//	ResolveInDirectory("../../etc/passwd", "/home/u/case") // error
//	ResolveInDirectory("parts/wing.stl", "/home/u/case")   // /home/u/case/parts/wing.stl
func ResolveInDirectory(path string, baseDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return "", fmt.Errorf("base directory cannot be empty")
	}

	cleanBase := filepath.Clean(baseDir)
	if !filepath.IsAbs(cleanBase) {
		var err error
		cleanBase, err = filepath.Abs(cleanBase)
		if err != nil {
			return "", fmt.Errorf("failed to resolve base directory: %w", err)
		}
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cleanBase, resolved)
	}

	rel, err := filepath.Rel(cleanBase, resolved)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}
	return resolved, nil
}
