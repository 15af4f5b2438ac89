package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSet is an insertion-ordered, append-only set of file paths.
// There is no removal API: once a file is staged it stays staged.
type FileSet struct {
	paths []string
	index map[string]struct{}
}

// Add registers an existing file. Adding the same path twice is a no-op.
func (f *FileSet) Add(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist", path)
	}
	if f.index == nil {
		f.index = make(map[string]struct{})
	}
	if _, ok := f.index[path]; ok {
		return nil
	}
	f.index[path] = struct{}{}
	f.paths = append(f.paths, path)
	return nil
}

// Paths returns a copy of the staged paths in insertion order.
func (f *FileSet) Paths() []string {
	out := make([]string, len(f.paths))
	copy(out, f.paths)
	return out
}

// Len returns the number of staged files.
func (f *FileSet) Len() int {
	return len(f.paths)
}

// Contains reports whether path is staged.
func (f *FileSet) Contains(path string) bool {
	_, ok := f.index[path]
	return ok
}

// Basenames returns the base names of staged files in insertion order.
func (f *FileSet) Basenames() []string {
	out := make([]string, len(f.paths))
	for i, p := range f.paths {
		out[i] = filepath.Base(p)
	}
	return out
}
