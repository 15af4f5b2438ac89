// Package fsutil holds the fail-fast filesystem operations used while staging
// job folders: copy, move, folder creation and placeholder files.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aerox/simflow/internal/diskspace"
	"github.com/aerox/simflow/internal/progress"
)

// LargeFileThreshold is the size above which copies check free space and
// report progress.
const LargeFileThreshold = 256 * 1024 * 1024

// ErrSamePath is returned when source and destination are the same path.
var ErrSamePath = errors.New("source and destination are the same path")

// CopyOptions tunes CopyFile.
type CopyOptions struct {
	// IgnoreExisting turns an existing destination into a silent no-op.
	IgnoreExisting bool
	// Progress receives byte progress for large files. Nil means none.
	Progress progress.Reporter
}

// CopyFile copies the content and permission bits of src to dst. Symlinks are
// followed. An existing destination is an error unless IgnoreExisting is set.
// It returns false when nothing was copied.
func CopyFile(src, dst string, opts CopyOptions) (bool, error) {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return false, ErrSamePath
	}
	if _, err := os.Lstat(dst); err == nil {
		if opts.IgnoreExisting {
			return false, nil
		}
		return false, fmt.Errorf("cannot copy file - destination file already exists: %s", dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("cannot copy file %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return false, fmt.Errorf("cannot copy file %s: %w", src, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("cannot copy file %s: is a directory", src)
	}

	var reader io.Reader = in
	if info.Size() >= LargeFileThreshold {
		if err := diskspace.Ensure(dst, info.Size()); err != nil {
			return false, err
		}
		if opts.Progress != nil {
			opts.Progress.Start(info.Size(), "copy "+filepath.Base(dst))
			defer opts.Progress.Finish()
			reader = progress.NewCountingReader(in, opts.Progress)
		}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return false, fmt.Errorf("cannot create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(dst)
		return false, fmt.Errorf("cannot copy file %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return false, fmt.Errorf("cannot copy file %s: %w", src, err)
	}
	return true, nil
}

// Move renames src to dst. An existing destination is an error.
func Move(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return ErrSamePath
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("cannot rename path - destination path already exists: %s", dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("cannot move path %s: %w", src, err)
	}
	return nil
}

// MakeDir creates path and its parents and sets mode on path itself,
// regardless of the process umask.
func MakeDir(path string, mode fs.FileMode) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("cannot create folder %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("cannot set mode on %s: %w", path, err)
	}
	return nil
}

// Touch leaves an empty regular file at path. An existing regular file is
// truncated; any other existing entry, including a symlink, is left untouched.
func Touch(path string) error {
	if info, err := os.Lstat(path); err == nil {
		if !info.Mode().IsRegular() || info.Size() == 0 {
			return nil
		}
		if err := os.Truncate(path, 0); err != nil {
			return fmt.Errorf("cannot truncate %s: %w", path, err)
		}
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	return f.Close()
}

// Exists reports whether path exists, without following a final symlink.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsEmptyDir reports whether dir exists and has no entries.
func IsEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// RemoveIfEmpty removes dir only when it has no entries. It reports whether
// the folder was removed.
func RemoveIfEmpty(dir string) (bool, error) {
	empty, err := IsEmptyDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !empty {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, err
	}
	return true, nil
}
