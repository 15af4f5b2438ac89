//go:build unix

package cleanup

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	modeWrite = unix.W_OK
	modeDir   = unix.R_OK | unix.W_OK | unix.X_OK
)

// ownedByUser reports whether the current user owns path.
func ownedByUser(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	return int(st.Uid) == os.Getuid()
}

// hasAccess reports whether the current user has every permission in mode on path.
func hasAccess(path string, mode uint32) bool {
	return unix.Access(path, mode) == nil
}
