//go:build linux || darwin || freebsd || netbsd || openbsd

package storage

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// lastAccess returns the access time of path, falling back to the
// modification time in fi if the stat call fails.
func lastAccess(path string, fi os.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fi.ModTime()
	}
	return time.Unix(st.Atim.Unix())
}
