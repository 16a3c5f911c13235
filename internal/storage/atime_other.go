//go:build !(linux || darwin || freebsd || netbsd || openbsd || windows)

package storage

import (
	"os"
	"time"
)

// lastAccess falls back to the modification time on platforms where access
// time is not exposed.
func lastAccess(_ string, fi os.FileInfo) time.Time {
	return fi.ModTime()
}
