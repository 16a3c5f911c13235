//go:build !windows

package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireFileLock attempts to acquire an exclusive, non-blocking lock on the
// given file, creating it owner-only if needed.
var acquireFileLock = func(path string) (*os.File, error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	err = unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		lockFile.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	// The previous holder unlinks the path before unlocking. If that happened
	// between our open and flock, we hold a lock on a dead inode.
	held, err1 := lockFile.Stat()
	current, err2 := os.Stat(path)
	if err1 != nil || err2 != nil || !os.SameFile(held, current) {
		lockFile.Close()
		return nil, ErrWouldBlock
	}

	return lockFile, nil
}

// releaseFileLock releases the lock and removes the lock file.
func releaseFileLock(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}

	path := lockFile.Name()

	// Remove while still holding the lock, so a waiter that opened the old
	// inode cannot keep using it after we let go.
	err1 := os.Remove(path)
	if os.IsNotExist(err1) {
		err1 = nil
	}

	// Flock on unix doesn't return an error for LOCK_UN
	unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	err2 := lockFile.Close()

	return errors.Join(err1, err2)
}
