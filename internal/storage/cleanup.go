package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// CleanupReport lists the file names Cleanup removed and the stale ones it
// had to leave behind.
type CleanupReport struct {
	Removed []string
	Skipped []string
}

// Cleanup removes every session file under the root, for any principal,
// whose last access is older than the stale threshold. Temporary files of
// interrupted writes are swept on the same threshold. It is best-effort:
// files that vanish, belong to another user, or are locked by a running
// invocation are skipped, and no error is ever returned.
func (s *Store) Cleanup() *CleanupReport {
	var report CleanupReport

	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Debug("session cleanup skipped", "root", s.root, "error", err)
		return &report
	}

	now := s.now()
	for _, e := range entries {
		name := e.Name()
		temp := strings.HasPrefix(name, tempPrefix)
		if e.IsDir() || (!temp && !strings.HasPrefix(name, FilePrefix)) {
			continue
		}
		path := filepath.Join(s.root, name)

		fi, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(lastAccess(path, fi)) <= s.staleAfter {
			continue
		}

		if temp {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				report.Skipped = append(report.Skipped, name)
				continue
			}
			report.Removed = append(report.Removed, name)
			continue
		}

		if strings.HasSuffix(name, lockSuffix) {
			// An abandoned lock: removable only if nobody holds it.
			if f, ok, err := tryLock(path); err == nil && ok {
				if err := releaseFileLock(f); err == nil {
					report.Removed = append(report.Removed, name)
					continue
				}
			}
			report.Skipped = append(report.Skipped, name)
			continue
		}

		if s.removeStale(path) {
			report.Removed = append(report.Removed, name)
		} else {
			report.Skipped = append(report.Skipped, name)
		}
	}

	if len(report.Removed) > 0 || len(report.Skipped) > 0 {
		s.logger.Debug("session cleanup finished", "root", s.root, "removed", report.Removed, "skipped", report.Skipped)
	}
	return &report
}

// removeStale deletes a stale session file unless an invocation currently
// holds its lock.
func (s *Store) removeStale(path string) bool {
	lockPath := path + lockSuffix
	f, ok, err := tryLock(lockPath)
	if err == nil && !ok {
		return false
	}
	if ok {
		defer func() { _ = releaseFileLock(f) }()
	}
	// err != nil: the lock file could not even be created (for example a
	// directory owned by someone else). Try the removal anyway.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false
	}
	return true
}
