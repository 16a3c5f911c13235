package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilePrefix is the name prefix shared by every session file. The full name
// is FilePrefix followed by the session id, e.g. CVANSIBLE_1000.
const FilePrefix = "CVANSIBLE_"

// lockSuffix is appended to a session file path to form its lock file path.
const lockSuffix = ".lock"

// ErrInvalidSessionID is returned for session ids that cannot be mapped to a
// single file directly under the store root.
var ErrInvalidSessionID = errors.New("invalid session id")

// DefaultRoot returns the shared temporary-file area used when no explicit
// root is configured.
func DefaultRoot() string {
	return os.TempDir()
}

// ValidateSessionID checks that id is usable as a file name suffix.
func ValidateSessionID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSessionID, id)
	case strings.HasSuffix(id, lockSuffix):
		return fmt.Errorf("%w: %q collides with lock file naming", ErrInvalidSessionID, id)
	}
	return nil
}

// SessionFilePath returns <root>/CVANSIBLE_<id>.
func SessionFilePath(root, id string) (string, error) {
	if err := ValidateSessionID(id); err != nil {
		return "", err
	}
	return filepath.Join(root, FilePrefix+id), nil
}

// SessionLockFilePath returns the advisory lock path paired with a session
// file.
func SessionLockFilePath(root, id string) (string, error) {
	p, err := SessionFilePath(root, id)
	if err != nil {
		return "", err
	}
	return p + lockSuffix, nil
}
