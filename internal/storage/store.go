// Package storage persists serialized connection handles between module
// invocations. Each session id (by default the invoking OS user id) maps to
// exactly one owner-only file under a shared root, normally the system
// temporary directory.
package storage

import (
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const (
	// DefaultStaleAfter is how long a session file may go unaccessed before
	// Cleanup removes it.
	DefaultStaleAfter = 24 * time.Hour

	// DefaultLockTimeout bounds how long Save and Remove wait for another
	// process to release the session lock.
	DefaultLockTimeout = 5 * time.Second

	// SessionFileMode is owner read, write and execute only.
	SessionFileMode os.FileMode = 0700

	lockPollInterval = 25 * time.Millisecond
)

var (
	// ErrSessionNotFound is returned by Load when no session file exists.
	ErrSessionNotFound = errors.New("session file not found")

	// ErrSessionCorrupt is returned by Load when the file exists but cannot
	// be decoded.
	ErrSessionCorrupt = errors.New("session file corrupt")
)

// Store is the on-disk session cache. The zero value is not usable; create
// one with NewStore.
type Store struct {
	root        string
	staleAfter  time.Duration
	lockTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRoot sets the directory that holds session files.
func WithRoot(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.root = dir
		}
	}
}

// WithStaleAfter sets the Cleanup age threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithLockTimeout sets how long to wait for the session lock. Zero means a
// single attempt.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used by Cleanup.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		root:        DefaultRoot(),
		staleAfter:  DefaultStaleAfter,
		lockTimeout: DefaultLockTimeout,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory holding session files.
func (s *Store) Root() string { return s.root }

// StaleAfter returns the Cleanup age threshold.
func (s *Store) StaleAfter() time.Duration { return s.staleAfter }

// Path returns the session file path for id.
func (s *Store) Path(id string) (string, error) {
	return SessionFilePath(s.root, id)
}

// Load reads the session file for id and decodes it into into.
func (s *Store) Load(id string, into encoding.BinaryUnmarshaler) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: failed to open session file %s, it might not exist", ErrSessionNotFound, path)
		}
		return fmt.Errorf("failed to read session file %s: %w", path, err)
	}

	if err := into.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSessionCorrupt, path, err)
	}

	s.logger.Debug("loaded session", "path", path, "bytes", len(data))
	return nil
}

// Save encodes from and atomically replaces the session file for id. The
// resulting file is always SessionFileMode.
func (s *Store) Save(id string, from encoding.BinaryMarshaler) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}

	data, err := from.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.withLock(id, func() error {
		if err := AtomicWriteFile(path, data, SessionFileMode); err != nil {
			return fmt.Errorf("failed to write session file %s: %w", path, err)
		}
		s.logger.Debug("saved session", "path", path, "bytes", len(data))
		return nil
	})
}

// Remove deletes the session file for id. A missing file is not an error.
func (s *Store) Remove(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}

	return s.withLock(id, func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove session file %s: %w", path, err)
		}
		s.logger.Debug("removed session", "path", path)
		return nil
	})
}

// withLock runs fn while holding the advisory lock for id. If the lock
// cannot be taken within the lock timeout, fn runs anyway and the last
// writer wins; the write itself is still atomic.
func (s *Store) withLock(id string, fn func() error) error {
	lockPath, err := SessionLockFilePath(s.root, id)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(s.lockTimeout)
	for {
		f, ok, err := tryLock(lockPath)
		if err != nil {
			s.logger.Warn("session lock unavailable, writing unlocked", "path", lockPath, "error", err)
			return fn()
		}
		if ok {
			defer func() {
				if err := releaseFileLock(f); err != nil {
					s.logger.Warn("failed to release session lock", "path", lockPath, "error", err)
				}
			}()
			return fn()
		}
		if !time.Now().Before(deadline) {
			s.logger.Warn("timed out waiting for session lock, writing unlocked", "path", lockPath, "timeout", s.lockTimeout)
			return fn()
		}
		time.Sleep(lockPollInterval)
	}
}
