package lifecycle

import (
	"errors"

	"github.com/joeycumines/cvansible/internal/credential"
	"github.com/joeycumines/cvansible/internal/storage"
)

// ErrorKind classifies lifecycle failures.
type ErrorKind string

const (
	KindAmbiguousCredentials ErrorKind = "AmbiguousCredentials"
	KindInvalidSession       ErrorKind = "InvalidSession"
	KindSessionNotFound      ErrorKind = "SessionFileNotFound"
	KindSessionCorrupt       ErrorKind = "SessionCorrupt"
	KindAuthenticationFailed ErrorKind = "AuthenticationFailed"
	KindPersistenceFailed    ErrorKind = "PersistenceFailed"
)

// ErrAuthenticationFailed matches any Error of kind AuthenticationFailed.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrPersistenceFailed matches any Error of kind PersistenceFailed.
var ErrPersistenceFailed = errors.New("session persistence failed")

// Error is a classified lifecycle failure. Its message is the underlying
// message, so it can be shown to the user as is.
type Error struct {
	Kind ErrorKind
	// Path is the session file path involved, when one was determined.
	Path string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels, in addition to the wrapped
// chain.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuthenticationFailed:
		return e.Kind == KindAuthenticationFailed
	case ErrPersistenceFailed:
		return e.Kind == KindPersistenceFailed
	case credential.ErrAmbiguousCredentials:
		return e.Kind == KindAmbiguousCredentials
	case storage.ErrSessionNotFound:
		return e.Kind == KindSessionNotFound
	case storage.ErrSessionCorrupt:
		return e.Kind == KindSessionCorrupt
	}
	return false
}
