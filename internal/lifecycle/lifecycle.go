// Package lifecycle owns the authenticated connection for one module
// invocation: it logs in or restores the cached session, hands the handle to
// the module, and writes it back (or retires it) when the invocation ends,
// whatever the outcome.
package lifecycle

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joeycumines/cvansible/internal/credential"
	"github.com/joeycumines/cvansible/internal/storage"
)

// State is a Manager state.
type State int

const (
	Uninitialized State = iota
	Authenticating
	Ready
	Finalizing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Finalizing:
		return "finalizing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle is a serializable authenticated connection.
type Handle interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Authenticator performs logins and creates empty handles for decoding.
type Authenticator[H Handle] interface {
	LoginWithPassword(ctx context.Context, hostname, username, password string) (H, error)
	LoginWithToken(ctx context.Context, hostname, token string) (H, error)
	NewHandle() H
}

// Manager is the per-invocation connection owner. It is single use and not
// safe for concurrent use.
type Manager[H Handle] struct {
	store    *storage.Store
	auth     Authenticator[H]
	resolver *credential.Resolver
	logger   *slog.Logger

	state       State
	sessionID   string
	kind        credential.Kind
	handle      H
	retired     bool
	finalizeErr error
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a Manager in the Uninitialized state.
func New[H Handle](store *storage.Store, auth Authenticator[H], resolver *credential.Resolver, opts ...Option) *Manager[H] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager[H]{
		store:    store,
		auth:     auth,
		resolver: resolver,
		logger:   o.logger,
	}
}

// State returns the current state.
func (m *Manager[H]) State() State { return m.state }

// SessionID returns the session id chosen during Open, or "" before that.
func (m *Manager[H]) SessionID() string { return m.sessionID }

// SessionPath returns the session file path chosen during Open, or "".
func (m *Manager[H]) SessionPath() string {
	if m.sessionID == "" {
		return ""
	}
	p, _ := m.store.Path(m.sessionID)
	return p
}

// CredentialKind reports how the connection was obtained.
func (m *Manager[H]) CredentialKind() credential.Kind { return m.kind }

// Open authenticates. On success the Manager is Ready; on failure it is
// Failed and the returned *Error says why. Open may only be called once.
func (m *Manager[H]) Open(ctx context.Context, params credential.Params) error {
	if m.state != Uninitialized {
		return fmt.Errorf("lifecycle: Open called in state %s", m.state)
	}
	m.state = Authenticating

	res, err := m.resolver.Resolve(params)
	if err != nil {
		return m.fail(classify(err, ""), "", err)
	}
	m.kind = res.Credentials.Kind
	path, _ := m.store.Path(res.SessionID)

	m.logger.Debug("authenticating", "credentials", res.Credentials, "session_path", path)

	var handle H
	switch res.Credentials.Kind {
	case credential.Password:
		handle, err = m.auth.LoginWithPassword(ctx, res.Credentials.Hostname, res.Credentials.Username, res.Credentials.Password)
		if err != nil {
			return m.fail(KindAuthenticationFailed, path, err)
		}
	case credential.Token:
		handle, err = m.auth.LoginWithToken(ctx, res.Credentials.Hostname, res.Credentials.Token)
		if err != nil {
			return m.fail(KindAuthenticationFailed, path, err)
		}
	default:
		handle = m.auth.NewHandle()
		if err := m.store.Load(res.SessionID, handle); err != nil {
			return m.fail(classify(err, KindSessionNotFound), path, err)
		}
	}

	m.handle = handle
	m.sessionID = res.SessionID
	m.state = Ready

	if res.Credentials.Kind != credential.None {
		// Persist straight away so a crash mid-operation still leaves a
		// usable session behind.
		if err := m.store.Save(m.sessionID, m.handle); err != nil {
			m.logger.Warn("failed to persist new session", "path", path, "error", &Error{Kind: KindPersistenceFailed, Path: path, Err: err})
		}
	}

	m.logger.Debug("connection ready", "kind", m.kind.String(), "session_path", path)
	return nil
}

func (m *Manager[H]) fail(kind ErrorKind, path string, err error) error {
	m.state = Failed
	e := &Error{Kind: kind, Path: path, Err: err}
	m.logger.Debug("authentication failed", "error", e)
	return e
}

// Connection returns the handle. It panics unless the Manager is Ready.
func (m *Manager[H]) Connection() H {
	if m.state != Ready {
		panic(fmt.Sprintf("lifecycle: Connection called in state %s", m.state))
	}
	return m.handle
}

// Retire marks the session to be deleted instead of saved when the Manager
// closes. Used after an explicit logout.
func (m *Manager[H]) Retire() { m.retired = true }

// Close finalizes the invocation. If the Manager reached Ready, the handle is
// saved to the session file (or the file is removed after Retire). Failures
// are logged and recorded for FinalizeErr but never returned, so they cannot
// mask the operation's own result. Close is idempotent and always returns
// nil; the error return satisfies io.Closer.
func (m *Manager[H]) Close() error {
	switch m.state {
	case Closed, Finalizing:
		return nil
	case Ready:
	default:
		// Never authenticated: there is no session to persist.
		m.state = Closed
		return nil
	}

	m.state = Finalizing
	defer func() { m.state = Closed }()

	path := m.SessionPath()
	var err error
	if m.retired {
		err = m.store.Remove(m.sessionID)
	} else {
		err = m.store.Save(m.sessionID, m.handle)
	}
	if err != nil {
		m.finalizeErr = &Error{Kind: KindPersistenceFailed, Path: path, Err: err}
		m.logger.Warn("failed to finalize session", "path", path, "retired", m.retired, "error", m.finalizeErr)
		return nil
	}

	m.logger.Debug("session finalized", "path", path, "retired", m.retired)
	return nil
}

// FinalizeErr returns the persistence error swallowed by Close, if any.
func (m *Manager[H]) FinalizeErr() error { return m.finalizeErr }

// Run opens the Manager, calls fn with the handle and closes the Manager on
// the way out, including when fn panics.
func (m *Manager[H]) Run(ctx context.Context, params credential.Params, fn func(ctx context.Context, conn H) error) error {
	if err := m.Open(ctx, params); err != nil {
		_ = m.Close()
		return err
	}
	defer m.Close()
	return fn(ctx, m.handle)
}

// classify maps lower-level errors onto the error taxonomy.
func classify(err error, fallback ErrorKind) ErrorKind {
	switch {
	case errors.Is(err, credential.ErrAmbiguousCredentials):
		return KindAmbiguousCredentials
	case errors.Is(err, storage.ErrInvalidSessionID):
		return KindInvalidSession
	case errors.Is(err, storage.ErrSessionCorrupt):
		return KindSessionCorrupt
	case errors.Is(err, storage.ErrSessionNotFound):
		return KindSessionNotFound
	}
	return fallback
}
