// Package credential decides how a module invocation authenticates: with a
// username and password, with an auth token, or not at all (reuse the cached
// session).
package credential

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joeycumines/cvansible/internal/storage"
)

// ErrAmbiguousCredentials is returned when more than one way to log in was
// supplied.
var ErrAmbiguousCredentials = errors.New("ambiguous credentials")

// Params are the login arguments accepted by every module. The field names
// mirror the module argument names.
type Params struct {
	WebserverHostname string `json:"webserver_hostname,omitempty"`
	CommcellUsername  string `json:"commcell_username,omitempty"`
	CommcellPassword  string `json:"commcell_password,omitempty"`
	WebserverUsername string `json:"webserver_username,omitempty"`
	WebserverPassword string `json:"webserver_password,omitempty"`
	AuthToken         string `json:"auth_token,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
}

// Names lists the argument names of Params.
var Names = []string{
	"webserver_hostname",
	"commcell_username",
	"commcell_password",
	"webserver_username",
	"webserver_password",
	"auth_token",
	"session_id",
}

// Sensitive lists the argument names whose values must never be logged or
// echoed back.
var Sensitive = []string{"commcell_password", "webserver_password", "auth_token"}

// LogValue implements slog.LogValuer without exposing secrets.
func (p Params) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("webserver_hostname", p.WebserverHostname),
		slog.String("commcell_username", p.CommcellUsername),
		slog.Bool("commcell_password", p.CommcellPassword != ""),
		slog.String("webserver_username", p.WebserverUsername),
		slog.Bool("webserver_password", p.WebserverPassword != ""),
		slog.Bool("auth_token", p.AuthToken != ""),
		slog.String("session_id", p.SessionID),
	)
}

// Kind identifies a Credential Set variant.
type Kind int

const (
	// None means no usable login arguments; the cached session is used.
	None Kind = iota
	// Password is a hostname, username and password.
	Password
	// Token is a hostname and an auth token.
	Token
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Password:
		return "password"
	case Token:
		return "token"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Set is the resolved authentication intent for one invocation.
type Set struct {
	Kind     Kind
	Hostname string
	Username string
	Password string
	Token    string
}

// LogValue implements slog.LogValuer without exposing secrets.
func (s Set) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", s.Kind.String()),
		slog.String("hostname", s.Hostname),
		slog.String("username", s.Username),
	)
}

// Resolution is the output of Resolve.
type Resolution struct {
	Credentials Set
	// SessionID selects the session file: the explicit session_id argument
	// when given, otherwise the principal.
	SessionID string
}

// Resolver turns declared parameters into a Resolution.
type Resolver struct {
	principal string
}

// NewResolver creates a Resolver for the given principal, normally the
// result of Principal().
func NewResolver(principal string) *Resolver {
	return &Resolver{principal: principal}
}

// Resolve validates p and picks the authentication path.
//
// The commcell_* and webserver_* pairs are synonyms. Supplying both is only
// accepted when they agree. A complete pair together with an auth token is
// always an error, and no network call is made for it.
func (r *Resolver) Resolve(p Params) (Resolution, error) {
	sessionID := r.principal
	if p.SessionID != "" {
		sessionID = p.SessionID
	}
	if err := storage.ValidateSessionID(sessionID); err != nil {
		return Resolution{}, fmt.Errorf("session_id: %w", err)
	}

	host := p.WebserverHostname != ""
	commcellPair := host && p.CommcellUsername != "" && p.CommcellPassword != ""
	webserverPair := host && p.WebserverUsername != "" && p.WebserverPassword != ""
	token := host && p.AuthToken != ""

	var username, password string
	switch {
	case commcellPair && webserverPair:
		if p.CommcellUsername != p.WebserverUsername || p.CommcellPassword != p.WebserverPassword {
			return Resolution{}, fmt.Errorf("%w: both commcell_username/commcell_password and webserver_username/webserver_password provided with different values", ErrAmbiguousCredentials)
		}
		username, password = p.CommcellUsername, p.CommcellPassword
	case commcellPair:
		username, password = p.CommcellUsername, p.CommcellPassword
	case webserverPair:
		username, password = p.WebserverUsername, p.WebserverPassword
	}
	credentials := username != ""

	if credentials && token {
		return Resolution{}, fmt.Errorf("%w: both auth_token & commcell_username/commcell_password provided", ErrAmbiguousCredentials)
	}

	res := Resolution{SessionID: sessionID}
	switch {
	case credentials:
		res.Credentials = Set{Kind: Password, Hostname: p.WebserverHostname, Username: username, Password: password}
	case token:
		res.Credentials = Set{Kind: Token, Hostname: p.WebserverHostname, Token: p.AuthToken}
	default:
		res.Credentials = Set{Kind: None}
	}
	return res, nil
}
