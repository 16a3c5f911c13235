package module

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/joeycumines/cvansible/internal/commcell"
)

type loginArgs struct {
	ForceHTTPS      Bool   `json:"force_https"`
	CertificatePath string `json:"certificate_path"`
}

func (a *loginArgs) configureClient(cfg *commcell.Config) {
	if a.ForceHTTPS {
		cfg.Scheme = "https"
	}
	if a.CertificatePath != "" {
		cfg.RootCAFile = a.CertificatePath
	}
}

// LoginModule logs in with explicit credentials and caches the session for
// the modules that follow.
type LoginModule struct {
	*BaseModule
}

// NewLoginModule creates the login module.
func NewLoginModule() *LoginModule {
	return &LoginModule{
		BaseModule: NewBaseModule(
			"login",
			"Log in with credentials or an auth token and cache the session",
			Options{RequireHostname: true, FreshLogin: true, Cleanup: true},
		),
	}
}

// NewArgs returns the login-only arguments.
func (m *LoginModule) NewArgs() any { return &loginArgs{} }

// Execute returns the session's auth token.
func (m *LoginModule) Execute(ctx context.Context, inv *Invocation, result Result) error {
	result["authtoken"] = inv.Conn.AuthToken()
	result.SetChanged(true)
	return nil
}

// LogoutModule ends the cached session on the server and deletes the
// session file.
type LogoutModule struct {
	*BaseModule
}

// NewLogoutModule creates the logout module.
func NewLogoutModule() *LogoutModule {
	return &LogoutModule{
		BaseModule: NewBaseModule("logout", "Log out and delete the cached session", Options{}),
	}
}

// Execute logs out. The session file is kept if the server refuses.
func (m *LogoutModule) Execute(ctx context.Context, inv *Invocation, result Result) error {
	if err := inv.Conn.Logout(ctx); err != nil {
		return err
	}
	inv.Retire()
	result.SetChanged(true)
	return nil
}

// CleanupModule removes stale session files without contacting the server.
type CleanupModule struct {
	*BaseModule
}

// NewCleanupModule creates the session.cleanup module.
func NewCleanupModule() *CleanupModule {
	return &CleanupModule{
		BaseModule: NewBaseModule(
			"session.cleanup",
			"Remove session files not accessed within the stale threshold",
			Options{NoConnection: true},
		),
	}
}

// Execute sweeps the session directory.
func (m *CleanupModule) Execute(ctx context.Context, inv *Invocation, result Result) error {
	report := inv.Store.Cleanup()
	removed := make([]string, 0, len(report.Removed))
	for _, name := range report.Removed {
		removed = append(removed, filepath.Join(inv.Store.Root(), name))
	}
	result["removed"] = removed
	result.SetChanged(len(removed) > 0)
	return nil
}

type requestArgs struct {
	Method  string         `json:"method"`
	URL     string         `json:"url"`
	Payload map[string]any `json:"payload"`
}

var webMethods = []string{"GET", "POST", "PUT", "DELETE"}

func (a *requestArgs) Validate() error {
	var missing []string
	if a.Method == "" {
		missing = append(missing, "method")
	}
	if a.URL == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return missingArgs(missing...)
	}
	for _, m := range webMethods {
		if a.Method == m {
			return nil
		}
	}
	return &ArgError{Msg: "method must be one of " + strings.Join(webMethods, ", ") + ", got " + a.Method}
}

// RequestModule sends a raw request to the web service.
type RequestModule struct {
	*BaseModule
}

// NewRequestModule creates the request module.
func NewRequestModule() *RequestModule {
	return &RequestModule{
		BaseModule: NewBaseModule("request", "Send a raw request to the web service", Options{}),
	}
}

// NewArgs returns the request arguments.
func (m *RequestModule) NewArgs() any { return &requestArgs{} }

// Execute sends the request. "{0}" in the url is the web service root.
func (m *RequestModule) Execute(ctx context.Context, inv *Invocation, result Result) error {
	args := inv.Args.(*requestArgs)
	var payload any
	if args.Payload != nil {
		payload = args.Payload
	}
	resp, err := inv.Conn.Request(ctx, args.Method, args.URL, payload)
	if err != nil {
		return err
	}
	result["response"] = resp
	result.SetChanged(false)
	return nil
}
