package module

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joeycumines/cvansible/internal/commcell"
	"github.com/joeycumines/cvansible/internal/credential"
	"github.com/joeycumines/cvansible/internal/lifecycle"
	"github.com/joeycumines/cvansible/internal/logging"
	"github.com/joeycumines/cvansible/internal/storage"
)

// Runner executes modules. One Runner may serve many runs, but the session
// file it manages is shared by every run of the same principal.
type Runner struct {
	Registry  *Registry
	Store     *storage.Store
	Client    commcell.Config
	Principal string
	Logger    *slog.Logger
}

// clientConfigurer is implemented by arguments that adjust the client.
type clientConfigurer interface {
	configureClient(cfg *commcell.Config)
}

// Run executes the named module with the arguments file at argsPath and
// returns its result. It never returns a nil Result and never panics: every
// failure, including a panic in the module, becomes a failed result.
func (r *Runner) Run(ctx context.Context, name, argsPath string) (result Result) {
	id := uuid.NewString()
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("invocation_id", id, "module", name)

	result = Result{}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("module panicked", "panic", p)
			result.Fail(fmt.Sprintf("module %s panicked: %v", name, p))
		}
	}()

	mod, err := r.Registry.Get(name)
	if err != nil {
		result.Fail(err.Error())
		return result
	}

	args, err := ReadArgs(argsPath)
	if err != nil {
		result.Fail(err.Error())
		return result
	}
	result["invocation"] = map[string]any{"module_args": logging.Redact(args, credential.Sensitive)}

	params, modArgs, err := decodeArgs(args, mod)
	if err != nil {
		result.Fail(err.Error())
		return result
	}
	logger.Debug("module invoked", "params", params)

	if err := r.execute(ctx, logger, id, mod, params, modArgs, result); err != nil {
		logger.Warn("module failed", "error", err)
		result.Fail(err.Error())
		return result
	}
	if _, ok := result["failed"]; !ok {
		result["failed"] = false
	}
	logger.Debug("module finished", "changed", result["changed"])
	return result
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, id string, mod Module, params credential.Params, modArgs any, result Result) error {
	opts := mod.Options()
	resolver := credential.NewResolver(r.Principal)

	if opts.RequireHostname && params.WebserverHostname == "" {
		return missingArgs("webserver_hostname")
	}
	if opts.FreshLogin {
		res, err := resolver.Resolve(params)
		if err == nil && res.Credentials.Kind == credential.None {
			return fmt.Errorf("%s never reuses the cached session and requires commcell_username and commcell_password, webserver_username and webserver_password, or auth_token", mod.Name())
		}
	}
	if opts.Cleanup {
		report := r.Store.Cleanup()
		logger.Debug("stale sessions swept", "removed", len(report.Removed), "skipped", len(report.Skipped))
	}

	inv := &Invocation{
		ID:     id,
		Args:   modArgs,
		Store:  r.Store,
		Logger: logger,
	}
	if opts.NoConnection {
		return mod.Execute(ctx, inv, result)
	}

	cfg := r.Client
	cfg.Logger = logger
	if c, ok := modArgs.(clientConfigurer); ok {
		c.configureClient(&cfg)
	}
	mgr := lifecycle.New[*commcell.Connection](r.Store, commcell.NewClient(cfg), resolver, lifecycle.WithLogger(logger))
	inv.retire = mgr.Retire
	return mgr.Run(ctx, params, func(ctx context.Context, conn *commcell.Connection) error {
		inv.Conn = conn
		return mod.Execute(ctx, inv, result)
	})
}
