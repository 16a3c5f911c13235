package command

import (
	"log/slog"

	"github.com/joeycumines/cvansible/internal/commcell"
	"github.com/joeycumines/cvansible/internal/config"
	"github.com/joeycumines/cvansible/internal/credential"
	"github.com/joeycumines/cvansible/internal/module"
	"github.com/joeycumines/cvansible/internal/storage"
)

// Env is what commands share.
type Env struct {
	Config    *config.Config
	Modules   *module.Registry
	Principal string
}

// NewEnv creates an Env for the current user with the shipped modules.
func NewEnv(cfg *config.Config) (*Env, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	principal, err := credential.Principal()
	if err != nil {
		return nil, err
	}
	return &Env{
		Config:    cfg,
		Modules:   module.DefaultRegistry(),
		Principal: principal,
	}, nil
}

// NewStore creates the session store described by the [sessions] section.
func (e *Env) NewStore(logger *slog.Logger) *storage.Store {
	opts := []storage.Option{
		storage.WithLogger(logger),
		storage.WithStaleAfter(e.Config.Sessions.StaleAfter()),
		storage.WithLockTimeout(e.Config.Sessions.LockTimeout()),
	}
	if dir := e.Config.Sessions.Dir; dir != "" {
		opts = append(opts, storage.WithRoot(dir))
	}
	return storage.NewStore(opts...)
}

// ClientConfig returns the client settings from the [client] section.
func (e *Env) ClientConfig(logger *slog.Logger) commcell.Config {
	cc := e.Config.Client
	return commcell.Config{
		Scheme:             cc.Scheme,
		Timeout:            cc.Timeout(),
		InsecureSkipVerify: cc.InsecureSkipVerify,
		PollInterval:       cc.PollInterval(),
		Logger:             logger,
	}
}

// Runner creates a module runner.
func (e *Env) Runner(logger *slog.Logger) *module.Runner {
	return &module.Runner{
		Registry:  e.Modules,
		Store:     e.NewStore(logger),
		Client:    e.ClientConfig(logger),
		Principal: e.Principal,
		Logger:    logger,
	}
}
