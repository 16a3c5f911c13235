// Package module runs Ansible binary modules against the web server. A run
// reads the arguments file, authenticates through the lifecycle manager,
// executes one module and prints a single JSON result.
package module

import (
	"context"
	"log/slog"

	"github.com/joeycumines/cvansible/internal/commcell"
	"github.com/joeycumines/cvansible/internal/storage"
)

// Module is a single Ansible module.
type Module interface {
	// Name returns the module name, e.g. "job.status".
	Name() string

	// Description returns a short description of the module.
	Description() string

	// Options returns how the runner prepares the invocation.
	Options() Options

	// NewArgs returns a pointer to a zero value of the module's own
	// argument struct, or nil if the module only takes login arguments.
	// Argument names come from the json tags.
	NewArgs() any

	// Execute performs the module's work, recording output in result. It
	// must set changed on success.
	Execute(ctx context.Context, inv *Invocation, result Result) error
}

// Options control the work the runner does around Execute.
type Options struct {
	// RequireHostname rejects runs without webserver_hostname.
	RequireHostname bool
	// FreshLogin rejects runs that would fall back to the session file.
	FreshLogin bool
	// Cleanup sweeps stale session files before authenticating.
	Cleanup bool
	// NoConnection skips authentication. Invocation.Conn is nil.
	NoConnection bool
}

// Invocation is what a module sees of its run.
type Invocation struct {
	// ID identifies the run in logs.
	ID string
	// Args is the value returned by NewArgs, decoded.
	Args any
	// Conn is the authenticated connection.
	Conn   *commcell.Connection
	Store  *storage.Store
	Logger *slog.Logger

	retire func()
}

// Retire deletes the session file when the run ends instead of saving it.
func (inv *Invocation) Retire() {
	if inv.retire != nil {
		inv.retire()
	}
}

// BaseModule provides Name, Description, Options and NewArgs for embedding.
type BaseModule struct {
	name        string
	description string
	options     Options
}

// NewBaseModule creates a new BaseModule.
func NewBaseModule(name, description string, options Options) *BaseModule {
	return &BaseModule{
		name:        name,
		description: description,
		options:     options,
	}
}

// Name returns the module name.
func (m *BaseModule) Name() string {
	return m.name
}

// Description returns the module description.
func (m *BaseModule) Description() string {
	return m.description
}

// Options returns the module options.
func (m *BaseModule) Options() Options {
	return m.options
}

// NewArgs is a default implementation for modules without arguments.
func (m *BaseModule) NewArgs() any {
	return nil
}
