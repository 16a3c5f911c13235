package command

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/joeycumines/cvansible/internal/logging"
	"github.com/joeycumines/cvansible/internal/module"
)

// RunCommand runs one Ansible module.
type RunCommand struct {
	*BaseCommand
	env *Env
	logFlags
}

// NewRunCommand creates the run command.
func NewRunCommand(env *Env) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Run a module with an Ansible arguments file",
			"run [options] <module> <args-file>",
		),
		env: env,
	}
}

// SetupFlags configures the logging flags.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.logFlags.register(fs)
}

// Execute runs the module and prints its JSON result to stdout.
func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 2 {
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", c.Usage())
		return fmt.Errorf("expected <module> <args-file>, got %d arguments", len(args))
	}
	return RunModule(ctx, c.env, c.options(), args[0], args[1], stdout, stderr)
}

// RunModule runs the named module the way Ansible invokes a binary module:
// exactly one JSON object on stdout, logs elsewhere. A failed result yields
// an *ExitError with code 1.
func RunModule(ctx context.Context, env *Env, logOpts logging.Options, name, argsPath string, stdout, stderr io.Writer) error {
	logger, closer, err := logging.Setup(logOpts, env.Config, stderr)
	if err != nil {
		return exitWith(module.Exit(stdout, module.Failure(err.Error())))
	}
	defer closer.Close()

	result := env.Runner(logger).Run(ctx, name, argsPath)
	return exitWith(module.Exit(stdout, result))
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}
