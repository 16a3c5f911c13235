package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joeycumines/cvansible/internal/command"
	"github.com/joeycumines/cvansible/internal/config"
	"github.com/joeycumines/cvansible/internal/logging"
	"github.com/joeycumines/cvansible/internal/module"
)

const (
	version = "0.1.0"
	binName = "cvansible"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		var exitErr *command.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: %v; using default configuration\n", err)
		cfg = config.NewConfig()
	}
	env, err := command.NewEnv(cfg)
	if err != nil {
		return runFailed(stdout, err.Error())
	}

	// Invoked through a module link: Ansible passes the arguments file.
	if name := invokedAs(args); name != binName {
		if _, err := env.Modules.Get(name); err == nil {
			if len(args) != 2 {
				return runFailed(stdout, fmt.Sprintf("module %s expects exactly one argument, the arguments file", name))
			}
			return command.RunModule(ctx, env, logging.Options{}, name, args[1], stdout, stderr)
		}
	}

	registry := command.NewRegistry()
	helpCmd := command.NewHelpCommand(registry)
	registry.Register(helpCmd)
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewRunCommand(env))
	registry.Register(command.NewModulesCommand(env))
	registry.Register(command.NewSessionCommand(env))
	registry.Register(command.NewLinkCommand(env))

	if len(args) < 2 {
		return helpCmd.Execute(ctx, []string{}, stdout, stderr)
	}

	cmdName := args[1]
	if cmdName == "-h" || cmdName == "--help" {
		return helpCmd.Execute(ctx, []string{}, stdout, stderr)
	}

	cmd, err := registry.Get(cmdName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", cmdName)
		_, _ = fmt.Fprintf(stderr, "Use '%s help' to see available commands.\n", binName)
		return err
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", cmd.Usage())
		_, _ = fmt.Fprintf(stderr, "\n%s\n\n", cmd.Description())
		_, _ = fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	cmd.SetupFlags(fs)
	if err := fs.Parse(args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return cmd.Execute(ctx, fs.Args(), stdout, stderr)
}

// invokedAs returns the program name without directory or .exe suffix.
func invokedAs(args []string) string {
	if len(args) == 0 {
		return binName
	}
	return strings.TrimSuffix(filepath.Base(args[0]), ".exe")
}

func runFailed(stdout io.Writer, msg string) error {
	if code := module.Exit(stdout, module.Failure(msg)); code != 0 {
		return &command.ExitError{Code: code}
	}
	return nil
}
