package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/joeycumines/cvansible/internal/commcell"
)

// SessionCommand inspects and manages session files.
type SessionCommand struct {
	*BaseCommand
	env *Env
	logFlags
	id string
}

// NewSessionCommand creates the session command.
func NewSessionCommand(env *Env) *SessionCommand {
	return &SessionCommand{
		BaseCommand: NewBaseCommand(
			"session",
			"Inspect or remove cached sessions",
			"session [options] <path|show|delete|clean>",
		),
		env: env,
	}
}

// SetupFlags configures the flags for the session command.
func (c *SessionCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.id, "id", "", "Session id (default: the current user id)")
	c.logFlags.register(fs)
}

// Execute runs the session subcommand.
func (c *SessionCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", c.Usage())
		return fmt.Errorf("expected exactly one subcommand")
	}

	logger, closer, err := c.setup(c.env.Config, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	store := c.env.NewStore(logger)
	id := c.id
	if id == "" {
		id = c.env.Principal
	}

	switch args[0] {
	case "path":
		path, err := store.Path(id)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, path)
		return nil

	case "show":
		conn := commcell.NewClient(c.env.ClientConfig(logger)).NewHandle()
		if err := store.Load(id, conn); err != nil {
			return err
		}
		path, _ := store.Path(id)
		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "path\t%s\n", path)
		_, _ = fmt.Fprintf(w, "hostname\t%s\n", conn.Hostname())
		_, _ = fmt.Fprintf(w, "web service\t%s\n", conn.WebService())
		_, _ = fmt.Fprintf(w, "username\t%s\n", conn.Username())
		_, _ = fmt.Fprintf(w, "created\t%s\n", conn.CreatedAt().Format(time.RFC3339))
		return w.Flush()

	case "delete":
		if err := store.Remove(id); err != nil {
			return err
		}
		path, _ := store.Path(id)
		_, _ = fmt.Fprintf(stdout, "Removed %s\n", path)
		return nil

	case "clean":
		report := store.Cleanup()
		for _, name := range report.Removed {
			_, _ = fmt.Fprintf(stdout, "removed\t%s\n", name)
		}
		for _, name := range report.Skipped {
			_, _ = fmt.Fprintf(stdout, "skipped\t%s\n", name)
		}
		_, _ = fmt.Fprintf(stdout, "%d removed, %d skipped (threshold %s)\n", len(report.Removed), len(report.Skipped), store.StaleAfter())
		return nil

	default:
		_, _ = fmt.Fprintf(stderr, "Unknown subcommand: %s\n", args[0])
		return errors.New("unknown session subcommand")
	}
}
