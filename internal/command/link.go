package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LinkCommand installs the binary into an Ansible library directory as one
// symlink per module. Invoked through a link, the binary runs that module.
type LinkCommand struct {
	*BaseCommand
	env        *Env
	force      bool
	executable func() (string, error)
}

// NewLinkCommand creates the link command.
func NewLinkCommand(env *Env) *LinkCommand {
	return &LinkCommand{
		BaseCommand: NewBaseCommand(
			"link",
			"Create one symlink per module in an Ansible library directory",
			"link [options] <dir>",
		),
		env:        env,
		executable: os.Executable,
	}
}

// SetupFlags configures the flags for the link command.
func (c *LinkCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "Replace existing files")
}

// LinkName is the file name a module is installed under. Ansible module
// names cannot contain dots.
func LinkName(module string) string {
	return strings.ReplaceAll(module, ".", "_")
}

// Execute creates the links.
func (c *LinkCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", c.Usage())
		return fmt.Errorf("expected a directory")
	}
	dir := args[0]

	target, err := c.executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if target, err = filepath.EvalSymlinks(target); err != nil {
		return fmt.Errorf("failed to resolve executable: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	for _, name := range c.env.Modules.List() {
		link := filepath.Join(dir, LinkName(name))
		if c.force {
			if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to replace %s: %w", link, err)
			}
		}
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("failed to link %s: %w", link, err)
		}
		_, _ = fmt.Fprintf(stdout, "%s -> %s\n", link, target)
	}
	return nil
}
