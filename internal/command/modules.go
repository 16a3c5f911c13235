package command

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
)

// ModulesCommand lists the available modules.
type ModulesCommand struct {
	*BaseCommand
	env *Env
}

// NewModulesCommand creates the modules command.
func NewModulesCommand(env *Env) *ModulesCommand {
	return &ModulesCommand{
		BaseCommand: NewBaseCommand("modules", "List available modules", "modules"),
		env:         env,
	}
}

// Execute prints each module with its description.
func (c *ModulesCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}
	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	for _, name := range c.env.Modules.List() {
		m, err := c.env.Modules.Get(name)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, m.Description())
	}
	return w.Flush()
}
