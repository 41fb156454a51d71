package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ptmflow/ptmflow/pkg/lib"
)

type RemoveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	ref   string
	force bool
}

// NewRemoveCommand returns the rm command.
func NewRemoveCommand(rootCmd *RootCommand, app *kingpin.Application) *RemoveCommand {
	c := &RemoveCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("rm", "Remove an order and its progress log.")
	c.Cmd.Arg("order", "Order code or ID.").Required().StringVar(&c.ref)
	c.Cmd.Flag("force", "Cancel the order first if it is active.").Short('f').BoolVar(&c.force)

	return c
}

func (c RemoveCommand) Name() string { return c.Cmd.FullCommand() }

func (c RemoveCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.APIClient()
	if err != nil {
		return err
	}

	err = client.DeleteOrder(ctx, c.ref, lib.DeleteOrderOpts{Force: c.force})
	if err != nil {
		return fmt.Errorf("could not remove order: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Order %s removed.\n", c.ref)

	return nil
}
