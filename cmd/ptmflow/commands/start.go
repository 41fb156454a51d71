package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type StartCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	ref string
}

// NewStartCommand returns the start command.
func NewStartCommand(rootCmd *RootCommand, app *kingpin.Application) *StartCommand {
	c := &StartCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("start", "Start (or restart) the pipeline for an order.")
	c.Cmd.Arg("order", "Order code or ID.").Required().StringVar(&c.ref)

	return c
}

func (c StartCommand) Name() string { return c.Cmd.FullCommand() }

func (c StartCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.APIClient()
	if err != nil {
		return err
	}

	order, err := client.StartOrder(ctx, c.ref)
	if err != nil {
		return fmt.Errorf("could not start order: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Order %s started (status: %s).\n", order.Code, order.Status)

	return nil
}
