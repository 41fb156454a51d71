package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type CancelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	ref string
}

// NewCancelCommand returns the cancel command.
func NewCancelCommand(rootCmd *RootCommand, app *kingpin.Application) *CancelCommand {
	c := &CancelCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("cancel", "Cancel an active order.")
	c.Cmd.Arg("order", "Order code or ID.").Required().StringVar(&c.ref)

	return c
}

func (c CancelCommand) Name() string { return c.Cmd.FullCommand() }

func (c CancelCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.APIClient()
	if err != nil {
		return err
	}

	order, err := client.CancelOrder(ctx, c.ref)
	if err != nil {
		return fmt.Errorf("could not cancel order: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Order %s cancellation requested (status: %s).\n", order.Code, order.Status)

	return nil
}
