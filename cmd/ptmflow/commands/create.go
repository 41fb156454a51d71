package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ptmflow/ptmflow/pkg/lib"
)

type CreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	code    string
	project string
}

// NewCreateCommand returns the create command.
func NewCreateCommand(rootCmd *RootCommand, app *kingpin.Application) *CreateCommand {
	c := &CreateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("create", "Create a new order.")
	c.Cmd.Flag("code", "Unique order code.").Short('c').Required().StringVar(&c.code)
	c.Cmd.Flag("project", "Project name for the order.").Short('p').Required().StringVar(&c.project)

	return c
}

func (c CreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c CreateCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.APIClient()
	if err != nil {
		return err
	}

	order, err := client.CreateOrder(ctx, lib.CreateOrderOpts{
		Code:        c.code,
		ProjectName: c.project,
	})
	if err != nil {
		return fmt.Errorf("could not create order: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Order created successfully!\n")
	fmt.Fprintf(c.rootCmd.Stdout, "  ID:      %s\n", order.ID)
	fmt.Fprintf(c.rootCmd.Stdout, "  Code:    %s\n", order.Code)
	fmt.Fprintf(c.rootCmd.Stdout, "  Project: %s\n", order.ProjectName)
	fmt.Fprintf(c.rootCmd.Stdout, "  Status:  %s\n", order.Status)

	return nil
}
