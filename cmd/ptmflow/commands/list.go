package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ptmflow/ptmflow/internal/printer"
	"github.com/ptmflow/ptmflow/pkg/lib"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	limit        int
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all orders.")
	c.Cmd.Flag("status", "Filter by status (pending, queued, preprocessing, rag_enrichment, report_generation, completed, failed, cancelled).").StringVar(&c.statusFilter)
	c.Cmd.Flag("limit", "Maximum number of orders to return.").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.APIClient()
	if err != nil {
		return err
	}

	orders, err := client.ListOrders(ctx, lib.ListOrdersOpts{
		Status: lib.OrderStatus(c.statusFilter),
		Limit:  c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list orders: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default:
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if len(orders) == 0 && c.format == "table" {
		return p.PrintMessage("No orders found.")
	}

	return p.PrintList(orders)
}
