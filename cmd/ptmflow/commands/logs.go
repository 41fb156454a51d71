package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ptmflow/ptmflow/internal/printer"
	"github.com/ptmflow/ptmflow/pkg/lib"
)

type LogsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	ref    string
	stage  string
	limit  int
	format string
}

// NewLogsCommand returns the logs command.
func NewLogsCommand(rootCmd *RootCommand, app *kingpin.Application) *LogsCommand {
	c := &LogsCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("logs", "Show the persisted progress log of an order.")
	c.Cmd.Arg("order", "Order code or ID.").Required().StringVar(&c.ref)
	c.Cmd.Flag("stage", "Filter by stage (preprocessing, rag_enrichment, report_generation).").StringVar(&c.stage)
	c.Cmd.Flag("limit", "Maximum number of events to return.").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c LogsCommand) Name() string { return c.Cmd.FullCommand() }

func (c LogsCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.APIClient()
	if err != nil {
		return err
	}

	_, events, err := client.OrderEvents(ctx, c.ref, lib.OrderEventsOpts{
		Stage: c.stage,
		Limit: c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not get order events: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default:
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if len(events) == 0 && c.format == "table" {
		return p.PrintMessage("No events found.")
	}

	return p.PrintEvents(events)
}
