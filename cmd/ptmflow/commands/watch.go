package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ptmflow/ptmflow/pkg/lib"
)

type WatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	ref          string
	pollInterval time.Duration
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootCmd *RootCommand, app *kingpin.Application) *WatchCommand {
	c := &WatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("watch", "Follow an order's progress until it finishes.")
	c.Cmd.Arg("order", "Order code or ID.").Required().StringVar(&c.ref)
	c.Cmd.Flag("poll-interval", "Reconciliation poll interval.").Default("10s").DurationVar(&c.pollInterval)

	return c
}

func (c WatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c WatchCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.APIClient()
	if err != nil {
		return err
	}

	watcher, err := client.Watch(ctx, c.ref, lib.WatchOptions{PollInterval: c.pollInterval})
	if err != nil {
		return fmt.Errorf("could not watch order: %w", err)
	}
	defer watcher.Close()

	var last lib.WatchUpdate
	lastLine := ""
	for update := range watcher.Updates() {
		last = update
		line := renderUpdate(update)
		if line != lastLine {
			fmt.Fprintln(c.rootCmd.Stdout, line)
			lastLine = line
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(c.rootCmd.Stdout, "\nOrder %s finished with status %s.\n", last.Order.Code, last.Order.Status)
	if last.Order.ErrorMessage != "" {
		fmt.Fprintf(c.rootCmd.Stdout, "Error: %s\n", last.Order.ErrorMessage)
	}
	if len(last.Order.ResultFiles) > 0 {
		fmt.Fprintf(c.rootCmd.Stdout, "Results:\n")
		names := make([]string, 0, len(last.Order.ResultFiles))
		for name := range last.Order.ResultFiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(c.rootCmd.Stdout, "  %s: %s\n", name, last.Order.ResultFiles[name])
		}
	}

	return nil
}

// renderUpdate formats one progress line out of a watch snapshot.
func renderUpdate(update lib.WatchUpdate) string {
	stage := update.Order.CurrentStage
	if stage == "" {
		stage = string(update.Order.Status)
	}

	detail := ""
	if update.Current != nil {
		detail = update.Current.Event.Message
		if detail == "" {
			detail = fmt.Sprintf("%s %s", update.Current.Event.Step, update.Current.Event.Status)
		}
	}

	return fmt.Sprintf("[%-17s] %3.0f%%  %s", stage, update.Order.ProgressPct, detail)
}
