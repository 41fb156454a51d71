package printer

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/ptmflow/ptmflow/pkg/lib"
)

// TablePrinter prints order information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints orders in a table format.
func (t *TablePrinter) PrintList(orders []lib.Order) error {
	if len(orders) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "CODE\tPROJECT\tSTATUS\tSTAGE\tPROGRESS\tCREATED")

	// Print rows
	for _, o := range orders {
		stage := o.CurrentStage
		if stage == "" {
			stage = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			o.Code, o.ProjectName, o.Status, stage, o.ProgressPct, TimeAgo(o.CreatedAt))
	}

	return nil
}

// PrintStatus prints detailed order status.
func (t *TablePrinter) PrintStatus(order lib.Order) error {
	fmt.Fprintf(t.writer, "Code:       %s\n", order.Code)
	fmt.Fprintf(t.writer, "ID:         %s\n", order.ID)
	fmt.Fprintf(t.writer, "Project:    %s\n", order.ProjectName)
	fmt.Fprintf(t.writer, "Status:     %s\n", order.Status)

	if order.CurrentStage != "" {
		fmt.Fprintf(t.writer, "Stage:      %s\n", order.CurrentStage)
	}

	fmt.Fprintf(t.writer, "Progress:   %.0f%%\n", order.ProgressPct)

	if order.StageDetail != "" {
		fmt.Fprintf(t.writer, "Detail:     %s\n", order.StageDetail)
	}

	if order.ErrorMessage != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", order.ErrorMessage)
	}

	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(order.CreatedAt))

	if order.StartedAt != nil {
		fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(*order.StartedAt))
	}

	if order.CompletedAt != nil {
		fmt.Fprintf(t.writer, "Completed:  %s\n", FormatTimestamp(*order.CompletedAt))
	}

	if len(order.ResultFiles) > 0 {
		fmt.Fprintf(t.writer, "Results:\n")
		names := make([]string, 0, len(order.ResultFiles))
		for name := range order.ResultFiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(t.writer, "  %s: %s\n", name, order.ResultFiles[name])
		}
	}

	return nil
}

// PrintEvents prints progress events in a table format.
func (t *TablePrinter) PrintEvents(events []lib.ProgressEvent) error {
	if len(events) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "TIME\tSTAGE\tSTEP\tSTATUS\tPCT\tMESSAGE")

	// Print rows
	for _, e := range events {
		pct := "-"
		if e.ProgressPct != nil {
			pct = fmt.Sprintf("%.0f%%", *e.ProgressPct)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt().Format(time.TimeOnly), e.Stage, e.Step, e.Status, pct, e.Message)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
