package printer

import "github.com/ptmflow/ptmflow/pkg/lib"

// Printer knows how to print order information in different formats.
type Printer interface {
	PrintList(orders []lib.Order) error
	PrintStatus(order lib.Order) error
	PrintEvents(events []lib.ProgressEvent) error
	PrintMessage(msg string) error
}
