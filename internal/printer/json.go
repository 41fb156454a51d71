package printer

import (
	"encoding/json"
	"io"

	"github.com/ptmflow/ptmflow/pkg/lib"
)

// JSONPrinter prints order information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

func (j *JSONPrinter) encode(v interface{}) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintList prints orders in JSON format.
func (j *JSONPrinter) PrintList(orders []lib.Order) error {
	if orders == nil {
		orders = []lib.Order{}
	}
	return j.encode(orders)
}

// PrintStatus prints detailed order status in JSON format.
func (j *JSONPrinter) PrintStatus(order lib.Order) error {
	return j.encode(order)
}

// PrintEvents prints progress events in JSON format.
func (j *JSONPrinter) PrintEvents(events []lib.ProgressEvent) error {
	if events == nil {
		events = []lib.ProgressEvent{}
	}
	return j.encode(events)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}
