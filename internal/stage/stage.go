package stage

import (
	"fmt"
	"strconv"

	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
)

// ProgressFunc reports fractional progress of a long collaborator call,
// fraction in [0,1], together with a human readable message.
type ProgressFunc func(fraction float64, message string)

// Span returns a ProgressFunc that maps a collaborator's [0,1] fraction onto
// the [base, base+span] slice of the stage's percent range and emits it as a
// running tick of the given step.
func Span(emit pipeline.EmitFunc, step string, base, span float64) ProgressFunc {
	return func(fraction float64, message string) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		emit(step, model.EventStatusRunning, base+fraction*span, message)
	}
}

// CountMessage formats "label: done/total" with comma grouped integers, the
// shape progress consumers recognize as a sub-progress counter.
func CountMessage(label string, done, total int) string {
	return fmt.Sprintf("%s: %s/%s", label, GroupDigits(done), GroupDigits(total))
}

// GroupDigits renders an integer with thousands separators (6095 -> "6,095").
func GroupDigits(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return "-" + GroupDigits(-n)
	}
	if len(s) <= 3 {
		return s
	}
	var out []byte
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
