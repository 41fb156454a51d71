package timeline

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// SubProgress is the structured form of a counter-style progress message like
// "InterPro domains: 1,200/6,071".
type SubProgress struct {
	Label string
	Done  int
	Total int
	// Pct is round(100*done/total).
	Pct int
}

// subProgressRe matches "<label>: <done>/<total>" with optionally
// comma-grouped integers.
var subProgressRe = regexp.MustCompile(`^(.+):\s*([0-9][0-9,]*)\s*/\s*([0-9][0-9,]*)$`)

// ParseSubProgress extracts a structured sub-progress record from a message.
// Messages that don't match the pattern, have unparsable numbers or a zero
// total are not progress updates: they fail open to plain milestones so there
// is always something to display.
func ParseSubProgress(message string) (SubProgress, bool) {
	groups := subProgressRe.FindStringSubmatch(strings.TrimSpace(message))
	if groups == nil {
		return SubProgress{}, false
	}

	done, err := strconv.Atoi(strings.ReplaceAll(groups[2], ",", ""))
	if err != nil {
		return SubProgress{}, false
	}
	total, err := strconv.Atoi(strings.ReplaceAll(groups[3], ",", ""))
	if err != nil {
		return SubProgress{}, false
	}
	if total <= 0 {
		return SubProgress{}, false
	}

	return SubProgress{
		Label: strings.TrimSpace(groups[1]),
		Done:  done,
		Total: total,
		Pct:   int(math.Round(100 * float64(done) / float64(total))),
	}, true
}
