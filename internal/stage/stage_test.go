package stage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/stage"
)

func TestGroupDigits(t *testing.T) {
	tests := map[string]struct {
		n   int
		exp string
	}{
		"small numbers are unchanged":       {n: 500, exp: "500"},
		"zero":                              {n: 0, exp: "0"},
		"four digits get one separator":     {n: 6095, exp: "6,095"},
		"seven digits get two separators":   {n: 1200345, exp: "1,200,345"},
		"exact thousands":                   {n: 1000, exp: "1,000"},
		"negative numbers keep their sign":  {n: -6095, exp: "-6,095"},
		"six digits with leading group one": {n: 100000, exp: "100,000"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, stage.GroupDigits(test.n))
		})
	}
}

func TestCountMessage(t *testing.T) {
	assert.Equal(t, "InterPro domains: 1,200/6,071", stage.CountMessage("InterPro domains", 1200, 6071))
	assert.Equal(t, "PubMed: 5/200", stage.CountMessage("PubMed", 5, 200))
}

func TestSpan(t *testing.T) {
	type tick struct {
		pct float64
		msg string
	}

	var got []tick
	emit := func(step string, status model.EventStatus, pct float64, message string) {
		got = append(got, tick{pct: pct, msg: message})
	}

	fn := stage.Span(emit, "quantification", 10, 40)
	fn(0, "a")
	fn(0.5, "b")
	fn(1, "c")
	fn(-1, "clamped low")
	fn(2, "clamped high")

	assert.Equal(t, []tick{
		{pct: 10, msg: "a"},
		{pct: 30, msg: "b"},
		{pct: 50, msg: "c"},
		{pct: 10, msg: "clamped low"},
		{pct: 50, msg: "clamped high"},
	}, got)
}
