package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/model"
)

func TestOrderConfigValidate(t *testing.T) {
	tests := map[string]struct {
		config model.OrderConfig
		expErr bool
	}{
		"valid config should pass": {
			config: model.OrderConfig{Code: "PTM-2026.001", ProjectName: "Phospho time course"},
			expErr: false,
		},
		"missing code should fail": {
			config: model.OrderConfig{ProjectName: "Phospho time course"},
			expErr: true,
		},
		"code with invalid characters should fail": {
			config: model.OrderConfig{Code: "ptm/0 1", ProjectName: "x"},
			expErr: true,
		},
		"code longer than 64 characters should fail": {
			config: model.OrderConfig{
				Code:        "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
				ProjectName: "x",
			},
			expErr: true,
		},
		"missing project name should fail": {
			config: model.OrderConfig{Code: "ptm-001"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.config.Validate()

			if test.expErr {
				require.Error(t, err)
				require.ErrorIs(t, err, model.ErrNotValid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestStageBands(t *testing.T) {
	tests := map[string]struct {
		stage    model.Stage
		stagePct float64
		expPct   float64
	}{
		"preprocessing start maps to overall 0": {
			stage: model.StagePreprocessing, stagePct: 0, expPct: 0,
		},
		"preprocessing end maps to overall 33": {
			stage: model.StagePreprocessing, stagePct: 100, expPct: 33,
		},
		"rag enrichment start maps to overall 33": {
			stage: model.StageRAGEnrichment, stagePct: 0, expPct: 33,
		},
		"rag enrichment half maps to overall 49.5": {
			stage: model.StageRAGEnrichment, stagePct: 50, expPct: 49.5,
		},
		"report generation end maps to overall 100": {
			stage: model.StageReportGeneration, stagePct: 100, expPct: 100,
		},
		"out of range progress is clamped": {
			stage: model.StagePreprocessing, stagePct: 150, expPct: 33,
		},
		"negative progress is clamped": {
			stage: model.StageRAGEnrichment, stagePct: -5, expPct: 33,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := test.stage.OverallProgress(test.stagePct)
			assert.InDelta(t, test.expPct, got, 0.0001)
		})
	}
}

func TestStageNext(t *testing.T) {
	next, ok := model.StagePreprocessing.Next()
	require.True(t, ok)
	assert.Equal(t, model.StageRAGEnrichment, next)

	next, ok = model.StageRAGEnrichment.Next()
	require.True(t, ok)
	assert.Equal(t, model.StageReportGeneration, next)

	_, ok = model.StageReportGeneration.Next()
	assert.False(t, ok)
}

func TestOrderStatus(t *testing.T) {
	tests := map[string]struct {
		status      model.OrderStatus
		expActive   bool
		expTerminal bool
	}{
		"pending is neither active nor terminal": {status: model.OrderStatusPending},
		"queued is active":                       {status: model.OrderStatusQueued, expActive: true},
		"preprocessing is active":                {status: model.OrderStatusPreprocessing, expActive: true},
		"rag enrichment is active":               {status: model.OrderStatusRAGEnrichment, expActive: true},
		"report generation is active":            {status: model.OrderStatusReportGeneration, expActive: true},
		"completed is terminal":                  {status: model.OrderStatusCompleted, expTerminal: true},
		"failed is terminal":                     {status: model.OrderStatusFailed, expTerminal: true},
		"cancelled is terminal":                  {status: model.OrderStatusCancelled, expTerminal: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expActive, test.status.IsActive())
			assert.Equal(t, test.expTerminal, test.status.IsTerminal())
		})
	}
}
