package create_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/app/create"
	"github.com/ptmflow/ptmflow/internal/log"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    create.ServiceConfig
		expErr bool
		errMsg string
	}{
		"Valid config with all fields": {
			cfg: create.ServiceConfig{
				Repository: &storagemock.MockOrderRepository{},
				Logger:     log.Noop,
			},
		},
		"Valid config without logger uses Noop": {
			cfg: create.ServiceConfig{
				Repository: &storagemock.MockOrderRepository{},
			},
		},
		"Missing repository returns error": {
			cfg:    create.ServiceConfig{},
			expErr: true,
			errMsg: "repository is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := create.NewService(tt.cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceCreate(t *testing.T) {
	tests := map[string]struct {
		config      model.OrderConfig
		setupMocks  func(repo *storagemock.MockOrderRepository)
		expErr      error
		validateRes func(t *testing.T, order *model.Order)
	}{
		"Successful creation": {
			config: model.OrderConfig{Code: "ptm-2026-001", ProjectName: "Phospho time course"},
			setupMocks: func(repo *storagemock.MockOrderRepository) {
				repo.On("GetOrderByCode", mock.Anything, "ptm-2026-001").Return(nil, model.ErrNotFound)
				repo.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
					return o.Code == "ptm-2026-001" && o.Status == model.OrderStatusPending && o.ID != ""
				})).Return(nil)
			},
			validateRes: func(t *testing.T, order *model.Order) {
				assert.Equal(t, "ptm-2026-001", order.Code)
				assert.Equal(t, model.OrderStatusPending, order.Status)
				assert.Len(t, order.ID, 26)
				assert.WithinDuration(t, time.Now().UTC(), order.CreatedAt, time.Minute)
				assert.Nil(t, order.CurrentStage)
			},
		},
		"Invalid code is rejected before touching storage": {
			config: model.OrderConfig{Code: "not ok!", ProjectName: "x"},
			expErr: model.ErrNotValid,
		},
		"Missing project name is rejected": {
			config: model.OrderConfig{Code: "ptm-2026-001"},
			expErr: model.ErrNotValid,
		},
		"Duplicate code is rejected": {
			config: model.OrderConfig{Code: "ptm-2026-001", ProjectName: "x"},
			setupMocks: func(repo *storagemock.MockOrderRepository) {
				repo.On("GetOrderByCode", mock.Anything, "ptm-2026-001").Return(&model.Order{Code: "ptm-2026-001"}, nil)
			},
			expErr: model.ErrAlreadyExists,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			repo := &storagemock.MockOrderRepository{}
			if tt.setupMocks != nil {
				tt.setupMocks(repo)
			}

			svc, err := create.NewService(create.ServiceConfig{Repository: repo})
			require.NoError(t, err)

			order, err := svc.Create(context.Background(), create.CreateOptions{Config: tt.config})

			if tt.expErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expErr))
			} else {
				require.NoError(t, err)
				tt.validateRes(t, order)
			}
			repo.AssertExpectations(t)
		})
	}
}
