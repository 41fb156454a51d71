package start_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/app/start"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage/storagemock"
)

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) Start(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		setupMocks func(repo *storagemock.MockOrderRepository, starter *mockStarter)
		expErr     error
		expStatus  model.OrderStatus
	}{
		"Successful start returns the refreshed order": {
			setupMocks: func(repo *storagemock.MockOrderRepository, starter *mockStarter) {
				repo.On("GetOrderByCode", mock.Anything, "ptm-001").
					Return(&model.Order{ID: "id1", Code: "ptm-001", Status: model.OrderStatusPending}, nil)
				starter.On("Start", mock.Anything, "id1").Return(nil)
				repo.On("GetOrder", mock.Anything, "id1").
					Return(&model.Order{ID: "id1", Code: "ptm-001", Status: model.OrderStatusQueued}, nil)
			},
			expStatus: model.OrderStatusQueued,
		},
		"Orchestrator errors are propagated": {
			setupMocks: func(repo *storagemock.MockOrderRepository, starter *mockStarter) {
				repo.On("GetOrderByCode", mock.Anything, "ptm-001").
					Return(&model.Order{ID: "id1", Code: "ptm-001", Status: model.OrderStatusPending}, nil)
				starter.On("Start", mock.Anything, "id1").Return(fmt.Errorf("db locked"))
			},
			expErr: errors.New("could not start order"),
		},
		"Unknown order is rejected": {
			setupMocks: func(repo *storagemock.MockOrderRepository, starter *mockStarter) {
				repo.On("GetOrderByCode", mock.Anything, "ptm-001").Return(nil, model.ErrNotFound)
			},
			expErr: model.ErrNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			repo := &storagemock.MockOrderRepository{}
			starter := &mockStarter{}
			tt.setupMocks(repo, starter)

			svc, err := start.NewService(start.ServiceConfig{Repository: repo, Starter: starter})
			require.NoError(t, err)

			order, err := svc.Run(context.Background(), start.Request{CodeOrID: "ptm-001"})

			if tt.expErr != nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expErr.Error())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expStatus, order.Status)
			}
			repo.AssertExpectations(t)
			starter.AssertExpectations(t)
		})
	}
}
