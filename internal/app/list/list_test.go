package list_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/app/list"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage"
	"github.com/ptmflow/ptmflow/internal/storage/storagemock"
)

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		req        list.Request
		setupMocks func(repo *storagemock.MockOrderRepository)
		expErr     error
		expOrders  int
	}{
		"List everything": {
			req: list.Request{},
			setupMocks: func(repo *storagemock.MockOrderRepository) {
				repo.On("ListOrders", mock.Anything, storage.ListOrdersQuery{}).
					Return([]model.Order{{ID: "a"}, {ID: "b"}}, nil)
			},
			expOrders: 2,
		},
		"Status filter is parsed and forwarded": {
			req: list.Request{Status: "failed", Limit: 5},
			setupMocks: func(repo *storagemock.MockOrderRepository) {
				failed := model.OrderStatusFailed
				repo.On("ListOrders", mock.Anything, storage.ListOrdersQuery{Status: &failed, Limit: 5}).
					Return([]model.Order{{ID: "a"}}, nil)
			},
			expOrders: 1,
		},
		"Unknown status filter is rejected": {
			req:        list.Request{Status: "exploded"},
			setupMocks: func(repo *storagemock.MockOrderRepository) {},
			expErr:     model.ErrNotValid,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			repo := &storagemock.MockOrderRepository{}
			tt.setupMocks(repo)

			svc, err := list.NewService(list.ServiceConfig{Repository: repo})
			require.NoError(t, err)

			orders, err := svc.Run(context.Background(), tt.req)

			if tt.expErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expErr))
			} else {
				require.NoError(t, err)
				assert.Len(t, orders, tt.expOrders)
			}
			repo.AssertExpectations(t)
		})
	}
}
