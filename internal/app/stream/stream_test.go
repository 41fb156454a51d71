package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/app/stream"
	"github.com/ptmflow/ptmflow/internal/eventbus"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/storage/storagemock"
)

func TestServiceRun(t *testing.T) {
	repo := &storagemock.MockOrderRepository{}
	repo.On("GetOrderByCode", mock.Anything, "ptm-001").
		Return(&model.Order{ID: "id1", Code: "ptm-001", Status: model.OrderStatusPreprocessing}, nil)

	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{})
	require.NoError(t, err)
	defer broker.Close()

	svc, err := stream.NewService(stream.ServiceConfig{Repository: repo, Broker: broker})
	require.NoError(t, err)

	order, sub, err := svc.Run(context.Background(), stream.Request{CodeOrID: "ptm-001"})
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, "id1", order.ID)

	// The subscription is live for the resolved order.
	broker.Publish(model.ProgressEvent{ID: "e1", OrderID: "id1"})
	select {
	case e := <-sub.Events():
		assert.Equal(t, "e1", e.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a live event on the subscription")
	}
}

func TestServiceRunUnknownOrder(t *testing.T) {
	repo := &storagemock.MockOrderRepository{}
	repo.On("GetOrderByCode", mock.Anything, "nope").Return(nil, model.ErrNotFound)

	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{})
	require.NoError(t, err)
	defer broker.Close()

	svc, err := stream.NewService(stream.ServiceConfig{Repository: repo, Broker: broker})
	require.NoError(t, err)

	_, _, err = svc.Run(context.Background(), stream.Request{CodeOrID: "nope"})
	require.ErrorIs(t, err, model.ErrNotFound)
}
