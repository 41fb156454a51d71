package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/eventbus"
	"github.com/ptmflow/ptmflow/internal/model"
)

func testEvent(orderID, step string) model.ProgressEvent {
	return model.ProgressEvent{
		OrderID:   orderID,
		Stage:     model.StagePreprocessing,
		Step:      step,
		Status:    model.EventStatusRunning,
		CreatedAt: time.Now().UTC(),
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{})
	require.NoError(t, err)
	defer broker.Close()

	sub1, err := broker.Subscribe("order-1")
	require.NoError(t, err)
	defer sub1.Close()

	sub2, err := broker.Subscribe("order-1")
	require.NoError(t, err)
	defer sub2.Close()

	other, err := broker.Subscribe("order-2")
	require.NoError(t, err)
	defer other.Close()

	broker.Publish(testEvent("order-1", "ptm_quantification"))

	for _, sub := range []*eventbus.Subscription{sub1, sub2} {
		select {
		case e := <-sub.Events():
			assert.Equal(t, "ptm_quantification", e.Step)
		case <-time.After(time.Second):
			t.Fatal("expected event was not received")
		}
	}

	// Other orders don't receive the event.
	select {
	case <-other.Events():
		t.Fatal("subscriber of another order received the event")
	default:
	}
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{BufferSize: 1})
	require.NoError(t, err)
	defer broker.Close()

	sub, err := broker.Subscribe("order-1")
	require.NoError(t, err)
	defer sub.Close()

	// Nobody reads: the second publish must drop, not block.
	done := make(chan struct{})
	go func() {
		broker.Publish(testEvent("order-1", "a"))
		broker.Publish(testEvent("order-1", "b"))
		broker.Publish(testEvent("order-1", "c"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	e := <-sub.Events()
	assert.Equal(t, "a", e.Step)
}

func TestBrokerSubscriptionClose(t *testing.T) {
	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{})
	require.NoError(t, err)
	defer broker.Close()

	sub, err := broker.Subscribe("order-1")
	require.NoError(t, err)

	sub.Close()
	sub.Close() // Idempotent.

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after unsubscribe is a no-op.
	broker.Publish(testEvent("order-1", "a"))
}

func TestBrokerClose(t *testing.T) {
	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{})
	require.NoError(t, err)

	sub, err := broker.Subscribe("order-1")
	require.NoError(t, err)

	broker.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err = broker.Subscribe("order-1")
	require.Error(t, err)
}
