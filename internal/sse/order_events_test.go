package sse

import (
	"context"
	"testing"
	"time"

	"ms-storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(orderNumber string, status models.PaymentStatus) models.OrderEvent {
	return models.OrderEvent{Type: models.EventOrderPaid, OrderNumber: orderNumber, PaymentStatus: status}
}

func TestEmitter_RoutesByOrderNumber(t *testing.T) {
	e := NewOrderEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := e.SubscribeToOrder(ctx, "ORD-1")
	other := e.SubscribeToOrder(ctx, "ORD-2")
	all := e.SubscribeToAll(ctx)

	e.Publish(ctx, event("ORD-1", models.PaymentStatusPaid))

	select {
	case got := <-mine:
		assert.Equal(t, "ORD-1", got.OrderNumber)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
	select {
	case got := <-all:
		assert.Equal(t, "ORD-1", got.OrderNumber)
	case <-time.After(time.Second):
		t.Fatal("dashboard subscriber did not receive event")
	}
	assert.Len(t, other, 0)
}

func TestEmitter_SlowClientDoesNotBlock(t *testing.T) {
	e := NewOrderEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := e.SubscribeToOrder(ctx, "ORD-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			e.Emit(event("ORD-1", models.PaymentStatusPending))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full client")
	}
	assert.Len(t, ch, cap(ch))
}

func TestEmitter_UnsubscribeOnCancel(t *testing.T) {
	e := NewOrderEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.SubscribeToOrder(ctx, "ORD-1")
	all := e.SubscribeToAll(ctx)
	assert.Equal(t, 1, e.OrderClientCount("ORD-1"))
	assert.Equal(t, 1, e.AllClientCount())

	cancel()
	require.Eventually(t, func() bool {
		return e.OrderClientCount("ORD-1") == 0 && e.AllClientCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)
	_, open = <-all
	assert.False(t, open)
}
