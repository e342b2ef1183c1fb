package kafka

import (
	"testing"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopics() config.TopicConfig {
	return config.TopicConfig{
		OrderCreated:   "storefront.order.created",
		OrderPaid:      "storefront.order.paid",
		OrderFailed:    "storefront.order.failed",
		OrderCancelled: "storefront.order.cancelled",
		OrderStatus:    "storefront.order.status",
	}
}

func TestProducerMessage_RoutesByEventType(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, testTopics(), logger.NewNopLogger())
	defer p.Close()

	event := models.OrderEvent{
		Type:          models.EventOrderPaid,
		OrderID:       7,
		OrderNumber:   "ORD-20260301-0007",
		Status:        models.OrderStatusProcessing,
		PaymentStatus: models.PaymentStatusPaid,
		TotalAmount:   decimal.RequireFromString("149.00"),
		Currency:      "PHP",
		Timestamp:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	msg, err := p.Message(event)
	require.NoError(t, err)

	assert.Equal(t, "storefront.order.paid", msg.Topic)
	assert.Equal(t, []byte("ORD-20260301-0007"), msg.Key)
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte("order.paid")}}, msg.Headers)

	decoded, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, event.OrderNumber, decoded.OrderNumber)
	assert.Equal(t, event.PaymentStatus, decoded.PaymentStatus)
	assert.True(t, event.TotalAmount.Equal(decoded.TotalAmount))
}

func TestProducerMessage_UnknownEvent(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, testTopics(), logger.NewNopLogger())
	defer p.Close()

	_, err := p.Message(models.OrderEvent{Type: "order.shipped", OrderNumber: "ORD-1"})
	assert.Error(t, err)
}

func TestDecodeEvent_RejectsForeignMessages(t *testing.T) {
	_, err := DecodeEvent(kafka.Message{Topic: "x", Value: []byte(`not json`)})
	assert.Error(t, err)

	_, err = DecodeEvent(kafka.Message{Topic: "x", Value: []byte(`{"seat_id":"A1"}`)})
	assert.Error(t, err)
}
