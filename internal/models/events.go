package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderFailed    = "order.failed"
	EventOrderCancelled = "order.cancelled"
	EventOrderStatus    = "order.status_updated"
)

// OrderEvent is published to Kafka and streamed to SSE subscribers.
type OrderEvent struct {
	Type          string          `json:"type"`
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewOrderEvent(eventType string, o *Order, now time.Time) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		CustomerID:    o.CustomerID,
		Timestamp:     now,
	}
}
