package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

const DefaultCurrency = "PHP"

// Placeholder contact values the checkout page stores before the gateway reports the buyer.
const (
	PlaceholderGuestEmail = "pending@payment.com"
	PlaceholderGuestName  = "Pending Payment"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	OrderNumber string `bun:"order_number,unique,notnull" json:"order_number"`

	CustomerID *int64  `bun:"customer_id" json:"customer_id"`
	GuestEmail *string `bun:"guest_email" json:"guest_email"`
	GuestName  *string `bun:"guest_name" json:"guest_name"`

	Subtotal       decimal.Decimal `bun:"subtotal,type:decimal(12,2),notnull" json:"subtotal"`
	TaxAmount      decimal.Decimal `bun:"tax_amount,type:decimal(12,2),notnull" json:"tax_amount"`
	DiscountAmount decimal.Decimal `bun:"discount_amount,type:decimal(12,2),notnull" json:"discount_amount"`
	TotalAmount    decimal.Decimal `bun:"total_amount,type:decimal(12,2),notnull" json:"total_amount"`
	Currency       string          `bun:"currency,notnull" json:"currency"`

	Status        OrderStatus   `bun:"status,notnull" json:"status"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`

	PaymentMethod               *string `bun:"payment_method" json:"payment_method"`
	PaymentGatewayID            *string `bun:"payment_gateway_id" json:"payment_gateway_id"`
	PaymentGatewayTransactionID *string `bun:"payment_gateway_transaction_id" json:"payment_gateway_transaction_id"`

	BillingAddress  map[string]interface{} `bun:"billing_address,type:jsonb" json:"billing_address,omitempty"`
	ShippingAddress map[string]interface{} `bun:"shipping_address,type:jsonb" json:"shipping_address,omitempty"`

	PaidAt      *time.Time `bun:"paid_at" json:"paid_at"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at"`
	CancelledAt *time.Time `bun:"cancelled_at" json:"cancelled_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

// OrderItem is a price snapshot taken when the order is placed.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID           int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderID      int64           `bun:"order_id,notnull" json:"order_id"`
	ProductID    int64           `bun:"product_id,notnull" json:"product_id"`
	ProductName  string          `bun:"product_name,notnull" json:"product_name"`
	ProductPrice decimal.Decimal `bun:"product_price,type:decimal(12,2),notnull" json:"product_price"`
	Quantity     int             `bun:"quantity,notnull" json:"quantity"`
	Subtotal     decimal.Decimal `bun:"subtotal,type:decimal(12,2),notnull" json:"subtotal"`
	CreatedAt    time.Time       `bun:"created_at,notnull" json:"created_at"`

	Product  *Product         `bun:"rel:belongs-to,join:product_id=id" json:"-"`
	Download *ProductDownload `bun:"-" json:"download,omitempty"`
}

func (o *Order) IsPending() bool {
	return o.PaymentStatus == PaymentStatusPending
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

func (o *Order) IsGuestOrder() bool {
	return o.CustomerID == nil
}

func (o *Order) BelongsToCustomer(customerID int64) bool {
	return o.CustomerID != nil && *o.CustomerID == customerID
}

// BelongsToGuest compares emails case-insensitively and never matches customer orders.
func (o *Order) BelongsToGuest(email string) bool {
	if o.CustomerID != nil || o.GuestEmail == nil || email == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*o.GuestEmail), strings.TrimSpace(email))
}

// MarkAsPaid moves the order to paid/processing. paid_at is stamped only once.
// Returns false when the order was already paid.
func (o *Order) MarkAsPaid(transactionID string, now time.Time) bool {
	if o.IsPaid() {
		return false
	}
	o.PaymentStatus = PaymentStatusPaid
	o.Status = OrderStatusProcessing
	if transactionID != "" {
		o.PaymentGatewayTransactionID = &transactionID
	}
	if o.PaidAt == nil {
		o.PaidAt = &now
	}
	o.UpdatedAt = now
	return true
}

// MarkAsFailed applies only from pending, so a paid order is never downgraded.
func (o *Order) MarkAsFailed(now time.Time) bool {
	if !o.IsPending() {
		return false
	}
	o.PaymentStatus = PaymentStatusFailed
	o.UpdatedAt = now
	return true
}

// MarkAsCancelled applies only to orders whose payment is still pending.
func (o *Order) MarkAsCancelled(now time.Time) bool {
	if !o.IsPending() {
		return false
	}
	o.Status = OrderStatusCancelled
	o.PaymentStatus = PaymentStatusCancelled
	if o.CancelledAt == nil {
		o.CancelledAt = &now
	}
	o.UpdatedAt = now
	return true
}

func (o *Order) MarkAsCompleted(now time.Time) {
	o.Status = OrderStatusCompleted
	if o.CompletedAt == nil {
		o.CompletedAt = &now
	}
	o.UpdatedAt = now
}

// ContactEmail is the address confirmation mail goes to.
func (o *Order) ContactEmail(customer *Customer) string {
	if o.CustomerID != nil {
		if customer != nil {
			return customer.Email
		}
		return ""
	}
	if o.GuestEmail != nil {
		return *o.GuestEmail
	}
	return ""
}

func IsValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// IsAdminSettablePaymentStatus lists the values staff may set by hand.
func IsAdminSettablePaymentStatus(s string) bool {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}
