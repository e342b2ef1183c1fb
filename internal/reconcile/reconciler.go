// Package reconcile applies PayMaya webhook notifications to orders.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"ms-storefront/internal/entitlement"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/paymaya"
)

// Ack is the response PayMaya gets. Everything except a bad signature is a 200 so the
// gateway does not keep retrying.
type Ack struct {
	Status  int    `json:"-"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

var (
	ackReceived      = Ack{Status: http.StatusOK, Success: true, Message: "Webhook received"}
	ackBadSignature  = Ack{Status: http.StatusUnauthorized, Success: false, Message: "Invalid signature"}
	ackInvalidFormat = Ack{Status: http.StatusOK, Success: false, Message: "Invalid webhook payload format"}
	ackFailed        = Ack{Status: http.StatusOK, Success: false, Message: "Error processing webhook"}
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "lookup", "processing", "panic"
	OrderNumber   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

type Entitlements interface {
	Generate(ctx context.Context, o *models.Order) (*entitlement.Result, error)
}

type Notifier interface {
	SendConfirmation(ctx context.Context, o *models.Order) (bool, error)
}

type Reconciler struct {
	DB           *db.DB
	Lock         order.OrderLocker
	Entitlements Entitlements
	Notifier     Notifier
	Events       order.EventPublisher
	Secret       string
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewReconciler(store *db.DB, lock order.OrderLocker, ent Entitlements, notifier Notifier, events order.EventPublisher, secret string, log *logger.Logger) *Reconciler {
	if events == nil {
		events = order.NopPublisher
	}
	return &Reconciler{
		DB:           store,
		Lock:         lock,
		Entitlements: ent,
		Notifier:     notifier,
		Events:       events,
		Secret:       secret,
		Logger:       log,
		Now:          time.Now,
	}
}

// Handle verifies, classifies and applies one webhook delivery.
func (r *Reconciler) Handle(ctx context.Context, body []byte, signature string) Ack {
	r.Logger.LogWebhook("RECEIVED", fmt.Sprintf("%d bytes, signature present: %t", len(body), signature != ""))

	if r.Secret == "" {
		r.Logger.Debug("WEBHOOK", "Signature verification skipped (no webhook secret configured)")
	}
	if err := paymaya.VerifySignature(r.Secret, body, signature); err != nil {
		r.Logger.LogSecurity("WEBHOOK_SIGNATURE", err.Error())
		return ackBadSignature
	}

	payload := paymaya.Classify(body)
	if bad, ok := payload.(paymaya.Unrecognized); ok {
		r.Logger.Warn("WEBHOOK", fmt.Sprintf("Invalid payload format: %s", bad.Reason))
		return ackInvalidFormat
	}

	intent := payload.Intent()
	r.Logger.LogWebhook(intent.Shape, fmt.Sprintf("intent=%s checkout=%q reference=%q",
		intent.Kind, intent.Lookup.CheckoutID, intent.Lookup.OrderNumber))

	if err := r.process(ctx, intent); err != nil {
		r.Logger.Error("WEBHOOK", fmt.Sprintf("Processing error (%s): %v", intent.Shape, err))
		return ackFailed
	}
	return ackReceived
}

// process never lets a panic escape; it becomes a WebhookError.
func (r *Reconciler) process(ctx context.Context, intent paymaya.Intent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &WebhookError{
				Category:      "panic",
				OrderNumber:   intent.Lookup.OrderNumber,
				InternalError: fmt.Sprintf("panic: %v\n%s", p, debug.Stack()),
			}
		}
	}()

	switch intent.Kind {
	case paymaya.IntentIgnore:
		r.Logger.LogWebhook(intent.Shape, "Unhandled status: "+intent.Detail)
		return nil
	case paymaya.IntentPending:
		r.Logger.LogWebhook(intent.Shape, fmt.Sprintf("Payment pending for %s%s", intent.Lookup.CheckoutID, intent.Lookup.OrderNumber))
		return nil
	}

	found, err := r.resolve(ctx, intent.Lookup)
	if err != nil {
		return &WebhookError{Category: "lookup", InternalError: fmt.Sprintf("order lookup failed: %v", err), OriginalErr: err}
	}
	if found == nil {
		r.Logger.Warn("WEBHOOK", fmt.Sprintf("Order not found for payment %s (checkout %q, reference %q)",
			intent.Kind, intent.Lookup.CheckoutID, intent.Lookup.OrderNumber))
		return nil
	}

	apply := func(ctx context.Context) error {
		// re-read; another delivery may have settled it
		current, err := r.DB.GetOrderByID(ctx, found.ID)
		if err != nil {
			return err
		}
		switch intent.Kind {
		case paymaya.IntentSuccess:
			return r.settle(ctx, current, intent)
		case paymaya.IntentFailure:
			return r.fail(ctx, current, intent)
		case paymaya.IntentCancel:
			return r.cancel(ctx, current)
		}
		return nil
	}

	locked := false
	err = r.Lock.WithOrderLock(ctx, found.ID, func(ctx context.Context) error {
		locked = true
		return apply(ctx)
	})
	if err != nil && !locked && ctx.Err() == nil {
		// the row guards and unique keys still hold without the lock
		r.Logger.Warn("WEBHOOK", fmt.Sprintf("Order lock for %s unavailable (%v), applying unlocked", found.OrderNumber, err))
		err = apply(ctx)
	}
	if err != nil {
		var werr *WebhookError
		if errors.As(err, &werr) {
			return werr
		}
		return &WebhookError{
			Category:      "processing",
			OrderNumber:   found.OrderNumber,
			InternalError: fmt.Sprintf("order %s: %v", found.OrderNumber, err),
			OriginalErr:   err,
		}
	}
	return nil
}

// resolve tries the checkout id first, then the order number. A miss is (nil, nil).
func (r *Reconciler) resolve(ctx context.Context, lookup paymaya.Lookup) (*models.Order, error) {
	if lookup.CheckoutID != "" {
		o, err := r.DB.GetOrderByGatewayID(ctx, lookup.CheckoutID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	if lookup.OrderNumber != "" {
		o, err := r.DB.GetOrderByNumber(ctx, lookup.OrderNumber)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// settle marks the order paid once. The follow-up work runs on every success delivery,
// so a redelivery completes whatever an earlier one could not; downloads and the mail
// are idempotent on their own.
func (r *Reconciler) settle(ctx context.Context, o *models.Order, intent paymaya.Intent) error {
	now := r.Now().UTC()

	if o.IsPaid() {
		r.Logger.LogPayment("DUPLICATE", o.OrderNumber, "already paid, checking downloads and confirmation")
	} else {
		columns := backfillBuyer(o, intent.Buyer)
		if len(columns) > 0 {
			r.Logger.LogOrder("BACKFILL", o.OrderNumber, fmt.Sprintf("guest contact updated from gateway: %v", columns))
		}
		o.MarkAsPaid(intent.PaymentID, now)
		columns = append(columns, "status", "payment_status", "payment_gateway_transaction_id", "paid_at")
		if err := r.DB.UpdateOrderColumns(ctx, o, columns...); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		r.Logger.LogPayment("PAID", o.OrderNumber, fmt.Sprintf("payment %s, %s %s", intent.PaymentID, o.TotalAmount.StringFixed(2), o.Currency))
		r.Events.Publish(ctx, models.NewOrderEvent(models.EventOrderPaid, o, now))

		if o.CustomerID != nil {
			if n, err := r.DB.ClearCart(ctx, *o.CustomerID); err != nil {
				r.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to clear cart for customer %d: %v", *o.CustomerID, err))
			} else if n > 0 {
				r.Logger.Debug("WEBHOOK", fmt.Sprintf("Cleared %d cart items for customer %d", n, *o.CustomerID))
			}
		}
	}

	result, genErr := r.Entitlements.Generate(ctx, o)
	if genErr != nil {
		r.Logger.Error("WEBHOOK", fmt.Sprintf("Download generation for %s failed: %v", o.OrderNumber, genErr))
	} else {
		for itemID, itemErr := range result.Failed {
			r.Logger.Error("WEBHOOK", fmt.Sprintf("Download for %s item %d not issued: %v", o.OrderNumber, itemID, itemErr))
		}
	}

	// mail problems never fail the webhook
	if _, err := r.Notifier.SendConfirmation(ctx, o); err != nil {
		r.Logger.Error("WEBHOOK", fmt.Sprintf("Confirmation for %s not sent: %v", o.OrderNumber, err))
	}

	if genErr != nil {
		return fmt.Errorf("generate downloads: %w", genErr)
	}
	return nil
}

func (r *Reconciler) fail(ctx context.Context, o *models.Order, intent paymaya.Intent) error {
	r.Logger.LogPayment("FAILED", o.OrderNumber, fmt.Sprintf("code=%q message=%q", intent.Failure.Code, intent.Failure.Message))

	now := r.Now().UTC()
	if !o.MarkAsFailed(now) {
		r.Logger.LogPayment("FAILED", o.OrderNumber, fmt.Sprintf("left as %s", o.PaymentStatus))
		return nil
	}
	if err := r.DB.UpdateOrderColumns(ctx, o, "payment_status"); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	r.Events.Publish(ctx, models.NewOrderEvent(models.EventOrderFailed, o, now))
	return nil
}

func (r *Reconciler) cancel(ctx context.Context, o *models.Order) error {
	now := r.Now().UTC()
	if !o.MarkAsCancelled(now) {
		r.Logger.LogPayment("CANCELLED", o.OrderNumber, fmt.Sprintf("ignored, payment is %s", o.PaymentStatus))
		return nil
	}
	if err := r.DB.UpdateOrderColumns(ctx, o, "status", "payment_status", "cancelled_at"); err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	r.Logger.LogPayment("CANCELLED", o.OrderNumber, "order cancelled")
	r.Events.Publish(ctx, models.NewOrderEvent(models.EventOrderCancelled, o, now))
	return nil
}

// backfillBuyer copies the buyer the gateway reports into empty or placeholder guest
// fields. Customer orders are left alone. Returns the changed columns.
func backfillBuyer(o *models.Order, buyer paymaya.BuyerInfo) []string {
	if o.CustomerID != nil {
		return nil
	}
	var columns []string
	if email := strings.TrimSpace(buyer.Email); email != "" && isPlaceholder(o.GuestEmail, models.PlaceholderGuestEmail) {
		o.GuestEmail = &email
		columns = append(columns, "guest_email")
	}
	if name := strings.TrimSpace(buyer.Name); name != "" && isPlaceholder(o.GuestName, models.PlaceholderGuestName) {
		o.GuestName = &name
		columns = append(columns, "guest_name")
	}
	return columns
}

func isPlaceholder(value *string, placeholder string) bool {
	return value == nil || *value == "" || *value == placeholder
}
