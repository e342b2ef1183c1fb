package order

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product not available")
)

// PriceTolerance is the largest client/server subtotal gap accepted without override.
var PriceTolerance = decimal.New(1, -2)

// ProductError names the product that stopped an order.
type ProductError struct {
	Err       error
	ProductID int64
	Title     string
}

func (e *ProductError) Error() string {
	if errors.Is(e.Err, ErrProductUnavailable) {
		return fmt.Sprintf("Product %s is not available", e.Title)
	}
	return fmt.Sprintf("Product with ID %d not found", e.ProductID)
}

func (e *ProductError) Unwrap() error { return e.Err }

// ValidationError collects messages per request field.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderRequest is the cart as sent by the client. Money fields are advisory.
type OrderRequest struct {
	Items           []ItemRequest          `json:"items"`
	Subtotal        *decimal.Decimal       `json:"subtotal"`
	TaxAmount       *decimal.Decimal       `json:"tax_amount"`
	DiscountAmount  *decimal.Decimal       `json:"discount_amount"`
	TotalAmount     *decimal.Decimal       `json:"total_amount"`
	Currency        string                 `json:"currency"`
	GuestEmail      string                 `json:"guest_email"`
	GuestName       string                 `json:"guest_name"`
	BillingAddress  map[string]interface{} `json:"billing_address"`
	ShippingAddress map[string]interface{} `json:"shipping_address"`
}

// requiresGuestContact is true for every actor that is not a signed-in customer.
func requiresGuestContact(actor auth.Actor) bool {
	return !actor.IsCustomer()
}

// Check runs the request-shape rules that need no database.
func (r *OrderRequest) Check(actor auth.Actor) error {
	verr := &ValidationError{}

	if len(r.Items) == 0 {
		verr.Add("items", "The items field must have at least 1 items.")
	}
	for i, item := range r.Items {
		if item.ProductID <= 0 {
			verr.Add(fmt.Sprintf("items.%d.product_id", i), "The product id field is required.")
		}
		if item.Quantity < 1 {
			verr.Add(fmt.Sprintf("items.%d.quantity", i), "The quantity must be at least 1.")
		}
	}

	checkMoney := func(field string, v *decimal.Decimal, required bool) {
		if v == nil {
			if required {
				verr.Add(field, fmt.Sprintf("The %s field is required.", strings.ReplaceAll(field, "_", " ")))
			}
			return
		}
		if v.IsNegative() {
			verr.Add(field, fmt.Sprintf("The %s must be at least 0.", strings.ReplaceAll(field, "_", " ")))
		}
	}
	checkMoney("subtotal", r.Subtotal, true)
	checkMoney("total_amount", r.TotalAmount, true)
	checkMoney("tax_amount", r.TaxAmount, false)
	checkMoney("discount_amount", r.DiscountAmount, false)

	if len(r.Currency) > 3 {
		verr.Add("currency", "The currency must not be greater than 3 characters.")
	}

	if requiresGuestContact(actor) {
		email := strings.TrimSpace(r.GuestEmail)
		if email == "" {
			verr.Add("guest_email", "The guest email field is required.")
		} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			verr.Add("guest_email", "The guest email must be a valid email address.")
		}
		if len(r.GuestName) > 255 {
			verr.Add("guest_name", "The guest name must not be greater than 255 characters.")
		}
	}

	if verr.Empty() {
		return nil
	}
	return verr
}

// Validator turns a request into a server-priced order draft.
type Validator struct {
	Logger *logger.Logger
}

// Draft prices every line from the catalog through tx. The returned order has no number
// or id yet.
func (v *Validator) Draft(ctx context.Context, tx *db.DB, req *OrderRequest, actor auth.Actor, now time.Time) (*models.Order, error) {
	if err := req.Check(actor); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := tx.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	items := make([]*models.OrderItem, 0, len(req.Items))
	calculated := decimal.Zero
	for _, line := range req.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, &ProductError{Err: ErrProductNotFound, ProductID: line.ProductID}
		}
		if !product.IsActive {
			return nil, &ProductError{Err: ErrProductUnavailable, ProductID: product.ID, Title: product.Title}
		}

		lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		calculated = calculated.Add(lineSubtotal)
		items = append(items, &models.OrderItem{
			ProductID:    product.ID,
			ProductName:  product.Title,
			ProductPrice: product.Price,
			Quantity:     line.Quantity,
			Subtotal:     lineSubtotal,
			CreatedAt:    now,
		})
	}

	tax := valueOrZero(req.TaxAmount)
	discount := valueOrZero(req.DiscountAmount)
	total := calculated.Add(tax).Sub(discount)

	if diff := calculated.Sub(*req.Subtotal).Abs(); diff.GreaterThan(PriceTolerance) {
		v.Logger.Warn("ORDER", fmt.Sprintf("Subtotal adjusted: client %s, calculated %s",
			req.Subtotal.StringFixed(2), calculated.StringFixed(2)))
	}
	if total.IsNegative() {
		verr := &ValidationError{}
		verr.Add("total_amount", "The total amount must be at least 0.")
		return nil, verr
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}

	order := &models.Order{
		Subtotal:        calculated,
		TaxAmount:       tax,
		DiscountAmount:  discount,
		TotalAmount:     total,
		Currency:        currency,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		BillingAddress:  req.BillingAddress,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
	}

	if customerID, ok := actor.CustomerID(); ok {
		order.CustomerID = &customerID
	} else {
		email := strings.TrimSpace(req.GuestEmail)
		name := strings.TrimSpace(req.GuestName)
		if name == "" {
			name = "Guest"
		}
		order.GuestEmail = &email
		order.GuestName = &name
	}

	return order, nil
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
