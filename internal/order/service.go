package order

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"ms-storefront/internal/access"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/database"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/paymaya"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound      = errors.New("Order not found")
	ErrGuestEmailRequired = errors.New("Guest email is required to view orders")
	ErrAmountMismatch     = errors.New("Payment amount does not match order total")
	ErrOrderNotPayable    = errors.New("Order is not awaiting payment")
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// OrderLocker serializes work on a single order across processes.
type OrderLocker interface {
	WithOrderLock(ctx context.Context, orderID int64, fn func(ctx context.Context) error) error
}

type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, req paymaya.CheckoutRequest) (*paymaya.CheckoutSession, error)
}

type OrderService struct {
	DB        *db.DB
	Validator *Validator
	Numbers   NumberGenerator
	Lock      OrderLocker
	Events    EventPublisher
	Gateway   CheckoutGateway
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewOrderService(store *db.DB, lock OrderLocker, events EventPublisher, gateway CheckoutGateway, loc *time.Location, log *logger.Logger) *OrderService {
	if events == nil {
		events = NopPublisher
	}
	return &OrderService{
		DB:        store,
		Validator: &Validator{Logger: log},
		Numbers:   NumberGenerator{Location: loc},
		Lock:      lock,
		Events:    events,
		Gateway:   gateway,
		Logger:    log,
		Now:       time.Now,
	}
}

func (s *OrderService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// ---------------- CREATE ----------------

// CreateOrder prices the cart and stores order, items and number in one transaction.
// A clash on order_number from a concurrent creation retries the whole transaction.
func (s *OrderService) CreateOrder(ctx context.Context, req *OrderRequest, actor auth.Actor) (*models.Order, error) {
	if err := req.Check(actor); err != nil {
		return nil, err
	}

	opts := database.DefaultTxOptions()
	opts.RetryOn = database.IsUniqueViolation

	var created *models.Order
	err := s.DB.Transact(ctx, opts, func(ctx context.Context, tx *db.DB) error {
		now := s.now()
		order, err := s.Validator.Draft(ctx, tx, req, actor, now)
		if err != nil {
			return err
		}

		number, err := s.Numbers.Next(ctx, tx, now)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		var verr *ValidationError
		var perr *ProductError
		if !errors.As(err, &verr) && !errors.As(err, &perr) {
			s.Logger.Error("ORDER", fmt.Sprintf("Order creation failed for %s: %v", actor, err))
		}
		return nil, err
	}

	s.Logger.LogOrder("CREATE", created.OrderNumber, fmt.Sprintf("%d items, total %s %s, by %s",
		len(created.Items), created.TotalAmount.StringFixed(2), created.Currency, actor))
	s.Events.Publish(ctx, models.NewOrderEvent(models.EventOrderCreated, created, s.now()))
	return created, nil
}

// ---------------- READ ----------------

func (s *OrderService) loadForActor(ctx context.Context, order *models.Order, err error, actor auth.Actor, guestEmail string) (*models.Order, error) {
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if err := access.CanView(actor, order, guestEmail); err != nil {
		s.Logger.LogSecurity("ORDER_ACCESS", fmt.Sprintf("%s denied order %d", actor, order.ID))
		return nil, err
	}
	if err := s.DB.AttachDownloads(ctx, order); err != nil {
		return nil, fmt.Errorf("load downloads: %w", err)
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64, actor auth.Actor, guestEmail string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, id)
	return s.loadForActor(ctx, order, err, actor, guestEmail)
}

func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string, actor auth.Actor, guestEmail string) (*models.Order, error) {
	order, err := s.DB.GetOrderByNumber(ctx, orderNumber)
	return s.loadForActor(ctx, order, err, actor, guestEmail)
}

// ListQuery carries the listing filters. A nil PaymentStatus means the caller did not
// ask for one, which for shoppers defaults to paid orders.
type ListQuery struct {
	Status        string
	PaymentStatus *string
	GuestEmail    string
	Page          int
	PerPage       int
}

type OrderPage struct {
	Orders  []*models.Order
	Total   int
	Page    int
	PerPage int
}

func (s *OrderService) ListOrders(ctx context.Context, actor auth.Actor, q ListQuery) (*OrderPage, error) {
	filter := db.OrderFilter{Status: q.Status, Page: q.Page, PerPage: q.PerPage}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = defaultPerPage
	}
	if filter.PerPage > maxPerPage {
		filter.PerPage = maxPerPage
	}

	shopper := true
	switch actor.Kind() {
	case auth.KindCustomer:
		id, _ := actor.CustomerID()
		filter.CustomerID = &id
	case auth.KindGuest:
		email := strings.TrimSpace(q.GuestEmail)
		if email == "" {
			return nil, ErrGuestEmailRequired
		}
		filter.GuestEmail = email
	default:
		shopper = false
	}

	if q.PaymentStatus != nil {
		filter.PaymentStatus = *q.PaymentStatus
	} else if shopper {
		filter.PaymentStatus = string(models.PaymentStatusPaid)
	}

	orders, total, err := s.DB.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.DB.AttachDownloads(ctx, orders...); err != nil {
		return nil, fmt.Errorf("load downloads: %w", err)
	}
	return &OrderPage{Orders: orders, Total: total, Page: filter.Page, PerPage: filter.PerPage}, nil
}

// ---------------- ADMIN ----------------

type StatusUpdate struct {
	Status        string  `json:"status"`
	PaymentStatus *string `json:"payment_status"`
}

func (u StatusUpdate) check() error {
	verr := &ValidationError{}
	if u.Status == "" {
		verr.Add("status", "The status field is required.")
	} else if !models.IsValidOrderStatus(u.Status) {
		verr.Add("status", "The selected status is invalid.")
	}
	if u.PaymentStatus != nil && !models.IsAdminSettablePaymentStatus(*u.PaymentStatus) {
		verr.Add("payment_status", "The selected payment status is invalid.")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// UpdateStatus is the staff override. It holds the order lock so it cannot interleave
// with a webhook settling the same order.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, actor auth.Actor, update StatusUpdate) (*models.Order, error) {
	if err := update.check(); err != nil {
		return nil, err
	}
	if err := access.CanUpdateStatus(actor); err != nil {
		return nil, err
	}

	var updated *models.Order
	err := s.Lock.WithOrderLock(ctx, id, func(ctx context.Context) error {
		order, err := s.DB.GetOrderByID(ctx, id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		now := s.now()
		columns := []string{"status"}
		order.Status = models.OrderStatus(update.Status)

		switch order.Status {
		case models.OrderStatusCompleted:
			if order.CompletedAt == nil {
				order.CompletedAt = &now
				columns = append(columns, "completed_at")
			}
		case models.OrderStatusCancelled:
			if order.CancelledAt == nil {
				order.CancelledAt = &now
				columns = append(columns, "cancelled_at")
			}
		}

		if update.PaymentStatus != nil {
			order.PaymentStatus = models.PaymentStatus(*update.PaymentStatus)
			columns = append(columns, "payment_status")
			if order.PaymentStatus == models.PaymentStatusPaid && order.PaidAt == nil {
				order.PaidAt = &now
				columns = append(columns, "paid_at")
			}
		}

		order.UpdatedAt = now
		if err := s.DB.UpdateOrderColumns(ctx, order, columns...); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("STATUS", updated.OrderNumber, fmt.Sprintf("%s/%s set by %s", updated.Status, updated.PaymentStatus, actor))
	s.Events.Publish(ctx, models.NewOrderEvent(models.EventOrderStatus, updated, s.now()))
	return updated, nil
}

// ---------------- CHECKOUT ----------------

type CheckoutCustomer struct {
	Name      *string `json:"name"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
}

type CheckoutParams struct {
	Amount      *decimal.Decimal  `json:"amount"`
	OrderID     *int64            `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Description string            `json:"description"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
	FailureURL  string            `json:"failure_url"`
	Customer    *CheckoutCustomer `json:"customer"`
}

type CheckoutResult struct {
	ID          string          `json:"id"`
	RedirectURL string          `json:"redirect_url"`
	OrderID     string          `json:"order_id"`
	OrderDBID   *int64          `json:"order_db_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (p *CheckoutParams) check() error {
	verr := &ValidationError{}
	if p.Amount == nil {
		verr.Add("amount", "The amount field is required.")
	} else if p.Amount.LessThan(decimal.NewFromInt(1)) {
		verr.Add("amount", "The amount must be at least 1.")
	}
	if p.SuccessURL == "" {
		verr.Add("success_url", "The success url field is required.")
	} else if !isHTTPURL(p.SuccessURL) {
		verr.Add("success_url", "The success url must be a valid URL.")
	}
	if p.CancelURL == "" {
		verr.Add("cancel_url", "The cancel url field is required.")
	} else if !isHTTPURL(p.CancelURL) {
		verr.Add("cancel_url", "The cancel url must be a valid URL.")
	}
	if p.FailureURL != "" && !isHTTPURL(p.FailureURL) {
		verr.Add("failure_url", "The failure url must be a valid URL.")
	}
	if len(p.Description) > 255 {
		verr.Add("description", "The description must not be greater than 255 characters.")
	}
	if c := p.Customer; c != nil {
		if c.Email != nil && *c.Email != "" {
			if _, err := mail.ParseAddress(*c.Email); err != nil {
				verr.Add("customer.email", "The customer email must be a valid email address.")
			}
		}
		if c.Phone != nil && len(*c.Phone) > 20 {
			verr.Add("customer.phone", "The customer phone must not be greater than 20 characters.")
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// splitName splits on the first space: "Juan Dela Cruz" → "Juan", "Dela Cruz".
func splitName(name string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 2)
	first := parts[0]
	if first == "" {
		first = "Customer"
	}
	if len(parts) == 2 {
		return first, parts[1]
	}
	return first, ""
}

// StartCheckout opens a PayMaya checkout for an existing order (or a bare amount) and
// remembers the checkout id on the order for webhook matching.
func (s *OrderService) StartCheckout(ctx context.Context, p CheckoutParams) (*CheckoutResult, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	var order *models.Order
	var err error
	switch {
	case p.OrderID != nil:
		order, err = s.DB.GetOrderByID(ctx, *p.OrderID)
	case p.OrderNumber != "":
		order, err = s.DB.GetOrderByNumber(ctx, p.OrderNumber)
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			verr := &ValidationError{}
			if p.OrderID != nil {
				verr.Add("order_id", "The selected order id is invalid.")
			} else {
				verr.Add("order_number", "The selected order number is invalid.")
			}
			return nil, verr
		}
		return nil, err
	}

	amount := *p.Amount
	reference := "ORDER-" + uuid.NewString()
	description := p.Description
	firstName, lastName, email := "Customer", "", ""

	if order != nil {
		if !order.IsPending() {
			return nil, ErrOrderNotPayable
		}
		if order.TotalAmount.Sub(amount).Abs().GreaterThan(PriceTolerance) {
			return nil, ErrAmountMismatch
		}
		reference = order.OrderNumber
		if description == "" {
			description = "Order " + order.OrderNumber
		}

		var name string
		if order.GuestName != nil {
			name = *order.GuestName
		}
		if order.GuestEmail != nil {
			email = *order.GuestEmail
		}
		if order.CustomerID != nil {
			customer, err := s.DB.GetCustomerByID(ctx, *order.CustomerID)
			if err != nil && !errors.Is(err, db.ErrNotFound) {
				return nil, err
			}
			if customer != nil {
				name, email = customer.Name, customer.Email
			}
		}
		if name != "" {
			firstName, lastName = splitName(name)
		}
	} else if description == "" {
		description = "Order Payment"
	}

	buyer := paymaya.Buyer{FirstName: firstName, LastName: lastName, Contact: paymaya.Contact{Email: email}}
	if c := p.Customer; c != nil {
		switch {
		case c.FirstName != nil:
			buyer.FirstName = *c.FirstName
		case c.Name != nil:
			buyer.FirstName, _ = splitName(*c.Name)
		}
		switch {
		case c.LastName != nil:
			buyer.LastName = *c.LastName
		case c.Name != nil && c.FirstName == nil:
			_, buyer.LastName = splitName(*c.Name)
		}
		if c.Email != nil {
			buyer.Contact.Email = *c.Email
		}
		if c.Phone != nil {
			buyer.Contact.Phone = *c.Phone
		}
	}

	req := paymaya.NewCheckoutRequest(reference, description, amount, buyer, paymaya.RedirectURL{
		Success: p.SuccessURL,
		Failure: p.FailureURL,
		Cancel:  p.CancelURL,
	})

	session, err := s.Gateway.CreateCheckout(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		ID:          session.CheckoutID,
		RedirectURL: session.RedirectURL,
		OrderID:     reference,
		Amount:      amount,
		Currency:    paymaya.Currency,
	}

	if order != nil {
		method := "paymaya"
		order.PaymentGatewayID = &session.CheckoutID
		order.PaymentMethod = &method
		order.UpdatedAt = s.now()
		if err := s.DB.UpdateOrderColumns(ctx, order, "payment_gateway_id", "payment_method"); err != nil {
			return nil, fmt.Errorf("store checkout id on order %s: %w", order.OrderNumber, err)
		}
		id := order.ID
		result.OrderDBID = &id
	}

	s.Logger.LogPayment("CHECKOUT", reference, fmt.Sprintf("checkout %s ready", session.CheckoutID))
	return result, nil
}
