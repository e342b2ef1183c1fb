package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/idempotency"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
)

var (
	ErrNotPaid     = errors.New("order has not been paid")
	ErrNoRecipient = errors.New("order has no recipient email")
)

const scopeConfirmation = "order-confirmation"

func confirmationKey(orderID int64) string {
	return fmt.Sprintf("%s:%d", scopeConfirmation, orderID)
}

// Dispatcher sends the order confirmation mail at most once per order.
type Dispatcher struct {
	DB          *db.DB
	Keys        *idempotency.Store
	Mailer      Mailer
	AppName     string
	AppURL      string
	FrontendURL string
	TTL         time.Duration
	TempDir     string
	Location    *time.Location
	Logger      *logger.Logger
}

func NewDispatcher(store *db.DB, keys *idempotency.Store, mailer Mailer, app config.AppConfig, ttl time.Duration, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		DB:          store,
		Keys:        keys,
		Mailer:      mailer,
		AppName:     app.Name,
		AppURL:      strings.TrimRight(app.URL, "/"),
		FrontendURL: strings.TrimRight(app.FrontendURL, "/"),
		TTL:         ttl,
		TempDir:     os.TempDir(),
		Location:    time.UTC,
		Logger:      log,
	}
}

// SendConfirmation returns false with a nil error when the mail was already sent.
func (d *Dispatcher) SendConfirmation(ctx context.Context, order *models.Order) (bool, error) {
	if order.PaidAt == nil {
		return false, ErrNotPaid
	}

	recipient, name, err := d.recipient(ctx, order)
	if err != nil {
		return false, err
	}

	key := confirmationKey(order.ID)
	claimed, err := d.Keys.Claim(ctx, key, scopeConfirmation, d.TTL)
	if err != nil {
		return false, fmt.Errorf("claim confirmation for %s: %w", order.OrderNumber, err)
	}
	if !claimed {
		d.Logger.Info("NOTIFY", fmt.Sprintf("Confirmation for %s already sent, skipping", order.OrderNumber))
		return false, nil
	}

	if err := d.send(ctx, order, recipient, name); err != nil {
		// let a later attempt try again
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if relErr := d.Keys.Release(releaseCtx, key); relErr != nil {
			d.Logger.Error("NOTIFY", fmt.Sprintf("Failed to release %s: %v", key, relErr))
		}
		d.Logger.Error("NOTIFY", fmt.Sprintf("Failed to send confirmation for %s to %s: %v", order.OrderNumber, recipient, err))
		return false, err
	}

	d.Logger.Info("NOTIFY", fmt.Sprintf("Confirmation for %s sent to %s", order.OrderNumber, recipient))
	return true, nil
}

func (d *Dispatcher) recipient(ctx context.Context, order *models.Order) (string, string, error) {
	if order.CustomerID != nil {
		customer, err := d.DB.GetCustomerByID(ctx, *order.CustomerID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return "", "", fmt.Errorf("load customer %d: %w", *order.CustomerID, err)
		}
		if email := order.ContactEmail(customer); email != "" {
			return email, customer.Name, nil
		}
		return "", "", ErrNoRecipient
	}

	email := order.ContactEmail(nil)
	if strings.TrimSpace(email) == "" {
		return "", "", ErrNoRecipient
	}
	name := "Customer"
	if order.GuestName != nil && *order.GuestName != "" {
		name = *order.GuestName
	}
	return email, name, nil
}

func (d *Dispatcher) send(ctx context.Context, order *models.Order, to, name string) error {
	if len(order.Items) == 0 {
		loaded, err := d.DB.GetOrderByID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("load order items: %w", err)
		}
		order.Items = loaded.Items
	}

	view, err := d.view(ctx, order, name)
	if err != nil {
		return err
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, view); err != nil {
		return fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return fmt.Errorf("render html body: %w", err)
	}

	attachment, err := d.writeAttachment(order)
	if err != nil {
		return err
	}
	defer os.Remove(attachment)

	return d.Mailer.Send(ctx, &Message{
		To:       to,
		ToName:   name,
		Subject:  "Order Confirmation - " + order.OrderNumber,
		TextBody: text.String(),
		HTMLBody: html.String(),
		Attachments: []Attachment{{
			Name:        "order_" + order.OrderNumber + ".csv",
			ContentType: "text/csv",
			Path:        attachment,
		}},
	})
}

func (d *Dispatcher) view(ctx context.Context, order *models.Order, name string) (*mailView, error) {
	downloads, err := d.DB.GetDownloadsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load downloads: %w", err)
	}
	byItem := make(map[int64]*models.ProductDownload, len(downloads))
	for _, dl := range downloads {
		byItem[dl.OrderItemID] = dl
	}

	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	v := &mailView{
		AppName:      d.AppName,
		CustomerName: name,
		OrderNumber:  order.OrderNumber,
		OrderDate:    order.CreatedAt.In(loc).Format("January 2, 2006 3:04 PM"),
		Subtotal:     Peso(order.Subtotal),
		Total:        Peso(order.TotalAmount),
		OrderPageURL: d.FrontendURL + "/order/" + order.OrderNumber,
	}
	if order.TaxAmount.IsPositive() {
		v.Tax = Peso(order.TaxAmount)
	}
	if order.DiscountAmount.IsPositive() {
		v.Discount = Peso(order.DiscountAmount)
	}
	for _, item := range order.Items {
		v.Items = append(v.Items, itemView{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    Peso(item.ProductPrice),
			Subtotal: Peso(item.Subtotal),
		})
		if dl, ok := byItem[item.ID]; ok {
			v.Downloads = append(v.Downloads, downloadLink{
				ProductName: item.ProductName,
				URL:         d.AppURL + "/api/downloads/" + dl.DownloadToken,
			})
		}
	}
	return v, nil
}

// writeAttachment leaves the CSV in a temp file; the caller removes it.
func (d *Dispatcher) writeAttachment(order *models.Order) (string, error) {
	f, err := os.CreateTemp(d.TempDir, "order_"+order.OrderNumber+"_*.csv")
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	if err := WriteOrderCSV(f, order); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
