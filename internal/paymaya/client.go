package paymaya

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"

	"github.com/shopspring/decimal"
)

const (
	SandboxBaseURL    = "https://pg-sandbox.maya.ph"
	ProductionBaseURL = "https://pg.maya.ph"

	checkoutPath = "/checkout/v1/checkouts"

	Currency     = "PHP"
	DefaultPhone = "+639000000000"
	DefaultEmail = "customer@example.com"
)

var ErrMissingCredentials = errors.New("PayMaya credentials are not configured. Please set PAYMAYA_PUBLIC_KEY and PAYMAYA_SECRET_KEY in your .env file.")

// GatewayError is a checkout the gateway refused. Message is passed through to callers.
type GatewayError struct {
	StatusCode int
	Message    string
	Details    map[string]interface{}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("paymaya checkout failed (%d): %s", e.StatusCode, e.Message)
}

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Value: d.StringFixed(2), Currency: Currency}
}

type Contact struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Buyer struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Contact   Contact `json:"contact"`
}

type Item struct {
	Name        string `json:"name"`
	Quantity    string `json:"quantity"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Amount      Amount `json:"amount"`
	TotalAmount Amount `json:"totalAmount"`
}

type RedirectURL struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Cancel  string `json:"cancel"`
}

// CheckoutRequest is the body of POST /checkout/v1/checkouts.
type CheckoutRequest struct {
	TotalAmount            Amount      `json:"totalAmount"`
	Buyer                  Buyer       `json:"buyer"`
	Items                  []Item      `json:"items"`
	RedirectURL            RedirectURL `json:"redirectUrl"`
	RequestReferenceNumber string      `json:"requestReferenceNumber"`
}

// NewCheckoutRequest builds a single-item checkout for the whole amount.
func NewCheckoutRequest(reference, description string, amount decimal.Decimal, buyer Buyer, redirect RedirectURL) CheckoutRequest {
	if buyer.Contact.Phone == "" {
		buyer.Contact.Phone = DefaultPhone
	}
	if buyer.Contact.Email == "" {
		buyer.Contact.Email = DefaultEmail
	}
	if redirect.Failure == "" {
		redirect.Failure = redirect.Cancel
	}
	value := NewAmount(amount)
	return CheckoutRequest{
		TotalAmount: value,
		Buyer:       buyer,
		Items: []Item{{
			Name:        description,
			Quantity:    "1",
			Code:        reference,
			Description: description,
			Amount:      value,
			TotalAmount: value,
		}},
		RedirectURL:            redirect,
		RequestReferenceNumber: reference,
	}
}

type CheckoutSession struct {
	CheckoutID  string
	RedirectURL string
}

type Client struct {
	PublicKey string
	SecretKey string
	BaseURL   string
	HTTP      *http.Client
	Logger    *logger.Logger
}

// BaseURLFor maps PAYMAYA_ENVIRONMENT to an API host; anything but production is sandbox.
func BaseURLFor(environment string) string {
	if environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func NewClient(cfg config.PayMayaConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		BaseURL:   BaseURLFor(cfg.Environment),
		HTTP:      &http.Client{Timeout: timeout},
		Logger:    log,
	}
}

// CreateCheckout opens a hosted checkout session.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if c.PublicKey == "" || c.SecretKey == "" {
		return nil, ErrMissingCredentials
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode checkout request: %w", err)
	}

	url := c.BaseURL + checkoutPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.PublicKey, c.SecretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.Logger.LogPayment("CHECKOUT", req.RequestReferenceNumber, fmt.Sprintf("POST %s amount %s", url, req.TotalAmount.Value))

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		c.Logger.Error("PAYMENT", fmt.Sprintf("PayMaya request failed: %v", err))
		return nil, fmt.Errorf("paymaya request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read paymaya response: %w", err)
	}

	var data map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			c.Logger.Warn("PAYMENT", fmt.Sprintf("PayMaya returned non-JSON body (status %d)", resp.StatusCode))
		}
	}

	checkoutID, _ := data["checkoutId"].(string)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || checkoutID == "" {
		gerr := &GatewayError{
			StatusCode: resp.StatusCode,
			Message:    gatewayMessage(data),
			Details:    data,
		}
		if gerr.StatusCode < 400 {
			gerr.StatusCode = http.StatusBadGateway
		}
		c.Logger.Error("PAYMENT", fmt.Sprintf("PayMaya checkout error for %s: %d %s",
			req.RequestReferenceNumber, resp.StatusCode, gerr.Message))
		return nil, gerr
	}

	redirect, _ := data["redirectUrl"].(string)
	if redirect == "" {
		redirect = c.BaseURL + checkoutPath + "/" + checkoutID
	}

	c.Logger.LogPayment("CHECKOUT", req.RequestReferenceNumber, fmt.Sprintf("session %s created", checkoutID))
	return &CheckoutSession{CheckoutID: checkoutID, RedirectURL: redirect}, nil
}

func gatewayMessage(data map[string]interface{}) string {
	if msg, ok := data["message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := data["error"].(string); ok && msg != "" {
		return msg
	}
	return "Failed to create checkout session"
}
