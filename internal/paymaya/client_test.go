package paymaya

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	c := NewClient(config.PayMayaConfig{
		PublicKey: "pk-test",
		SecretKey: "sk-test",
		Timeout:   2 * time.Second,
	}, logger.NewNopLogger())
	c.BaseURL = baseURL
	return c
}

func sampleRequest() CheckoutRequest {
	return NewCheckoutRequest(
		"ORD-20260301-0001",
		"Order ORD-20260301-0001",
		decimal.RequireFromString("1500"),
		Buyer{FirstName: "Juan", LastName: "Dela Cruz", Contact: Contact{Email: "juan@example.com"}},
		RedirectURL{Success: "https://shop.test/ok", Cancel: "https://shop.test/cancel"},
	)
}

func TestNewCheckoutRequest_FillsDefaults(t *testing.T) {
	req := sampleRequest()

	assert.Equal(t, "1500.00", req.TotalAmount.Value)
	assert.Equal(t, "PHP", req.TotalAmount.Currency)
	assert.Equal(t, DefaultPhone, req.Buyer.Contact.Phone)
	assert.Equal(t, "https://shop.test/cancel", req.RedirectURL.Failure, "failure falls back to cancel")
	require.Len(t, req.Items, 1)
	assert.Equal(t, "1", req.Items[0].Quantity)
	assert.Equal(t, "ORD-20260301-0001", req.Items[0].Code)
	assert.Equal(t, "ORD-20260301-0001", req.RequestReferenceNumber)
}

func TestCreateCheckout_Success(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/v1/checkouts", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "pk-test", user)
		assert.Equal(t, "sk-test", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"checkoutId":"chk_123","redirectUrl":"https://pay.test/chk_123"}`))
	}))
	defer server.Close()

	session, err := newTestClient(server.URL).CreateCheckout(context.Background(), sampleRequest())

	require.NoError(t, err)
	assert.Equal(t, "chk_123", session.CheckoutID)
	assert.Equal(t, "https://pay.test/chk_123", session.RedirectURL)
	assert.Equal(t, "ORD-20260301-0001", got["requestReferenceNumber"])
	total := got["totalAmount"].(map[string]interface{})
	assert.Equal(t, "1500.00", total["value"])
}

func TestCreateCheckout_BuildsRedirectWhenMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"checkoutId":"chk_9"}`))
	}))
	defer server.Close()

	session, err := newTestClient(server.URL).CreateCheckout(context.Background(), sampleRequest())

	require.NoError(t, err)
	assert.Equal(t, server.URL+"/checkout/v1/checkouts/chk_9", session.RedirectURL)
}

func TestCreateCheckout_GatewayErrorPassesMessageThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"K003","message":"Invalid credentials"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateCheckout(context.Background(), sampleRequest())

	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusUnauthorized, gerr.StatusCode)
	assert.Equal(t, "Invalid credentials", gerr.Message)
	assert.Equal(t, "K003", gerr.Details["code"])
}

func TestCreateCheckout_MissingCheckoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no session"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateCheckout(context.Background(), sampleRequest())

	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadGateway, gerr.StatusCode)
	assert.Equal(t, "no session", gerr.Message)
}

func TestCreateCheckout_MissingCredentials(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	c.SecretKey = ""

	_, err := c.CreateCheckout(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, ProductionBaseURL, BaseURLFor("production"))
	assert.Equal(t, SandboxBaseURL, BaseURLFor("sandbox"))
	assert.Equal(t, SandboxBaseURL, BaseURLFor(""))
}
