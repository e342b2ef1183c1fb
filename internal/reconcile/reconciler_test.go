package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"ms-storefront/internal/entitlement"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	orderredis "ms-storefront/internal/order/redis"
	"ms-storefront/internal/paymaya"
	"ms-storefront/internal/reconcile"
	"ms-storefront/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendConfirmation(ctx context.Context, o *models.Order) (bool, error) {
	args := m.Called(o.OrderNumber)
	return args.Bool(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event models.OrderEvent) {
	m.Called(event.Type, event.OrderNumber)
}

// dedupNotifier sends at most one confirmation per order, like the mail dispatcher.
type dedupNotifier struct {
	mu   sync.Mutex
	sent map[string]int
}

func (n *dedupNotifier) SendConfirmation(ctx context.Context, o *models.Order) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string]int{}
	}
	if n.sent[o.OrderNumber] > 0 {
		return false, nil
	}
	n.sent[o.OrderNumber]++
	return true, nil
}

type failingEntitlements struct{}

func (failingEntitlements) Generate(ctx context.Context, o *models.Order) (*entitlement.Result, error) {
	return nil, errors.New("disk full")
}

type panicking struct{}

func (panicking) Generate(ctx context.Context, o *models.Order) (*entitlement.Result, error) {
	panic("boom")
}

type fixture struct {
	bunDB    *bun.DB
	rec      *reconcile.Reconciler
	notifier *MockNotifier
	events   *MockPublisher
	redis    *miniredis.Miniredis
	lock     *orderredis.Redis
}

func setup(t *testing.T, secret string) *fixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	bunDB := testutil.NewDB(t)
	store := db.New(bunDB)
	log := logger.NewNopLogger()

	notifier := &MockNotifier{}
	events := &MockPublisher{}
	events.On("Publish", mock.Anything, mock.Anything).Return().Maybe()

	lock := orderredis.NewRedis(client, 5*time.Second, log)
	rec := reconcile.NewReconciler(store, lock, entitlement.NewGenerator(store, log), notifier, events, secret, log)
	rec.Now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return &fixture{bunDB: bunDB, rec: rec, notifier: notifier, events: events, redis: mr, lock: lock}
}

func reload(t *testing.T, bunDB *bun.DB, id int64) *models.Order {
	o, err := db.New(bunDB).GetOrderByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func setGatewayID(t *testing.T, bunDB *bun.DB, o *models.Order, checkoutID string) {
	o.PaymentGatewayID = &checkoutID
	require.NoError(t, db.New(bunDB).UpdateOrderColumns(context.Background(), o, "payment_gateway_id"))
}

func countDownloads(t *testing.T, bunDB *bun.DB) int {
	n, err := bunDB.NewSelect().Model((*models.ProductDownload)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestHandle_CheckoutCompletionSettlesGuestOrder(t *testing.T) {
	f := setup(t, "")
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "templates/planner.xlsx")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, models.PlaceholderGuestEmail, p)
	placeholder := models.PlaceholderGuestName
	o.GuestName = &placeholder
	require.NoError(t, db.New(f.bunDB).UpdateOrderColumns(context.Background(), o, "guest_name"))

	f.notifier.On("SendConfirmation", "ORD-20260301-0001").Return(true, nil).Once()

	body := []byte(`{
		"id": "pay_123",
		"status": "COMPLETED",
		"paymentStatus": "PAYMENT_SUCCESS",
		"requestReferenceNumber": "ORD-20260301-0001",
		"buyer": {"firstName": "Ana", "lastName": "Reyes", "contact": {"email": "ana@example.com"}}
	}`)
	ack := f.rec.Handle(context.Background(), body, "")

	assert.Equal(t, http.StatusOK, ack.Status)
	assert.True(t, ack.Success)
	assert.Equal(t, "Webhook received", ack.Message)

	got := reload(t, f.bunDB, o.ID)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, models.OrderStatusProcessing, got.Status)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.PaymentGatewayTransactionID)
	assert.Equal(t, "pay_123", *got.PaymentGatewayTransactionID)
	assert.Equal(t, "ana@example.com", *got.GuestEmail)
	assert.Equal(t, "Ana Reyes", *got.GuestName)

	assert.Equal(t, 1, countDownloads(t, f.bunDB))
	f.notifier.AssertExpectations(t)
	f.events.AssertCalled(t, "Publish", models.EventOrderPaid, "ORD-20260301-0001")
}

func TestHandle_DuplicateWebhookSettlesOnce(t *testing.T) {
	f := setup(t, "")
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "templates/planner.xlsx")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "guest@example.com", p)
	setGatewayID(t, f.bunDB, o, "chk_1")

	// the dispatcher reports false once the confirmation is already claimed
	f.notifier.On("SendConfirmation", "ORD-20260301-0001").Return(true, nil).Once()
	f.notifier.On("SendConfirmation", "ORD-20260301-0001").Return(false, nil)

	body := []byte(`{"id":"pay_1","status":"PAYMENT_SUCCESS","isPaid":true,"checkoutId":"chk_1"}`)
	first := f.rec.Handle(context.Background(), body, "")
	paidAt := reload(t, f.bunDB, o.ID).PaidAt

	second := f.rec.Handle(context.Background(), body, "")

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	got := reload(t, f.bunDB, o.ID)
	assert.Equal(t, paidAt.Unix(), got.PaidAt.Unix(), "paid_at is set once")
	assert.Equal(t, "guest@example.com", *got.GuestEmail, "real guest email is not overwritten")
	assert.Equal(t, 1, countDownloads(t, f.bunDB))
	f.notifier.AssertNumberOfCalls(t, "SendConfirmation", 2)
	f.events.AssertNumberOfCalls(t, "Publish", 1)
}

func TestHandle_ConcurrentDeliveriesSettleOnce(t *testing.T) {
	f := setup(t, "")
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "templates/planner.xlsx")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "guest@example.com", p)
	setGatewayID(t, f.bunDB, o, "chk_1")
	mails := &dedupNotifier{}
	f.rec.Notifier = mails

	body := []byte(`{"id":"evt_1","type":"payment.success","data":{"checkoutId":"chk_1","id":"pay_1"}}`)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack := f.rec.Handle(context.Background(), body, "")
			assert.True(t, ack.Success)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countDownloads(t, f.bunDB))
	assert.Equal(t, 1, mails.sent["ORD-20260301-0001"])
	f.events.AssertNumberOfCalls(t, "Publish", 1)
}

func TestHandle_CustomerOrderClearsCartAndKeepsContact(t *testing.T) {
	f := setup(t, "")
	customer := testutil.AddCustomer(t, f.bunDB, "Cara", "cara@example.com")
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "")
	testutil.AddCartItem(t, f.bunDB, customer.ID, p.ID)
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", &customer.ID, "", p)
	f.notifier.On("SendConfirmation", "ORD-20260301-0001").Return(false, errors.New("smtp down")).Once()

	body := []byte(`{"id":"pay_9","status":"COMPLETED","paymentStatus":"PAYMENT_SUCCESS","requestReferenceNumber":"ORD-20260301-0001","buyer":{"contact":{"email":"other@example.com"}}}`)
	ack := f.rec.Handle(context.Background(), body, "")

	assert.True(t, ack.Success, "mail failures do not fail the webhook")
	got := reload(t, f.bunDB, o.ID)
	assert.True(t, got.IsPaid())
	assert.Nil(t, got.GuestEmail)

	n, err := f.bunDB.NewSelect().Model((*models.CartItem)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandle_FailureAndCancel(t *testing.T) {
	f := setup(t, "")
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "")
	failing := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "a@example.com", p)
	expiring := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0002", nil, "b@example.com", p)

	ack := f.rec.Handle(context.Background(), []byte(`{"id":"evt","type":"payment.failed","data":{"requestReferenceNumber":"ORD-20260301-0001","errorCode":"2553","errorMessage":"Insufficient funds"}}`), "")
	assert.True(t, ack.Success)
	assert.Equal(t, models.PaymentStatusFailed, reload(t, f.bunDB, failing.ID).PaymentStatus)

	ack = f.rec.Handle(context.Background(), []byte(`{"id":"chk","status":"EXPIRED","paymentStatus":"PAYMENT_EXPIRED","requestReferenceNumber":"ORD-20260301-0002"}`), "")
	assert.True(t, ack.Success)
	got := reload(t, f.bunDB, expiring.ID)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Equal(t, models.PaymentStatusCancelled, got.PaymentStatus)
	assert.NotNil(t, got.CancelledAt)

	// cancel after failure is ignored: payment is no longer pending
	ack = f.rec.Handle(context.Background(), []byte(`{"id":"evt","type":"payment.cancelled","data":{"requestReferenceNumber":"ORD-20260301-0001"}}`), "")
	assert.True(t, ack.Success)
	assert.Equal(t, models.PaymentStatusFailed, reload(t, f.bunDB, failing.ID).PaymentStatus)

	f.events.AssertCalled(t, "Publish", models.EventOrderFailed, "ORD-20260301-0001")
	f.events.AssertCalled(t, "Publish", models.EventOrderCancelled, "ORD-20260301-0002")
}

func TestHandle_PaidOrderNeverDowngraded(t *testing.T) {
	f := setup(t, "")
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "a@example.com", p)
	o.MarkAsPaid("pay", time.Now().UTC())
	require.NoError(t, db.New(f.bunDB).UpdateOrderColumns(context.Background(), o, "status", "payment_status", "paid_at"))

	ack := f.rec.Handle(context.Background(), []byte(`{"id":"x","status":"PAYMENT_FAILED","isPaid":false,"requestReferenceNumber":"ORD-20260301-0001"}`), "")
	assert.True(t, ack.Success)
	assert.True(t, reload(t, f.bunDB, o.ID).IsPaid())
}

func TestHandle_Acks(t *testing.T) {
	f := setup(t, "s3cret")
	body := []byte(`{"id":"evt","type":"payment.success","data":{"requestReferenceNumber":"ORD-MISSING"}}`)

	ack := f.rec.Handle(context.Background(), body, "")
	assert.Equal(t, reconcile.Ack{Status: http.StatusUnauthorized, Success: false, Message: "Invalid signature"}, ack)

	ack = f.rec.Handle(context.Background(), body, paymaya.Sign("wrong", body))
	assert.Equal(t, http.StatusUnauthorized, ack.Status)

	ack = f.rec.Handle(context.Background(), body, paymaya.Sign("s3cret", body))
	assert.Equal(t, http.StatusOK, ack.Status)
	assert.True(t, ack.Success, "unknown orders are acknowledged")

	bad := []byte(`{"hello":"world"}`)
	ack = f.rec.Handle(context.Background(), bad, paymaya.Sign("s3cret", bad))
	assert.Equal(t, reconcile.Ack{Status: http.StatusOK, Success: false, Message: "Invalid webhook payload format"}, ack)
}

func TestHandle_PanicBecomesErrorAck(t *testing.T) {
	f := setup(t, "")
	f.rec.Entitlements = panicking{}
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "a@example.com", p)
	body := []byte(`{"id":"evt","type":"payment.paid","data":{"requestReferenceNumber":"ORD-20260301-0001"}}`)

	var ack reconcile.Ack
	assert.NotPanics(t, func() {
		ack = f.rec.Handle(context.Background(), body, "")
	})
	assert.Equal(t, reconcile.Ack{Status: http.StatusOK, Success: false, Message: "Error processing webhook"}, ack)
	assert.True(t, reload(t, f.bunDB, o.ID).IsPaid())
	assert.Zero(t, countDownloads(t, f.bunDB))

	// the redelivery finishes what the panic interrupted
	f.rec.Entitlements = entitlement.NewGenerator(db.New(f.bunDB), logger.NewNopLogger())
	f.notifier.On("SendConfirmation", "ORD-20260301-0001").Return(true, nil).Once()
	ack = f.rec.Handle(context.Background(), body, "")
	assert.True(t, ack.Success)
	assert.Equal(t, 1, countDownloads(t, f.bunDB))
	f.notifier.AssertExpectations(t)
	f.events.AssertNumberOfCalls(t, "Publish", 1)
}

func TestHandle_RedeliveryAfterGenerateError(t *testing.T) {
	f := setup(t, "")
	mails := &dedupNotifier{}
	f.rec.Notifier = mails
	f.rec.Entitlements = failingEntitlements{}
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "a@example.com", p)
	body := []byte(`{"id":"pay_1","status":"COMPLETED","paymentStatus":"PAYMENT_SUCCESS","requestReferenceNumber":"ORD-20260301-0001"}`)

	ack := f.rec.Handle(context.Background(), body, "")
	assert.False(t, ack.Success)
	assert.True(t, reload(t, f.bunDB, o.ID).IsPaid())
	assert.Zero(t, countDownloads(t, f.bunDB))
	assert.Equal(t, 1, mails.sent["ORD-20260301-0001"], "confirmation still goes out")
	f.events.AssertCalled(t, "Publish", models.EventOrderPaid, "ORD-20260301-0001")

	f.rec.Entitlements = entitlement.NewGenerator(db.New(f.bunDB), logger.NewNopLogger())
	ack = f.rec.Handle(context.Background(), body, "")
	assert.True(t, ack.Success)
	assert.Equal(t, 1, countDownloads(t, f.bunDB))
	assert.Equal(t, 1, mails.sent["ORD-20260301-0001"])
	f.events.AssertNumberOfCalls(t, "Publish", 1)
}

func TestHandle_SettlesWhenRedisIsDown(t *testing.T) {
	f := setup(t, "")
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "a@example.com", p)
	f.notifier.On("SendConfirmation", "ORD-20260301-0001").Return(true, nil).Once()
	f.redis.Close()

	ack := f.rec.Handle(context.Background(), []byte(`{"id":"evt","type":"payment.success","data":{"requestReferenceNumber":"ORD-20260301-0001","id":"pay_1"}}`), "")

	assert.True(t, ack.Success)
	assert.True(t, reload(t, f.bunDB, o.ID).IsPaid())
	assert.Equal(t, 1, countDownloads(t, f.bunDB))
	f.notifier.AssertExpectations(t)
}

func TestHandle_SettlesWhenLockIsStuck(t *testing.T) {
	f := setup(t, "")
	f.lock.MaxWait = 200 * time.Millisecond
	f.lock.RetryDelay = 20 * time.Millisecond
	p := testutil.AddProduct(t, f.bunDB, "Planner", "299.00", true, "")
	o := testutil.AddOrder(t, f.bunDB, "ORD-20260301-0001", nil, "a@example.com", p)
	f.notifier.On("SendConfirmation", "ORD-20260301-0001").Return(true, nil).Once()
	require.NoError(t, f.redis.Set(fmt.Sprintf("order_lock:%d", o.ID), "crashed-worker"))

	ack := f.rec.Handle(context.Background(), []byte(`{"id":"evt","type":"payment.success","data":{"requestReferenceNumber":"ORD-20260301-0001","id":"pay_1"}}`), "")

	assert.True(t, ack.Success)
	assert.True(t, reload(t, f.bunDB, o.ID).IsPaid())
	assert.Equal(t, 1, countDownloads(t, f.bunDB))
	f.notifier.AssertExpectations(t)
}
