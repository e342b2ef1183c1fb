// Package testutil builds throwaway SQLite databases seeded with storefront fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/models"
	orderdb "ms-storefront/internal/order/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// NewDB returns an in-memory database with the full schema, closed with the test.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()
	bunDB, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, orderdb.CreateSchema(context.Background(), bunDB))
	return bunDB
}

func AddProduct(t *testing.T, db bun.IDB, title, price string, active bool, filePath string) *models.Product {
	t.Helper()
	p := &models.Product{
		Title:     title,
		Slug:      title,
		Price:     decimal.RequireFromString(price),
		IsActive:  active,
		FilePath:  filePath,
		CreatedAt: time.Now(),
	}
	_, err := db.NewInsert().Model(p).Exec(context.Background())
	require.NoError(t, err)
	return p
}

func AddCustomer(t *testing.T, db bun.IDB, name, email string) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: name, Email: email, IsActive: true, CreatedAt: time.Now()}
	_, err := db.NewInsert().Model(c).Exec(context.Background())
	require.NoError(t, err)
	return c
}

func AddCartItem(t *testing.T, db bun.IDB, customerID, productID int64) {
	t.Helper()
	_, err := db.NewInsert().Model(&models.CartItem{
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   1,
		CreatedAt:  time.Now(),
	}).Exec(context.Background())
	require.NoError(t, err)
}

// AddOrder stores a pending order with one line per product.
func AddOrder(t *testing.T, db bun.IDB, number string, customerID *int64, guestEmail string, products ...*models.Product) *models.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &models.Order{
		OrderNumber:   number,
		CustomerID:    customerID,
		Currency:      models.DefaultCurrency,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if customerID == nil {
		name := "Guest"
		order.GuestEmail = &guestEmail
		order.GuestName = &name
	}
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.Price)
		order.Items = append(order.Items, &models.OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Title,
			ProductPrice: p.Price,
			Quantity:     1,
			Subtotal:     p.Price,
			CreatedAt:    now,
		})
	}
	order.Subtotal = total
	order.TotalAmount = total

	require.NoError(t, orderdb.New(db).InsertOrder(context.Background(), order))
	return order
}
