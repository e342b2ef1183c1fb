package db

import (
	"context"
	"fmt"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

// Tables in creation order.
var Tables = []interface{}{
	(*models.Customer)(nil),
	(*models.Product)(nil),
	(*models.Order)(nil),
	(*models.OrderItem)(nil),
	(*models.ProductDownload)(nil),
	(*models.CartItem)(nil),
	(*models.IdempotencyKey)(nil),
}

// CreateSchema builds the tables straight from the bun models. Postgres deployments use
// the SQL migrations instead; this serves SQLite and tests.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*models.Order)(nil), "idx_orders_customer_status", []string{"customer_id", "status"}},
		{(*models.Order)(nil), "idx_orders_guest_email", []string{"guest_email"}},
		{(*models.Order)(nil), "idx_orders_payment_gateway_id", []string{"payment_gateway_id"}},
		{(*models.OrderItem)(nil), "idx_order_items_order_id", []string{"order_id"}},
		{(*models.CartItem)(nil), "idx_cart_items_customer", []string{"customer_id"}},
		{(*models.IdempotencyKey)(nil), "idx_idempotency_keys_expires_at", []string{"expires_at"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
