package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

var ErrNotFound = errors.New("record not found")

// DB wraps either the connection pool or a running transaction.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

// Transact runs fn inside a transaction, retrying according to opts.
func (d *DB) Transact(ctx context.Context, opts database.TxOptions, fn func(ctx context.Context, tx *DB) error) error {
	return database.WithRetry(ctx, d.Bun, opts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ---------------- CATALOG ----------------

// GetProductsByIDs → products keyed by id; missing ids are simply absent
func (d *DB) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	out := make(map[int64]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []*models.Product
	err := d.Bun.NewSelect().
		Model(&products).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (d *DB) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := d.Bun.NewSelect().Model(&customer).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

// ClearCart removes every cart line of a customer.
func (d *DB) ClearCart(ctx context.Context, customerID int64) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.CartItem)(nil)).
		Where("customer_id = ?", customerID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- ORDERS ----------------

// LatestOrderNumber → highest order number starting with prefix, "" when none.
// Longer numbers sort first so the sequence keeps going past 9999.
func (d *DB) LatestOrderNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("order_number").
		Where("order_number LIKE ?", prefix+"%").
		OrderExpr("LENGTH(order_number) DESC, order_number DESC").
		Limit(1).
		Scan(ctx, &number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return number, err
}

// InsertOrder stores the order and its items; IDs are written back.
func (d *DB) InsertOrder(ctx context.Context, order *models.Order) error {
	if _, err := d.Bun.NewInsert().Model(order).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if len(order.Items) == 0 {
		return nil
	}
	for _, item := range order.Items {
		item.OrderID = order.ID
	}
	if _, err := d.Bun.NewInsert().Model(&order.Items).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (d *DB) getOrderWhere(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("oi.id ASC")
		}).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (d *DB) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return d.getOrderWhere(ctx, "o.id = ?", id)
}

func (d *DB) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return d.getOrderWhere(ctx, "o.order_number = ?", orderNumber)
}

// GetOrderByGatewayID → order whose checkout session id matches
func (d *DB) GetOrderByGatewayID(ctx context.Context, checkoutID string) (*models.Order, error) {
	return d.getOrderWhere(ctx, "o.payment_gateway_id = ?", checkoutID)
}

// UpdateOrderColumns persists the given columns plus updated_at.
func (d *DB) UpdateOrderColumns(ctx context.Context, order *models.Order, columns ...string) error {
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now()
	}
	columns = append(columns, "updated_at")
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type OrderFilter struct {
	CustomerID    *int64
	GuestEmail    string
	Status        string
	PaymentStatus string
	Page          int
	PerPage       int
}

// ListOrders returns one page of orders, newest first, with the total match count.
func (d *DB) ListOrders(ctx context.Context, f OrderFilter) ([]*models.Order, int, error) {
	var orders []*models.Order
	q := d.Bun.NewSelect().
		Model(&orders).
		Relation("Items").
		OrderExpr("o.created_at DESC, o.id DESC")

	if f.CustomerID != nil {
		q = q.Where("o.customer_id = ?", *f.CustomerID)
	}
	if f.GuestEmail != "" {
		q = q.Where("o.customer_id IS NULL").Where("LOWER(o.guest_email) = LOWER(?)", f.GuestEmail)
	}
	if f.Status != "" {
		q = q.Where("o.status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("o.payment_status = ?", f.PaymentStatus)
	}

	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 15
	}

	total, err := q.Limit(perPage).Offset((page - 1) * perPage).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListPaidOrderIDs pages through paid orders by id for backfills.
func (d *DB) ListPaidOrderIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("id").
		Where("payment_status = ?", models.PaymentStatusPaid).
		Where("id > ?", afterID).
		OrderExpr("id ASC").
		Limit(limit).
		Scan(ctx, &ids)
	return ids, err
}

// ---------------- DOWNLOADS ----------------

// InsertDownloadIfAbsent stores d unless its order item already has a download.
// Returns false when the row existed.
func (d *DB) InsertDownloadIfAbsent(ctx context.Context, download *models.ProductDownload) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(download).
		On("CONFLICT (order_item_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) DownloadTokenExists(ctx context.Context, token string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.ProductDownload)(nil)).
		Where("download_token = ?", token).
		Exists(ctx)
}

// GetDownloadByToken loads the download with its product and order.
func (d *DB) GetDownloadByToken(ctx context.Context, token string) (*models.ProductDownload, error) {
	var download models.ProductDownload
	err := d.Bun.NewSelect().
		Model(&download).
		Relation("Product").
		Relation("Order").
		Where("pd.download_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &download, nil
}

// RecordDownload bumps the counter in the database rather than from the loaded value.
func (d *DB) RecordDownload(ctx context.Context, id int64, now time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.ProductDownload)(nil)).
		Set("download_count = download_count + 1").
		Set("last_downloaded_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) GetDownloadsByOrderID(ctx context.Context, orderID int64) ([]*models.ProductDownload, error) {
	var downloads []*models.ProductDownload
	err := d.Bun.NewSelect().
		Model(&downloads).
		Where("order_id = ?", orderID).
		OrderExpr("id ASC").
		Scan(ctx)
	return downloads, err
}

// ListDownloadsForCustomer → newest first, with products
func (d *DB) ListDownloadsForCustomer(ctx context.Context, customerID int64) ([]*models.ProductDownload, error) {
	var downloads []*models.ProductDownload
	err := d.Bun.NewSelect().
		Model(&downloads).
		Relation("Product").
		Relation("Order").
		Where("pd.customer_id = ?", customerID).
		OrderExpr("pd.created_at DESC, pd.id DESC").
		Scan(ctx)
	return downloads, err
}

// AttachDownloads fills item.Download for every item that has one.
func (d *DB) AttachDownloads(ctx context.Context, orders ...*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	var downloads []*models.ProductDownload
	err := d.Bun.NewSelect().
		Model(&downloads).
		Where("order_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return err
	}

	byItem := make(map[int64]*models.ProductDownload, len(downloads))
	for _, dl := range downloads {
		byItem[dl.OrderItemID] = dl
	}
	for _, o := range orders {
		for _, item := range o.Items {
			item.Download = byItem[item.ID]
		}
	}
	return nil
}
