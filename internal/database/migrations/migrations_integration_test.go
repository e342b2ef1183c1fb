package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/logger"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func setupPostgres(t *testing.T) *bun.DB {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, sqldb.Ping())

	return bun.NewDB(sqldb, pgdialect.New())
}

func TestRunMigrations_SchemaAndConstraints(t *testing.T) {
	bunDB := setupPostgres(t)
	ctx := context.Background()

	opts := DefaultOptions()
	opts.MigrationsDir = "../../../migrations"
	opts.SeedData = true
	runner := NewRunner(bunDB, opts, logger.NewNopLogger())
	require.NoError(t, runner.RunMigrations())
	require.NoError(t, runner.RunMigrations(), "second run must be a no-op")

	var products int
	require.NoError(t, bunDB.NewRaw("SELECT COUNT(*) FROM products").Scan(ctx, &products))
	assert.Equal(t, 3, products)

	_, err := bunDB.ExecContext(ctx, `INSERT INTO orders (order_number, subtotal, total_amount) VALUES ('ORD-20260101-0001', 10, 10)`)
	require.NoError(t, err)
	_, err = bunDB.ExecContext(ctx, `INSERT INTO orders (order_number, subtotal, total_amount) VALUES ('ORD-20260101-0001', 10, 10)`)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	_, err = bunDB.ExecContext(ctx, `INSERT INTO order_items (order_id, product_id, product_name, product_price, quantity, subtotal)
		SELECT id, 1, 'Monthly Budget Planner', 149, 1, 149 FROM orders WHERE order_number = 'ORD-20260101-0001'`)
	require.NoError(t, err)

	insertDownload := `INSERT INTO product_downloads (order_id, order_item_id, product_id, download_token)
		SELECT o.id, oi.id, 1, ? FROM orders o JOIN order_items oi ON oi.order_id = o.id
		ON CONFLICT (order_item_id) DO NOTHING`
	res, err := bunDB.ExecContext(ctx, insertDownload, "token-one")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)

	res, err = bunDB.ExecContext(ctx, insertDownload, "token-two")
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	assert.Equal(t, int64(0), n, "a second entitlement for the same item must be ignored")

	require.NoError(t, runner.Close())
}
