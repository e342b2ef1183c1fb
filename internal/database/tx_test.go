package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.Exec("CREATE TABLE counters (name TEXT PRIMARY KEY, value INTEGER NOT NULL)")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func TestWithRetry_RetriesWhenAllowed(t *testing.T) {
	db := setupTestDB(t)
	transient := errors.New("transient")
	attempts := 0

	opts := DefaultTxOptions()
	opts.RetryOn = func(err error) bool { return errors.Is(err, transient) }

	err := WithRetry(context.Background(), db, opts, func(ctx context.Context, tx bun.Tx) error {
		attempts++
		if attempts < 3 {
			return transient
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO counters (name, value) VALUES ('a', 1)")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_RollsBackAndStopsOnPermanentError(t *testing.T) {
	db := setupTestDB(t)
	permanent := errors.New("permanent")
	attempts := 0

	err := WithRetry(context.Background(), db, DefaultTxOptions(), func(ctx context.Context, tx bun.Tx) error {
		attempts++
		if _, err := tx.ExecContext(ctx, "INSERT INTO counters (name, value) VALUES ('b', 1)"); err != nil {
			return err
		}
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)

	var count int
	require.NoError(t, db.NewRaw("SELECT COUNT(*) FROM counters").Scan(context.Background(), &count))
	assert.Equal(t, 0, count)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	db := setupTestDB(t)
	transient := errors.New("transient")
	attempts := 0

	opts := TxOptions{MaxRetries: 2, RetryOn: func(error) bool { return true }}
	err := WithRetry(context.Background(), db, opts, func(ctx context.Context, tx bun.Tx) error {
		attempts++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, attempts)
}
