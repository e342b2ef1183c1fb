package idempotency

import (
	"context"
	"testing"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/logger"
	orderdb "ms-storefront/internal/order/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func setupStore(t *testing.T) (*Store, *fakeClock) {
	bunDB, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, orderdb.CreateSchema(context.Background(), bunDB))

	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := NewStore(bunDB, logger.NewNopLogger())
	store.Now = clock.Now
	return store, clock
}

func TestClaim_OnlyFirstCallerWins(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	won, err := store.Claim(ctx, "order-confirmation:1", "notification", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Claim(ctx, "order-confirmation:1", "notification", time.Hour)
	require.NoError(t, err)
	assert.False(t, won, "second claim on a live key must lose")

	won, err = store.Claim(ctx, "order-confirmation:2", "notification", time.Hour)
	require.NoError(t, err)
	assert.True(t, won, "keys are independent")
}

func TestClaim_ExpiredKeyCanBeReclaimed(t *testing.T) {
	store, clock := setupStore(t)
	ctx := context.Background()

	won, err := store.Claim(ctx, "k", "test", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	clock.now = clock.now.Add(2 * time.Minute)

	won, err = store.Claim(ctx, "k", "test", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestRelease_AllowsNewClaim(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	won, err := store.Claim(ctx, "k", "test", time.Hour)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, store.Release(ctx, "k"))

	won, err = store.Claim(ctx, "k", "test", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestSweep_RemovesOnlyExpiredKeys(t *testing.T) {
	store, clock := setupStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "short", "test", time.Minute)
	require.NoError(t, err)
	_, err = store.Claim(ctx, "long", "test", 24*time.Hour)
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour)

	n, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	won, err := store.Claim(ctx, "long", "test", time.Hour)
	require.NoError(t, err)
	assert.False(t, won, "unexpired key must survive the sweep")
}

func TestRunSweeper_StopsWithContext(t *testing.T) {
	store, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
