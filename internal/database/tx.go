package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/uptrace/bun"
)

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	MaxRetries     int
	// RetryOn decides whether a failed attempt is tried again. Defaults to IsRetryable.
	RetryOn func(error) bool
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelDefault,
		MaxRetries:     3,
	}
}

// WithRetry runs fn in a bun transaction and retries it with jittered backoff.
func WithRetry(ctx context.Context, db bun.IDB, opts TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	retryOn := opts.RetryOn
	if retryOn == nil {
		retryOn = IsRetryable
	}

	backoff := 50 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := db.RunInTx(ctx, &sql.TxOptions{Isolation: opts.IsolationLevel}, fn)
		if err == nil {
			return nil
		}
		if !retryOn(err) {
			return err
		}
		lastErr = err
		if attempt == opts.MaxRetries {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", opts.MaxRetries, lastErr)
}
