package idempotency

import (
	"context"
	"fmt"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

// Store hands out one-time claims on side effects. A claim lives until it is released
// or its TTL passes, after which the key may be claimed again.
type Store struct {
	DB     bun.IDB
	Logger *logger.Logger
	Now    func() time.Time
}

func NewStore(db bun.IDB, log *logger.Logger) *Store {
	return &Store{DB: db, Logger: log, Now: time.Now}
}

// Claim returns true when this caller now owns key.
func (s *Store) Claim(ctx context.Context, key, scope string, ttl time.Duration) (bool, error) {
	now := s.Now().UTC()

	// an expired claim is as good as none
	if _, err := s.DB.NewDelete().
		Model((*models.IdempotencyKey)(nil)).
		Where("? = ?", bun.Ident("key"), key).
		Where("expires_at <= ?", now).
		Exec(ctx); err != nil {
		return false, fmt.Errorf("drop expired key %s: %w", key, err)
	}

	record := &models.IdempotencyKey{
		Key:       key,
		Scope:     scope,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	res, err := s.DB.NewInsert().
		Model(record).
		On(`CONFLICT ("key") DO NOTHING`).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("claim key %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release gives a claim back, e.g. after the guarded side effect failed.
func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.DB.NewDelete().
		Model((*models.IdempotencyKey)(nil)).
		Where("? = ?", bun.Ident("key"), key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release key %s: %w", key, err)
	}
	return nil
}

// Sweep removes every expired key and reports how many went.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.DB.NewDelete().
		Model((*models.IdempotencyKey)(nil)).
		Where("expires_at <= ?", s.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("IDEMPOTENCY", "Sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.Logger.Error("IDEMPOTENCY", fmt.Sprintf("Sweep failed: %v", err))
				continue
			}
			if n > 0 {
				s.Logger.Debug("IDEMPOTENCY", fmt.Sprintf("Swept %d expired keys", n))
			}
		}
	}
}
