package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ms-storefront/internal/order/db"
)

// NumberGenerator issues ORD-YYYYMMDD-NNNN numbers. The sequence restarts every day in
// the store's time zone.
type NumberGenerator struct {
	Location *time.Location
}

func (g NumberGenerator) prefix(now time.Time) string {
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	return "ORD-" + now.In(loc).Format("20060102") + "-"
}

// Next reads the day's highest number through tx and returns the one after it.
func (g NumberGenerator) Next(ctx context.Context, tx *db.DB, now time.Time) (string, error) {
	prefix := g.prefix(now)

	latest, err := tx.LatestOrderNumber(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("read latest order number: %w", err)
	}

	seq := 1
	if latest != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(latest, prefix))
		if err != nil {
			return "", fmt.Errorf("malformed order number %q: %w", latest, err)
		}
		seq = n + 1
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}
