package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/utils"
)

const (
	TokenLength      = 64
	maxTokenAttempts = 5
)

var ErrTokenExhausted = errors.New("could not generate a unique download token")

// Result reports what happened to each order item.
type Result struct {
	Created []*models.ProductDownload
	// Existing lists order items that already had a download.
	Existing []int64
	// NoFile lists order items whose product has nothing to download.
	NoFile []int64
	Failed map[int64]error
}

func (r *Result) fail(itemID int64, err error) {
	if r.Failed == nil {
		r.Failed = map[int64]error{}
	}
	r.Failed[itemID] = err
}

// Generator issues one download per purchased file. Items are independent: a failing
// item is recorded and the rest still get their downloads.
type Generator struct {
	DB       *db.DB
	Logger   *logger.Logger
	Now      func() time.Time
	NewToken func() (string, error)
}

func NewGenerator(store *db.DB, log *logger.Logger) *Generator {
	return &Generator{
		DB:     store,
		Logger: log,
		Now:    time.Now,
		NewToken: func() (string, error) {
			return utils.GenerateToken(TokenLength)
		},
	}
}

// Generate is safe to call any number of times for the same order.
func (g *Generator) Generate(ctx context.Context, order *models.Order) (*Result, error) {
	result := &Result{}
	if len(order.Items) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := g.DB.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products for order %s: %w", order.OrderNumber, err)
	}

	for _, item := range order.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.HasFile() {
			g.Logger.Debug("ENTITLEMENT", fmt.Sprintf("Order item %d has no downloadable file, skipping", item.ID))
			result.NoFile = append(result.NoFile, item.ID)
			continue
		}

		download, created, err := g.issue(ctx, order, item)
		switch {
		case err != nil:
			g.Logger.Error("ENTITLEMENT", fmt.Sprintf("Failed to issue download for order %s item %d: %v",
				order.OrderNumber, item.ID, err))
			result.fail(item.ID, err)
		case created:
			g.Logger.Info("ENTITLEMENT", fmt.Sprintf("Download issued for order %s item %d (%s)",
				order.OrderNumber, item.ID, product.Title))
			result.Created = append(result.Created, download)
		default:
			result.Existing = append(result.Existing, item.ID)
		}
	}
	return result, nil
}

func (g *Generator) issue(ctx context.Context, order *models.Order, item *models.OrderItem) (*models.ProductDownload, bool, error) {
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := g.NewToken()
		if err != nil {
			return nil, false, err
		}
		taken, err := g.DB.DownloadTokenExists(ctx, token)
		if err != nil {
			return nil, false, err
		}
		if taken {
			continue
		}

		now := g.Now().UTC()
		download := &models.ProductDownload{
			OrderID:       order.ID,
			OrderItemID:   item.ID,
			ProductID:     item.ProductID,
			CustomerID:    order.CustomerID,
			DownloadToken: token,
			DownloadCount: 0,
			MaxDownloads:  models.UnlimitedDownloads,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if order.CustomerID == nil {
			download.GuestEmail = order.GuestEmail
		}

		created, err := g.DB.InsertDownloadIfAbsent(ctx, download)
		if err != nil {
			// a token collision slipped past the existence check
			if database.IsUniqueViolation(err) {
				continue
			}
			return nil, false, err
		}
		return download, created, nil
	}
	return nil, false, ErrTokenExhausted
}
