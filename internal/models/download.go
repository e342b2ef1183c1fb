package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UnlimitedDownloads is stored as max_downloads under the current product policy.
const UnlimitedDownloads = 999999

// ProductDownload is the entitlement to fetch one purchased file.
type ProductDownload struct {
	bun.BaseModel `bun:"table:product_downloads,alias:pd"`

	ID               int64      `bun:"id,pk,autoincrement" json:"id"`
	OrderID          int64      `bun:"order_id,notnull" json:"order_id"`
	OrderItemID      int64      `bun:"order_item_id,unique,notnull" json:"order_item_id"`
	ProductID        int64      `bun:"product_id,notnull" json:"product_id"`
	CustomerID       *int64     `bun:"customer_id" json:"customer_id"`
	GuestEmail       *string    `bun:"guest_email" json:"guest_email"`
	DownloadToken    string     `bun:"download_token,unique,notnull" json:"download_token"`
	DownloadCount    int        `bun:"download_count,notnull" json:"download_count"`
	MaxDownloads     int        `bun:"max_downloads,notnull" json:"max_downloads"`
	ExpiresAt        *time.Time `bun:"expires_at" json:"expires_at"`
	LastDownloadedAt *time.Time `bun:"last_downloaded_at" json:"last_downloaded_at"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	Product *Product `bun:"rel:belongs-to,join:product_id=id" json:"product,omitempty"`
	Order   *Order   `bun:"rel:belongs-to,join:order_id=id" json:"-"`
}

func (d *ProductDownload) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

func (d *ProductDownload) RemainingDownloads() int {
	if d.MaxDownloads <= 0 {
		return UnlimitedDownloads
	}
	if remaining := d.MaxDownloads - d.DownloadCount; remaining > 0 {
		return remaining
	}
	return 0
}

func (d *ProductDownload) CanDownload(now time.Time) bool {
	return !d.IsExpired(now) && d.RemainingDownloads() > 0
}
