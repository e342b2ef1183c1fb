package models

import (
	"path"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Product is owned by the catalog; this service only reads it.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	Title       string          `bun:"title,notnull" json:"title"`
	Slug        string          `bun:"slug" json:"slug"`
	Category    string          `bun:"category" json:"category"`
	Price       decimal.Decimal `bun:"price,type:decimal(12,2),notnull" json:"price"`
	IsActive    bool            `bun:"is_active,notnull" json:"is_active"`
	FilePath    string          `bun:"file_path,nullzero" json:"-"`
	FileName    string          `bun:"file_name,nullzero" json:"file_name,omitempty"`
	Description string          `bun:"description,nullzero" json:"description,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

func (p *Product) HasFile() bool {
	return p.FilePath != ""
}

// DownloadName is the file name offered to the buyer.
func (p *Product) DownloadName() string {
	if p.FileName != "" {
		return p.FileName
	}
	return path.Base(p.FilePath)
}

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	IsActive  bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type CartItem struct {
	bun.BaseModel `bun:"table:cart_items,alias:ci"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	CustomerID int64     `bun:"customer_id,notnull" json:"customer_id"`
	ProductID  int64     `bun:"product_id,notnull" json:"product_id"`
	Quantity   int       `bun:"quantity,notnull" json:"quantity"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
