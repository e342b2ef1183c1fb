package models

import (
	"time"

	"github.com/uptrace/bun"
)

// IdempotencyKey records that a side effect identified by Key has been claimed.
type IdempotencyKey struct {
	bun.BaseModel `bun:"table:idempotency_keys,alias:ik"`

	Key       string    `bun:"key,pk" json:"key"`
	Scope     string    `bun:"scope,notnull" json:"scope"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
