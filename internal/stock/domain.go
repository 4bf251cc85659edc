// Package stock owns per-(item, location) quantity positions.
package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the quantity of one item at one location for a tenant.
// Quantity is signed: oversell leaves a negative position rather than an
// error, and the value always equals the algebraic sum of applied deltas.
type Position struct {
	TenantID   int64
	ItemID     int64
	LocationID int64
	Qty        decimal.Decimal
	UpdatedAt  time.Time
}

// Key identifies a position.
type Key struct {
	TenantID   int64
	ItemID     int64
	LocationID int64
}

// ErrPositionNotFound indicates a missing position row.
var ErrPositionNotFound = errors.New("stock position not found")
