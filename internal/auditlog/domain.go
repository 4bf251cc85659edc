// Package auditlog keeps the append-only record of each sale's physical
// effect. Entries are never updated in place; the only mutation path is the
// compensating delete performed when a sale is cancelled.
package auditlog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies audit entries.
type EntryType string

const (
	// EntryTypeSale records the stock effect of a completed sale.
	EntryTypeSale EntryType = "sale"
)

// Entry summarises what a transaction physically did: which items moved, in
// what quantity, from which location, and who did it.
type Entry struct {
	ID         uuid.UUID
	TenantID   int64
	SaleID     int64
	Type       EntryType
	ActorID    int64
	OccurredAt time.Time
	Lines      []EntryLine
}

// EntryLine is one item movement within an entry.
type EntryLine struct {
	ItemID     int64
	LocationID int64
	Qty        decimal.Decimal
}
