// Package receivable owns client purchase and receivable balances.
package receivable

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Client carries a client's aggregate balances. Receivable is the single
// authoritative amount owed; it moves only for credit-type sales. Cash sales
// touch TotalPurchases alone.
type Client struct {
	ID             int64
	TenantID       int64
	Name           string
	TotalPurchases decimal.Decimal
	Receivable     decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ErrClientNotFound indicates a missing client row.
var ErrClientNotFound = errors.New("client not found")
