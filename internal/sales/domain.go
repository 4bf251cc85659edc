// Package sales coordinates the transactional sale-processing core: creating
// a sale atomically updates stock, client balances, the audit log and the
// general ledger, and cancelling one precisely compensates those effects.
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType distinguishes cash sales from credit (receivable) sales.
type PaymentType string

const (
	PaymentTypeCash   PaymentType = "CASH"
	PaymentTypeCredit PaymentType = "CREDIT"
)

// Valid reports whether the payment type is a known value.
func (p PaymentType) Valid() bool {
	return p == PaymentTypeCash || p == PaymentTypeCredit
}

// PaymentStatus is derived from the payment type at creation time.
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
)

// SaleStatus is the sale lifecycle state. CANCELLED is terminal; no further
// mutation of a cancelled sale is possible.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// Sale is a completed transfer of goods to a client.
type Sale struct {
	ID            int64
	TenantID      int64
	SeqNo         int64
	ClientID      int64
	Total         decimal.Decimal
	PaymentType   PaymentType
	PaymentMethod string
	PaymentStatus PaymentStatus
	Status        SaleStatus
	StaffName     string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []SaleLine
}

// SaleLine is one item row of a sale.
type SaleLine struct {
	ID         int64
	SaleID     int64
	ItemID     int64
	LocationID int64
	Qty        decimal.Decimal
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// CreateSaleInput is the coordinator-level request to create a sale.
type CreateSaleInput struct {
	TenantID      int64
	ClientID      int64
	PaymentType   PaymentType
	PaymentMethod string
	StaffName     string
	Lines         []CreateSaleLine
}

// CreateSaleLine is one requested line.
type CreateSaleLine struct {
	ItemID     int64
	LocationID int64
	Qty        decimal.Decimal
	UnitPrice  decimal.Decimal
}

// CreateSaleResult is the contract surface returned to the order-entry caller.
type CreateSaleResult struct {
	SaleID         int64
	SequenceNumber int64
	TotalAmount    decimal.Decimal
}
