package sales

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/caldera-erp/caldera-erp/internal/auditlog"
	"github.com/caldera-erp/caldera-erp/internal/ledger"
	"github.com/caldera-erp/caldera-erp/internal/receivable"
	"github.com/caldera-erp/caldera-erp/internal/stock"
)

// The coordinator never talks to a leaf component outside an atomic scope.
// RepositoryPort opens the scope; TxScope carries the transaction-bound view
// of every collaborator into the callback.

// SequencePort allocates the per-tenant sale number.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64) (int64, error)
}

// StockPort reads and adjusts stock positions.
type StockPort interface {
	Position(ctx context.Context, key stock.Key) (stock.Position, error)
	Adjust(ctx context.Context, key stock.Key, delta decimal.Decimal) (decimal.Decimal, error)
}

// ReceivablePort resolves clients and moves their balances.
type ReceivablePort interface {
	GetClientForUpdate(ctx context.Context, tenantID, clientID int64) (receivable.Client, error)
	AdjustBalances(ctx context.Context, tenantID, clientID int64, purchasesDelta, receivableDelta decimal.Decimal) error
}

// AuditPort appends and compensates audit entries.
type AuditPort interface {
	Append(ctx context.Context, entry auditlog.Entry) error
	DeleteBySale(ctx context.Context, tenantID, saleID int64) error
}

// JournalPort posts balanced journal entries.
type JournalPort interface {
	Post(ctx context.Context, in ledger.PostingInput) (ledger.Entry, error)
}

// SaleTxRepository persists sale rows within the scope.
type SaleTxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	InsertLines(ctx context.Context, saleID int64, lines []SaleLine) error
	GetSaleForUpdate(ctx context.Context, tenantID, saleID int64) (Sale, error)
	UpdateStatus(ctx context.Context, tenantID, saleID int64, status SaleStatus) error
}

// TxScope is the unit of work handed to the coordinator callback. All writes
// made through it become visible together at commit or not at all.
type TxScope struct {
	Sales      SaleTxRepository
	Sequences  SequencePort
	Stock      StockPort
	Receivable ReceivablePort
	Audit      AuditPort
	Journal    JournalPort
}

// RepositoryPort abstracts repository usage for the coordinator service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
	GetSale(ctx context.Context, tenantID, saleID int64) (Sale, error)
}
