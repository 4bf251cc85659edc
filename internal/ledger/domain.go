// Package ledger posts balanced double-entry journal entries against a
// per-tenant chart of accounts.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caldera-erp/caldera-erp/internal/shared"
)

// Default account codes bootstrapped lazily per tenant.
const (
	AccountCash       = "CASH"
	AccountReceivable = "AR"
	AccountSales      = "SALES"
)

// Account is one ledger account in a tenant's chart.
type Account struct {
	ID       int64
	TenantID int64
	Code     string
	Name     string
}

// Entry is a posted journal entry. Debits always equal credits across lines.
type Entry struct {
	ID        int64
	TenantID  int64
	SaleID    int64
	Date      time.Time
	Memo      string
	Lines     []Line
	CreatedAt time.Time
}

// Line is one side of a posting. Exactly one of Debit and Credit is nonzero.
type Line struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// PostingInput describes an entry to post.
type PostingInput struct {
	TenantID int64
	SaleID   int64
	Date     time.Time
	Memo     string
	Lines    []LineInput
}

// LineInput is one requested line, addressed by account code.
type LineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Validate checks the structural and balance invariants of the posting.
func (in PostingInput) Validate() error {
	if in.TenantID == 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if len(in.Lines) < 2 {
		return fmt.Errorf("%w: journal entry needs at least two lines", shared.ErrValidation)
	}
	debits := decimal.Zero
	credits := decimal.Zero
	for i, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("%w: line %d missing account code", shared.ErrValidation, i)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d has negative amount", shared.ErrValidation, i)
		}
		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if debitSet == creditSet {
			return fmt.Errorf("%w: line %d must set exactly one of debit or credit", shared.ErrLedgerImbalance, i)
		}
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	if !debits.Equal(credits) {
		return fmt.Errorf("%w: debits %s vs credits %s", shared.ErrLedgerImbalance, debits, credits)
	}
	return nil
}
