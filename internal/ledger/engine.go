package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/caldera-erp/caldera-erp/internal/shared"
)

// Store abstracts the persistence the engine needs within the caller's
// atomic scope.
type Store interface {
	AccountsByCode(ctx context.Context, tenantID int64, codes []string) (map[string]Account, error)
	EnsureDefaults(ctx context.Context, tenantID int64) error
	InsertEntry(ctx context.Context, in PostingInput) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []Line) error
}

// Engine validates and posts journal entries.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine builds an Engine over the given store. The store is expected to
// be bound to the enclosing transaction when posting happens inside an
// atomic scope.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post validates the input, resolves its account codes against the tenant's
// chart and writes the entry. When a code is missing the engine performs
// exactly one recovery cycle: bootstrap the tenant's default accounts, then
// retry resolution once. A code still missing after that surfaces as
// shared.ErrAccountMissing.
func (e *Engine) Post(ctx context.Context, in PostingInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	if in.Date.IsZero() {
		in.Date = e.now().UTC()
	}

	codes := uniqueCodes(in.Lines)
	accounts, err := e.store.AccountsByCode(ctx, in.TenantID, codes)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: resolve accounts: %w", err)
	}
	if missingCode(codes, accounts) != "" {
		if err := e.store.EnsureDefaults(ctx, in.TenantID); err != nil {
			return Entry{}, fmt.Errorf("ledger: bootstrap defaults: %w", err)
		}
		accounts, err = e.store.AccountsByCode(ctx, in.TenantID, codes)
		if err != nil {
			return Entry{}, fmt.Errorf("ledger: resolve accounts after bootstrap: %w", err)
		}
	}
	if code := missingCode(codes, accounts); code != "" {
		return Entry{}, fmt.Errorf("%w: %s", shared.ErrAccountMissing, code)
	}

	entry, err := e.store.InsertEntry(ctx, in)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	lines := make([]Line, 0, len(in.Lines))
	for _, line := range in.Lines {
		acc := accounts[line.AccountCode]
		lines = append(lines, Line{
			EntryID:     entry.ID,
			AccountID:   acc.ID,
			AccountCode: acc.Code,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	if err := e.store.InsertLines(ctx, entry.ID, lines); err != nil {
		return Entry{}, fmt.Errorf("ledger: insert lines: %w", err)
	}
	entry.Lines = lines
	return entry, nil
}

func uniqueCodes(lines []LineInput) []string {
	seen := make(map[string]struct{}, len(lines))
	codes := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		codes = append(codes, line.AccountCode)
	}
	return codes
}

func missingCode(codes []string, accounts map[string]Account) string {
	for _, code := range codes {
		if _, ok := accounts[code]; !ok {
			return code
		}
	}
	return ""
}
