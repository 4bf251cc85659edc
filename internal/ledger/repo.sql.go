package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// SQLStore persists the chart of accounts and journal entries in PostgreSQL.
type SQLStore struct {
	db dbtx
}

// NewSQLStore constructs a SQLStore bound to the pool.
func NewSQLStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{db: pool}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *SQLStore) WithTx(tx pgx.Tx) *SQLStore {
	return &SQLStore{db: tx}
}

var _ Store = (*SQLStore)(nil)

// AccountsByCode resolves codes against the tenant's chart. Absent codes are
// simply missing from the returned map.
func (s *SQLStore) AccountsByCode(ctx context.Context, tenantID int64, codes []string) (map[string]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT id, tenant_id, code, name FROM accounts
WHERE tenant_id = $1 AND code = ANY($2)`, tenantID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[string]Account, len(codes))
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.TenantID, &acc.Code, &acc.Name); err != nil {
			return nil, err
		}
		accounts[acc.Code] = acc
	}
	return accounts, rows.Err()
}

// EnsureDefaults creates the tenant's default accounts if absent. The insert
// is idempotent so two first-time postings racing to bootstrap both succeed.
func (s *SQLStore) EnsureDefaults(ctx context.Context, tenantID int64) error {
	defaults := []Account{
		{Code: AccountCash, Name: "Cash"},
		{Code: AccountReceivable, Name: "Accounts Receivable"},
		{Code: AccountSales, Name: "Sales"},
	}
	for _, acc := range defaults {
		_, err := s.db.Exec(ctx, `INSERT INTO accounts (tenant_id, code, name)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id, code) DO NOTHING`, tenantID, acc.Code, acc.Name)
		if err != nil {
			return fmt.Errorf("ledger: ensure account %s: %w", acc.Code, err)
		}
	}
	return nil
}

// InsertEntry writes the entry header.
func (s *SQLStore) InsertEntry(ctx context.Context, in PostingInput) (Entry, error) {
	entry := Entry{TenantID: in.TenantID, SaleID: in.SaleID, Date: in.Date, Memo: in.Memo}
	err := s.db.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, sale_id, entry_date, memo)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`, in.TenantID, in.SaleID, in.Date, in.Memo).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// InsertLines writes the entry's lines.
func (s *SQLStore) InsertLines(ctx context.Context, entryID int64, lines []Line) error {
	for _, line := range lines {
		_, err := s.db.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit)
VALUES ($1, $2, $3, $4)`, entryID, line.AccountID, line.Debit, line.Credit)
		if err != nil {
			return err
		}
	}
	return nil
}

// ErrEntryNotFound indicates a missing journal entry.
var ErrEntryNotFound = errors.New("journal entry not found")

// EntryBySale returns the journal entry posted for a sale, with lines.
// Accounting reports read through this.
func (s *SQLStore) EntryBySale(ctx context.Context, tenantID, saleID int64) (Entry, error) {
	var entry Entry
	err := s.db.QueryRow(ctx, `SELECT id, tenant_id, sale_id, entry_date, memo, created_at
FROM journal_entries WHERE tenant_id = $1 AND sale_id = $2`, tenantID, saleID).
		Scan(&entry.ID, &entry.TenantID, &entry.SaleID, &entry.Date, &entry.Memo, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, a.code, l.debit, l.credit
FROM journal_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.entry_id = $1 ORDER BY l.id`, entry.ID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.Debit, &line.Credit); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// TenantIDs lists tenants that have posted at least one entry.
func (s *SQLStore) TenantIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT tenant_id FROM journal_entries ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindImbalanced returns ids of entries whose lines do not balance. A correct
// system returns none; the integrity job alerts on any hit.
func (s *SQLStore) FindImbalanced(ctx context.Context, tenantID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT e.id
FROM journal_entries e JOIN journal_lines l ON l.entry_id = e.id
WHERE e.tenant_id = $1
GROUP BY e.id
HAVING SUM(l.debit) <> SUM(l.credit)
ORDER BY e.id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
