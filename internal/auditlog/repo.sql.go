package auditlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store persists audit entries in PostgreSQL.
type Store struct {
	db dbtx
}

// NewStore constructs a Store bound to the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// WithTx returns a copy of the store bound to the given transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

// Append writes one entry with its lines. Entries are immutable once written.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO audit_entries (id, tenant_id, sale_id, entry_type, actor_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.TenantID, entry.SaleID, string(entry.Type), entry.ActorID, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("auditlog: insert entry: %w", err)
	}
	for _, line := range entry.Lines {
		_, err := s.db.Exec(ctx, `INSERT INTO audit_entry_lines (entry_id, item_id, location_id, qty)
VALUES ($1, $2, $3, $4)`, entry.ID, line.ItemID, line.LocationID, line.Qty)
		if err != nil {
			return fmt.Errorf("auditlog: insert entry line: %w", err)
		}
	}
	return nil
}

// DeleteBySale removes every entry referencing the sale. This is the
// compensating delete used during cancellation, not a business mutation.
func (s *Store) DeleteBySale(ctx context.Context, tenantID, saleID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM audit_entry_lines
WHERE entry_id IN (SELECT id FROM audit_entries WHERE tenant_id = $1 AND sale_id = $2)`, tenantID, saleID)
	if err != nil {
		return fmt.Errorf("auditlog: delete entry lines: %w", err)
	}
	_, err = s.db.Exec(ctx, `DELETE FROM audit_entries WHERE tenant_id = $1 AND sale_id = $2`, tenantID, saleID)
	if err != nil {
		return fmt.Errorf("auditlog: delete entries: %w", err)
	}
	return nil
}

// ListBySale returns the entries for one sale, oldest first. Reporting reads
// through this.
func (s *Store) ListBySale(ctx context.Context, tenantID, saleID int64) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, tenant_id, sale_id, entry_type, actor_id, occurred_at
FROM audit_entries WHERE tenant_id = $1 AND sale_id = $2 ORDER BY occurred_at`, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var entryType string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SaleID, &entryType, &e.ActorID, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = EntryType(entryType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		lines, err := s.linesFor(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

func (s *Store) linesFor(ctx context.Context, entryID uuid.UUID) ([]EntryLine, error) {
	rows, err := s.db.Query(ctx, `SELECT item_id, location_id, qty FROM audit_entry_lines WHERE entry_id = $1`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []EntryLine
	for rows.Next() {
		var line EntryLine
		if err := rows.Scan(&line.ItemID, &line.LocationID, &line.Qty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
