// Package sequence issues per-tenant sale numbers.
package sequence

import (
	"context"
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

// Store allocates monotonically increasing sale numbers from a per-tenant
// counter row. Values never repeat; gaps are permitted when an enclosing
// transaction aborts after allocation.
type Store struct {
	db dbtx
}

// NewStore constructs a Store bound to the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// WithTx returns a copy of the store bound to the given transaction. Allocation
// must run inside the same atomic scope as the sale write so that an aborted
// sale does not publish its number.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

// Next returns the next sale number for the tenant. The single upsert
// statement is atomic; two concurrent callers on the same tenant serialize on
// the counter row and can never observe the same value.
func (s *Store) Next(ctx context.Context, tenantID int64) (int64, error) {
	var value int64
	err := s.db.QueryRow(ctx, `INSERT INTO sale_number_counters (tenant_id, value)
VALUES ($1, 1)
ON CONFLICT (tenant_id) DO UPDATE SET value = sale_number_counters.value + 1
RETURNING value`, tenantID).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("sequence: next for tenant %d: %w", tenantID, err)
	}
	return value, nil
}
