package receivable

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store persists client balances in PostgreSQL.
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

const clientColumns = `id, tenant_id, name, total_purchases, receivable, created_at, updated_at`

// GetClientForUpdate loads a client and locks the row for the enclosing
// transaction.
func (s *Store) GetClientForUpdate(ctx context.Context, tenantID, clientID int64) (Client, error) {
	var c Client
	err := s.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, clientID).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.TotalPurchases, &c.Receivable, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, err
	}
	return c, nil
}

// AdjustBalances applies signed deltas to a client's cumulative purchases and
// receivable. Deltas are additive so concurrent sales inside their own atomic
// scopes cannot lose updates.
func (s *Store) AdjustBalances(ctx context.Context, tenantID, clientID int64, purchasesDelta, receivableDelta decimal.Decimal) error {
	tag, err := s.db.Exec(ctx, `UPDATE clients
SET total_purchases = total_purchases + $3, receivable = receivable + $4, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2`, tenantID, clientID, purchasesDelta, receivableDelta)
	if err != nil {
		return fmt.Errorf("receivable: adjust balances for client %d: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

// ListByTenant returns all clients for a tenant, used by reconciliation.
func (s *Store) ListByTenant(ctx context.Context, tenantID int64) ([]Client, error) {
	rows, err := s.db.Query(ctx, `SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.TotalPurchases, &c.Receivable, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}
