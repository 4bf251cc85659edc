package stock

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

// Store persists stock positions in PostgreSQL.
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

// Position loads one position.
func (s *Store) Position(ctx context.Context, key Key) (Position, error) {
	var pos Position
	err := s.db.QueryRow(ctx, `SELECT tenant_id, item_id, location_id, qty, updated_at
FROM stock_positions WHERE tenant_id = $1 AND item_id = $2 AND location_id = $3`,
		key.TenantID, key.ItemID, key.LocationID).
		Scan(&pos.TenantID, &pos.ItemID, &pos.LocationID, &pos.Qty, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return pos, nil
}

// Adjust applies a signed delta to the position and returns the new quantity.
// The update is a single additive statement so concurrent adjustments to the
// same key always net out to the sum of their deltas. There is no floor at
// zero.
func (s *Store) Adjust(ctx context.Context, key Key, delta decimal.Decimal) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := s.db.QueryRow(ctx, `UPDATE stock_positions
SET qty = qty + $4, updated_at = NOW()
WHERE tenant_id = $1 AND item_id = $2 AND location_id = $3
RETURNING qty`, key.TenantID, key.ItemID, key.LocationID, delta).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrPositionNotFound
		}
		return decimal.Zero, fmt.Errorf("stock: adjust %d/%d/%d: %w", key.TenantID, key.ItemID, key.LocationID, err)
	}
	return qty, nil
}
