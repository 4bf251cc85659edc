package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caldera-erp/caldera-erp/internal/auditlog"
	"github.com/caldera-erp/caldera-erp/internal/ledger"
	"github.com/caldera-erp/caldera-erp/internal/platform/db"
	"github.com/caldera-erp/caldera-erp/internal/receivable"
	"github.com/caldera-erp/caldera-erp/internal/sequence"
	"github.com/caldera-erp/caldera-erp/internal/shared"
	"github.com/caldera-erp/caldera-erp/internal/stock"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists sales and opens the atomic scope spanning all leaf
// stores.
type Repository struct {
	pool       *pgxpool.Pool
	sequences  *sequence.Store
	stock      *stock.Store
	receivable *receivable.Store
	audit      *auditlog.Store
	ledger     *ledger.SQLStore
}

// NewRepository constructs a Repository over the shared pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:       pool,
		sequences:  sequence.NewStore(pool),
		stock:      stock.NewStore(pool),
		receivable: receivable.NewStore(pool),
		audit:      auditlog.NewStore(pool),
		ledger:     ledger.NewSQLStore(pool),
	}
}

var _ RepositoryPort = (*Repository)(nil)

// WithTx runs fn inside one serializable transaction shared by every leaf
// store. Serializable isolation is what makes the sequence allocation and
// balance updates safe under concurrent sales for the same tenant; conflicts
// surface as shared.ErrConcurrencyConflict and the caller retries the whole
// operation.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		scope := TxScope{
			Sales:      &txRepo{db: tx},
			Sequences:  r.sequences.WithTx(tx),
			Stock:      r.stock.WithTx(tx),
			Receivable: r.receivable.WithTx(tx),
			Audit:      r.audit.WithTx(tx),
			Journal:    ledger.NewEngine(r.ledger.WithTx(tx)),
		}
		return fn(ctx, scope)
	})
	if err != nil && db.IsConflict(err) {
		return fmt.Errorf("%w: %s", shared.ErrConcurrencyConflict, err)
	}
	return err
}

const saleColumns = `id, tenant_id, seq_no, client_id, total, payment_type, payment_method, payment_status, status, staff_name, created_by, created_at, updated_at`

// GetSale loads a sale with its lines outside any transaction.
func (r *Repository) GetSale(ctx context.Context, tenantID, saleID int64) (Sale, error) {
	return getSale(ctx, r.pool, tenantID, saleID, "")
}

type txRepo struct {
	db dbtx
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	err := t.db.QueryRow(ctx, `INSERT INTO sales (tenant_id, seq_no, client_id, total, payment_type, payment_method, payment_status, status, staff_name, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at, updated_at`,
		sale.TenantID, sale.SeqNo, sale.ClientID, sale.Total, string(sale.PaymentType), sale.PaymentMethod,
		string(sale.PaymentStatus), string(sale.Status), sale.StaffName, sale.CreatedBy).
		Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	return sale, nil
}

func (t *txRepo) InsertLines(ctx context.Context, saleID int64, lines []SaleLine) error {
	for _, line := range lines {
		_, err := t.db.Exec(ctx, `INSERT INTO sale_lines (sale_id, item_id, location_id, qty, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6)`, saleID, line.ItemID, line.LocationID, line.Qty, line.UnitPrice, line.LineTotal)
		if err != nil {
			return fmt.Errorf("sales: insert line: %w", err)
		}
	}
	return nil
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, tenantID, saleID int64) (Sale, error) {
	return getSale(ctx, t.db, tenantID, saleID, " FOR UPDATE")
}

func (t *txRepo) UpdateStatus(ctx context.Context, tenantID, saleID int64, status SaleStatus) error {
	tag, err := t.db.Exec(ctx, `UPDATE sales SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, saleID, string(status))
	if err != nil {
		return fmt.Errorf("sales: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func getSale(ctx context.Context, q dbtx, tenantID, saleID int64, suffix string) (Sale, error) {
	var sale Sale
	var paymentType, paymentStatus, status string
	err := q.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE tenant_id = $1 AND id = $2`+suffix,
		tenantID, saleID).
		Scan(&sale.ID, &sale.TenantID, &sale.SeqNo, &sale.ClientID, &sale.Total, &paymentType, &sale.PaymentMethod,
			&paymentStatus, &status, &sale.StaffName, &sale.CreatedBy, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}
	sale.PaymentType = PaymentType(paymentType)
	sale.PaymentStatus = PaymentStatus(paymentStatus)
	sale.Status = SaleStatus(status)

	rows, err := q.Query(ctx, `SELECT id, sale_id, item_id, location_id, qty, unit_price, line_total
FROM sale_lines WHERE sale_id = $1 ORDER BY id`, sale.ID)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.LocationID, &line.Qty, &line.UnitPrice, &line.LineTotal); err != nil {
			return Sale{}, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	return sale, rows.Err()
}
