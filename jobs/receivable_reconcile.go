package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/caldera-erp/caldera-erp/internal/observability"
	"github.com/caldera-erp/caldera-erp/internal/receivable"
)

// ReceivableReconciler recomputes each client's receivable from completed
// credit sales and compares it to the stored balance. It only reports drift;
// the stored balance stays authoritative and any fix is a manual operation.
type ReceivableReconciler struct {
	pool    *pgxpool.Pool
	clients *receivable.Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewReceivableReconciler(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *ReceivableReconciler {
	return &ReceivableReconciler{pool: pool, clients: receivable.NewStore(pool), logger: logger, metrics: metrics}
}

// Handle processes TaskReceivableReconcile tasks.
func (r *ReceivableReconciler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReceivableReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tenants := []int64{payload.TenantID}
	if payload.TenantID == 0 {
		var err error
		tenants, err = r.tenantIDs(ctx)
		if err != nil {
			r.record("error")
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			return r.reconcileTenant(ctx, tenantID)
		})
	}
	if err := g.Wait(); err != nil {
		r.record("error")
		return err
	}
	r.record("ok")
	return nil
}

func (r *ReceivableReconciler) reconcileTenant(ctx context.Context, tenantID int64) error {
	clients, err := r.clients.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	expected, err := r.expectedReceivables(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, client := range clients {
		want := expected[client.ID]
		if !client.Receivable.Equal(want) {
			if r.metrics != nil {
				r.metrics.IntegrityDrift("receivable")
			}
			r.logger.Error("receivable drift",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("client_id", client.ID),
				slog.String("stored", client.Receivable.String()),
				slog.String("expected", want.String()))
		}
	}
	return nil
}

// expectedReceivables sums completed credit sales per client. Clients without
// any such sale are absent from the map; the zero value compares as zero.
func (r *ReceivableReconciler) expectedReceivables(ctx context.Context, tenantID int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT client_id, COALESCE(SUM(total), 0)
FROM sales
WHERE tenant_id = $1 AND payment_type = 'CREDIT' AND status = 'COMPLETED'
GROUP BY client_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expected := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var clientID int64
		var sum decimal.Decimal
		if err := rows.Scan(&clientID, &sum); err != nil {
			return nil, err
		}
		expected[clientID] = sum
	}
	return expected, rows.Err()
}

func (r *ReceivableReconciler) tenantIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM clients ORDER BY tenant_id`)
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

func (r *ReceivableReconciler) record(result string) {
	if r.metrics != nil {
		r.metrics.JobRun(TaskReceivableReconcile, result)
	}
}
