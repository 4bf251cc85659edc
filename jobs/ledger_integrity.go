package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/caldera-erp/caldera-erp/internal/ledger"
	"github.com/caldera-erp/caldera-erp/internal/observability"
)

// LedgerIntegrityChecker sweeps posted journal entries for balance drift.
// Entries are written balanced inside the sale transaction, so any hit here
// means data corruption outside the application path.
type LedgerIntegrityChecker struct {
	store   *ledger.SQLStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewLedgerIntegrityChecker(store *ledger.SQLStore, logger *slog.Logger, metrics *observability.Metrics) *LedgerIntegrityChecker {
	return &LedgerIntegrityChecker{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks.
func (c *LedgerIntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tenants := []int64{payload.TenantID}
	if payload.TenantID == 0 {
		var err error
		tenants, err = c.store.TenantIDs(ctx)
		if err != nil {
			c.record("error")
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			entryIDs, err := c.store.FindImbalanced(ctx, tenantID)
			if err != nil {
				return err
			}
			for _, id := range entryIDs {
				if c.metrics != nil {
					c.metrics.IntegrityDrift("ledger")
				}
				c.logger.Error("imbalanced journal entry",
					slog.Int64("tenant_id", tenantID),
					slog.Int64("entry_id", id))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.record("error")
		return err
	}
	c.record("ok")
	return nil
}

func (c *LedgerIntegrityChecker) record(result string) {
	if c.metrics != nil {
		c.metrics.JobRun(TaskLedgerIntegrity, result)
	}
}
