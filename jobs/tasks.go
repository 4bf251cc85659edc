// Package jobs holds the background workers that watch over the sale
// transaction core: a ledger integrity sweep and a receivable reconciler.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity verifies that every posted journal entry balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReceivableReconcile recomputes client receivables from sales.
	TaskReceivableReconcile = "receivable:reconcile"
)

// LedgerIntegrityPayload scopes an integrity sweep. A zero TenantID sweeps
// all tenants.
type LedgerIntegrityPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// ReceivableReconcilePayload scopes a reconciliation run. A zero TenantID
// reconciles all tenants.
type ReceivableReconcilePayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewReceivableReconcileTask constructs an Asynq task.
func NewReceivableReconcileTask(payload ReceivableReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceivableReconcile, data), nil
}
