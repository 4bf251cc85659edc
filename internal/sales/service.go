package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caldera-erp/caldera-erp/internal/auditlog"
	"github.com/caldera-erp/caldera-erp/internal/ledger"
	"github.com/caldera-erp/caldera-erp/internal/receivable"
	"github.com/caldera-erp/caldera-erp/internal/shared"
	"github.com/caldera-erp/caldera-erp/internal/stock"
)

// MetricsPort records coordinator outcomes.
type MetricsPort interface {
	SaleCreated()
	SaleCancelled()
	TxConflict()
}

// Service is the transaction coordinator. Every sale effect (the sale row,
// the sequence consumption, the stock deltas, the balance delta, the audit
// entry and the journal entry) commits together or not at all.
type Service struct {
	repo    RepositoryPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateSale validates the request and executes spec'd steps inside one
// atomic scope. Stock sufficiency is deliberately not enforced: a sale may
// drive a position negative.
func (s *Service) CreateSale(ctx context.Context, in CreateSaleInput, actorID int64) (CreateSaleResult, error) {
	if err := validateCreate(in); err != nil {
		return CreateSaleResult{}, err
	}

	lines := make([]SaleLine, 0, len(in.Lines))
	total := decimal.Zero
	for _, req := range in.Lines {
		lineTotal := req.Qty.Mul(req.UnitPrice)
		lines = append(lines, SaleLine{
			ItemID:     req.ItemID,
			LocationID: req.LocationID,
			Qty:        req.Qty,
			UnitPrice:  req.UnitPrice,
			LineTotal:  lineTotal,
		})
		total = total.Add(lineTotal)
	}

	var result CreateSaleResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, scope TxScope) error {
		client, err := scope.Receivable.GetClientForUpdate(ctx, in.TenantID, in.ClientID)
		if err != nil {
			if errors.Is(err, receivable.ErrClientNotFound) {
				return fmt.Errorf("%w: client %d", shared.ErrNotFound, in.ClientID)
			}
			return err
		}

		for _, line := range lines {
			key := stock.Key{TenantID: in.TenantID, ItemID: line.ItemID, LocationID: line.LocationID}
			if _, err := scope.Stock.Position(ctx, key); err != nil {
				if errors.Is(err, stock.ErrPositionNotFound) {
					return fmt.Errorf("%w: stock position item=%d location=%d", shared.ErrNotFound, line.ItemID, line.LocationID)
				}
				return err
			}
		}

		seqNo, err := scope.Sequences.Next(ctx, in.TenantID)
		if err != nil {
			return err
		}

		sale := Sale{
			TenantID:      in.TenantID,
			SeqNo:         seqNo,
			ClientID:      client.ID,
			Total:         total,
			PaymentType:   in.PaymentType,
			PaymentMethod: in.PaymentMethod,
			PaymentStatus: derivePaymentStatus(in.PaymentType),
			Status:        SaleStatusCompleted,
			StaffName:     in.StaffName,
			CreatedBy:     actorID,
		}
		sale, err = scope.Sales.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		if err := scope.Sales.InsertLines(ctx, sale.ID, lines); err != nil {
			return err
		}

		for _, line := range lines {
			key := stock.Key{TenantID: in.TenantID, ItemID: line.ItemID, LocationID: line.LocationID}
			if _, err := scope.Stock.Adjust(ctx, key, line.Qty.Neg()); err != nil {
				return err
			}
		}

		receivableDelta := decimal.Zero
		if in.PaymentType == PaymentTypeCredit {
			receivableDelta = total
		}
		if err := scope.Receivable.AdjustBalances(ctx, in.TenantID, client.ID, total, receivableDelta); err != nil {
			return err
		}

		auditLines := make([]auditlog.EntryLine, 0, len(lines))
		for _, line := range lines {
			auditLines = append(auditLines, auditlog.EntryLine{
				ItemID:     line.ItemID,
				LocationID: line.LocationID,
				Qty:        line.Qty,
			})
		}
		if err := scope.Audit.Append(ctx, auditlog.Entry{
			TenantID:   in.TenantID,
			SaleID:     sale.ID,
			Type:       auditlog.EntryTypeSale,
			ActorID:    actorID,
			OccurredAt: s.now().UTC(),
			Lines:      auditLines,
		}); err != nil {
			return err
		}

		// A zero-total sale moves no money, so there is nothing to post.
		if !total.IsZero() {
			if _, err := scope.Journal.Post(ctx, ledger.PostingInput{
				TenantID: in.TenantID,
				SaleID:   sale.ID,
				Date:     s.now().UTC(),
				Memo:     fmt.Sprintf("Sale #%d", seqNo),
				Lines:    journalLines(in.PaymentType, total),
			}); err != nil {
				return err
			}
		}

		result = CreateSaleResult{SaleID: sale.ID, SequenceNumber: seqNo, TotalAmount: total}
		return nil
	})
	if err != nil {
		if s.metrics != nil && shared.Retryable(err) {
			s.metrics.TxConflict()
		}
		return CreateSaleResult{}, err
	}
	if s.metrics != nil {
		s.metrics.SaleCreated()
	}
	return result, nil
}

// CancelSale compensates a completed sale: inverse stock deltas, inverse
// balance deltas for credit sales, terminal status flip and the audit-entry
// delete, all in one atomic scope. The journal entry posted at creation is
// intentionally left standing as a historical record; no reversing entry is
// posted.
func (s *Service) CancelSale(ctx context.Context, tenantID, saleID int64) error {
	if tenantID == 0 || saleID == 0 {
		return fmt.Errorf("%w: tenant and sale required", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, scope TxScope) error {
		sale, err := scope.Sales.GetSaleForUpdate(ctx, tenantID, saleID)
		if err != nil {
			return err
		}
		if sale.Status == SaleStatusCancelled {
			return shared.ErrAlreadyCancelled
		}

		for _, line := range sale.Lines {
			key := stock.Key{TenantID: tenantID, ItemID: line.ItemID, LocationID: line.LocationID}
			if _, err := scope.Stock.Adjust(ctx, key, line.Qty); err != nil {
				return err
			}
		}

		if sale.PaymentType == PaymentTypeCredit {
			if err := scope.Receivable.AdjustBalances(ctx, tenantID, sale.ClientID, sale.Total.Neg(), sale.Total.Neg()); err != nil {
				return err
			}
		}

		if err := scope.Sales.UpdateStatus(ctx, tenantID, saleID, SaleStatusCancelled); err != nil {
			return err
		}

		return scope.Audit.DeleteBySale(ctx, tenantID, saleID)
	})
	if err != nil {
		if s.metrics != nil && shared.Retryable(err) {
			s.metrics.TxConflict()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.SaleCancelled()
	}
	return nil
}

// GetSale loads one sale with lines.
func (s *Service) GetSale(ctx context.Context, tenantID, saleID int64) (Sale, error) {
	return s.repo.GetSale(ctx, tenantID, saleID)
}

func validateCreate(in CreateSaleInput) error {
	if in.TenantID == 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if in.ClientID == 0 {
		return fmt.Errorf("%w: client required", shared.ErrValidation)
	}
	if !in.PaymentType.Valid() {
		return fmt.Errorf("%w: unknown payment type %q", shared.ErrValidation, in.PaymentType)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	for i, line := range in.Lines {
		if line.ItemID == 0 || line.LocationID == 0 {
			return fmt.Errorf("%w: line %d missing item or location", shared.ErrValidation, i)
		}
		if !line.Qty.IsPositive() {
			return fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price must not be negative", shared.ErrValidation, i)
		}
	}
	return nil
}

func derivePaymentStatus(p PaymentType) PaymentStatus {
	if p == PaymentTypeCredit {
		return PaymentStatusUnpaid
	}
	return PaymentStatusPaid
}

func journalLines(p PaymentType, total decimal.Decimal) []ledger.LineInput {
	debitAccount := ledger.AccountCash
	if p == PaymentTypeCredit {
		debitAccount = ledger.AccountReceivable
	}
	return []ledger.LineInput{
		{AccountCode: debitAccount, Debit: total},
		{AccountCode: ledger.AccountSales, Credit: total},
	}
}
