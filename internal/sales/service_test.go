package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/caldera-erp/caldera-erp/internal/auditlog"
	"github.com/caldera-erp/caldera-erp/internal/ledger"
	"github.com/caldera-erp/caldera-erp/internal/receivable"
	"github.com/caldera-erp/caldera-erp/internal/shared"
	"github.com/caldera-erp/caldera-erp/internal/stock"
)

// memState is everything an atomic scope can touch. WithTx works on a deep
// copy and only commits it on success, which is what lets the tests assert
// atomicity without a database.
type memState struct {
	sales      map[int64]Sale
	sequences  map[int64]int64
	stock      map[stock.Key]decimal.Decimal
	clients    map[int64]receivable.Client
	audits     map[int64][]auditlog.Entry
	journal    []ledger.PostingInput
	nextSaleID int64
}

func newMemState() *memState {
	return &memState{
		sales:     make(map[int64]Sale),
		sequences: make(map[int64]int64),
		stock:     make(map[stock.Key]decimal.Decimal),
		clients:   make(map[int64]receivable.Client),
		audits:    make(map[int64][]auditlog.Entry),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.sales {
		v.Lines = append([]SaleLine(nil), v.Lines...)
		out.sales[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.stock {
		out.stock[k] = v
	}
	for k, v := range s.clients {
		out.clients[k] = v
	}
	for k, v := range s.audits {
		out.audits[k] = append([]auditlog.Entry(nil), v...)
	}
	out.journal = append([]ledger.PostingInput(nil), s.journal...)
	out.nextSaleID = s.nextSaleID
	return out
}

// memRepo implements RepositoryPort over memState with optional failure
// injection per port. The mutex stands in for serializable isolation when
// tests issue concurrent scopes.
type memRepo struct {
	mu          sync.Mutex
	state       *memState
	failJournal error
	failAudit   error
}

func (r *memRepo) WithTx(_ context.Context, fn func(context.Context, TxScope) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	scope := TxScope{
		Sales:      &memSaleRepo{state: work},
		Sequences:  &memSequences{state: work},
		Stock:      &memStock{state: work},
		Receivable: &memReceivable{state: work},
		Audit:      &memAudit{state: work, fail: r.failAudit},
		Journal:    &memJournal{state: work, fail: r.failJournal},
	}
	if err := fn(context.Background(), scope); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memRepo) GetSale(_ context.Context, tenantID, saleID int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.state.sales[saleID]
	if !ok || sale.TenantID != tenantID {
		return Sale{}, shared.ErrNotFound
	}
	return sale, nil
}

type memSaleRepo struct{ state *memState }

func (m *memSaleRepo) InsertSale(_ context.Context, sale Sale) (Sale, error) {
	m.state.nextSaleID++
	sale.ID = m.state.nextSaleID
	sale.CreatedAt = time.Now()
	sale.UpdatedAt = sale.CreatedAt
	m.state.sales[sale.ID] = sale
	return sale, nil
}

func (m *memSaleRepo) InsertLines(_ context.Context, saleID int64, lines []SaleLine) error {
	sale := m.state.sales[saleID]
	for i, line := range lines {
		line.ID = int64(i + 1)
		line.SaleID = saleID
		sale.Lines = append(sale.Lines, line)
	}
	m.state.sales[saleID] = sale
	return nil
}

func (m *memSaleRepo) GetSaleForUpdate(_ context.Context, tenantID, saleID int64) (Sale, error) {
	sale, ok := m.state.sales[saleID]
	if !ok || sale.TenantID != tenantID {
		return Sale{}, shared.ErrNotFound
	}
	return sale, nil
}

func (m *memSaleRepo) UpdateStatus(_ context.Context, tenantID, saleID int64, status SaleStatus) error {
	sale, ok := m.state.sales[saleID]
	if !ok || sale.TenantID != tenantID {
		return shared.ErrNotFound
	}
	sale.Status = status
	m.state.sales[saleID] = sale
	return nil
}

type memSequences struct{ state *memState }

func (m *memSequences) Next(_ context.Context, tenantID int64) (int64, error) {
	m.state.sequences[tenantID]++
	return m.state.sequences[tenantID], nil
}

type memStock struct{ state *memState }

func (m *memStock) Position(_ context.Context, key stock.Key) (stock.Position, error) {
	qty, ok := m.state.stock[key]
	if !ok {
		return stock.Position{}, stock.ErrPositionNotFound
	}
	return stock.Position{TenantID: key.TenantID, ItemID: key.ItemID, LocationID: key.LocationID, Qty: qty}, nil
}

func (m *memStock) Adjust(_ context.Context, key stock.Key, delta decimal.Decimal) (decimal.Decimal, error) {
	qty, ok := m.state.stock[key]
	if !ok {
		return decimal.Zero, stock.ErrPositionNotFound
	}
	qty = qty.Add(delta)
	m.state.stock[key] = qty
	return qty, nil
}

type memReceivable struct{ state *memState }

func (m *memReceivable) GetClientForUpdate(_ context.Context, tenantID, clientID int64) (receivable.Client, error) {
	client, ok := m.state.clients[clientID]
	if !ok || client.TenantID != tenantID {
		return receivable.Client{}, receivable.ErrClientNotFound
	}
	return client, nil
}

func (m *memReceivable) AdjustBalances(_ context.Context, _ int64, clientID int64, purchasesDelta, receivableDelta decimal.Decimal) error {
	client := m.state.clients[clientID]
	client.TotalPurchases = client.TotalPurchases.Add(purchasesDelta)
	client.Receivable = client.Receivable.Add(receivableDelta)
	m.state.clients[clientID] = client
	return nil
}

type memAudit struct {
	state *memState
	fail  error
}

func (m *memAudit) Append(_ context.Context, entry auditlog.Entry) error {
	if m.fail != nil {
		return m.fail
	}
	m.state.audits[entry.SaleID] = append(m.state.audits[entry.SaleID], entry)
	return nil
}

func (m *memAudit) DeleteBySale(_ context.Context, _ int64, saleID int64) error {
	delete(m.state.audits, saleID)
	return nil
}

type memJournal struct {
	state *memState
	fail  error
}

func (m *memJournal) Post(_ context.Context, in ledger.PostingInput) (ledger.Entry, error) {
	if m.fail != nil {
		return ledger.Entry{}, m.fail
	}
	if err := in.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	m.state.journal = append(m.state.journal, in)
	return ledger.Entry{ID: int64(len(m.state.journal)), TenantID: in.TenantID, SaleID: in.SaleID}, nil
}

type fakeMetrics struct {
	created   int
	cancelled int
	conflicts int
}

func (f *fakeMetrics) SaleCreated()   { f.created++ }
func (f *fakeMetrics) SaleCancelled() { f.cancelled++ }
func (f *fakeMetrics) TxConflict()    { f.conflicts++ }

const (
	testTenant = int64(7)
	testClient = int64(21)
	testActor  = int64(3)
	itemX      = int64(100)
	locW1      = int64(200)
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	repo    *memRepo
	svc     *Service
	metrics *fakeMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := newMemState()
	state.clients[testClient] = receivable.Client{ID: testClient, TenantID: testTenant, Name: "Acme"}
	state.stock[stock.Key{TenantID: testTenant, ItemID: itemX, LocationID: locW1}] = dec("50")

	repo := &memRepo{state: state}
	metrics := &fakeMetrics{}
	svc := NewService(repo, metrics)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) })
	return &fixture{repo: repo, svc: svc, metrics: metrics}
}

func (f *fixture) stockQty(item, loc int64) decimal.Decimal {
	return f.repo.state.stock[stock.Key{TenantID: testTenant, ItemID: item, LocationID: loc}]
}

func (f *fixture) client() receivable.Client {
	return f.repo.state.clients[testClient]
}

func saleInput(paymentType PaymentType, lines ...CreateSaleLine) CreateSaleInput {
	return CreateSaleInput{
		TenantID:      testTenant,
		ClientID:      testClient,
		PaymentType:   paymentType,
		PaymentMethod: "counter",
		StaffName:     "Dana",
		Lines:         lines,
	}
}

func oneLine(qty, price string) CreateSaleLine {
	return CreateSaleLine{ItemID: itemX, LocationID: locW1, Qty: dec(qty), UnitPrice: dec(price)}
}

func TestCreateSaleCash(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("10", "100")), testActor)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.SequenceNumber)
	require.True(t, res.TotalAmount.Equal(dec("1000")))

	require.True(t, f.stockQty(itemX, locW1).Equal(dec("40")))

	client := f.client()
	require.True(t, client.Receivable.IsZero(), "cash sale must not touch receivable")
	require.True(t, client.TotalPurchases.Equal(dec("1000")))

	sale := f.repo.state.sales[res.SaleID]
	require.Equal(t, SaleStatusCompleted, sale.Status)
	require.Equal(t, PaymentStatusPaid, sale.PaymentStatus)
	require.Len(t, sale.Lines, 1)

	require.Len(t, f.repo.state.audits[res.SaleID], 1)

	require.Len(t, f.repo.state.journal, 1)
	posting := f.repo.state.journal[0]
	require.Equal(t, ledger.AccountCash, posting.Lines[0].AccountCode)
	require.True(t, posting.Lines[0].Debit.Equal(dec("1000")))
	require.Equal(t, ledger.AccountSales, posting.Lines[1].AccountCode)
	require.True(t, posting.Lines[1].Credit.Equal(dec("1000")))

	require.Equal(t, 1, f.metrics.created)
}

func TestCreateSaleCredit(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCredit, oneLine("10", "100")), testActor)
	require.NoError(t, err)

	require.True(t, f.stockQty(itemX, locW1).Equal(dec("40")))

	client := f.client()
	require.True(t, client.Receivable.Equal(dec("1000")))
	require.True(t, client.TotalPurchases.Equal(dec("1000")))

	sale := f.repo.state.sales[res.SaleID]
	require.Equal(t, PaymentStatusUnpaid, sale.PaymentStatus)

	posting := f.repo.state.journal[0]
	require.Equal(t, ledger.AccountReceivable, posting.Lines[0].AccountCode)
	require.True(t, posting.Lines[0].Debit.Equal(dec("1000")))
}

func TestCancelCreditSaleRestoresStockAndBalances(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCredit, oneLine("10", "100")), testActor)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelSale(context.Background(), testTenant, res.SaleID))

	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))
	client := f.client()
	require.True(t, client.Receivable.IsZero())
	require.True(t, client.TotalPurchases.IsZero())

	sale := f.repo.state.sales[res.SaleID]
	require.Equal(t, SaleStatusCancelled, sale.Status)
	require.Empty(t, f.repo.state.audits[res.SaleID], "audit entry must be removed on cancel")
	require.Equal(t, 1, f.metrics.cancelled)
}

func TestCancelLeavesJournalEntryStanding(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCredit, oneLine("4", "25")), testActor)
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelSale(context.Background(), testTenant, res.SaleID))

	// Cancellation compensates stock and balances but posts no reversing
	// journal entry; the original posting stays as a historical record.
	require.Len(t, f.repo.state.journal, 1)
	require.Equal(t, res.SaleID, f.repo.state.journal[0].SaleID)
}

func TestCancelCashSaleSkipsBalanceReversal(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("10", "100")), testActor)
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelSale(context.Background(), testTenant, res.SaleID))

	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))
	// Balance reversal applies to credit sales only; a cancelled cash sale
	// keeps its cumulative purchase total.
	client := f.client()
	require.True(t, client.TotalPurchases.Equal(dec("1000")))
	require.True(t, client.Receivable.IsZero())
}

func TestCancelTwiceFailsAlreadyCancelled(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCredit, oneLine("10", "100")), testActor)
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelSale(context.Background(), testTenant, res.SaleID))

	err = f.svc.CancelSale(context.Background(), testTenant, res.SaleID)
	require.ErrorIs(t, err, shared.ErrAlreadyCancelled)

	// No double reversal.
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))
	require.True(t, f.client().Receivable.IsZero())
	require.Equal(t, 1, f.metrics.cancelled)
}

func TestCancelUnknownSale(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CancelSale(context.Background(), testTenant, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateSaleAtomicOnJournalFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.failJournal = errors.New("journal store down")

	_, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCredit, oneLine("10", "100")), testActor)
	require.Error(t, err)

	// The failed step is the last one, yet nothing earlier is observable.
	require.Empty(t, f.repo.state.sales)
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))
	require.True(t, f.client().TotalPurchases.IsZero())
	require.Empty(t, f.repo.state.audits)
	require.Zero(t, f.repo.state.sequences[testTenant], "sequence must not be consumed")
	require.Zero(t, f.metrics.created)
}

func TestCreateSaleAtomicOnAuditFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.failAudit = errors.New("audit store down")

	_, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("2", "5")), testActor)
	require.Error(t, err)
	require.Empty(t, f.repo.state.sales)
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))
	require.Empty(t, f.repo.state.journal)
}

func TestCreateSaleClientNotFound(t *testing.T) {
	f := newFixture(t)

	in := saleInput(PaymentTypeCash, oneLine("1", "10"))
	in.ClientID = 999
	_, err := f.svc.CreateSale(context.Background(), in, testActor)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))
}

func TestCreateSaleUnknownItemNoPartialDecrement(t *testing.T) {
	f := newFixture(t)

	in := saleInput(PaymentTypeCash,
		oneLine("5", "10"),
		CreateSaleLine{ItemID: 555, LocationID: locW1, Qty: dec("1"), UnitPrice: dec("10")},
	)
	_, err := f.svc.CreateSale(context.Background(), in, testActor)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Known item untouched even though it preceded the missing one.
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("50")))
	require.Empty(t, f.repo.state.sales)
}

func TestCreateSaleOversellGoesNegative(t *testing.T) {
	f := newFixture(t)
	f.repo.state.stock[stock.Key{TenantID: testTenant, ItemID: itemX, LocationID: locW1}] = dec("5")

	_, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("20", "3")), testActor)
	require.NoError(t, err)
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("-15")))
}

func TestSequenceNumbersAreDistinctAndIncreasing(t *testing.T) {
	f := newFixture(t)

	var seqs []int64
	for i := 0; i < 3; i++ {
		res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("1", "10")), testActor)
		require.NoError(t, err)
		seqs = append(seqs, res.SequenceNumber)
	}
	require.Equal(t, []int64{1, 2, 3}, seqs)
}

func TestSequenceNumbersDistinctUnderConcurrentCreates(t *testing.T) {
	f := newFixture(t)

	const n = 16
	seqs := make(chan int64, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("1", "10")), testActor)
			if err != nil {
				errs <- err
				return
			}
			seqs <- res.SequenceNumber
		}()
	}
	wg.Wait()
	close(seqs)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[int64]bool, n)
	for seq := range seqs {
		require.False(t, seen[seq], "sequence number %d issued twice", seq)
		require.GreaterOrEqual(t, seq, int64(1))
		require.LessOrEqual(t, seq, int64(n))
		seen[seq] = true
	}
	require.Len(t, seen, n)
}

func TestCreateSaleZeroTotalPostsNoJournalEntry(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("5", "0")), testActor)
	require.NoError(t, err)
	require.True(t, res.TotalAmount.IsZero())
	require.Equal(t, int64(1), res.SequenceNumber)

	// Stock, the sequence and the sale row still move; the ledger does not.
	require.True(t, f.stockQty(itemX, locW1).Equal(dec("45")))
	require.Equal(t, SaleStatusCompleted, f.repo.state.sales[res.SaleID].Status)
	require.Empty(t, f.repo.state.journal)
	require.True(t, f.client().Receivable.IsZero())
	require.True(t, f.client().TotalPurchases.IsZero())
}

func TestJournalEntriesAlwaysBalanced(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("3", "7.50")), testActor)
	require.NoError(t, err)
	_, err = f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCredit, oneLine("2", "19.99")), testActor)
	require.NoError(t, err)

	for _, posting := range f.repo.state.journal {
		debits := decimal.Zero
		credits := decimal.Zero
		for _, line := range posting.Lines {
			debits = debits.Add(line.Debit)
			credits = credits.Add(line.Credit)
		}
		require.True(t, debits.Equal(credits), "entry for sale %d is imbalanced", posting.SaleID)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		in   CreateSaleInput
	}{
		{"no lines", saleInput(PaymentTypeCash)},
		{"zero quantity", saleInput(PaymentTypeCash, oneLine("0", "10"))},
		{"negative quantity", saleInput(PaymentTypeCash, oneLine("-2", "10"))},
		{"negative price", saleInput(PaymentTypeCash, oneLine("1", "-10"))},
		{"unknown payment type", saleInput(PaymentType("BARTER"), oneLine("1", "10"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSale(context.Background(), tc.in, testActor)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, f.repo.state.sales)
}

func TestCreateSaleMultiLineTotals(t *testing.T) {
	f := newFixture(t)
	itemY, locW2 := int64(101), int64(201)
	f.repo.state.stock[stock.Key{TenantID: testTenant, ItemID: itemY, LocationID: locW2}] = dec("8")

	in := saleInput(PaymentTypeCredit,
		oneLine("10", "100"),
		CreateSaleLine{ItemID: itemY, LocationID: locW2, Qty: dec("3"), UnitPrice: dec("40")},
	)
	res, err := f.svc.CreateSale(context.Background(), in, testActor)
	require.NoError(t, err)
	require.True(t, res.TotalAmount.Equal(dec("1120")))
	require.True(t, f.stockQty(itemY, locW2).Equal(dec("5")))
	require.True(t, f.client().Receivable.Equal(dec("1120")))

	entries := f.repo.state.audits[res.SaleID]
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Lines, 2)
}

func TestConcurrencyConflictSurfacesWhole(t *testing.T) {
	f := newFixture(t)
	f.repo.failJournal = shared.ErrConcurrencyConflict

	_, err := f.svc.CreateSale(context.Background(), saleInput(PaymentTypeCash, oneLine("1", "10")), testActor)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.Equal(t, 1, f.metrics.conflicts)
	require.Empty(t, f.repo.state.sales)
}
