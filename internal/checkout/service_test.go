package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pdv/internal/customer"
	"github.com/noah-isme/backend-pdv/internal/events"
	"github.com/noah-isme/backend-pdv/internal/payment"
)

type memRecorder struct {
	mu          sync.Mutex
	sales       map[string]StoredSale
	keys        map[string]string
	adjustments map[string]Adjustment
	events      []events.Event
	recordErr   error
}

func newMemRecorder() *memRecorder {
	return &memRecorder{sales: map[string]StoredSale{}, keys: map[string]string{}, adjustments: map[string]Adjustment{}}
}

func (m *memRecorder) RecordSale(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if _, ok := m.keys[rec.IdempotencyKey]; ok && rec.IdempotencyKey != "" {
		return ErrDuplicateSale
	}
	stored := StoredSale{ID: rec.SaleID, Sale: rec.Sale, CreatedAt: fixedAt}
	if rec.Adjustment != nil {
		m.adjustments[rec.Adjustment.ID] = *rec.Adjustment
	}
	m.sales[rec.SaleID] = stored
	if rec.IdempotencyKey != "" {
		m.keys[rec.IdempotencyKey] = rec.SaleID
	}
	m.events = append(m.events, rec.Events...)
	return nil
}

func (m *memRecorder) withAdjustment(s StoredSale) StoredSale {
	for _, a := range m.adjustments {
		if a.SaleID == s.ID {
			adj := a
			s.Adjustment = &adj
		}
	}
	return s
}

func (m *memRecorder) SaleByIdempotencyKey(_ context.Context, _ string, key string) (StoredSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	if !ok {
		return StoredSale{}, ErrSaleNotFound
	}
	return m.withAdjustment(m.sales[id]), nil
}

func (m *memRecorder) Sale(_ context.Context, _ string, id string) (StoredSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return StoredSale{}, ErrSaleNotFound
	}
	return m.withAdjustment(s), nil
}

func (m *memRecorder) ReverseSale(_ context.Context, rev Reversal) (StoredSale, *Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[rev.SaleID]
	if !ok {
		return StoredSale{}, nil, ErrSaleNotFound
	}
	if s.Reversed {
		return StoredSale{}, nil, ErrAlreadyReversed
	}
	s.Reversed = true
	s.ReversedAt = &rev.At
	m.sales[s.ID] = s
	m.events = append(m.events, rev.Events...)
	var comp *Adjustment
	for id, a := range m.adjustments {
		if a.SaleID != s.ID {
			continue
		}
		switch a.State {
		case CreditPending:
			a.State = CreditFailed
			a.Reason = "sale reversed"
			m.adjustments[id] = a
		case CreditApplied:
			c := Adjustment{ID: rev.CompensationID, SaleID: s.ID, BranchID: a.BranchID, CustomerID: a.CustomerID, Delta: a.Delta.Neg(), State: CreditPending}
			m.adjustments[c.ID] = c
			comp = &c
		}
	}
	return m.withAdjustment(s), comp, nil
}

func (m *memRecorder) Adjustment(_ context.Context, id string) (Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.adjustments[id]
	if !ok {
		return Adjustment{}, ErrAdjustmentNotFound
	}
	return a, nil
}

func (m *memRecorder) RecordAdjustmentAttempt(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.adjustments[id]
	a.Attempts++
	a.Reason = reason
	m.adjustments[id] = a
	return nil
}

func (m *memRecorder) PendingAdjustments(_ context.Context, before time.Time, limit int) ([]Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Adjustment
	for _, a := range m.adjustments {
		if a.State == CreditPending && a.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRecorder) setState(id string, state CreditState, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.adjustments[id]
	a.State = state
	a.Reason = reason
	m.adjustments[id] = a
}

// stubLedger settles adjustments on the recorder the way the database does.
type stubLedger struct {
	rec   *memRecorder
	err   error
	calls int
}

func (l *stubLedger) Apply(_ context.Context, adj customer.Adjustment) error {
	l.calls++
	switch {
	case l.err == nil:
		l.rec.setState(adj.ID, CreditApplied, "")
	case errors.Is(l.err, customer.ErrCreditBalanceExceeded):
		l.rec.setState(adj.ID, CreditFailed, l.err.Error())
	}
	return l.err
}

type stubRetry struct {
	queued []string
	err    error
}

func (s *stubRetry) EnqueueCreditRetry(_ context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	s.queued = append(s.queued, id)
	return nil
}

func newService(rec *memRecorder, ledger *stubLedger, retry *stubRetry) *Service {
	return &Service{Sales: rec, Credit: ledger, Retry: retry, Logger: zerolog.Nop(), Now: func() time.Time { return fixedAt }}
}

func creditSale(t *testing.T) FinalizedSale {
	t.Helper()
	in := baseInput()
	in.Discount = dec("10")
	in.Customer = &CustomerSnapshot{ID: "c1", AvailableCredit: dec("200")}
	in.StoreCredit = dec("20")
	sale, err := Finalize(in)
	require.NoError(t, err)
	return sale
}

func TestSubmitWithoutCredit(t *testing.T) {
	rec := newMemRecorder()
	ledger := &stubLedger{rec: rec}
	svc := newService(rec, ledger, &stubRetry{})
	sale, err := Finalize(baseInput())
	require.NoError(t, err)

	receipt, err := svc.Submit(context.Background(), sale, "k1")
	require.NoError(t, err)
	require.NotEmpty(t, receipt.SaleID)
	require.Equal(t, CreditNone, receipt.Credit.State)
	require.Zero(t, ledger.calls)
	require.Len(t, rec.events, 1)
	require.Equal(t, events.TopicSaleRecorded, rec.events[0].Topic)
	require.Equal(t, receipt.SaleID, rec.events[0].Key)
}

func TestSubmitCreditApplied(t *testing.T) {
	rec := newMemRecorder()
	svc := newService(rec, &stubLedger{rec: rec}, &stubRetry{})

	receipt, err := svc.Submit(context.Background(), creditSale(t), "k1")
	require.NoError(t, err)
	require.Equal(t, CreditApplied, receipt.Credit.State)
	require.True(t, receipt.Credit.Delta.Equal(dec("-20")))
}

func TestSubmitCreditPendingQueuesRetry(t *testing.T) {
	rec := newMemRecorder()
	retry := &stubRetry{}
	svc := newService(rec, &stubLedger{rec: rec, err: errors.New("redis timeout")}, retry)

	receipt, err := svc.Submit(context.Background(), creditSale(t), "k1")
	require.NoError(t, err, "the sale stays recorded when phase two fails")
	require.Equal(t, CreditPending, receipt.Credit.State)
	require.Equal(t, []string{receipt.Credit.AdjustmentID}, retry.queued)
	adj, err := rec.Adjustment(context.Background(), receipt.Credit.AdjustmentID)
	require.NoError(t, err)
	require.Equal(t, 1, adj.Attempts)
	require.Equal(t, CreditPending, adj.State)
}

func TestSubmitCreditFailedIsTerminal(t *testing.T) {
	rec := newMemRecorder()
	retry := &stubRetry{}
	svc := newService(rec, &stubLedger{rec: rec, err: customer.ErrCreditBalanceExceeded}, retry)

	receipt, err := svc.Submit(context.Background(), creditSale(t), "k1")
	require.NoError(t, err)
	require.Equal(t, CreditFailed, receipt.Credit.State)
	require.Empty(t, retry.queued)
}

func TestSubmitIdempotent(t *testing.T) {
	rec := newMemRecorder()
	ledger := &stubLedger{rec: rec}
	svc := newService(rec, ledger, &stubRetry{})
	sale := creditSale(t)

	first, err := svc.Submit(context.Background(), sale, "same")
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), sale, "same")
	require.NoError(t, err)
	require.Equal(t, first.SaleID, second.SaleID)
	require.True(t, second.Replayed)
	require.Equal(t, CreditApplied, second.Credit.State)
	require.Equal(t, 1, ledger.calls)
	require.Len(t, rec.sales, 1)
}

func TestSubmitPropagatesStockFailure(t *testing.T) {
	rec := newMemRecorder()
	rec.recordErr = ErrInsufficientStock
	svc := newService(rec, &stubLedger{rec: rec}, &stubRetry{})
	sale, err := Finalize(baseInput())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), sale, "k1")
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, rec.sales)
}

func TestRetryCreditSettlesPending(t *testing.T) {
	rec := newMemRecorder()
	ledger := &stubLedger{rec: rec, err: errors.New("db down")}
	svc := newService(rec, ledger, &stubRetry{})
	receipt, err := svc.Submit(context.Background(), creditSale(t), "k1")
	require.NoError(t, err)
	id := receipt.Credit.AdjustmentID

	require.Error(t, svc.RetryCredit(context.Background(), id))

	ledger.err = nil
	require.NoError(t, svc.RetryCredit(context.Background(), id))
	adj, _ := rec.Adjustment(context.Background(), id)
	require.Equal(t, CreditApplied, adj.State)

	// applied adjustments are not touched again
	calls := ledger.calls
	require.NoError(t, svc.RetryCredit(context.Background(), id))
	require.Equal(t, calls, ledger.calls)
}

func TestSweepPendingQueuesStaleAdjustments(t *testing.T) {
	rec := newMemRecorder()
	retry := &stubRetry{}
	svc := newService(rec, &stubLedger{rec: rec}, retry)
	rec.adjustments["old"] = Adjustment{ID: "old", State: CreditPending, CreatedAt: fixedAt.Add(-time.Hour)}
	rec.adjustments["fresh"] = Adjustment{ID: "fresh", State: CreditPending, CreatedAt: fixedAt}
	rec.adjustments["done"] = Adjustment{ID: "done", State: CreditApplied, CreatedAt: fixedAt.Add(-time.Hour)}

	n, err := svc.SweepPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"old"}, retry.queued)
}

func TestReverseCompensatesAppliedCredit(t *testing.T) {
	rec := newMemRecorder()
	svc := newService(rec, &stubLedger{rec: rec}, &stubRetry{})
	receipt, err := svc.Submit(context.Background(), creditSale(t), "k1")
	require.NoError(t, err)

	_, _, err = svc.Reverse(context.Background(), seller, "b1", receipt.SaleID)
	require.Error(t, err, "sellers may not reverse")

	stored, credit, err := svc.Reverse(context.Background(), manager, "b1", receipt.SaleID)
	require.NoError(t, err)
	require.True(t, stored.Reversed)
	require.Equal(t, CreditApplied, credit.State)
	require.True(t, credit.Delta.Equal(dec("20")))
	require.Equal(t, events.TopicSaleReversed, rec.events[len(rec.events)-1].Topic)

	_, _, err = svc.Reverse(context.Background(), manager, "b1", receipt.SaleID)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestPrepareRejectsUnknownMethod(t *testing.T) {
	svc := newService(newMemRecorder(), nil, nil)
	_, err := svc.Prepare(context.Background(), seller, "b1", scenarioLines(), Request{Payment: payment.Form{Method: "cheque"}})
	require.ErrorIs(t, err, payment.ErrUnknownMethod)
	require.Equal(t, "VALIDATION_ERROR", errorCode(err))
}

type stubReports struct{ invalidated []string }

func (s *stubReports) Invalidate(_ context.Context, branchID string) error {
	s.invalidated = append(s.invalidated, branchID)
	return errors.New("redis down")
}

func TestSaleChangesInvalidateReports(t *testing.T) {
	rec := newMemRecorder()
	reports := &stubReports{}
	svc := newService(rec, &stubLedger{rec: rec}, &stubRetry{})
	svc.Reports = reports

	receipt, err := svc.Submit(context.Background(), creditSale(t), "k1")
	require.NoError(t, err, "cache errors never fail the sale")
	require.Equal(t, []string{"b1"}, reports.invalidated)

	_, err = svc.Submit(context.Background(), creditSale(t), "k1")
	require.NoError(t, err)
	require.Len(t, reports.invalidated, 1, "replays change nothing")

	_, _, err = svc.Reverse(context.Background(), manager, "b1", receipt.SaleID)
	require.NoError(t, err)
	require.Equal(t, []string{"b1", "b1"}, reports.invalidated)

	rec.recordErr = ErrInsufficientStock
	_, err = svc.Submit(context.Background(), creditSale(t), "k2")
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Len(t, reports.invalidated, 2)
}

func TestPrepareChecksChosenSeller(t *testing.T) {
	svc := newService(newMemRecorder(), nil, nil)
	req := Request{SellerID: "not-a-user-id", Payment: payment.Form{Method: "pix"}}

	_, err := svc.Prepare(context.Background(), manager, "b1", scenarioLines(), req)
	require.Error(t, err, "a supervisor's choice needs a seller lookup")

	svc.Sellers = branchSellers()
	_, err = svc.Prepare(context.Background(), manager, "b1", scenarioLines(), req)
	require.ErrorIs(t, err, ErrUnknownSeller)
	require.Equal(t, "INVALID_SELLER", errorCode(err))

	req.SellerID = "seller-b2"
	_, err = svc.Prepare(context.Background(), manager, "b1", scenarioLines(), req)
	require.ErrorIs(t, err, ErrUnknownSeller)

	req.SellerID = "seller-1"
	sale, err := svc.Prepare(context.Background(), manager, "b1", scenarioLines(), req)
	require.NoError(t, err)
	require.Equal(t, "seller-1", sale.SellerID)

	// a seller's own request ignores the field and needs no lookup
	svc.Sellers = nil
	req.SellerID = "seller-b2"
	sale, err = svc.Prepare(context.Background(), seller, "b1", scenarioLines(), req)
	require.NoError(t, err)
	require.Equal(t, "seller-1", sale.SellerID)
}
