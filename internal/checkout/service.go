package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/customer"
	"github.com/noah-isme/backend-pdv/internal/events"
	"github.com/noah-isme/backend-pdv/internal/obs"
	"github.com/noah-isme/backend-pdv/internal/payment"
)

// CreditState is the outcome of the second phase of a sale.
type CreditState string

const (
	CreditNone    CreditState = "none"
	CreditPending CreditState = "pending"
	CreditApplied CreditState = "applied"
	CreditFailed  CreditState = "failed"
)

// Adjustment is a persisted store credit change owed to a customer.
type Adjustment struct {
	ID         string          `json:"id"`
	SaleID     string          `json:"saleId"`
	BranchID   string          `json:"branchId"`
	CustomerID string          `json:"customerId"`
	Delta      decimal.Decimal `json:"delta"`
	State      CreditState     `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func (a Adjustment) ledgerEntry() customer.Adjustment {
	return customer.Adjustment{ID: a.ID, BranchID: a.BranchID, CustomerID: a.CustomerID, SaleID: a.SaleID, Delta: a.Delta}
}

// Record is everything phase one writes in a single transaction.
type Record struct {
	SaleID         string
	IdempotencyKey string
	Sale           FinalizedSale
	Adjustment     *Adjustment
	Events         []events.Event
}

// StoredSale is a recorded sale read back from storage.
type StoredSale struct {
	ID         string        `json:"id"`
	Sale       FinalizedSale `json:"sale"`
	Reversed   bool          `json:"reversed"`
	ReversedAt *time.Time    `json:"reversedAt,omitempty"`
	Adjustment *Adjustment   `json:"adjustment,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Reversal describes a sale being undone.
type Reversal struct {
	BranchID string
	SaleID   string
	ActorID  string
	At       time.Time
	// CompensationID is used for the counter-adjustment when the sale's credit
	// change was already applied.
	CompensationID string
	Events         []events.Event
}

// SaleRecorder persists sales and their credit adjustments.
type SaleRecorder interface {
	// RecordSale writes rec atomically. It returns ErrDuplicateSale when the
	// idempotency key was used before, ErrInsufficientStock or
	// ErrCreditLimitExceeded when the sale cannot be honoured.
	RecordSale(ctx context.Context, rec Record) error
	SaleByIdempotencyKey(ctx context.Context, branchID, key string) (StoredSale, error)
	Sale(ctx context.Context, branchID, id string) (StoredSale, error)
	// ReverseSale marks the sale reversed, restores stock and the on-account
	// balance, and either cancels the pending adjustment or inserts a pending
	// compensation for an applied one, which it returns.
	ReverseSale(ctx context.Context, rev Reversal) (StoredSale, *Adjustment, error)
	Adjustment(ctx context.Context, id string) (Adjustment, error)
	RecordAdjustmentAttempt(ctx context.Context, id, reason string) error
	PendingAdjustments(ctx context.Context, createdBefore time.Time, limit int) ([]Adjustment, error)
}

// CreditApplier runs the second phase against the customer's balance.
type CreditApplier interface {
	Apply(ctx context.Context, adj customer.Adjustment) error
}

// RetryScheduler queues a later attempt of a pending adjustment.
type RetryScheduler interface {
	EnqueueCreditRetry(ctx context.Context, adjustmentID string) error
}

// SellerLookup reads the operator a supervisor credits a sale to.
type SellerLookup interface {
	UserByID(ctx context.Context, id string) (auth.Account, error)
}

// ReportCache is told when a branch's sales change.
type ReportCache interface {
	Invalidate(ctx context.Context, branchID string) error
}

// CustomerLookup reads the customer snapshot used to finalize a sale.
type CustomerLookup interface {
	Customer(ctx context.Context, branchID, id string) (customer.Customer, error)
}

// CreditOutcome reports the second phase to the till.
type CreditOutcome struct {
	State        CreditState     `json:"state"`
	Delta        decimal.Decimal `json:"delta"`
	AdjustmentID string          `json:"adjustmentId,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// Receipt is the result of submitting a sale.
type Receipt struct {
	SaleID   string        `json:"saleId"`
	Sale     FinalizedSale `json:"sale"`
	Credit   CreditOutcome `json:"credit"`
	Replayed bool          `json:"replayed,omitempty"`
}

// Request is what the till sends to price or close a cart.
type Request struct {
	SellerID    string          `json:"sellerId" validate:"omitempty,max=64"`
	CustomerID  string          `json:"customerId" validate:"omitempty,max=64"`
	Discount    decimal.Decimal `json:"discount"`
	StoreCredit decimal.Decimal `json:"storeCredit"`
	Payment     payment.Form    `json:"payment"`
	Flags       Flags           `json:"flags"`
	SoldAt      *time.Time      `json:"soldAt"`
}

// Service closes sales.
type Service struct {
	Sales      SaleRecorder
	Customers  CustomerLookup
	Sellers    SellerLookup
	Reports    ReportCache
	Credit     CreditApplier
	Retry      RetryScheduler
	StaleAfter time.Duration
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Sales == nil {
		return errors.New("checkout service not configured")
	}
	return nil
}

// Prepare resolves the customer and finalizes lines for p at branchID.
func (s *Service) Prepare(ctx context.Context, p common.Principal, branchID string, lines []cart.Line, req Request) (FinalizedSale, error) {
	alloc, err := req.Payment.Allocation()
	if err != nil {
		return FinalizedSale{}, err
	}
	in := Input{
		Lines:           lines,
		BranchID:        branchID,
		Operator:        p,
		SellerID:        req.SellerID,
		Discount:        req.Discount,
		StoreCredit:     req.StoreCredit,
		Allocation:      alloc,
		Flags:           req.Flags,
		RequestedSoldAt: req.SoldAt,
		Now:             s.now(),
	}
	if p.Role.Supervises() && req.SellerID != "" {
		if err := s.checkSeller(ctx, branchID, req.SellerID); err != nil {
			observeFailure(err)
			return FinalizedSale{}, err
		}
	}
	if req.CustomerID != "" {
		if s == nil || s.Customers == nil {
			return FinalizedSale{}, errors.New("customer lookup not configured")
		}
		c, err := s.Customers.Customer(ctx, branchID, req.CustomerID)
		if err != nil {
			return FinalizedSale{}, err
		}
		in.Customer = &CustomerSnapshot{ID: c.ID, AvailableCredit: c.AvailableCredit()}
	}
	sale, err := Finalize(in)
	if err != nil {
		observeFailure(err)
		return FinalizedSale{}, err
	}
	return sale, nil
}

// checkSeller accepts only active sellers registered at branchID.
func (s *Service) checkSeller(ctx context.Context, branchID, id string) error {
	if s == nil || s.Sellers == nil {
		return errors.New("seller lookup not configured")
	}
	acct, err := s.Sellers.UserByID(ctx, id)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return ErrUnknownSeller
	case err != nil:
		return err
	}
	if !acct.Active || acct.Role != common.RoleSeller || acct.BranchID != branchID {
		return ErrUnknownSeller
	}
	return nil
}

// Submit records sale and then applies its credit change. The sale is
// committed even when the second phase fails; the receipt tells which state
// the adjustment is in.
func (s *Service) Submit(ctx context.Context, sale FinalizedSale, idempotencyKey string) (Receipt, error) {
	if err := s.ready(); err != nil {
		return Receipt{}, err
	}
	if idempotencyKey != "" {
		stored, err := s.Sales.SaleByIdempotencyKey(ctx, sale.BranchID, idempotencyKey)
		switch {
		case err == nil:
			return receiptFor(stored, true), nil
		case !errors.Is(err, ErrSaleNotFound):
			return Receipt{}, err
		}
	}

	saleID := uuid.NewString()
	rec := Record{SaleID: saleID, IdempotencyKey: idempotencyKey, Sale: sale}
	if delta := sale.CreditDelta(); !delta.IsZero() && sale.CustomerID != "" {
		rec.Adjustment = &Adjustment{
			ID:         uuid.NewString(),
			SaleID:     saleID,
			BranchID:   sale.BranchID,
			CustomerID: sale.CustomerID,
			Delta:      delta,
			State:      CreditPending,
			CreatedAt:  s.now(),
		}
	}
	ev, err := events.New(events.TopicSaleRecorded, saleID, saleEvent(saleID, sale))
	if err != nil {
		return Receipt{}, err
	}
	rec.Events = append(rec.Events, ev)

	if err := s.Sales.RecordSale(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateSale) && idempotencyKey != "" {
			stored, lookupErr := s.Sales.SaleByIdempotencyKey(ctx, sale.BranchID, idempotencyKey)
			if lookupErr != nil {
				return Receipt{}, errors.Join(err, lookupErr)
			}
			return receiptFor(stored, true), nil
		}
		observeFailure(err)
		return Receipt{}, fmt.Errorf("record sale: %w", err)
	}
	if obs.SalesRecordedTotal != nil {
		obs.SalesRecordedTotal.WithLabelValues(string(sale.Allocation.Mode())).Inc()
	}
	s.invalidateReports(ctx, sale.BranchID)
	if obs.SaleAmount != nil {
		obs.SaleAmount.Observe(sale.Total.InexactFloat64())
	}

	receipt := Receipt{SaleID: saleID, Sale: sale, Credit: CreditOutcome{State: CreditNone, Delta: decimal.Zero}}
	if rec.Adjustment != nil {
		receipt.Credit = s.settle(ctx, *rec.Adjustment)
	}
	return receipt, nil
}

// settle runs phase two for adj and never fails the caller: a transient error
// leaves the adjustment pending with a retry queued.
func (s *Service) settle(ctx context.Context, adj Adjustment) CreditOutcome {
	out := CreditOutcome{State: CreditPending, Delta: adj.Delta, AdjustmentID: adj.ID}
	if s.Credit == nil {
		out.Reason = "credit ledger unavailable"
		s.scheduleRetry(ctx, adj.ID, out.Reason)
		return out
	}
	err := s.Credit.Apply(ctx, adj.ledgerEntry())
	switch {
	case err == nil:
		out.State = CreditApplied
	case errors.Is(err, customer.ErrCreditBalanceExceeded):
		out.State = CreditFailed
		out.Reason = err.Error()
	default:
		out.Reason = err.Error()
		s.scheduleRetry(ctx, adj.ID, out.Reason)
	}
	if obs.CreditAdjustmentsTotal != nil {
		obs.CreditAdjustmentsTotal.WithLabelValues(string(out.State)).Inc()
	}
	return out
}

func (s *Service) scheduleRetry(ctx context.Context, adjustmentID, reason string) {
	if err := s.Sales.RecordAdjustmentAttempt(ctx, adjustmentID, reason); err != nil {
		s.Logger.Warn().Err(err).Str("adjustment_id", adjustmentID).Msg("record credit attempt")
	}
	if s.Retry == nil {
		return
	}
	if err := s.Retry.EnqueueCreditRetry(ctx, adjustmentID); err != nil {
		// the sweep picks it up later
		s.Logger.Warn().Err(err).Str("adjustment_id", adjustmentID).Msg("enqueue credit retry")
	}
}

// RetryCredit applies a pending adjustment again. Settled adjustments are
// left alone. A returned error means the attempt should be retried.
func (s *Service) RetryCredit(ctx context.Context, adjustmentID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.Credit == nil {
		return errors.New("credit ledger not configured")
	}
	adj, err := s.Sales.Adjustment(ctx, adjustmentID)
	if err != nil {
		return err
	}
	if adj.State != CreditPending {
		return nil
	}
	err = s.Credit.Apply(ctx, adj.ledgerEntry())
	switch {
	case err == nil:
		s.countCredit(CreditApplied)
		return nil
	case errors.Is(err, customer.ErrCreditBalanceExceeded):
		s.countCredit(CreditFailed)
		return nil
	default:
		if recErr := s.Sales.RecordAdjustmentAttempt(ctx, adjustmentID, err.Error()); recErr != nil {
			return errors.Join(err, recErr)
		}
		return err
	}
}

func (s *Service) countCredit(state CreditState) {
	if obs.CreditAdjustmentsTotal != nil {
		obs.CreditAdjustmentsTotal.WithLabelValues(string(state)).Inc()
	}
}

// SweepPending re-queues adjustments that stayed pending longer than
// StaleAfter and returns how many were queued.
func (s *Service) SweepPending(ctx context.Context, limit int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if s.Retry == nil {
		return 0, errors.New("retry scheduler not configured")
	}
	stale := s.StaleAfter
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	if limit <= 0 {
		limit = 100
	}
	pending, err := s.Sales.PendingAdjustments(ctx, s.now().Add(-stale), limit)
	if err != nil {
		return 0, err
	}
	var (
		queued int
		joined error
	)
	for _, adj := range pending {
		if err := s.Retry.EnqueueCreditRetry(ctx, adj.ID); err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		queued++
	}
	return queued, joined
}

// Receipt returns the receipt of the sale recorded under idempotencyKey.
func (s *Service) Receipt(ctx context.Context, branchID, idempotencyKey string) (Receipt, error) {
	if err := s.ready(); err != nil {
		return Receipt{}, err
	}
	stored, err := s.Sales.SaleByIdempotencyKey(ctx, branchID, idempotencyKey)
	if err != nil {
		return Receipt{}, err
	}
	return receiptFor(stored, true), nil
}

// Sale returns a recorded sale.
func (s *Service) Sale(ctx context.Context, branchID, id string) (StoredSale, error) {
	if err := s.ready(); err != nil {
		return StoredSale{}, err
	}
	return s.Sales.Sale(ctx, branchID, id)
}

// Reverse undoes a sale. Only supervisors may reverse.
func (s *Service) Reverse(ctx context.Context, p common.Principal, branchID, saleID string) (StoredSale, CreditOutcome, error) {
	if err := s.ready(); err != nil {
		return StoredSale{}, CreditOutcome{}, err
	}
	if !p.Role.Supervises() {
		return StoredSale{}, CreditOutcome{}, common.Forbidden("only managers may reverse sales")
	}
	at := s.now()
	ev, err := events.New(events.TopicSaleReversed, saleID, map[string]any{
		"saleId":     saleID,
		"branchId":   branchID,
		"reversedBy": p.UserID,
		"reversedAt": at,
	})
	if err != nil {
		return StoredSale{}, CreditOutcome{}, err
	}
	stored, compensation, err := s.Sales.ReverseSale(ctx, Reversal{
		BranchID:       branchID,
		SaleID:         saleID,
		ActorID:        p.UserID,
		At:             at,
		CompensationID: uuid.NewString(),
		Events:         []events.Event{ev},
	})
	if err != nil {
		return StoredSale{}, CreditOutcome{}, err
	}
	if obs.SalesReversedTotal != nil {
		obs.SalesReversedTotal.Inc()
	}
	s.invalidateReports(ctx, branchID)
	outcome := CreditOutcome{State: CreditNone, Delta: decimal.Zero}
	if compensation != nil {
		outcome = s.settle(ctx, *compensation)
	}
	return stored, outcome, nil
}

// invalidateReports never fails the sale; stale figures expire with the cache TTL.
func (s *Service) invalidateReports(ctx context.Context, branchID string) {
	if s.Reports == nil {
		return
	}
	if err := s.Reports.Invalidate(ctx, branchID); err != nil {
		s.Logger.Warn().Err(err).Str("filial", branchID).Msg("report cache invalidation failed")
	}
}

func receiptFor(stored StoredSale, replayed bool) Receipt {
	r := Receipt{SaleID: stored.ID, Sale: stored.Sale, Replayed: replayed, Credit: CreditOutcome{State: CreditNone, Delta: decimal.Zero}}
	if adj := stored.Adjustment; adj != nil {
		r.Credit = CreditOutcome{State: adj.State, Delta: adj.Delta, AdjustmentID: adj.ID, Reason: adj.Reason}
	}
	return r
}

type saleEventPayload struct {
	SaleID     string          `json:"saleId"`
	BranchID   string          `json:"branchId"`
	SellerID   string          `json:"sellerId"`
	CustomerID string          `json:"customerId,omitempty"`
	Total      decimal.Decimal `json:"total"`
	Pieces     int             `json:"pieces"`
	Payments   []payment.Line  `json:"payments"`
	Flags      Flags           `json:"flags"`
	SoldAt     time.Time       `json:"soldAt"`
}

func saleEvent(id string, sale FinalizedSale) saleEventPayload {
	return saleEventPayload{
		SaleID:     id,
		BranchID:   sale.BranchID,
		SellerID:   sale.SellerID,
		CustomerID: sale.CustomerID,
		Total:      sale.Total,
		Pieces:     sale.Pieces(),
		Payments:   sale.Payments,
		Flags:      sale.Flags,
		SoldAt:     sale.SoldAt,
	}
}

func observeFailure(err error) {
	if obs.CheckoutFailuresTotal == nil {
		return
	}
	obs.CheckoutFailuresTotal.WithLabelValues(errorCode(err)).Inc()
}
