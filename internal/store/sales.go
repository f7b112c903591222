package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/checkout"
	"github.com/noah-isme/backend-pdv/internal/payment"
)

// RecordSale is phase one of a sale: every row it writes commits or none does.
func (s *Store) RecordSale(ctx context.Context, rec checkout.Record) error {
	sale := rec.Sale
	err := s.WithTx(ctx, func(q *Queries) error {
		mode := payment.ModeSingle
		if sale.Allocation != nil {
			mode = sale.Allocation.Mode()
		}
		_, err := q.db.Exec(ctx, `INSERT INTO sales (
    id, filial_id, seller_id, operator_id, customer_id, subtotal, discount, store_credit_applied, total,
    payment_mode, online, backorder, exchange, idempotency_key, sold_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			rec.SaleID, sale.BranchID, sale.SellerID, sale.OperatorID, nullable(sale.CustomerID),
			sale.Subtotal, sale.Discount, sale.StoreCreditApplied, sale.Total,
			string(mode), sale.Flags.Online, sale.Flags.Backorder, sale.Flags.Exchange,
			nullable(rec.IdempotencyKey), sale.SoldAt)
		if err != nil {
			if isUniqueViolation(err) {
				return checkout.ErrDuplicateSale
			}
			return wrap("insert sale", err)
		}
		for i, l := range sale.Lines {
			if _, err := q.db.Exec(ctx, `INSERT INTO sale_items (sale_id, position, product_id, code, description, quantity, unit_price, unit_cost, manual)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				rec.SaleID, i, l.ProductID, l.Code, l.Description, l.Quantity, l.UnitPrice, l.UnitCost, l.Manual); err != nil {
				return wrap("insert sale item", err)
			}
			if l.Manual || sale.Flags.Backorder {
				continue
			}
			if err := q.takeStock(ctx, sale.BranchID, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		for i, p := range sale.Payments {
			if _, err := q.db.Exec(ctx, `INSERT INTO sale_payments (sale_id, position, method, amount, installments)
VALUES ($1, $2, $3, $4, $5)`, rec.SaleID, i, string(p.Method), p.Amount, p.Installments); err != nil {
				return wrap("insert sale payment", err)
			}
		}
		if debt := sale.OnAccount(); debt.IsPositive() {
			if err := q.addDebt(ctx, sale.BranchID, sale.CustomerID, debt); err != nil {
				return err
			}
		}
		if adj := rec.Adjustment; adj != nil {
			if _, err := q.db.Exec(ctx, `INSERT INTO credit_adjustments (id, sale_id, filial_id, customer_id, delta, state, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`, adj.ID, rec.SaleID, adj.BranchID, adj.CustomerID, adj.Delta, string(checkout.CreditPending), adj.CreatedAt); err != nil {
				return wrap("insert credit adjustment", err)
			}
		}
		return q.insertEvents(ctx, rec.Events...)
	})
	return err
}

func (q *Queries) takeStock(ctx context.Context, branchID, productID string, quantity int) error {
	tag, err := q.db.Exec(ctx, `UPDATE products SET quantity = quantity - $3
WHERE id::text = $1 AND filial_id = $2 AND quantity >= $3`, productID, branchID, quantity)
	if err != nil {
		return wrap("take stock", err)
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrInsufficientStock
	}
	return nil
}

func (q *Queries) returnStock(ctx context.Context, branchID, productID string, quantity int) error {
	_, err := q.db.Exec(ctx, `UPDATE products SET quantity = quantity + $3 WHERE id::text = $1 AND filial_id = $2`, productID, branchID, quantity)
	return wrap("return stock", err)
}

const saleColumns = `id, filial_id, seller_id, operator_id, customer_id, subtotal, discount, store_credit_applied, total,
payment_mode, online, backorder, exchange, sold_at, reversed, reversed_at, created_at`

func (q *Queries) loadSale(ctx context.Context, row pgx.Row) (checkout.StoredSale, error) {
	var (
		out        checkout.StoredSale
		sale       checkout.FinalizedSale
		customerID *string
		mode       string
	)
	if err := row.Scan(&out.ID, &sale.BranchID, &sale.SellerID, &sale.OperatorID, &customerID,
		&sale.Subtotal, &sale.Discount, &sale.StoreCreditApplied, &sale.Total,
		&mode, &sale.Flags.Online, &sale.Flags.Backorder, &sale.Flags.Exchange,
		&sale.SoldAt, &out.Reversed, &out.ReversedAt, &out.CreatedAt); err != nil {
		return checkout.StoredSale{}, notFound(err, checkout.ErrSaleNotFound)
	}
	sale.CustomerID = deref(customerID)

	lines, err := q.saleLines(ctx, out.ID)
	if err != nil {
		return checkout.StoredSale{}, err
	}
	sale.Lines = lines
	payments, err := q.salePayments(ctx, out.ID)
	if err != nil {
		return checkout.StoredSale{}, err
	}
	sale.Payments = payments
	sale.Allocation = allocationFor(payment.Mode(mode), payments)
	out.Sale = sale

	adj, err := q.latestAdjustment(ctx, out.ID)
	switch {
	case err == nil:
		out.Adjustment = &adj
	case !errors.Is(err, checkout.ErrAdjustmentNotFound):
		return checkout.StoredSale{}, err
	}
	return out, nil
}

func allocationFor(mode payment.Mode, lines []payment.Line) payment.Allocation {
	if mode == payment.ModeSingle && len(lines) == 1 {
		return payment.Single{Method: lines[0].Method, Installments: lines[0].Installments}
	}
	return payment.Mixed{Lines: lines}
}

func (q *Queries) saleLines(ctx context.Context, saleID string) ([]cart.Line, error) {
	rows, err := q.db.Query(ctx, `SELECT product_id, code, description, quantity, unit_price, unit_cost, manual
FROM sale_items WHERE sale_id = $1 ORDER BY position`, saleID)
	if err != nil {
		return nil, wrap("sale items", err)
	}
	defer rows.Close()
	var out []cart.Line
	for rows.Next() {
		var (
			l    cart.Line
			cost decimal.NullDecimal
		)
		if err := rows.Scan(&l.ProductID, &l.Code, &l.Description, &l.Quantity, &l.UnitPrice, &cost, &l.Manual); err != nil {
			return nil, wrap("scan sale item", err)
		}
		if cost.Valid {
			c := cost.Decimal
			l.UnitCost = &c
		}
		out = append(out, l)
	}
	return out, wrap("sale items", rows.Err())
}

func (q *Queries) salePayments(ctx context.Context, saleID string) ([]payment.Line, error) {
	rows, err := q.db.Query(ctx, `SELECT method, amount, installments FROM sale_payments WHERE sale_id = $1 ORDER BY position`, saleID)
	if err != nil {
		return nil, wrap("sale payments", err)
	}
	defer rows.Close()
	var out []payment.Line
	for rows.Next() {
		var (
			l      payment.Line
			method string
		)
		if err := rows.Scan(&method, &l.Amount, &l.Installments); err != nil {
			return nil, wrap("scan sale payment", err)
		}
		l.Method = payment.Method(method)
		out = append(out, l)
	}
	return out, wrap("sale payments", rows.Err())
}

// Sale returns the sale id recorded at branchID.
func (q *Queries) Sale(ctx context.Context, branchID, id string) (checkout.StoredSale, error) {
	return q.loadSale(ctx, q.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 AND filial_id = $2`, id, branchID))
}

// SaleByIdempotencyKey returns the sale recorded under key at branchID.
func (q *Queries) SaleByIdempotencyKey(ctx context.Context, branchID, key string) (checkout.StoredSale, error) {
	return q.loadSale(ctx, q.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE filial_id = $1 AND idempotency_key = $2`, branchID, key))
}

// ReverseSale undoes phase one of a sale and cancels or compensates its
// credit adjustment.
func (s *Store) ReverseSale(ctx context.Context, rev checkout.Reversal) (checkout.StoredSale, *checkout.Adjustment, error) {
	var (
		out          checkout.StoredSale
		compensation *checkout.Adjustment
	)
	err := s.WithTx(ctx, func(q *Queries) error {
		stored, err := q.loadSale(ctx, q.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 AND filial_id = $2 FOR UPDATE`, rev.SaleID, rev.BranchID))
		if err != nil {
			return err
		}
		if stored.Reversed {
			return checkout.ErrAlreadyReversed
		}
		if _, err := q.db.Exec(ctx, `UPDATE sales SET reversed = true, reversed_at = $2, reversed_by = $3 WHERE id = $1`, rev.SaleID, rev.At, rev.ActorID); err != nil {
			return wrap("reverse sale", err)
		}
		sale := stored.Sale
		if !sale.Flags.Backorder {
			for _, l := range sale.Lines {
				if l.Manual {
					continue
				}
				if err := q.returnStock(ctx, sale.BranchID, l.ProductID, l.Quantity); err != nil {
					return err
				}
			}
		}
		if debt := sale.OnAccount(); debt.IsPositive() {
			if _, err := q.db.Exec(ctx, `UPDATE customers SET debt_balance = debt_balance - $2 WHERE id = $1`, sale.CustomerID, debt); err != nil {
				return wrap("reverse debt", err)
			}
		}
		if adj := stored.Adjustment; adj != nil {
			locked, err := q.adjustmentForUpdate(ctx, adj.ID)
			if err != nil {
				return err
			}
			switch locked.State {
			case checkout.CreditPending:
				if err := q.settleAdjustment(ctx, locked.ID, checkout.CreditFailed, "sale reversed", rev.At); err != nil {
					return err
				}
				locked.State = checkout.CreditFailed
				locked.Reason = "sale reversed"
			case checkout.CreditApplied:
				c := checkout.Adjustment{
					ID:         rev.CompensationID,
					SaleID:     rev.SaleID,
					BranchID:   locked.BranchID,
					CustomerID: locked.CustomerID,
					Delta:      locked.Delta.Neg(),
					State:      checkout.CreditPending,
					CreatedAt:  rev.At,
				}
				if _, err := q.db.Exec(ctx, `INSERT INTO credit_adjustments (id, sale_id, filial_id, customer_id, delta, state, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`, c.ID, c.SaleID, c.BranchID, c.CustomerID, c.Delta, string(c.State), c.CreatedAt); err != nil {
					return wrap("insert compensation", err)
				}
				compensation = &c
			}
			stored.Adjustment = &locked
		}
		at := rev.At
		stored.Reversed = true
		stored.ReversedAt = &at
		out = stored
		return q.insertEvents(ctx, rev.Events...)
	})
	if err != nil {
		return checkout.StoredSale{}, nil, err
	}
	return out, compensation, nil
}

const adjustmentColumns = `id, sale_id, filial_id, customer_id, delta, state, reason, attempts, created_at`

func scanAdjustment(row pgx.Row) (checkout.Adjustment, error) {
	var (
		a     checkout.Adjustment
		state string
	)
	if err := row.Scan(&a.ID, &a.SaleID, &a.BranchID, &a.CustomerID, &a.Delta, &state, &a.Reason, &a.Attempts, &a.CreatedAt); err != nil {
		return checkout.Adjustment{}, err
	}
	a.State = checkout.CreditState(state)
	return a, nil
}

func (q *Queries) latestAdjustment(ctx context.Context, saleID string) (checkout.Adjustment, error) {
	a, err := scanAdjustment(q.db.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM credit_adjustments
WHERE sale_id = $1 ORDER BY created_at DESC LIMIT 1`, saleID))
	if err != nil {
		return checkout.Adjustment{}, notFound(err, checkout.ErrAdjustmentNotFound)
	}
	return a, nil
}

// Adjustment returns a credit adjustment by id.
func (q *Queries) Adjustment(ctx context.Context, id string) (checkout.Adjustment, error) {
	a, err := scanAdjustment(q.db.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM credit_adjustments WHERE id = $1`, id))
	if err != nil {
		return checkout.Adjustment{}, notFound(err, checkout.ErrAdjustmentNotFound)
	}
	return a, nil
}

// RecordAdjustmentAttempt counts a failed attempt on a pending adjustment.
func (q *Queries) RecordAdjustmentAttempt(ctx context.Context, id, reason string) error {
	_, err := q.db.Exec(ctx, `UPDATE credit_adjustments SET attempts = attempts + 1, reason = $2, updated_at = now()
WHERE id = $1 AND state = 'pending'`, id, reason)
	return wrap("record attempt", err)
}

// PendingAdjustments lists adjustments still pending that were created before createdBefore.
func (q *Queries) PendingAdjustments(ctx context.Context, createdBefore time.Time, limit int) ([]checkout.Adjustment, error) {
	rows, err := q.db.Query(ctx, `SELECT `+adjustmentColumns+` FROM credit_adjustments
WHERE state = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, wrap("pending adjustments", err)
	}
	defer rows.Close()
	var out []checkout.Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, wrap("scan adjustment", err)
		}
		out = append(out, a)
	}
	return out, wrap("pending adjustments", rows.Err())
}
