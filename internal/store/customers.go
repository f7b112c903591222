package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/checkout"
	"github.com/noah-isme/backend-pdv/internal/customer"
	"github.com/noah-isme/backend-pdv/internal/events"
)

const customerColumns = `id, filial_id, name, phone, store_credit, debt_balance, credit_limit, created_at`

func scanCustomer(row pgx.Row) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.BranchID, &c.Name, &c.Phone, &c.StoreCredit, &c.DebtBalance, &c.CreditLimit, &c.CreatedAt)
	return c, err
}

// Customer returns the customer id registered at branchID.
func (q *Queries) Customer(ctx context.Context, branchID, id string) (customer.Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 AND filial_id = $2`, id, branchID))
	if err != nil {
		return customer.Customer{}, notFound(err, customer.ErrNotFound)
	}
	return c, nil
}

func (q *Queries) customerForUpdate(ctx context.Context, id string) (customer.Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return customer.Customer{}, notFound(err, customer.ErrNotFound)
	}
	return c, nil
}

func (q *Queries) adjustmentForUpdate(ctx context.Context, id string) (checkout.Adjustment, error) {
	a, err := scanAdjustment(q.db.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM credit_adjustments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return checkout.Adjustment{}, notFound(err, checkout.ErrAdjustmentNotFound)
	}
	return a, nil
}

func (q *Queries) settleAdjustment(ctx context.Context, id string, state checkout.CreditState, reason string, at time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE credit_adjustments SET state = $2, reason = $3, updated_at = $4 WHERE id = $1`, id, string(state), reason, at)
	return wrap("settle adjustment", err)
}

// ApplyCreditAdjustment settles a pending adjustment against the customer's
// store credit. The adjustment row is locked first so concurrent retries
// apply it at most once.
func (s *Store) ApplyCreditAdjustment(ctx context.Context, adjustmentID string) (customer.Customer, error) {
	var (
		out      customer.Customer
		exceeded bool
	)
	err := s.WithTx(ctx, func(q *Queries) error {
		adj, err := q.adjustmentForUpdate(ctx, adjustmentID)
		if err != nil {
			return err
		}
		c, err := q.customerForUpdate(ctx, adj.CustomerID)
		if err != nil {
			return err
		}
		out = c
		if adj.State != checkout.CreditPending {
			if adj.State == checkout.CreditFailed {
				exceeded = true
			}
			return nil
		}
		now := time.Now()
		next := c.StoreCredit.Add(adj.Delta)
		if next.IsNegative() {
			exceeded = true
			if err := q.settleAdjustment(ctx, adj.ID, checkout.CreditFailed, customer.ErrCreditBalanceExceeded.Error(), now); err != nil {
				return err
			}
			return q.insertEvents(ctx, creditEvent(events.TopicCreditFailed, adj, c.StoreCredit))
		}
		if _, err := q.db.Exec(ctx, `UPDATE customers SET store_credit = $2 WHERE id = $1`, c.ID, next); err != nil {
			return wrap("update store credit", err)
		}
		out.StoreCredit = next
		if err := q.settleAdjustment(ctx, adj.ID, checkout.CreditApplied, "", now); err != nil {
			return err
		}
		return q.insertEvents(ctx, creditEvent(events.TopicCreditApplied, adj, next))
	})
	if err != nil {
		return customer.Customer{}, err
	}
	if exceeded {
		return out, customer.ErrCreditBalanceExceeded
	}
	return out, nil
}

func creditEvent(topic string, adj checkout.Adjustment, balance decimal.Decimal) events.Event {
	return events.MustNew(topic, adj.CustomerID, map[string]any{
		"adjustmentId": adj.ID,
		"saleId":       adj.SaleID,
		"customerId":   adj.CustomerID,
		"delta":        adj.Delta,
		"balance":      balance,
	})
}

// addDebt posts amount to the customer's on-account balance, honouring the
// credit limit when one is set.
func (q *Queries) addDebt(ctx context.Context, branchID, customerID string, amount decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, `UPDATE customers SET debt_balance = debt_balance + $3
WHERE id = $1 AND filial_id = $2 AND (credit_limit = 0 OR debt_balance + $3 <= credit_limit)`, customerID, branchID, amount)
	if err != nil {
		return wrap("add debt", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := q.Customer(ctx, branchID, customerID); errors.Is(err, customer.ErrNotFound) {
			return err
		}
		return checkout.ErrCreditLimitExceeded
	}
	return nil
}

// UpsertCustomer registers c or refreshes its name, phone and limits.
// Balances of an existing customer are left alone.
func (q *Queries) UpsertCustomer(ctx context.Context, c customer.Customer) error {
	_, err := q.db.Exec(ctx, `INSERT INTO customers (id, filial_id, name, phone, store_credit, credit_limit)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, credit_limit = EXCLUDED.credit_limit`,
		c.ID, c.BranchID, c.Name, c.Phone, c.StoreCredit, c.CreditLimit)
	return wrap("upsert customer", err)
}
