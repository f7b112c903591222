package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/noah-isme/backend-pdv/internal/drawer"
	"github.com/noah-isme/backend-pdv/internal/payment"
)

// SalesBetween lists the branch sales sold in [from, to), reversed ones
// included, with their payment lines. An empty sellerID selects every seller.
func (q *Queries) SalesBetween(ctx context.Context, branchID, sellerID string, from, to time.Time) ([]drawer.SaleEntry, error) {
	rows, err := q.db.Query(ctx, `SELECT s.id, s.seller_id, s.total, s.reversed, p.method, p.amount, p.installments
FROM sales s
LEFT JOIN sale_payments p ON p.sale_id = s.id
WHERE s.filial_id = $1 AND ($2 = '' OR s.seller_id::text = $2) AND s.sold_at >= $3 AND s.sold_at < $4
ORDER BY s.sold_at, s.id, p.position`, branchID, sellerID, from, to)
	if err != nil {
		return nil, wrap("sales between", err)
	}
	defer rows.Close()

	var out []drawer.SaleEntry
	for rows.Next() {
		var (
			e            drawer.SaleEntry
			method       *string
			line         payment.Line
			installments *int
		)
		if err := rows.Scan(&e.ID, &e.SellerID, &e.Total, &e.Reversed, &method, &line.Amount, &installments); err != nil {
			return nil, wrap("scan sale entry", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != e.ID {
			out = append(out, e)
		}
		if method == nil {
			continue
		}
		line.Method = payment.Method(*method)
		if installments != nil {
			line.Installments = *installments
		}
		last := &out[len(out)-1]
		last.Payments = append(last.Payments, line)
	}
	return out, wrap("sales between", rows.Err())
}

// MovementsBetween lists the drawer movements created in [from, to).
func (q *Queries) MovementsBetween(ctx context.Context, branchID string, from, to time.Time) ([]drawer.Movement, error) {
	rows, err := q.db.Query(ctx, `SELECT id, filial_id, kind, amount, note, created_by, created_at FROM drawer_movements
WHERE filial_id = $1 AND created_at >= $2 AND created_at < $3 ORDER BY created_at`, branchID, from, to)
	if err != nil {
		return nil, wrap("movements between", err)
	}
	defer rows.Close()
	var out []drawer.Movement
	for rows.Next() {
		var (
			m    drawer.Movement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.BranchID, &kind, &m.Amount, &m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, wrap("scan movement", err)
		}
		m.Kind = drawer.MovementKind(kind)
		out = append(out, m)
	}
	return out, wrap("movements between", rows.Err())
}

// InsertMovement records m.
func (q *Queries) InsertMovement(ctx context.Context, m drawer.Movement) error {
	_, err := q.db.Exec(ctx, `INSERT INTO drawer_movements (id, filial_id, kind, amount, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, m.ID, m.BranchID, string(m.Kind), m.Amount, m.Note, m.CreatedBy, m.CreatedAt)
	return wrap("insert movement", err)
}

// SaveClosing keeps a reconciled closing.
func (q *Queries) SaveClosing(ctx context.Context, c drawer.Closing) error {
	summary, err := json.Marshal(struct {
		Summary drawer.Summary       `json:"summary"`
		Totals  []drawer.MethodTotal `json:"totals"`
	}{c.Summary, c.Totals})
	if err != nil {
		return wrap("encode summary", err)
	}
	reconciliation, err := json.Marshal(c.Reconciliation)
	if err != nil {
		return wrap("encode reconciliation", err)
	}
	var closedAt time.Time
	if c.ClosedAt != nil {
		closedAt = *c.ClosedAt
	}
	_, err = q.db.Exec(ctx, `INSERT INTO drawer_closings (id, filial_id, seller_id, day, summary, reconciliation, closed_by, note, closed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.BranchID, nullable(c.SellerID), c.Date, summary, reconciliation, c.ClosedBy, c.Note, closedAt)
	return wrap("save closing", err)
}
