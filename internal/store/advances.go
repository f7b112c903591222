package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/commission"
)

const advanceColumns = `a.id, a.filial_id, a.seller_id, COALESCE(u.name, ''), a.year, a.month, a.amount, a.note, a.created_by, a.created_at`

func scanAdvance(row pgx.Row) (commission.Advance, error) {
	var (
		a     commission.Advance
		month int
	)
	if err := row.Scan(&a.ID, &a.BranchID, &a.SellerID, &a.SellerName, &a.Year, &month, &a.Amount, &a.Note, &a.CreatedBy, &a.CreatedAt); err != nil {
		return commission.Advance{}, err
	}
	a.Month = time.Month(month)
	return a, nil
}

// InsertAdvance books a.
func (q *Queries) InsertAdvance(ctx context.Context, a commission.Advance) error {
	_, err := q.db.Exec(ctx, `INSERT INTO advances (id, filial_id, seller_id, year, month, amount, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.BranchID, a.SellerID, a.Year, int(a.Month), a.Amount, a.Note, a.CreatedBy, a.CreatedAt)
	return wrap("insert advance", err)
}

// Advances lists the month's advances oldest first. An empty sellerID
// selects every seller.
func (q *Queries) Advances(ctx context.Context, branchID, sellerID string, year int, month time.Month) ([]commission.Advance, error) {
	rows, err := q.db.Query(ctx, `SELECT `+advanceColumns+` FROM advances a
LEFT JOIN users u ON u.id = a.seller_id
WHERE a.filial_id = $1 AND ($2 = '' OR a.seller_id::text = $2) AND a.year = $3 AND a.month = $4
ORDER BY a.created_at, a.id`, branchID, sellerID, year, int(month))
	if err != nil {
		return nil, wrap("advances", err)
	}
	defer rows.Close()
	out := make([]commission.Advance, 0)
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, wrap("scan advance", err)
		}
		out = append(out, a)
	}
	return out, wrap("advances", rows.Err())
}

// UpdateAdvance replaces the amount and note of an advance of branchID.
func (q *Queries) UpdateAdvance(ctx context.Context, branchID, id string, amount decimal.Decimal, note string) (commission.Advance, error) {
	a, err := scanAdvance(q.db.QueryRow(ctx, `WITH a AS (
    UPDATE advances SET amount = $3, note = $4 WHERE id = $1 AND filial_id = $2 RETURNING *
)
SELECT `+advanceColumns+` FROM a LEFT JOIN users u ON u.id = a.seller_id`, id, branchID, amount, note))
	if err != nil {
		return commission.Advance{}, wrap("update advance", notFound(err, commission.ErrAdvanceNotFound))
	}
	return a, nil
}

// DeleteAdvance removes an advance of branchID.
func (q *Queries) DeleteAdvance(ctx context.Context, branchID, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM advances WHERE id = $1 AND filial_id = $2`, id, branchID)
	if err != nil {
		return wrap("delete advance", notFound(err, commission.ErrAdvanceNotFound))
	}
	if tag.RowsAffected() == 0 {
		return commission.ErrAdvanceNotFound
	}
	return nil
}
