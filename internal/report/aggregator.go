// Package report aggregates recorded sales per seller and branch.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SellerPeriod is the sales aggregate of one seller over a period.
type SellerPeriod struct {
	SellerID    string          `json:"sellerId"`
	SellerName  string          `json:"sellerName,omitempty"`
	SalesTotal  decimal.Decimal `json:"periodSalesTotal"`
	SalesCount  int             `json:"salesCount"`
	PiecesCount int             `json:"piecesCount"`
}

// Aggregator runs the aggregate queries through database/sql. Reversed sales
// never count. Periods are half open: from ≤ sold_at < to.
type Aggregator struct {
	DB *sql.DB
}

// NewAggregator constructs an aggregator on db.
func NewAggregator(db *sql.DB) *Aggregator {
	return &Aggregator{DB: db}
}

const sellerPeriodQuery = `SELECT COALESCE(SUM(s.total), 0), COUNT(s.id), COALESCE(SUM(p.pieces), 0)
FROM sales s
LEFT JOIN (SELECT sale_id, SUM(quantity) AS pieces FROM sale_items GROUP BY sale_id) p ON p.sale_id = s.id
WHERE s.filial_id = $1 AND s.seller_id = $2 AND s.sold_at >= $3 AND s.sold_at < $4 AND NOT s.reversed`

// SellerPeriod returns the aggregate for one seller. A seller without sales
// yields a zero aggregate.
func (a *Aggregator) SellerPeriod(ctx context.Context, branchID, sellerID string, from, to time.Time) (SellerPeriod, error) {
	if a == nil || a.DB == nil {
		return SellerPeriod{}, errors.New("report aggregator not configured")
	}
	out := SellerPeriod{SellerID: sellerID}
	row := a.DB.QueryRowContext(ctx, sellerPeriodQuery, branchID, sellerID, from, to)
	if err := row.Scan(&out.SalesTotal, &out.SalesCount, &out.PiecesCount); err != nil {
		return SellerPeriod{}, fmt.Errorf("seller period: %w", err)
	}
	return out, nil
}

const byBranchQuery = `SELECT s.seller_id, COALESCE(u.name, ''), SUM(s.total), COUNT(s.id), COALESCE(SUM(p.pieces), 0)
FROM sales s
LEFT JOIN users u ON u.id = s.seller_id
LEFT JOIN (SELECT sale_id, SUM(quantity) AS pieces FROM sale_items GROUP BY sale_id) p ON p.sale_id = s.id
WHERE s.filial_id = $1 AND s.sold_at >= $2 AND s.sold_at < $3 AND NOT s.reversed
GROUP BY s.seller_id, u.name
ORDER BY SUM(s.total) DESC`

// ByBranch returns one aggregate per seller with sales in the period,
// best sellers first.
func (a *Aggregator) ByBranch(ctx context.Context, branchID string, from, to time.Time) ([]SellerPeriod, error) {
	if a == nil || a.DB == nil {
		return nil, errors.New("report aggregator not configured")
	}
	rows, err := a.DB.QueryContext(ctx, byBranchQuery, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("branch report: %w", err)
	}
	defer rows.Close()

	out := make([]SellerPeriod, 0)
	for rows.Next() {
		var sp SellerPeriod
		if err := rows.Scan(&sp.SellerID, &sp.SellerName, &sp.SalesTotal, &sp.SalesCount, &sp.PiecesCount); err != nil {
			return nil, fmt.Errorf("scan branch report: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
