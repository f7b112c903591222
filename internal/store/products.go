package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/cart"
)

const productColumns = `id, code, description, unit_price, unit_cost, filial_id, quantity`

func scanProduct(row pgx.Row) (cart.Product, error) {
	var (
		p    cart.Product
		cost decimal.NullDecimal
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Description, &p.UnitPrice, &cost, &p.BranchID, &p.QuantityAvailable); err != nil {
		return cart.Product{}, err
	}
	if cost.Valid {
		c := cost.Decimal
		p.UnitCost = &c
	}
	return p, nil
}

// ProductByCode returns the active product with code at branchID. Lookup is
// branch scoped, so a code registered elsewhere is reported as not found.
func (q *Queries) ProductByCode(ctx context.Context, branchID, code string) (cart.Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products
WHERE filial_id = $1 AND code = $2 AND active`, branchID, strings.TrimSpace(code))
	p, err := scanProduct(row)
	if err != nil {
		return cart.Product{}, notFound(err, cart.ErrProductNotFound)
	}
	return p, nil
}

// SearchProducts matches code prefix or description substring.
func (q *Queries) SearchProducts(ctx context.Context, branchID, term string, limit, offset int) ([]cart.Product, int, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM products
WHERE filial_id = $1 AND active AND ($2 = '' OR code LIKE $2 || '%' OR lower(description) LIKE '%' || $2 || '%')`,
		branchID, term).Scan(&total); err != nil {
		return nil, 0, wrap("count products", err)
	}
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE filial_id = $1 AND active AND ($2 = '' OR code LIKE $2 || '%' OR lower(description) LIKE '%' || $2 || '%')
ORDER BY description, code
LIMIT $3 OFFSET $4`, branchID, term, limit, offset)
	if err != nil {
		return nil, 0, wrap("search products", err)
	}
	defer rows.Close()
	out := make([]cart.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, wrap("scan product", err)
		}
		out = append(out, p)
	}
	return out, total, wrap("search products", rows.Err())
}

// UpsertProduct registers p at its branch, replacing price, cost and stock
// when the code already exists.
func (q *Queries) UpsertProduct(ctx context.Context, p cart.Product) error {
	_, err := q.db.Exec(ctx, `INSERT INTO products (id, filial_id, code, description, unit_price, unit_cost, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (filial_id, code) DO UPDATE SET description = EXCLUDED.description,
  unit_price = EXCLUDED.unit_price, unit_cost = EXCLUDED.unit_cost, quantity = EXCLUDED.quantity, active = true`,
		p.ID, p.BranchID, strings.TrimSpace(p.Code), p.Description, p.UnitPrice, p.UnitCost, p.QuantityAvailable)
	return wrap("upsert product", err)
}
