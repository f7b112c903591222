package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/commission"
)

// CommissionConfig returns the saved policy of branchID.
func (q *Queries) CommissionConfig(ctx context.Context, branchID string) (commission.Config, bool, error) {
	var (
		cfg   commission.Config
		tiers []byte
	)
	err := q.db.QueryRow(ctx, `SELECT base_percent, tiers FROM commission_configs WHERE filial_id = $1`, branchID).
		Scan(&cfg.BaseCommissionPercent, &tiers)
	if errors.Is(err, pgx.ErrNoRows) {
		return commission.Config{}, false, nil
	}
	if err != nil {
		return commission.Config{}, false, wrap("commission config", err)
	}
	if err := json.Unmarshal(tiers, &cfg.Tiers); err != nil {
		return commission.Config{}, false, wrap("decode tiers", err)
	}
	return cfg, true, nil
}

// SaveCommissionConfig replaces the policy of branchID.
func (q *Queries) SaveCommissionConfig(ctx context.Context, branchID string, cfg commission.Config) error {
	tiers := cfg.Tiers
	if tiers == nil {
		tiers = []commission.Tier{}
	}
	raw, err := json.Marshal(tiers)
	if err != nil {
		return wrap("encode tiers", err)
	}
	_, err = q.db.Exec(ctx, `INSERT INTO commission_configs (filial_id, base_percent, tiers, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (filial_id) DO UPDATE SET base_percent = EXCLUDED.base_percent, tiers = EXCLUDED.tiers, updated_at = now()`,
		branchID, cfg.BaseCommissionPercent, raw)
	return wrap("save commission config", err)
}

// Goal returns the seller's target for the month, zero when none was set.
func (q *Queries) Goal(ctx context.Context, branchID, sellerID string, year int, month time.Month) (commission.Goal, error) {
	g := commission.Goal{BranchID: branchID, SellerID: sellerID, Year: year, Month: month, Target: decimal.Zero}
	err := q.db.QueryRow(ctx, `SELECT target, pieces_target FROM goals
WHERE filial_id = $1 AND seller_id = $2 AND year = $3 AND month = $4`, branchID, sellerID, year, int(month)).
		Scan(&g.Target, &g.PiecesTarget)
	if errors.Is(err, pgx.ErrNoRows) {
		return g, nil
	}
	if err != nil {
		return commission.Goal{}, wrap("goal", err)
	}
	return g, nil
}

// UpsertGoal stores g, replacing any target already set for the month.
func (q *Queries) UpsertGoal(ctx context.Context, g commission.Goal) error {
	_, err := q.db.Exec(ctx, `INSERT INTO goals (filial_id, seller_id, year, month, target, pieces_target)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (filial_id, seller_id, year, month) DO UPDATE SET target = EXCLUDED.target, pieces_target = EXCLUDED.pieces_target`,
		g.BranchID, g.SellerID, g.Year, int(g.Month), g.Target, g.PiecesTarget)
	return wrap("upsert goal", err)
}
