package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/common"
)

const userColumns = `id, COALESCE(filial_id::text, ''), name, email, password_hash, role, active`

func scanUser(row pgx.Row) (auth.Account, error) {
	var (
		a    auth.Account
		role string
	)
	if err := row.Scan(&a.ID, &a.BranchID, &a.Name, &a.Email, &a.PasswordHash, &role, &a.Active); err != nil {
		return auth.Account{}, notFound(err, auth.ErrUserNotFound)
	}
	a.Role = common.Role(role)
	return a, nil
}

// UserByEmail looks an operator up by login email.
func (q *Queries) UserByEmail(ctx context.Context, email string) (auth.Account, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
}

// UserByID looks an operator up by id.
func (q *Queries) UserByID(ctx context.Context, id string) (auth.Account, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// CreateBranch inserts a branch if it does not exist yet.
func (q *Queries) CreateBranch(ctx context.Context, id, name string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO filiais (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, id, name)
	return wrap("create branch", err)
}

// UpsertUser inserts or updates an operator keyed by email.
func (q *Queries) UpsertUser(ctx context.Context, a auth.Account) error {
	_, err := q.db.Exec(ctx, `INSERT INTO users (id, filial_id, name, email, password_hash, role, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (email) DO UPDATE SET filial_id = EXCLUDED.filial_id, name = EXCLUDED.name,
    password_hash = EXCLUDED.password_hash, role = EXCLUDED.role, active = EXCLUDED.active`,
		a.ID, nullable(a.BranchID), a.Name, strings.ToLower(a.Email), a.PasswordHash, string(a.Role), a.Active)
	return wrap("upsert user", err)
}
