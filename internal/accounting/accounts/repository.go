package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists chart of accounts rows scoped by store.
type Repository interface {
	Get(ctx context.Context, storeID, id int64) (Account, error)
	GetByCode(ctx context.Context, storeID int64, code string) (Account, error)
	GetMany(ctx context.Context, storeID int64, ids []int64) (map[int64]Account, error)
	List(ctx context.Context, storeID int64) ([]Account, error)
	ListByType(ctx context.Context, storeID int64, types ...AccountType) ([]Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	CountChildren(ctx context.Context, storeID, id int64) (int, error)
	Delete(ctx context.Context, storeID, id int64) error
}

const selectColumns = `SELECT id, store_id, code, name, type, parent_id, level, is_active, allows_entries, created_at, updated_at FROM chart_of_accounts`

type repository struct {
	db db.DBTX
}

// NewRepository binds the repository to a pool or a transaction.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.StoreID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Level, &a.IsActive, &a.AllowsEntries, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func collect(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, storeID, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectColumns+` WHERE store_id=$1 AND id=$2`, storeID, id))
}

func (r *repository) GetByCode(ctx context.Context, storeID int64, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectColumns+` WHERE store_id=$1 AND code=$2`, storeID, strings.TrimSpace(code)))
}

func (r *repository) GetMany(ctx context.Context, storeID int64, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, selectColumns+` WHERE store_id=$1 AND id = ANY($2)`, storeID, ids)
	if err != nil {
		return nil, err
	}
	list, err := collect(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

func (r *repository) List(ctx context.Context, storeID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, selectColumns+` WHERE store_id=$1 ORDER BY code`, storeID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) ListByType(ctx context.Context, storeID int64, types ...AccountType) ([]Account, error) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	rows, err := r.db.Query(ctx, selectColumns+` WHERE store_id=$1 AND type = ANY($2) ORDER BY code`, storeID, names)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO chart_of_accounts (store_id, code, name, type, parent_id, level, is_active, allows_entries)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		a.StoreID, a.Code, a.Name, a.Type, a.ParentID, a.Level, a.IsActive, a.AllowsEntries)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if db.UniqueViolation(err, "uq_chart_of_accounts_code") {
			return Account{}, shared.Invalid("code", shared.ErrDuplicateAccountCode, "%s", a.Code)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) CountChildren(ctx context.Context, storeID, id int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chart_of_accounts WHERE store_id=$1 AND parent_id=$2`, storeID, id).Scan(&n)
	return n, err
}

func (r *repository) Delete(ctx context.Context, storeID, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM chart_of_accounts WHERE store_id=$1 AND id=$2`, storeID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
