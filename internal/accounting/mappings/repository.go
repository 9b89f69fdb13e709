package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository reads and writes account mappings.
type Repository interface {
	Get(ctx context.Context, storeID int64, module, key string) (AccountMapping, error)
	ListModule(ctx context.Context, storeID int64, module string) ([]AccountMapping, error)
	Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository binds the repository to a pool or a transaction.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

var errModuleKeyRequired = errors.New("accounting: module and key required")

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, storeID int64, module, key string) (AccountMapping, error) {
	module, key = normalizeModule(module), normalizeKey(key)
	if module == "" || key == "" {
		return AccountMapping{}, errModuleKeyRequired
	}
	var m AccountMapping
	err := r.db.QueryRow(ctx, `SELECT store_id, module, key, account_id, created_at, updated_at
FROM account_mappings WHERE store_id=$1 AND module=$2 AND key=$3`, storeID, module, key).
		Scan(&m.StoreID, &m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w: %s/%s", shared.ErrMappingNotFound, module, key)
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *repository) ListModule(ctx context.Context, storeID int64, module string) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT store_id, module, key, account_id, created_at, updated_at
FROM account_mappings WHERE store_id=$1 AND module=$2 ORDER BY key`, storeID, normalizeModule(module))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.StoreID, &m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error) {
	m.Module, m.Key = normalizeModule(m.Module), normalizeKey(m.Key)
	if m.Module == "" || m.Key == "" {
		return AccountMapping{}, errModuleKeyRequired
	}
	err := r.db.QueryRow(ctx, `INSERT INTO account_mappings (store_id, module, key, account_id)
VALUES ($1,$2,$3,$4)
ON CONFLICT (store_id, module, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()
RETURNING created_at, updated_at`, m.StoreID, m.Module, m.Key, m.AccountID).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return AccountMapping{}, err
	}
	return m, nil
}
