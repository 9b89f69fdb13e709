package periods

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
)

// Repository reads periods and opens close transactions.
type Repository interface {
	Get(ctx context.Context, storeID int64, code string) (Period, error)
	List(ctx context.Context, storeID int64) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository adds period and balance reads to the journal transaction surface so
// closing entries are written in the same transaction as the status change.
type TxRepository interface {
	journals.TxRepository
	GetPeriodForUpdate(ctx context.Context, storeID int64, code string) (Period, error)
	UpdatePeriod(ctx context.Context, p Period) error
	ListAccountsByType(ctx context.Context, storeID int64, types ...accounts.AccountType) ([]accounts.Account, error)
	SumPostedLines(ctx context.Context, storeID int64, accountIDs []int64, asOf time.Time) (map[int64]balances.Amounts, error)
}
