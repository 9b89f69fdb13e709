package integrity

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository provides the reads an audit needs and opens correction transactions.
type Repository interface {
	ListPostedEntryIDs(ctx context.Context, storeID int64) ([]int64, error)
	ScanPostedEntries(ctx context.Context, storeID int64, from, to time.Time) ([]journals.Entry, error)
	ListBuckets(ctx context.Context, storeID int64, periodStart time.Time) ([]balances.Bucket, error)
	TrialBalanceRows(ctx context.Context, storeID int64, asOf time.Time) ([]reports.AccountBalance, error)
	CorrectionHistory(ctx context.Context, storeID int64) (History, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository rewrites one entry inside a transaction.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, storeID, id int64) (journals.Entry, error)
	EnsurePeriod(ctx context.Context, storeID int64, date time.Time) (shared.Period, error)
	AccountsForPosting(ctx context.Context, storeID int64, ids []int64) (map[int64]accounts.Account, error)
	FindAccountByCode(ctx context.Context, storeID int64, code string) (accounts.Account, error)
	UpdateLine(ctx context.Context, line journals.Line) error
	InsertLines(ctx context.Context, entryID int64, lines []journals.Line) ([]journals.Line, error)
	UpdateEntryTotals(ctx context.Context, storeID, entryID int64, totals balances.Amounts) error
	UpsertBalances(ctx context.Context, storeID int64, date time.Time, deltas []balances.Delta, at time.Time) error
	InsertCorrection(ctx context.Context, c Correction) error
}

// AccountProvisioner creates the adjustments account on demand.
type AccountProvisioner interface {
	EnsureAdjustmentAccount(ctx context.Context, storeID int64) (accounts.Account, error)
}
