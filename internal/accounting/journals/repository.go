package journals

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, storeID, id int64) (Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations a posting runs inside one transaction.
type TxRepository interface {
	// EnsurePeriod returns the monthly period containing date, creating it OPEN when
	// missing, and locks it for the rest of the transaction.
	EnsurePeriod(ctx context.Context, storeID int64, date time.Time) (shared.Period, error)
	NextEntryNumber(ctx context.Context, storeID int64, date time.Time) (string, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []Line) ([]Line, error)
	FindBySource(ctx context.Context, storeID int64, sourceType string, sourceID uuid.UUID) (Entry, error)
	GetEntryForUpdate(ctx context.Context, storeID, id int64) (Entry, error)
	MarkPosted(ctx context.Context, storeID, id, actorID int64, at time.Time) error
	MarkCancelled(ctx context.Context, storeID, id, actorID int64, reason string, at time.Time) error
	AccountsForPosting(ctx context.Context, storeID int64, ids []int64) (map[int64]accounts.Account, error)
	UpsertBalances(ctx context.Context, storeID int64, date time.Time, deltas []balances.Delta, at time.Time) error
}
