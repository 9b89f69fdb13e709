package accounting

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/integrity"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Deps carries the infrastructure the ledger runs on. Redis is optional: without it
// balances are computed on every call and period close is not serialised across processes.
type Deps struct {
	Pool            *pgxpool.Pool
	Redis           *redis.Client
	Audit           shared.AuditPort
	Logger          *slog.Logger
	BalanceCacheTTL time.Duration
	PeriodLockTTL   time.Duration
}

// Ledger exposes the ledger core operations, each scoped by store.
type Ledger struct {
	Accounts  *accounts.Service
	Balances  *balances.Aggregator
	Journals  *journals.Service
	Periods   *periods.Service
	Integrity *integrity.Engine
	Mappings  *mappings.Resolver

	repo *Repository
}

// New wires every engine over one Postgres repository.
func New(deps Deps) *Ledger {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := deps.Audit
	if audit == nil && deps.Pool != nil {
		audit = internalShared.NewAuditLogger(deps.Pool)
	}
	repo := NewRepository(deps.Pool)

	accountSvc := accounts.NewService(accounts.NewRepository(repo.db), audit, logger.With(slog.String("component", "accounts")))
	aggregator := balances.NewAggregator(repo, accountSvc, balances.NewCache(deps.Redis, deps.BalanceCacheTTL), logger.With(slog.String("component", "balances")))
	journalSvc := journals.NewService(repo.Journals(), audit, aggregator, logger.With(slog.String("component", "journals")))

	periodSvc := periods.NewService(repo.Periods(), audit, aggregator, logger.With(slog.String("component", "periods")))
	periodSvc.WithIncomeStatement(reports.IncomeStatementProvider(repo))
	if deps.Redis != nil {
		periodSvc.WithLocker(cache.NewLocker(deps.Redis, deps.PeriodLockTTL))
	}

	engine := integrity.NewEngine(repo.Integrity(), accountSvc, aggregator, audit, logger.With(slog.String("component", "integrity")))

	return &Ledger{
		Accounts:  accountSvc,
		Balances:  aggregator,
		Journals:  journalSvc,
		Periods:   periodSvc,
		Integrity: engine,
		Mappings:  mappings.NewResolver(mappings.NewRepository(repo.db)),
		repo:      repo,
	}
}

// CreateEntry stores a DRAFT entry.
func (l *Ledger) CreateEntry(ctx context.Context, in journals.CreateInput) (journals.Entry, error) {
	return l.Journals.CreateEntry(ctx, in)
}

// CreateAutoEntry stores a POSTED entry for a business event, once per source.
func (l *Ledger) CreateAutoEntry(ctx context.Context, in journals.CreateInput) (journals.Entry, error) {
	return l.Journals.CreateAutoEntry(ctx, in)
}

// PostEntry posts a DRAFT entry and applies its balances.
func (l *Ledger) PostEntry(ctx context.Context, storeID, entryID, actorID int64) (journals.Entry, error) {
	return l.Journals.PostEntry(ctx, storeID, entryID, actorID)
}

// CancelEntry cancels an entry, reversing its balances when it was posted.
func (l *Ledger) CancelEntry(ctx context.Context, storeID, entryID, actorID int64, reason string) (journals.Entry, error) {
	return l.Journals.CancelEntry(ctx, storeID, entryID, actorID, reason)
}

// ClosePeriod closes a monthly period into equity.
func (l *Ledger) ClosePeriod(ctx context.Context, in periods.ClosePeriodInput) (periods.CloseResult, error) {
	return l.Periods.ClosePeriod(ctx, in)
}

// ReopenPeriod reopens a CLOSED period and cancels its closing entries.
func (l *Ledger) ReopenPeriod(ctx context.Context, storeID int64, code string, actorID int64, reason string) (periods.Period, error) {
	return l.Periods.ReopenPeriod(ctx, storeID, code, actorID, reason)
}

// CalculateBalances returns signed balances as of a date.
func (l *Ledger) CalculateBalances(ctx context.Context, storeID int64, accountIDs []int64, asOf time.Time) (map[int64]balances.Balance, error) {
	return l.Balances.CalculateBalances(ctx, storeID, accountIDs, asOf)
}

// RecalculateEntryTotals corrects drifted posted entries; nil ids means all of them.
func (l *Ledger) RecalculateEntryTotals(ctx context.Context, storeID int64, entryIDs []int64) (integrity.CorrectionReport, error) {
	return l.Integrity.RecalculateEntryTotals(ctx, storeID, entryIDs)
}

// Audit produces the integrity report of a store for a date range.
func (l *Ledger) Audit(ctx context.Context, storeID int64, from, to time.Time) (integrity.Report, error) {
	return l.Integrity.Audit(ctx, storeID, from, to)
}

// TrialBalance builds the grouped trial balance as of a date.
func (l *Ledger) TrialBalance(ctx context.Context, storeID int64, asOf time.Time) (reports.TrialBalance, error) {
	if storeID <= 0 {
		return reports.TrialBalance{}, shared.ErrStoreRequired
	}
	rows, err := l.repo.Integrity().TrialBalanceRows(ctx, storeID, asOf)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return reports.BuildTrialBalance(rows), nil
}

// LockPeriod makes a CLOSED period permanently immutable.
func (l *Ledger) LockPeriod(ctx context.Context, storeID int64, code string, actorID int64) (periods.Period, error) {
	return l.Periods.LockPeriod(ctx, storeID, code, actorID)
}

// StoreIDs lists the stores that own a chart of accounts.
func (l *Ledger) StoreIDs(ctx context.Context) ([]int64, error) {
	return l.repo.ListStoreIDs(ctx)
}
