package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/integrity"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	defaultWindowMonths   = 3
	defaultAuditParallel  = 4
	correctionOutcomeOK   = "corrected"
	correctionOutcomeFix  = "totals_fixed"
	correctionOutcomeFail = "failed"
)

// IntegrityLedger is the slice of the ledger the integrity jobs need.
type IntegrityLedger interface {
	StoreIDs(ctx context.Context) ([]int64, error)
	Audit(ctx context.Context, storeID int64, from, to time.Time) (integrity.Report, error)
	RecalculateEntryTotals(ctx context.Context, storeID int64, entryIDs []int64) (integrity.CorrectionReport, error)
}

// LedgerIntegrityJob audits and optionally auto-corrects store ledgers.
type LedgerIntegrityJob struct {
	Ledger      IntegrityLedger
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Parallelism int
	clock       func() time.Time
}

// NewLedgerIntegrityJob constructs the job handler.
func NewLedgerIntegrityJob(ledger IntegrityLedger, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Ledger:      ledger,
		Logger:      logger,
		Metrics:     metrics,
		Parallelism: defaultAuditParallel,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// StoreOutcome is the result of auditing one store.
type StoreOutcome struct {
	StoreID     int64
	Report      integrity.Report
	Corrections *integrity.CorrectionReport
	Err         error
}

// Handle executes TaskLedgerIntegrityAudit.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskLedgerIntegrityAudit)
	_, err := j.Run(ctx, payload)
	return tracker.End(err)
}

// Run audits every requested store in parallel. A failing store does not stop the
// others; the joined store errors are returned so the task is retried.
func (j *LedgerIntegrityJob) Run(ctx context.Context, payload IntegrityAuditPayload) ([]StoreOutcome, error) {
	if payload.WindowMonths <= 0 {
		payload.WindowMonths = defaultWindowMonths
	}
	logger := j.logger().With(slog.Int("window_months", payload.WindowMonths), slog.Bool("auto_correct", payload.AutoCorrect))

	stores := payload.StoreIDs
	if len(stores) == 0 {
		ids, err := j.Ledger.StoreIDs(ctx)
		if err != nil {
			logger.Error("list stores", slog.Any("error", err))
			return nil, fmt.Errorf("ledger integrity: list stores: %w", err)
		}
		stores = ids
	}

	now := j.now()
	from, _ := shared.MonthBounds(now.AddDate(0, -(payload.WindowMonths - 1), 0))
	start := time.Now()
	logger.Info("starting ledger integrity audit", slog.Int("stores", len(stores)))

	outcomes := make([]StoreOutcome, len(stores))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism())
	for i, storeID := range stores {
		g.Go(func() error {
			outcome := j.auditStore(gctx, storeID, from, now, payload.AutoCorrect)
			outcomes[i] = outcome
			if outcome.Err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("store %d: %w", storeID, outcome.Err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	unhealthy := 0
	for _, o := range outcomes {
		if o.Err == nil && !o.Report.Healthy() {
			unhealthy++
		}
	}
	logger.Info("completed ledger integrity audit",
		slog.Int("stores", len(stores)),
		slog.Int("unhealthy", unhealthy),
		slog.Int("failed", len(errs)),
		slog.Duration("duration", time.Since(start)),
	)
	return outcomes, errors.Join(errs...)
}

func (j *LedgerIntegrityJob) auditStore(ctx context.Context, storeID int64, from, to time.Time, autoCorrect bool) StoreOutcome {
	outcome := StoreOutcome{StoreID: storeID}
	logger := j.logger().With(slog.Int64("store_id", storeID))

	if autoCorrect {
		corrections, err := j.Ledger.RecalculateEntryTotals(ctx, storeID, nil)
		if err != nil {
			outcome.Err = err
			logger.Error("recalculate entry totals", slog.Any("error", err))
			return outcome
		}
		outcome.Corrections = &corrections
		j.recordCorrections(storeID, corrections)
		for _, f := range corrections.Failures {
			logger.Warn("entry left for manual review",
				slog.Int64("entry_id", f.EntryID),
				slog.String("error_type", string(f.ErrorType)),
				slog.Int("suggested_lines", len(f.Suggestion)),
				slog.Any("error", f.Err),
			)
		}
	}

	report, err := j.Ledger.Audit(ctx, storeID, from, to)
	if err != nil {
		outcome.Err = err
		logger.Error("integrity audit", slog.Any("error", err))
		return outcome
	}
	outcome.Report = report
	for _, f := range report.Errors {
		logger.Warn("ledger integrity error",
			slog.String("kind", f.Kind),
			slog.String("severity", string(f.Severity)),
			slog.Int64("entry_id", f.EntryID),
			slog.String("message", f.Message),
		)
		j.metrics().AddFindings(string(f.Severity), f.Kind, storeID, 1)
	}
	for _, f := range report.Warnings {
		j.metrics().AddFindings(string(f.Severity), f.Kind, storeID, 1)
	}
	return outcome
}

func (j *LedgerIntegrityJob) recordCorrections(storeID int64, r integrity.CorrectionReport) {
	m := j.metrics()
	m.AddCorrections(correctionOutcomeOK, storeID, r.Corrected)
	m.AddCorrections(correctionOutcomeFix, storeID, r.TotalsFixed)
	m.AddCorrections(correctionOutcomeFail, storeID, len(r.Failures))
}

// HandleRecalculate executes TaskLedgerRecalculateTotals.
func (j *LedgerIntegrityJob) HandleRecalculate(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload RecalculateTotalsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.StoreID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskLedgerRecalculateTotals)
	report, err := j.Ledger.RecalculateEntryTotals(ctx, payload.StoreID, payload.EntryIDs)
	if err != nil {
		return tracker.End(err)
	}
	j.recordCorrections(payload.StoreID, report)
	j.logger().Info("recalculated entry totals",
		slog.Int64("store_id", payload.StoreID),
		slog.Int("processed", report.Processed),
		slog.Int("corrected", report.Corrected),
		slog.Int("totals_fixed", report.TotalsFixed),
		slog.Int("failed", len(report.Failures)),
	)
	return tracker.End(nil)
}

func (j *LedgerIntegrityJob) parallelism() int {
	if j.Parallelism > 0 {
		return j.Parallelism
	}
	return defaultAuditParallel
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrityAudit))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrityAudit))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
