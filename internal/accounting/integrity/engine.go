package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	// ErrCriticalDifference marks imbalances too large to correct automatically.
	ErrCriticalDifference = errors.New("integrity: critical difference requires manual review")
	// ErrOrphanEntry marks a posted entry without lines.
	ErrOrphanEntry = errors.New("integrity: posted entry has no lines")

	errNoUsableLine = errors.New("integrity: no usable balancing line")
	errPanic        = errors.New("integrity: unexpected failure")
)

var adjustmentHint = regexp.MustCompile(`(?i)adjust|differen|rounding|ajuste|diferencia|redondeo`)

// Engine audits posted entries and corrects the ones that drifted out of balance.
type Engine struct {
	repo        Repository
	provisioner AccountProvisioner
	cache       journals.BalanceInvalidator
	audit       shared.AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewEngine wires the engine. provisioner, cache and audit may be nil.
func NewEngine(repo Repository, provisioner AccountProvisioner, cache journals.BalanceInvalidator, audit shared.AuditPort, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, provisioner: provisioner, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

type outcomeKind int

const (
	outcomeClean outcomeKind = iota
	outcomeSkipped
	outcomeTotalsFixed
	outcomeCorrected
)

type outcome struct {
	kind           outcomeKind
	classification Classification
	correction     *Correction
	suggestion     []Adjustment
}

// RecalculateEntryTotals re-derives the totals of posted entries and balances the ones
// that drifted. An empty entryIDs processes every posted entry of the store. Failures
// are collected per entry and never stop the batch.
func (e *Engine) RecalculateEntryTotals(ctx context.Context, storeID int64, entryIDs []int64) (CorrectionReport, error) {
	if storeID <= 0 {
		return CorrectionReport{}, shared.ErrStoreRequired
	}
	ids := entryIDs
	if len(ids) == 0 {
		var err error
		ids, err = e.repo.ListPostedEntryIDs(ctx, storeID)
		if err != nil {
			return CorrectionReport{}, fmt.Errorf("list posted entries: %w", err)
		}
	}
	hist, err := e.repo.CorrectionHistory(ctx, storeID)
	if err != nil {
		e.logger.Warn("correction history unavailable", slog.Int64("store_id", storeID), slog.Any("error", err))
		hist = History{}
	}

	var report CorrectionReport
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		out, err := e.correctOne(ctx, storeID, id, hist)
		if err != nil {
			e.logger.Warn("entry correction failed", slog.Int64("store_id", storeID), slog.Int64("entry_id", id), slog.Any("error", err))
			report.Failures = append(report.Failures, CorrectionFailure{EntryID: id, ErrorType: out.classification.Type, Err: err, Suggestion: out.suggestion})
			continue
		}
		switch out.kind {
		case outcomeSkipped, outcomeClean:
			report.Skipped++
		case outcomeTotalsFixed:
			report.TotalsFixed++
		case outcomeCorrected:
			report.Corrected++
			report.Corrections = append(report.Corrections, *out.correction)
			shared.RecordAudit(ctx, e.audit, internalShared.AuditLog{
				StoreID:  storeID,
				Action:   "journal.auto_correct",
				Entity:   "journal_entry",
				EntityID: strconv.FormatInt(id, 10),
				Meta: map[string]any{
					"diff_bs":    out.correction.DiffBS.StringFixed(2),
					"diff_usd":   out.correction.DiffUSD.StringFixed(2),
					"error_type": string(out.correction.ErrorType),
				},
				At: e.now(),
			})
		}
	}
	if report.Corrected > 0 || report.TotalsFixed > 0 {
		if e.cache != nil {
			e.cache.Invalidate(ctx, storeID)
		}
	}
	return report, nil
}

func (e *Engine) correctOne(ctx context.Context, storeID, entryID int64, hist History) (out outcome, err error) {
	out, err = e.safeCorrect(ctx, storeID, entryID, hist)
	if !errors.Is(err, errNoUsableLine) || e.provisioner == nil {
		return out, err
	}
	if _, perr := e.provisioner.EnsureAdjustmentAccount(ctx, storeID); perr != nil {
		return out, fmt.Errorf("provision adjustment account: %w", perr)
	}
	return e.safeCorrect(ctx, storeID, entryID, hist)
}

func (e *Engine) safeCorrect(ctx context.Context, storeID, entryID int64, hist History) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("entry correction panicked", slog.Int64("entry_id", entryID), slog.Any("panic", r))
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		out, txErr = e.correctInTx(ctx, tx, storeID, entryID, hist)
		return txErr
	})
	return out, err
}

func (e *Engine) correctInTx(ctx context.Context, tx TxRepository, storeID, entryID int64, hist History) (outcome, error) {
	entry, err := tx.GetEntryForUpdate(ctx, storeID, entryID)
	if err != nil {
		return outcome{}, err
	}
	if entry.Status != journals.StatusPosted {
		return outcome{kind: outcomeSkipped}, nil
	}
	if len(entry.Lines) == 0 {
		return outcome{}, ErrOrphanEntry
	}

	sums := lineSums(entry.Lines)
	diffBS := sums.DebitBS.Sub(sums.CreditBS)
	diffUSD := sums.DebitUSD.Sub(sums.CreditUSD)
	now := e.now()

	if diffBS.Abs().LessThanOrEqual(shared.Tolerance) && diffUSD.Abs().LessThanOrEqual(shared.Tolerance) {
		if sums.Equal(entry.Totals()) {
			return outcome{kind: outcomeClean}, nil
		}
		if err := tx.UpdateEntryTotals(ctx, storeID, entry.ID, sums); err != nil {
			return outcome{}, fmt.Errorf("update totals: %w", err)
		}
		return outcome{kind: outcomeTotalsFixed}, nil
	}

	class := Classify(dominantDiff(diffBS, diffUSD).InexactFloat64(), lineFloats(entry.Lines), hist)
	out := outcome{classification: class}
	limits := ThresholdsFor(sums)
	if limits.IsCritical(diffBS) || limits.IsCritical(diffUSD) {
		out.suggestion = spreadSuggestion(entry.Lines, diffBS)
		return out, fmt.Errorf("%w: diff %s BS / %s USD", ErrCriticalDifference, diffBS.StringFixed(2), diffUSD.StringFixed(2))
	}

	period, err := tx.EnsurePeriod(ctx, storeID, entry.Date)
	if err != nil {
		return out, fmt.Errorf("resolve period: %w", err)
	}
	if period.Status == shared.PeriodStatusLocked {
		return out, shared.ErrPeriodLocked
	}

	line, err := e.balancingLine(ctx, tx, storeID, entry, diffBS, diffUSD, class.Type)
	if err != nil {
		return out, err
	}

	if err := tx.UpsertBalances(ctx, storeID, entry.Date, []balances.Delta{{AccountID: line.delta.AccountID, Amounts: line.delta.Amounts}}, now); err != nil {
		return out, fmt.Errorf("update balances: %w", err)
	}
	totals := lineSums(line.lines)
	if err := tx.UpdateEntryTotals(ctx, storeID, entry.ID, totals); err != nil {
		return out, fmt.Errorf("update totals: %w", err)
	}
	correction := Correction{
		StoreID:     storeID,
		EntryID:     entry.ID,
		LineID:      line.lineID,
		DiffBS:      diffBS,
		DiffUSD:     diffUSD,
		ErrorType:   class.Type,
		Reason:      class.Reason,
		CorrectedAt: now,
	}
	if err := tx.InsertCorrection(ctx, correction); err != nil {
		return out, fmt.Errorf("record correction: %w", err)
	}
	out.kind = outcomeCorrected
	out.correction = &correction
	return out, nil
}

type balanced struct {
	lineID int64
	lines  []journals.Line
	delta  balances.Delta
}

// balancingLine rewrites an existing line, or appends one on the adjustments account,
// so that the entry's lines balance exactly in both currencies.
func (e *Engine) balancingLine(ctx context.Context, tx TxRepository, storeID int64, entry journals.Entry, diffBS, diffUSD decimal.Decimal, kind ErrorType) (balanced, error) {
	ids := make([]int64, 0, len(entry.Lines))
	for _, l := range entry.Lines {
		ids = append(ids, l.AccountID)
	}
	accts, err := tx.AccountsForPosting(ctx, storeID, ids)
	if err != nil {
		return balanced{}, fmt.Errorf("load accounts: %w", err)
	}
	note := annotation(diffBS, diffUSD, kind)

	if idx := pickLine(entry.Lines, accts); idx >= 0 {
		lines := append([]journals.Line(nil), entry.Lines...)
		before := lines[idx].Amounts()
		lines[idx] = adjustLine(lines[idx], diffBS, diffUSD, note)
		if err := tx.UpdateLine(ctx, lines[idx]); err != nil {
			return balanced{}, fmt.Errorf("update line: %w", err)
		}
		return balanced{
			lineID: lines[idx].ID,
			lines:  lines,
			delta:  balances.Delta{AccountID: lines[idx].AccountID, Amounts: lines[idx].Amounts().Add(before.Neg())},
		}, nil
	}

	acc, err := tx.FindAccountByCode(ctx, storeID, accounts.CodeAdjustments)
	if err != nil {
		if shared.IsNotFound(err) {
			return balanced{}, errNoUsableLine
		}
		return balanced{}, fmt.Errorf("load adjustments account: %w", err)
	}
	if !acc.Postable() {
		return balanced{}, errNoUsableLine
	}
	next := 0
	for _, l := range entry.Lines {
		if l.LineNumber > next {
			next = l.LineNumber
		}
	}
	added := adjustLine(journals.Line{EntryID: entry.ID, LineNumber: next + 1, AccountID: acc.ID}, diffBS, diffUSD, "")
	added.Description = strings.TrimSpace(accounts.NameAdjustments + " " + note)
	inserted, err := tx.InsertLines(ctx, entry.ID, []journals.Line{added})
	if err != nil {
		return balanced{}, fmt.Errorf("insert adjustment line: %w", err)
	}
	if len(inserted) == 1 {
		added = inserted[0]
	}
	return balanced{
		lineID: added.ID,
		lines:  append(append([]journals.Line(nil), entry.Lines...), added),
		delta:  balances.Delta{AccountID: acc.ID, Amounts: added.Amounts()},
	}, nil
}

// spreadSuggestion proposes credit amounts that absorb the difference proportionally,
// for a reviewer to apply by hand. The currency with the larger drift is used.
func spreadSuggestion(lines []journals.Line, diffBS decimal.Decimal) []Adjustment {
	useBS := diffBS.Abs().GreaterThan(shared.Tolerance)
	var credits []ReconcileLine
	target := decimal.Zero
	for _, l := range lines {
		debit, credit := l.DebitUSD, l.CreditUSD
		if useBS {
			debit, credit = l.DebitBS, l.CreditBS
		}
		target = target.Add(debit)
		if credit.IsPositive() {
			credits = append(credits, ReconcileLine{ID: l.ID, Amount: credit})
		}
	}
	adj, err := Reconcile(credits, target)
	if err != nil {
		return nil
	}
	return adj
}

// pickLine prefers the last postable line whose description marks it as an adjustment,
// then the highest-numbered postable line. -1 means none qualifies.
func pickLine(lines []journals.Line, accts map[int64]accounts.Account) int {
	usable := func(l journals.Line) bool {
		acc, ok := accts[l.AccountID]
		return ok && acc.Postable()
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if usable(lines[i]) && adjustmentHint.MatchString(lines[i].Description) {
			return i
		}
	}
	best := -1
	for i, l := range lines {
		if !usable(l) {
			continue
		}
		if best < 0 || l.LineNumber > lines[best].LineNumber {
			best = i
		}
	}
	return best
}

// adjustLine removes diff (debit minus credit) from the line's net position, keeping
// both sides non-negative.
func adjustLine(l journals.Line, diffBS, diffUSD decimal.Decimal, note string) journals.Line {
	l.DebitBS, l.CreditBS = rebalance(l.DebitBS, l.CreditBS, diffBS)
	l.DebitUSD, l.CreditUSD = rebalance(l.DebitUSD, l.CreditUSD, diffUSD)
	if note != "" {
		l.Description = strings.TrimSpace(l.Description + " " + note)
	}
	return l
}

func rebalance(debit, credit, diff decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if diff.IsZero() {
		return debit, credit
	}
	net := debit.Sub(credit).Sub(diff)
	if net.IsNegative() {
		return decimal.Zero, net.Neg()
	}
	return net, decimal.Zero
}

func annotation(diffBS, diffUSD decimal.Decimal, kind ErrorType) string {
	return fmt.Sprintf("[ajuste automatico %s BS / %s USD: %s]", diffBS.StringFixed(2), diffUSD.StringFixed(2), kind)
}

func dominantDiff(bs, usd decimal.Decimal) decimal.Decimal {
	if bs.Abs().GreaterThan(shared.Tolerance) {
		return bs
	}
	return usd
}

func lineSums(lines []journals.Line) balances.Amounts {
	cols := [4][]decimal.Decimal{}
	for _, l := range lines {
		cols[0] = append(cols[0], l.DebitBS)
		cols[1] = append(cols[1], l.CreditBS)
		cols[2] = append(cols[2], l.DebitUSD)
		cols[3] = append(cols[3], l.CreditUSD)
	}
	return balances.Amounts{
		DebitBS:   SumAmounts(cols[0]),
		CreditBS:  SumAmounts(cols[1]),
		DebitUSD:  SumAmounts(cols[2]),
		CreditUSD: SumAmounts(cols[3]),
	}
}

func lineFloats(lines []journals.Line) []float64 {
	out := make([]float64, 0, len(lines)*2)
	for _, l := range lines {
		for _, v := range []decimal.Decimal{l.DebitBS, l.CreditBS, l.DebitUSD, l.CreditUSD} {
			if !v.IsZero() {
				out = append(out, v.InexactFloat64())
			}
		}
	}
	return out
}

// Audit scans posted entries dated within [from, to] plus the balance buckets and the
// trial balance of the store. Problems become findings; a failing check becomes a
// check_failed finding instead of aborting the audit.
func (e *Engine) Audit(ctx context.Context, storeID int64, from, to time.Time) (Report, error) {
	if storeID <= 0 {
		return Report{}, shared.ErrStoreRequired
	}
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if to.Before(from) {
		return Report{}, shared.Invalid("to", shared.ErrDateOutOfRange, "to precedes from")
	}
	report := Report{StoreID: storeID, From: from, To: to, GeneratedAt: e.now()}

	entries, err := e.repo.ScanPostedEntries(ctx, storeID, from, to)
	if err != nil {
		return report, fmt.Errorf("scan entries: %w", err)
	}
	report.EntriesScanned = len(entries)
	hist, err := e.repo.CorrectionHistory(ctx, storeID)
	if err != nil {
		e.logger.Warn("correction history unavailable", slog.Int64("store_id", storeID), slog.Any("error", err))
	}

	var amounts []float64
	for _, entry := range entries {
		e.safe(&report, fmt.Sprintf("entry %s", entry.Number), func() {
			auditEntry(&report, entry, hist)
		})
		amounts = append(amounts, lineFloats(entry.Lines)...)
	}

	e.safe(&report, "benford", func() {
		if nonzeroCount(amounts) < benfordMinSample {
			return
		}
		res := BenfordTest(amounts)
		report.Benford = &res
		if res.IsAnomalous {
			report.addWarning(Finding{
				Kind:     KindBenford,
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("first-digit distribution deviates (chi2=%.2f, digits %v)", res.ChiSquare, res.SuspiciousDigits),
			})
		}
	})

	first, _ := shared.MonthBounds(from)
	prev, err := e.repo.ListBuckets(ctx, storeID, first.AddDate(0, -1, 0))
	if err != nil {
		e.logger.Warn("opening baseline unavailable", slog.Int64("store_id", storeID), slog.Any("error", err))
	}
	for month := first; !month.After(to); month = month.AddDate(0, 1, 0) {
		earlier := prev
		prev = nil
		e.safe(&report, "buckets "+shared.PeriodCode(month), func() {
			prev = e.auditBuckets(ctx, &report, storeID, month, earlier)
		})
	}

	e.safe(&report, "trial balance", func() {
		rows, err := e.repo.TrialBalanceRows(ctx, storeID, to)
		if err != nil {
			panic(fmt.Errorf("trial balance rows: %w", err))
		}
		tb := reports.BuildTrialBalance(rows)
		if tb.Balanced() {
			return
		}
		report.addError(Finding{
			Kind:     KindTrialBalance,
			Severity: SeverityCritical,
			DiffBS:   tb.Totals.DebitBS.Sub(tb.Totals.CreditBS),
			DiffUSD:  tb.Totals.DebitUSD.Sub(tb.Totals.CreditUSD),
			Message:  "trial balance debits and credits differ",
		})
	})

	e.logger.Info("integrity audit finished",
		slog.Int64("store_id", storeID),
		slog.Int("entries", report.EntriesScanned),
		slog.Int("errors", len(report.Errors)),
		slog.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

func auditEntry(report *Report, entry journals.Entry, hist History) {
	if len(entry.Lines) == 0 {
		report.addError(Finding{
			Kind:     KindOrphanEntry,
			Severity: SeverityHigh,
			EntryID:  entry.ID,
			Number:   entry.Number,
			Message:  "posted entry has no lines",
		})
		return
	}
	sums := lineSums(entry.Lines)
	stored := entry.Totals()
	if !columnsWithinTolerance(sums, stored) {
		report.addWarning(Finding{
			Kind:     KindTotalsMismatch,
			Severity: SeverityMedium,
			EntryID:  entry.ID,
			Number:   entry.Number,
			DiffBS:   stored.DebitBS.Sub(sums.DebitBS).Sub(stored.CreditBS.Sub(sums.CreditBS)),
			DiffUSD:  stored.DebitUSD.Sub(sums.DebitUSD).Sub(stored.CreditUSD.Sub(sums.CreditUSD)),
			Message:  "stored totals differ from line sums",
		})
	}
	diffBS := sums.DebitBS.Sub(sums.CreditBS)
	diffUSD := sums.DebitUSD.Sub(sums.CreditUSD)
	if diffBS.Abs().LessThanOrEqual(shared.Tolerance) && diffUSD.Abs().LessThanOrEqual(shared.Tolerance) {
		return
	}
	dominant := dominantDiff(diffBS, diffUSD)
	class := Classify(dominant.InexactFloat64(), lineFloats(entry.Lines), hist)
	report.addError(Finding{
		Kind:      KindUnbalancedEntry,
		Severity:  ThresholdsFor(sums).Severity(dominant),
		EntryID:   entry.ID,
		Number:    entry.Number,
		DiffBS:    diffBS,
		DiffUSD:   diffUSD,
		ErrorType: class.Type,
		Message:   class.Reason,
	})
}

// auditBuckets checks closing = opening + period for every bucket of month and that
// each opening carries the closing of the account's bucket in the previous month.
// It returns the month's buckets as the baseline for the next one.
func (e *Engine) auditBuckets(ctx context.Context, report *Report, storeID int64, month time.Time, earlier []balances.Bucket) []balances.Bucket {
	buckets, err := e.repo.ListBuckets(ctx, storeID, month)
	if err != nil {
		panic(fmt.Errorf("list buckets: %w", err))
	}
	previous := make(map[int64]balances.Bucket, len(earlier))
	for _, b := range earlier {
		previous[b.AccountID] = b
	}
	for _, b := range buckets {
		if p, ok := previous[b.AccountID]; ok && !b.Opening.Equal(p.Closing) {
			report.addError(Finding{
				Kind:      KindOpeningMismatch,
				Severity:  SeverityHigh,
				AccountID: b.AccountID,
				DiffBS:    b.Opening.DebitBS.Sub(p.Closing.DebitBS).Sub(b.Opening.CreditBS.Sub(p.Closing.CreditBS)),
				DiffUSD:   b.Opening.DebitUSD.Sub(p.Closing.DebitUSD).Sub(b.Opening.CreditUSD.Sub(p.Closing.CreditUSD)),
				Message:   fmt.Sprintf("opening of %s differs from closing of %s", shared.PeriodCode(month), shared.PeriodCode(p.PeriodStart)),
			})
		}
		if b.Consistent() {
			continue
		}
		want := b.Opening.Add(b.Period)
		report.addError(Finding{
			Kind:      KindBucketMismatch,
			Severity:  SeverityHigh,
			AccountID: b.AccountID,
			DiffBS:    b.Closing.DebitBS.Sub(want.DebitBS).Sub(b.Closing.CreditBS.Sub(want.CreditBS)),
			DiffUSD:   b.Closing.DebitUSD.Sub(want.DebitUSD).Sub(b.Closing.CreditUSD.Sub(want.CreditUSD)),
			Message:   fmt.Sprintf("closing differs from opening plus period for %s", shared.PeriodCode(month)),
		})
	}
	return buckets
}

// safe runs one audit check, converting a panic into a check_failed finding.
func (e *Engine) safe(report *Report, check string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("integrity check failed", slog.String("check", check), slog.Any("error", r))
			report.addError(Finding{
				Kind:     KindCheckFailed,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("%s: %v", check, r),
			})
		}
	}()
	fn()
}

func columnsWithinTolerance(a, b balances.Amounts) bool {
	return shared.Balanced(a.DebitBS, b.DebitBS) &&
		shared.Balanced(a.CreditBS, b.CreditBS) &&
		shared.Balanced(a.DebitUSD, b.DebitUSD) &&
		shared.Balanced(a.CreditUSD, b.CreditUSD)
}
