package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Locker serialises close and reopen of the same store period across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service drives the OPEN → CLOSED → OPEN / LOCKED period state machine.
type Service struct {
	repo     Repository
	audit    shared.AuditPort
	cache    journals.BalanceInvalidator
	locker   Locker
	income   IncomeStatementProvider
	logger   *slog.Logger
	validate *validator.Validate
	printer  *message.Printer
	now      func() time.Time
}

// NewService wires the close engine. audit and cache may be nil.
func NewService(repo Repository, audit shared.AuditPort, cache journals.BalanceInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		cache:    cache,
		logger:   logger,
		validate: validator.New(),
		printer:  message.NewPrinter(language.Spanish),
		now:      time.Now,
	}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocker sets the distributed lock used around close and reopen.
func (s *Service) WithLocker(locker Locker) {
	s.locker = locker
}

// WithIncomeStatement sets the provider gating closing entries on net income.
func (s *Service) WithIncomeStatement(provider IncomeStatementProvider) {
	s.income = provider
}

// Get returns the period of a store by code.
func (s *Service) Get(ctx context.Context, storeID int64, code string) (Period, error) {
	if storeID <= 0 {
		return Period{}, shared.ErrStoreRequired
	}
	return s.repo.Get(ctx, storeID, code)
}

// List returns the periods of a store, latest first.
func (s *Service) List(ctx context.Context, storeID int64) ([]Period, error) {
	if storeID <= 0 {
		return nil, shared.ErrStoreRequired
	}
	return s.repo.List(ctx, storeID)
}

// ClosePeriod zeroes revenue and expense accounts into equity and marks the period CLOSED.
func (s *Service) ClosePeriod(ctx context.Context, in ClosePeriodInput) (CloseResult, error) {
	if err := s.validateClose(in); err != nil {
		return CloseResult{}, err
	}
	start := shared.DateOnly(in.Start)
	end := shared.DateOnly(in.End)
	code := shared.PeriodCode(start)

	var result CloseResult
	err := s.withLock(ctx, internalShared.PeriodLockKey(in.StoreID, code), func(ctx context.Context) error {
		var provided *NetIncome
		if s.income != nil {
			net, err := s.income(ctx, in.StoreID, start, end)
			if err != nil {
				return fmt.Errorf("income statement: %w", err)
			}
			provided = &net
		}
		return journals.RetryConflict(func() error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				var err error
				result, err = s.closeInTx(ctx, tx, in, start, end, provided)
				return err
			})
		})
	})
	if err != nil {
		return CloseResult{}, err
	}
	for _, w := range result.Warnings {
		s.logger.Warn("period close", slog.Int64("store_id", in.StoreID), slog.String("period", code), slog.String("warning", w))
	}
	if result.ClosingEntry != nil {
		s.invalidate(ctx, in.StoreID)
	}
	meta := map[string]any{
		"code":           code,
		"net_income_bs":  result.NetIncome.BS.StringFixed(2),
		"net_income_usd": result.NetIncome.USD.StringFixed(2),
	}
	if result.ClosingEntry != nil {
		meta["closing_entry"] = result.ClosingEntry.Number
	}
	if result.YearEndEntry != nil {
		meta["year_end_entry"] = result.YearEndEntry.Number
	}
	s.record(ctx, in.ActorID, "period.close", result.Period, meta)
	return result, nil
}

func (s *Service) closeInTx(ctx context.Context, tx TxRepository, in ClosePeriodInput, start, end time.Time, provided *NetIncome) (CloseResult, error) {
	now := s.now()
	period, err := tx.EnsurePeriod(ctx, in.StoreID, start)
	if err != nil {
		return CloseResult{}, err
	}
	// Postings into the period wait on this lock; sums below see every committed one.
	if period, err = tx.GetPeriodForUpdate(ctx, in.StoreID, period.Code); err != nil {
		return CloseResult{}, err
	}
	if err := shared.ValidatePeriodTransition(period.Status, shared.PeriodStatusClosed); err != nil {
		return CloseResult{}, err
	}

	nominal, err := tx.ListAccountsByType(ctx, in.StoreID, accounts.AccountTypeRevenue, accounts.AccountTypeExpense)
	if err != nil {
		return CloseResult{}, err
	}
	balancesByID, err := signedBalances(ctx, tx, in.StoreID, nominal, end)
	if err != nil {
		return CloseResult{}, err
	}
	plan := planClosing(nominal, balancesByID)
	result := CloseResult{NetIncome: plan.net, Warnings: plan.warnings}
	if provided != nil {
		result.NetIncome = *provided
	}

	if !result.NetIncome.IsZero() && len(plan.lines) > 0 {
		equity, err := tx.ListAccountsByType(ctx, in.StoreID, accounts.AccountTypeEquity)
		if err != nil {
			return CloseResult{}, err
		}
		target, _, ok := resolve(equityFallbackChain, equity, 0)
		if !ok {
			return CloseResult{}, shared.Invalid("equity", shared.ErrEquityAccountNotFound, "store %d", in.StoreID)
		}
		lines := append(plan.lines, equityLine(target.ID, plan.net, "Resultado del período "+period.Code))
		closing, err := journals.Write(ctx, tx, journals.CreateInput{
			StoreID:     in.StoreID,
			Date:        end,
			Type:        journals.TypePeriodClose,
			SourceType:  SourcePeriodClose,
			SourceID:    newSourceID(),
			Description: "Cierre del período " + period.Code,
			ActorID:     in.ActorID,
			Lines:       lines,
		}, journals.WriteOptions{Status: journals.StatusPosted, AutoGenerated: true, Now: now})
		if err != nil {
			return CloseResult{}, err
		}
		result.ClosingEntry = &closing
		period.ClosingEntryID = &closing.ID

		if isYearEnd(end) && isCurrentYearResult(target) {
			yearEnd, warning, err := s.transferYearEnd(ctx, tx, in, target, equity, end, now)
			if err != nil {
				return CloseResult{}, err
			}
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
			}
			if yearEnd != nil {
				result.YearEndEntry = yearEnd
				period.YearEndEntryID = &yearEnd.ID
			}
		}
	} else if !result.NetIncome.IsZero() {
		result.Warnings = append(result.Warnings, "net income reported but no nominal account carries a balance")
	}

	period.Status = shared.PeriodStatusClosed
	period.ClosedAt = &now
	actor := in.ActorID
	period.ClosedBy = &actor
	period.ClosingNote = s.closingNote(period, result.NetIncome, in.Note)
	if err := tx.UpdatePeriod(ctx, period); err != nil {
		return CloseResult{}, err
	}
	result.Period = period
	return result, nil
}

func (s *Service) transferYearEnd(ctx context.Context, tx TxRepository, in ClosePeriodInput, result accounts.Account, equity []accounts.Account, end, now time.Time) (*journals.Entry, string, error) {
	retained, _, ok := resolve(retainedEarningsChain, equity, result.ID)
	if !ok {
		return nil, "no retained earnings account; year-end transfer skipped", nil
	}
	sums, err := tx.SumPostedLines(ctx, in.StoreID, []int64{result.ID}, end)
	if err != nil {
		return nil, "", err
	}
	bal := balances.Signed(result.ID, result.Nature(), sums[result.ID])
	if bal.BalanceBS.Abs().LessThan(shared.Tolerance) && bal.BalanceUSD.Abs().LessThan(shared.Tolerance) {
		return nil, "", nil
	}
	// a gain sits on the credit side of the result account
	resultDebitBS, resultCreditBS := split(bal.BalanceBS, true)
	resultDebitUSD, resultCreditUSD := split(bal.BalanceUSD, true)
	entry, err := journals.Write(ctx, tx, journals.CreateInput{
		StoreID:     in.StoreID,
		Date:        end,
		Type:        journals.TypeYearEnd,
		SourceType:  SourceYearEnd,
		SourceID:    newSourceID(),
		Description: fmt.Sprintf("Traspaso de resultados %d", end.Year()),
		ActorID:     in.ActorID,
		Lines: []journals.LineInput{
			{AccountID: result.ID, DebitBS: resultDebitBS, CreditBS: resultCreditBS, DebitUSD: resultDebitUSD, CreditUSD: resultCreditUSD},
			{AccountID: retained.ID, DebitBS: resultCreditBS, CreditBS: resultDebitBS, DebitUSD: resultCreditUSD, CreditUSD: resultDebitUSD},
		},
	}, journals.WriteOptions{Status: journals.StatusPosted, AutoGenerated: true, Now: now})
	if err != nil {
		return nil, "", err
	}
	return &entry, "", nil
}

// ReopenPeriod moves a CLOSED period back to OPEN, cancelling its generated entries.
func (s *Service) ReopenPeriod(ctx context.Context, storeID int64, code string, actorID int64, reason string) (Period, error) {
	if storeID <= 0 {
		return Period{}, shared.ErrStoreRequired
	}
	code = strings.TrimSpace(code)
	var period Period
	var cancelled int
	err := s.withLock(ctx, internalShared.PeriodLockKey(storeID, code), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetPeriodForUpdate(ctx, storeID, code)
			if err != nil {
				return err
			}
			if err := shared.ValidatePeriodTransition(current.Status, shared.PeriodStatusOpen); err != nil {
				return err
			}
			now := s.now()
			current.Status = shared.PeriodStatusOpen
			current.ClosedAt = nil
			current.ClosedBy = nil
			if err := tx.UpdatePeriod(ctx, current); err != nil {
				return err
			}
			cancelReason := fmt.Sprintf("period %s reopened: %s", code, reason)
			for _, id := range []*int64{current.YearEndEntryID, current.ClosingEntryID} {
				if id == nil {
					continue
				}
				entry, err := tx.GetEntryForUpdate(ctx, storeID, *id)
				if errors.Is(err, shared.ErrJournalNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if entry.Status != journals.StatusPosted {
					continue
				}
				if _, err := journals.Cancel(ctx, tx, entry, actorID, cancelReason, now); err != nil {
					return err
				}
				cancelled++
			}
			current.ClosingEntryID = nil
			current.YearEndEntryID = nil
			current.ClosingNote = appendNote(current.ClosingNote, fmt.Sprintf("[%s] reabierto por %d: %s", now.Format(time.RFC3339), actorID, reason))
			if err := tx.UpdatePeriod(ctx, current); err != nil {
				return err
			}
			period = current
			return nil
		})
	})
	if err != nil {
		return Period{}, err
	}
	if cancelled > 0 {
		s.invalidate(ctx, storeID)
	}
	s.record(ctx, actorID, "period.reopen", period, map[string]any{"code": code, "reason": reason, "cancelled_entries": cancelled})
	return period, nil
}

// LockPeriod moves a CLOSED period to LOCKED. Locked periods never reopen.
func (s *Service) LockPeriod(ctx context.Context, storeID int64, code string, actorID int64) (Period, error) {
	if storeID <= 0 {
		return Period{}, shared.ErrStoreRequired
	}
	var period Period
	err := s.withLock(ctx, internalShared.PeriodLockKey(storeID, code), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetPeriodForUpdate(ctx, storeID, code)
			if err != nil {
				return err
			}
			if err := shared.ValidatePeriodTransition(current.Status, shared.PeriodStatusLocked); err != nil {
				return err
			}
			current.Status = shared.PeriodStatusLocked
			if err := tx.UpdatePeriod(ctx, current); err != nil {
				return err
			}
			period = current
			return nil
		})
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, actorID, "period.lock", period, map[string]any{"code": code})
	return period, nil
}

func (s *Service) validateClose(in ClosePeriodInput) error {
	if in.StoreID <= 0 {
		return shared.ErrStoreRequired
	}
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return shared.Invalid(strings.ToLower(verrs[0].Field()), shared.ErrInvalidPeriod, "failed on %s", verrs[0].Tag())
		}
		return err
	}
	if shared.DateOnly(in.End).Before(shared.DateOnly(in.Start)) {
		return shared.Invalid("end", shared.ErrDateOutOfRange, "end before start")
	}
	if shared.PeriodCode(in.Start) != shared.PeriodCode(in.End) {
		return shared.Invalid("end", shared.ErrDateOutOfRange, "close spans more than one month")
	}
	return nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}

func (s *Service) invalidate(ctx context.Context, storeID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, storeID)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, p Period, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, internalShared.AuditLog{
		StoreID:  p.StoreID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "accounting_period",
		EntityID: strconv.FormatInt(p.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) closingNote(p Period, net NetIncome, note string) string {
	summary := s.printer.Sprintf("Cierre %s: resultado Bs %.2f, USD %.2f", p.Code, net.BS.InexactFloat64(), net.USD.InexactFloat64())
	if note = strings.TrimSpace(note); note != "" {
		summary += " | " + note
	}
	return appendNote(p.ClosingNote, summary)
}

type closingPlan struct {
	lines    []journals.LineInput
	net      NetIncome
	warnings []string
}

func signedBalances(ctx context.Context, tx TxRepository, storeID int64, accts []accounts.Account, asOf time.Time) (map[int64]balances.Balance, error) {
	ids := make([]int64, 0, len(accts))
	byID := make(map[int64]accounts.Account, len(accts))
	for _, a := range accts {
		ids = append(ids, a.ID)
		byID[a.ID] = a
	}
	sums, err := tx.SumPostedLines(ctx, storeID, ids, asOf)
	if err != nil {
		return nil, err
	}
	return balances.Compute(byID, sums), nil
}

// planClosing builds the lines zeroing every revenue and expense account with a balance.
func planClosing(nominal []accounts.Account, bals map[int64]balances.Balance) closingPlan {
	sorted := append([]accounts.Account(nil), nominal...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
	var plan closingPlan
	for _, a := range sorted {
		b := bals[a.ID]
		if b.BalanceBS.IsZero() && b.BalanceUSD.IsZero() {
			continue
		}
		if !a.Postable() {
			plan.warnings = append(plan.warnings, fmt.Sprintf("account %s is not postable and keeps its balance", a.Code))
			continue
		}
		revenue := a.Type == accounts.AccountTypeRevenue
		debitBS, creditBS := split(b.BalanceBS, revenue)
		debitUSD, creditUSD := split(b.BalanceUSD, revenue)
		plan.lines = append(plan.lines, journals.LineInput{
			AccountID:   a.ID,
			DebitBS:     debitBS,
			CreditBS:    creditBS,
			DebitUSD:    debitUSD,
			CreditUSD:   creditUSD,
			Description: "Cierre " + a.Code,
		})
		if revenue {
			plan.net.BS = plan.net.BS.Add(b.BalanceBS)
			plan.net.USD = plan.net.USD.Add(b.BalanceUSD)
		} else {
			plan.net.BS = plan.net.BS.Sub(b.BalanceBS)
			plan.net.USD = plan.net.USD.Sub(b.BalanceUSD)
		}
	}
	return plan
}

// equityLine books the net result: a gain is credited to equity, a loss debited.
func equityLine(accountID int64, net NetIncome, description string) journals.LineInput {
	creditBS, debitBS := split(net.BS, true)
	creditUSD, debitUSD := split(net.USD, true)
	return journals.LineInput{
		AccountID:   accountID,
		DebitBS:     debitBS,
		CreditBS:    creditBS,
		DebitUSD:    debitUSD,
		CreditUSD:   creditUSD,
		Description: description,
	}
}

// split returns (first, second) where first carries a positive v and second a negative v
// when positiveFirst is true, and the opposite otherwise.
func split(v decimal.Decimal, positiveFirst bool) (decimal.Decimal, decimal.Decimal) {
	pos := v.IsPositive()
	if pos == positiveFirst {
		return v.Abs(), decimal.Zero
	}
	return decimal.Zero, v.Abs()
}

func isYearEnd(d time.Time) bool {
	return d.Month() == time.December && d.Day() == 31
}

func appendNote(existing, line string) string {
	if strings.TrimSpace(existing) == "" {
		return line
	}
	return existing + "\n" + line
}

func newSourceID() *uuid.UUID {
	id := uuid.New()
	return &id
}
