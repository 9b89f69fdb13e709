package periods

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const store = int64(1)

type memLedger struct {
	accounts map[int64]accounts.Account
	periods  map[string]Period
	entries  map[int64]journals.Entry
	seq      int64
	nextID   int64
	updates  int
}

func newMemLedger(accts ...accounts.Account) *memLedger {
	m := &memLedger{
		accounts: map[int64]accounts.Account{},
		periods:  map[string]Period{},
		entries:  map[int64]journals.Entry{},
	}
	for _, a := range accts {
		a.StoreID = store
		a.IsActive = true
		a.AllowsEntries = true
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memLedger) Get(_ context.Context, storeID int64, code string) (Period, error) {
	p, ok := m.periods[code]
	if !ok || p.StoreID != storeID {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (m *memLedger) List(_ context.Context, storeID int64) ([]Period, error) {
	var out []Period
	for _, p := range m.periods {
		if p.StoreID == storeID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memLedger) EnsurePeriod(_ context.Context, storeID int64, date time.Time) (Period, error) {
	code := shared.PeriodCode(date)
	if p, ok := m.periods[code]; ok {
		return p, nil
	}
	start, end := shared.MonthBounds(date)
	p := Period{ID: int64(len(m.periods) + 1), StoreID: storeID, Code: code, StartDate: start, EndDate: end, Status: shared.PeriodStatusOpen}
	m.periods[code] = p
	return p, nil
}

func (m *memLedger) NextEntryNumber(_ context.Context, _ int64, date time.Time) (string, error) {
	m.seq++
	return journals.FormatNumber(date, m.seq), nil
}

func (m *memLedger) InsertEntry(_ context.Context, e journals.Entry) (journals.Entry, error) {
	m.nextID++
	e.ID = m.nextID
	m.entries[e.ID] = e
	return e, nil
}

func (m *memLedger) InsertLines(_ context.Context, entryID int64, lines []journals.Line) ([]journals.Line, error) {
	e := m.entries[entryID]
	e.Lines = lines
	m.entries[entryID] = e
	return lines, nil
}

func (m *memLedger) FindBySource(context.Context, int64, string, uuid.UUID) (journals.Entry, error) {
	return journals.Entry{}, shared.ErrJournalNotFound
}

func (m *memLedger) GetEntryForUpdate(_ context.Context, storeID, id int64) (journals.Entry, error) {
	e, ok := m.entries[id]
	if !ok || e.StoreID != storeID {
		return journals.Entry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (m *memLedger) MarkPosted(context.Context, int64, int64, int64, time.Time) error { return nil }

func (m *memLedger) MarkCancelled(_ context.Context, _ int64, id, _ int64, reason string, _ time.Time) error {
	e := m.entries[id]
	e.Status = journals.StatusCancelled
	e.CancelReason = reason
	m.entries[id] = e
	return nil
}

func (m *memLedger) AccountsForPosting(_ context.Context, _ int64, ids []int64) (map[int64]accounts.Account, error) {
	out := map[int64]accounts.Account{}
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memLedger) UpsertBalances(context.Context, int64, time.Time, []balances.Delta, time.Time) error {
	return nil
}

func (m *memLedger) GetPeriodForUpdate(ctx context.Context, storeID int64, code string) (Period, error) {
	return m.Get(ctx, storeID, code)
}

func (m *memLedger) UpdatePeriod(_ context.Context, p Period) error {
	m.updates++
	m.periods[p.Code] = p
	return nil
}

func (m *memLedger) ListAccountsByType(_ context.Context, _ int64, types ...accounts.AccountType) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range m.accounts {
		for _, t := range types {
			if a.Type == t {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// SumPostedLines derives sums from stored entries so cancellations are reflected.
func (m *memLedger) SumPostedLines(_ context.Context, _ int64, ids []int64, asOf time.Time) (map[int64]balances.Amounts, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[int64]balances.Amounts{}
	for _, e := range m.entries {
		if e.Status != journals.StatusPosted || e.Date.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			if want[l.AccountID] {
				out[l.AccountID] = out[l.AccountID].Add(l.Amounts())
			}
		}
	}
	return out, nil
}

func (m *memLedger) seedPosted(date time.Time, lines ...journals.Line) {
	m.nextID++
	m.entries[m.nextID] = journals.Entry{ID: m.nextID, StoreID: store, Date: date, Status: journals.StatusPosted, Lines: lines}
}

func (m *memLedger) balance(t *testing.T, id int64, asOf time.Time) balances.Balance {
	t.Helper()
	sums, err := m.SumPostedLines(context.Background(), store, []int64{id}, asOf)
	require.NoError(t, err)
	return balances.Signed(id, m.accounts[id].Nature(), sums[id])
}

type recordingLocker struct{ keys []string }

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx)
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

const (
	cashID     = int64(1)
	revenueID  = int64(2)
	expenseID  = int64(3)
	resultID   = int64(4)
	retainedID = int64(5)
	capitalID  = int64(6)
)

var (
	cash     = accounts.Account{ID: cashID, Code: "1.1.01", Name: "Caja", Type: accounts.AccountTypeAsset}
	revenue  = accounts.Account{ID: revenueID, Code: "4.1.01", Name: "Ventas", Type: accounts.AccountTypeRevenue}
	expense  = accounts.Account{ID: expenseID, Code: "5.1.01", Name: "Costo de ventas", Type: accounts.AccountTypeExpense}
	result   = accounts.Account{ID: resultID, Code: accounts.CodeResultadoEjercicio, Name: accounts.NameResultadoEjercicio, Type: accounts.AccountTypeEquity}
	retained = accounts.Account{ID: retainedID, Code: accounts.CodeUtilidadesAcumuladas, Name: accounts.NameUtilidadesAcumuladas, Type: accounts.AccountTypeEquity}
	capital  = accounts.Account{ID: capitalID, Code: accounts.CodeCapitalSocial, Name: accounts.NameCapitalSocial, Type: accounts.AccountTypeEquity}
)

func seedMonth(m *memLedger, month time.Month) {
	day := time.Date(2025, month, 10, 0, 0, 0, 0, time.UTC)
	m.seedPosted(day,
		journals.Line{AccountID: cashID, DebitBS: d("10000"), DebitUSD: d("250")},
		journals.Line{AccountID: revenueID, CreditBS: d("10000"), CreditUSD: d("250")},
	)
	m.seedPosted(day,
		journals.Line{AccountID: expenseID, DebitBS: d("6000"), DebitUSD: d("150")},
		journals.Line{AccountID: cashID, CreditBS: d("6000"), CreditUSD: d("150")},
	)
}

func newTestService(m *memLedger) *Service {
	svc := NewService(m, nil, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC) })
	return svc
}

func janInput() ClosePeriodInput {
	return ClosePeriodInput{
		StoreID: store,
		Start:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		ActorID: 7,
		Note:    "cierre mensual",
	}
}

func TestClosePeriodZeroesNominalAccountsIntoEquity(t *testing.T) {
	m := newMemLedger(cash, revenue, expense, result, retained, capital)
	seedMonth(m, time.January)
	svc := newTestService(m)
	locker := &recordingLocker{}
	svc.WithLocker(locker)

	res, err := svc.ClosePeriod(context.Background(), janInput())
	require.NoError(t, err)
	require.NotNil(t, res.ClosingEntry)
	assert.Nil(t, res.YearEndEntry)

	closing := res.ClosingEntry
	assert.Equal(t, journals.StatusPosted, closing.Status)
	assert.True(t, closing.IsAutoGenerated)
	assert.Equal(t, SourcePeriodClose, closing.SourceType)
	assert.True(t, closing.TotalDebitBS.Equal(d("10000")))
	assert.True(t, closing.TotalCreditBS.Equal(d("10000")))
	assert.True(t, closing.TotalDebitUSD.Equal(d("250")))

	end := janInput().End
	assert.True(t, m.balance(t, revenueID, end).BalanceBS.IsZero())
	assert.True(t, m.balance(t, expenseID, end).BalanceBS.IsZero())
	assert.True(t, m.balance(t, resultID, end).BalanceBS.Equal(d("4000")))
	assert.True(t, m.balance(t, resultID, end).BalanceUSD.Equal(d("100")))

	p := m.periods["2025-01"]
	assert.Equal(t, shared.PeriodStatusClosed, p.Status)
	require.NotNil(t, p.ClosingEntryID)
	assert.Equal(t, closing.ID, *p.ClosingEntryID)
	assert.Contains(t, p.ClosingNote, "2025-01")
	assert.Contains(t, p.ClosingNote, "cierre mensual")
	assert.True(t, res.NetIncome.BS.Equal(d("4000")))
	assert.Equal(t, []string{"ledger:store:1:period:2025-01:lock"}, locker.keys)
}

func TestClosePeriodWithoutResultSkipsEntry(t *testing.T) {
	m := newMemLedger(cash, revenue, expense, result)
	svc := newTestService(m)

	res, err := svc.ClosePeriod(context.Background(), janInput())
	require.NoError(t, err)
	assert.Nil(t, res.ClosingEntry)
	assert.Equal(t, shared.PeriodStatusClosed, m.periods["2025-01"].Status)
	assert.Nil(t, m.periods["2025-01"].ClosingEntryID)
}

func TestClosePeriodUsesIncomeStatementProvider(t *testing.T) {
	m := newMemLedger(cash, revenue, expense, result)
	seedMonth(m, time.January)
	svc := newTestService(m)
	var gotStart, gotEnd time.Time
	svc.WithIncomeStatement(func(_ context.Context, _ int64, start, end time.Time) (NetIncome, error) {
		gotStart, gotEnd = start, end
		return NetIncome{}, nil
	})

	res, err := svc.ClosePeriod(context.Background(), janInput())
	require.NoError(t, err)
	assert.Nil(t, res.ClosingEntry)
	assert.Equal(t, janInput().Start, gotStart)
	assert.Equal(t, janInput().End, gotEnd)
}

func TestClosePeriodRejectsClosedAndLocked(t *testing.T) {
	m := newMemLedger(cash, revenue, result)
	svc := newTestService(m)
	m.periods["2025-01"] = Period{ID: 1, StoreID: store, Code: "2025-01", Status: shared.PeriodStatusClosed}

	_, err := svc.ClosePeriod(context.Background(), janInput())
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	m.periods["2025-01"] = Period{ID: 1, StoreID: store, Code: "2025-01", Status: shared.PeriodStatusLocked}
	_, err = svc.ClosePeriod(context.Background(), janInput())
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestClosePeriodValidatesInput(t *testing.T) {
	svc := newTestService(newMemLedger())
	in := janInput()
	in.End = time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	_, err := svc.ClosePeriod(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrDateOutOfRange)

	in = janInput()
	in.Start = time.Time{}
	_, err = svc.ClosePeriod(context.Background(), in)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestClosePeriodFailsWithoutEquityAccount(t *testing.T) {
	m := newMemLedger(cash, revenue, expense)
	seedMonth(m, time.January)
	_, err := newTestService(m).ClosePeriod(context.Background(), janInput())
	require.ErrorIs(t, err, shared.ErrEquityAccountNotFound)
	assert.Equal(t, shared.PeriodStatusOpen, m.periods["2025-01"].Status)
}

func TestEquityFallbackChainOrder(t *testing.T) {
	other := accounts.Account{ID: 9, Code: "3.9.01", Name: "Reservas", Type: accounts.AccountTypeEquity, IsActive: true, AllowsEntries: true}
	postable := func(a accounts.Account) accounts.Account { a.IsActive, a.AllowsEntries = true, true; return a }

	got, idx, ok := resolve(equityFallbackChain, []accounts.Account{other, postable(capital), postable(retained)}, 0)
	require.True(t, ok)
	assert.Equal(t, retainedID, got.ID)
	assert.Equal(t, 1, idx)

	got, _, ok = resolve(equityFallbackChain, []accounts.Account{other, postable(capital)}, 0)
	require.True(t, ok)
	assert.Equal(t, capitalID, got.ID)

	got, idx, ok = resolve(equityFallbackChain, []accounts.Account{other}, 0)
	require.True(t, ok)
	assert.Equal(t, int64(9), got.ID)
	assert.Equal(t, len(equityFallbackChain)-1, idx)

	inactive := postable(result)
	inactive.IsActive = false
	got, _, ok = resolve(equityFallbackChain, []accounts.Account{inactive, postable(capital)}, 0)
	require.True(t, ok)
	assert.Equal(t, capitalID, got.ID)

	_, _, ok = resolve(equityFallbackChain, nil, 0)
	assert.False(t, ok)
}

func TestCloseDecemberTransfersResultToRetainedEarnings(t *testing.T) {
	m := newMemLedger(cash, revenue, expense, result, retained)
	seedMonth(m, time.December)
	svc := newTestService(m)

	res, err := svc.ClosePeriod(context.Background(), ClosePeriodInput{
		StoreID: store,
		Start:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		ActorID: 7,
	})
	require.NoError(t, err)
	require.NotNil(t, res.YearEndEntry)
	assert.Equal(t, journals.TypeYearEnd, res.YearEndEntry.Type)

	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	assert.True(t, m.balance(t, resultID, end).BalanceBS.IsZero())
	assert.True(t, m.balance(t, retainedID, end).BalanceBS.Equal(d("4000")))
	assert.True(t, m.balance(t, retainedID, end).BalanceUSD.Equal(d("100")))
	require.NotNil(t, m.periods["2025-12"].YearEndEntryID)
}

func TestCloseDecemberLossIsTransferredSignAware(t *testing.T) {
	m := newMemLedger(cash, revenue, expense, result, retained)
	day := time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC)
	m.seedPosted(day,
		journals.Line{AccountID: expenseID, DebitBS: d("300")},
		journals.Line{AccountID: cashID, CreditBS: d("300")},
	)
	res, err := newTestService(m).ClosePeriod(context.Background(), ClosePeriodInput{
		StoreID: store,
		Start:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotNil(t, res.YearEndEntry)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	assert.True(t, m.balance(t, resultID, end).BalanceBS.IsZero())
	assert.True(t, m.balance(t, retainedID, end).BalanceBS.Equal(d("-300")))
}

func TestCloseDecemberWithoutRetainedEarningsWarns(t *testing.T) {
	m := newMemLedger(cash, revenue, expense, result)
	seedMonth(m, time.December)
	res, err := newTestService(m).ClosePeriod(context.Background(), ClosePeriodInput{
		StoreID: store,
		Start:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Nil(t, res.YearEndEntry)
	assert.NotEmpty(t, res.Warnings)
}

func TestReopenPeriodCancelsClosingEntry(t *testing.T) {
	m := newMemLedger(cash, revenue, expense, result)
	seedMonth(m, time.January)
	svc := newTestService(m)
	ctx := context.Background()

	res, err := svc.ClosePeriod(ctx, janInput())
	require.NoError(t, err)

	p, err := svc.ReopenPeriod(ctx, store, "2025-01", 7, "missing invoice")
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusOpen, p.Status)
	assert.Nil(t, p.ClosingEntryID)
	assert.Nil(t, p.ClosedAt)
	assert.Contains(t, p.ClosingNote, "missing invoice")
	assert.Equal(t, journals.StatusCancelled, m.entries[res.ClosingEntry.ID].Status)

	end := janInput().End
	assert.True(t, m.balance(t, revenueID, end).BalanceBS.Equal(d("10000")))
	assert.True(t, m.balance(t, resultID, end).BalanceBS.IsZero())
}

func TestReopenPeriodWithoutClosingEntry(t *testing.T) {
	m := newMemLedger()
	m.periods["2025-01"] = Period{ID: 1, StoreID: store, Code: "2025-01", Status: shared.PeriodStatusClosed}
	p, err := newTestService(m).ReopenPeriod(context.Background(), store, "2025-01", 7, "fix")
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusOpen, p.Status)
}

func TestReopenRejectsLockedOpenAndMissing(t *testing.T) {
	m := newMemLedger()
	svc := newTestService(m)
	ctx := context.Background()

	m.periods["2025-01"] = Period{ID: 1, StoreID: store, Code: "2025-01", Status: shared.PeriodStatusLocked}
	_, err := svc.ReopenPeriod(ctx, store, "2025-01", 7, "no")
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	m.periods["2025-02"] = Period{ID: 2, StoreID: store, Code: "2025-02", Status: shared.PeriodStatusOpen}
	_, err = svc.ReopenPeriod(ctx, store, "2025-02", 7, "no")
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = svc.ReopenPeriod(ctx, store, "2030-01", 7, "no")
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestLockPeriodRequiresClosed(t *testing.T) {
	m := newMemLedger()
	svc := newTestService(m)
	ctx := context.Background()

	m.periods["2025-01"] = Period{ID: 1, StoreID: store, Code: "2025-01", Status: shared.PeriodStatusOpen}
	_, err := svc.LockPeriod(ctx, store, "2025-01", 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	m.periods["2025-01"] = Period{ID: 1, StoreID: store, Code: "2025-01", Status: shared.PeriodStatusClosed}
	p, err := svc.LockPeriod(ctx, store, "2025-01", 7)
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusLocked, p.Status)

	_, err = svc.LockPeriod(ctx, store, "2025-01", 7)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
}

// racingLedger simulates a posting that commits while the close transaction runs.
type racingLedger struct {
	*memLedger
	calls     []string
	conflicts int
}

func (r *racingLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *racingLedger) EnsurePeriod(ctx context.Context, storeID int64, date time.Time) (Period, error) {
	r.calls = append(r.calls, "ensure")
	if r.conflicts > 0 {
		r.conflicts--
		r.seedPosted(time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
			journals.Line{AccountID: cashID, DebitBS: d("500"), DebitUSD: d("12.5")},
			journals.Line{AccountID: revenueID, CreditBS: d("500"), CreditUSD: d("12.5")},
		)
		return Period{}, fmt.Errorf("%w: period %s", shared.ErrConcurrentUpdate, shared.PeriodCode(date))
	}
	return r.memLedger.EnsurePeriod(ctx, storeID, date)
}

func (r *racingLedger) GetPeriodForUpdate(ctx context.Context, storeID int64, code string) (Period, error) {
	r.calls = append(r.calls, "lock")
	return r.memLedger.GetPeriodForUpdate(ctx, storeID, code)
}

func (r *racingLedger) SumPostedLines(ctx context.Context, storeID int64, ids []int64, asOf time.Time) (map[int64]balances.Amounts, error) {
	r.calls = append(r.calls, "sum")
	return r.memLedger.SumPostedLines(ctx, storeID, ids, asOf)
}

func TestClosePeriodRetriesWhenPostingOverlaps(t *testing.T) {
	m := &racingLedger{memLedger: newMemLedger(cash, revenue, expense, result, retained, capital), conflicts: 1}
	seedMonth(m.memLedger, time.January)
	svc := NewService(m, nil, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC) })

	res, err := svc.ClosePeriod(context.Background(), janInput())
	require.NoError(t, err)
	require.NotNil(t, res.ClosingEntry)
	assert.Equal(t, []string{"ensure", "ensure", "lock", "sum"}, m.calls[:4])

	closedRevenue := decimal.Zero
	for _, l := range res.ClosingEntry.Lines {
		if l.AccountID == revenueID {
			closedRevenue = closedRevenue.Add(l.DebitBS)
		}
	}
	assert.True(t, d("10500").Equal(closedRevenue), closedRevenue.String())
	assert.True(t, m.balance(t, revenueID, janInput().End).BalanceBS.IsZero())
}
