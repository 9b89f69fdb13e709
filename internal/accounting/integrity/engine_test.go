package integrity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type memLedger struct {
	accounts    map[int64]accounts.Account
	entries     map[int64]journals.Entry
	periods     map[string]shared.Period
	balances    map[int64]balances.Amounts
	buckets     map[string][]balances.Bucket
	bucketErr   error
	tbRows      []reports.AccountBalance
	history     History
	historyErr  error
	corrections []Correction
	panicOn     int64
	nextLineID  int64
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts: map[int64]accounts.Account{
			1: {ID: 1, StoreID: 1, Code: "1.1.01", Type: accounts.AccountTypeAsset, IsActive: true, AllowsEntries: true},
			2: {ID: 2, StoreID: 1, Code: "4.1.01", Type: accounts.AccountTypeRevenue, IsActive: true, AllowsEntries: true},
			3: {ID: 3, StoreID: 1, Code: "4.1.02", Type: accounts.AccountTypeRevenue, IsActive: false, AllowsEntries: true},
		},
		entries:    map[int64]journals.Entry{},
		periods:    map[string]shared.Period{},
		balances:   map[int64]balances.Amounts{},
		buckets:    map[string][]balances.Bucket{},
		nextLineID: 100,
	}
}

func (m *memLedger) addEntry(e journals.Entry) {
	if e.StoreID == 0 {
		e.StoreID = 1
	}
	if e.Status == "" {
		e.Status = journals.StatusPosted
	}
	if e.Date.IsZero() {
		e.Date = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	}
	for i := range e.Lines {
		e.Lines[i].EntryID = e.ID
		if e.Lines[i].ID == 0 {
			m.nextLineID++
			e.Lines[i].ID = m.nextLineID
		}
		if e.Lines[i].LineNumber == 0 {
			e.Lines[i].LineNumber = i + 1
		}
	}
	m.entries[e.ID] = e
}

func (m *memLedger) ListPostedEntryIDs(_ context.Context, storeID int64) ([]int64, error) {
	var ids []int64
	for id, e := range m.entries {
		if e.StoreID == storeID && e.Status == journals.StatusPosted {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memLedger) ScanPostedEntries(ctx context.Context, storeID int64, from, to time.Time) ([]journals.Entry, error) {
	ids, _ := m.ListPostedEntryIDs(ctx, storeID)
	var out []journals.Entry
	for _, id := range ids {
		e := m.entries[id]
		if !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memLedger) ListBuckets(_ context.Context, _ int64, periodStart time.Time) ([]balances.Bucket, error) {
	if m.bucketErr != nil {
		return nil, m.bucketErr
	}
	return m.buckets[shared.PeriodCode(periodStart)], nil
}

func (m *memLedger) TrialBalanceRows(context.Context, int64, time.Time) ([]reports.AccountBalance, error) {
	return m.tbRows, nil
}

func (m *memLedger) CorrectionHistory(context.Context, int64) (History, error) {
	return m.history, m.historyErr
}

func (m *memLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memLedger) GetEntryForUpdate(_ context.Context, storeID, id int64) (journals.Entry, error) {
	if id == m.panicOn {
		panic("corrupt row")
	}
	e, ok := m.entries[id]
	if !ok || e.StoreID != storeID {
		return journals.Entry{}, shared.ErrJournalNotFound
	}
	e.Lines = append([]journals.Line(nil), e.Lines...)
	return e, nil
}

func (m *memLedger) EnsurePeriod(_ context.Context, storeID int64, date time.Time) (shared.Period, error) {
	code := shared.PeriodCode(date)
	if p, ok := m.periods[code]; ok {
		return p, nil
	}
	start, end := shared.MonthBounds(date)
	return shared.Period{StoreID: storeID, Code: code, StartDate: start, EndDate: end, Status: shared.PeriodStatusOpen}, nil
}

func (m *memLedger) AccountsForPosting(_ context.Context, storeID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := map[int64]accounts.Account{}
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok && a.StoreID == storeID {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memLedger) FindAccountByCode(_ context.Context, storeID int64, code string) (accounts.Account, error) {
	for _, a := range m.accounts {
		if a.StoreID == storeID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, shared.ErrAccountNotFound
}

func (m *memLedger) UpdateLine(_ context.Context, line journals.Line) error {
	e := m.entries[line.EntryID]
	for i := range e.Lines {
		if e.Lines[i].ID == line.ID {
			e.Lines[i] = line
		}
	}
	m.entries[line.EntryID] = e
	return nil
}

func (m *memLedger) InsertLines(_ context.Context, entryID int64, lines []journals.Line) ([]journals.Line, error) {
	e := m.entries[entryID]
	out := make([]journals.Line, len(lines))
	for i, l := range lines {
		m.nextLineID++
		l.ID = m.nextLineID
		l.EntryID = entryID
		out[i] = l
	}
	e.Lines = append(e.Lines, out...)
	m.entries[entryID] = e
	return out, nil
}

func (m *memLedger) UpdateEntryTotals(_ context.Context, _ int64, entryID int64, totals balances.Amounts) error {
	e := m.entries[entryID]
	e.SetTotals(totals)
	m.entries[entryID] = e
	return nil
}

func (m *memLedger) UpsertBalances(_ context.Context, _ int64, _ time.Time, deltas []balances.Delta, _ time.Time) error {
	for _, d := range deltas {
		m.balances[d.AccountID] = m.balances[d.AccountID].Add(d.Amounts)
	}
	return nil
}

func (m *memLedger) InsertCorrection(_ context.Context, c Correction) error {
	m.corrections = append(m.corrections, c)
	return nil
}

type provisioner struct {
	ledger *memLedger
	calls  int
	err    error
}

func (p *provisioner) EnsureAdjustmentAccount(_ context.Context, storeID int64) (accounts.Account, error) {
	p.calls++
	if p.err != nil {
		return accounts.Account{}, p.err
	}
	acc := accounts.Account{ID: 99, StoreID: storeID, Code: accounts.CodeAdjustments, Name: accounts.NameAdjustments, Type: accounts.AccountTypeExpense, IsActive: true, AllowsEntries: true}
	p.ledger.accounts[acc.ID] = acc
	return acc, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context, int64) { c.calls++ }

type recordingAudit struct{ logs []internalShared.AuditLog }

func (a *recordingAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return errors.New("audit sink down")
}

func newTestEngine(m *memLedger, prov AccountProvisioner) (*Engine, *countingInvalidator, *recordingAudit) {
	cache := &countingInvalidator{}
	audit := &recordingAudit{}
	e := NewEngine(m, prov, cache, audit, nil)
	e.WithNow(func() time.Time { return testNow })
	return e, cache, audit
}

func driftedEntry(id int64) journals.Entry {
	e := journals.Entry{
		ID:     id,
		Number: "AS-202603-0001",
		Lines: []journals.Line{
			{AccountID: 1, DebitBS: dec("1000.02"), Description: "Cobro"},
			{AccountID: 2, CreditBS: dec("1000.00"), Description: "Venta"},
		},
	}
	e.SetTotals(journals.LineTotals(e.Lines))
	return e
}

func TestRecalculateCorrectsSmallDrift(t *testing.T) {
	m := newMemLedger()
	m.addEntry(driftedEntry(1))
	engine, cache, audit := newTestEngine(m, nil)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Corrected)
	assert.Empty(t, report.Failures)

	entry := m.entries[1]
	assert.True(t, dec("1000.02").Equal(entry.Lines[1].CreditBS))
	assert.Contains(t, entry.Lines[1].Description, "0.02")
	assert.True(t, strings.HasPrefix(entry.Lines[1].Description, "Venta"))
	assert.True(t, dec("1000.02").Equal(entry.TotalDebitBS))
	assert.True(t, dec("1000.02").Equal(entry.TotalCreditBS))
	assert.True(t, journals.LineTotals(entry.Lines).Equal(entry.Totals()))

	assert.True(t, dec("0.02").Equal(m.balances[2].CreditBS))
	require.Len(t, m.corrections, 1)
	assert.Equal(t, entry.Lines[1].ID, m.corrections[0].LineID)
	assert.True(t, dec("0.02").Equal(m.corrections[0].DiffBS))
	assert.Equal(t, ErrorUnknown, m.corrections[0].ErrorType)
	assert.Equal(t, 1, cache.calls)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "journal.auto_correct", audit.logs[0].Action)
}

func TestRecalculatePrefersAdjustmentLine(t *testing.T) {
	m := newMemLedger()
	m.addEntry(journals.Entry{
		ID: 1,
		Lines: []journals.Line{
			{AccountID: 1, DebitBS: dec("500.00"), Description: "Ajuste por redondeo"},
			{AccountID: 2, CreditBS: dec("491.00")},
		},
	})
	engine, _, _ := newTestEngine(m, nil)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, []int64{1})
	require.NoError(t, err)
	require.Equal(t, 1, report.Corrected)
	assert.Equal(t, ErrorTransposition, report.Corrections[0].ErrorType)
	entry := m.entries[1]
	assert.True(t, dec("491.00").Equal(entry.Lines[0].DebitBS))
	assert.True(t, dec("491.00").Equal(entry.Lines[1].CreditBS))
	assert.True(t, dec("-9").Equal(m.balances[1].DebitBS))
}

func TestRecalculateLeavesCriticalDifference(t *testing.T) {
	m := newMemLedger()
	m.addEntry(journals.Entry{
		ID: 1,
		Lines: []journals.Line{
			{AccountID: 1, DebitBS: dec("1000.00")},
			{AccountID: 2, CreditBS: dec("500.00")},
		},
	})
	engine, cache, _ := newTestEngine(m, nil)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, []int64{1})
	require.NoError(t, err)
	assert.Zero(t, report.Corrected)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, ErrCriticalDifference)
	assert.True(t, dec("500.00").Equal(m.entries[1].Lines[1].CreditBS))
	assert.Empty(t, m.corrections)
	assert.Zero(t, cache.calls)
}

func TestRecalculateSuggestsSpreadForCriticalDifference(t *testing.T) {
	m := newMemLedger()
	m.addEntry(journals.Entry{
		ID: 1,
		Lines: []journals.Line{
			{ID: 11, AccountID: 1, DebitBS: dec("1000.00")},
			{ID: 12, AccountID: 2, CreditBS: dec("300.00")},
			{ID: 13, AccountID: 3, CreditBS: dec("200.00")},
		},
	})
	engine, _, _ := newTestEngine(m, nil)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, []int64{1})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	got := report.Failures[0].Suggestion
	require.Len(t, got, 2)
	assert.Equal(t, int64(12), got[0].ID)
	assert.True(t, dec("600.00").Equal(got[0].NewAmount), got[0].NewAmount.String())
	assert.Equal(t, int64(13), got[1].ID)
	assert.True(t, dec("400.00").Equal(got[1].NewAmount), got[1].NewAmount.String())
	assert.True(t, dec("300.00").Equal(m.entries[1].Lines[1].CreditBS))
}

func TestRecalculateFixesStoredTotals(t *testing.T) {
	m := newMemLedger()
	e := journals.Entry{
		ID: 1,
		Lines: []journals.Line{
			{AccountID: 1, DebitBS: dec("250.00"), DebitUSD: dec("10.00")},
			{AccountID: 2, CreditBS: dec("250.00"), CreditUSD: dec("10.00")},
		},
	}
	e.TotalDebitBS = dec("205.00")
	e.TotalCreditBS = dec("250.00")
	m.addEntry(e)
	engine, cache, _ := newTestEngine(m, nil)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalsFixed)
	assert.Zero(t, report.Corrected)
	assert.True(t, dec("250.00").Equal(m.entries[1].TotalDebitBS))
	assert.True(t, dec("10.00").Equal(m.entries[1].TotalCreditUSD))
	assert.Empty(t, m.balances)
	assert.Equal(t, 1, cache.calls)
}

func TestRecalculateProvisionsAdjustmentAccount(t *testing.T) {
	m := newMemLedger()
	m.addEntry(journals.Entry{
		ID: 1,
		Lines: []journals.Line{
			{AccountID: 3, DebitUSD: dec("40.05")},
			{AccountID: 3, CreditUSD: dec("40.00")},
		},
	})
	prov := &provisioner{ledger: m}
	engine, _, _ := newTestEngine(m, prov)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, []int64{1})
	require.NoError(t, err)
	require.Equal(t, 1, report.Corrected, report.Failures)
	assert.Equal(t, 1, prov.calls)

	entry := m.entries[1]
	require.Len(t, entry.Lines, 3)
	added := entry.Lines[2]
	assert.Equal(t, int64(99), added.AccountID)
	assert.Equal(t, 3, added.LineNumber)
	assert.True(t, dec("0.05").Equal(added.CreditUSD))
	assert.True(t, added.DebitUSD.IsZero())
	assert.True(t, dec("40.05").Equal(entry.TotalCreditUSD))
	assert.True(t, dec("0.05").Equal(m.balances[99].CreditUSD))
}

func TestRecalculateFailuresDoNotStopBatch(t *testing.T) {
	m := newMemLedger()
	m.addEntry(journals.Entry{ID: 1, Lines: []journals.Line{{AccountID: 3, DebitBS: dec("10.05")}, {AccountID: 3, CreditBS: dec("10.00")}}})
	m.addEntry(journals.Entry{ID: 2})
	m.addEntry(journals.Entry{ID: 3, Lines: []journals.Line{{AccountID: 1, DebitBS: dec("1")}}})
	m.addEntry(driftedEntry(4))
	m.addEntry(journals.Entry{ID: 5, Status: journals.StatusDraft, Lines: []journals.Line{{AccountID: 1, DebitBS: dec("3")}}})
	m.panicOn = 3
	prov := &provisioner{ledger: m, err: errors.New("chart is read-only")}
	engine, _, _ := newTestEngine(m, prov)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 1, report.Corrected)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failures, 3)
	assert.Equal(t, int64(1), report.Failures[0].EntryID)
	assert.ErrorContains(t, report.Failures[0].Err, "chart is read-only")
	assert.ErrorIs(t, report.Failures[1].Err, ErrOrphanEntry)
	assert.ErrorIs(t, report.Failures[2].Err, errPanic)
}

func TestRecalculateRejectsLockedPeriod(t *testing.T) {
	m := newMemLedger()
	m.addEntry(driftedEntry(1))
	m.periods["2026-03"] = shared.Period{StoreID: 1, Code: "2026-03", Status: shared.PeriodStatusLocked}
	engine, _, _ := newTestEngine(m, nil)

	report, err := engine.RecalculateEntryTotals(context.Background(), 1, []int64{1})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, shared.ErrPeriodLocked)
	assert.Equal(t, ErrorUnknown, report.Failures[0].ErrorType)
}

func TestRecalculateRequiresStore(t *testing.T) {
	engine, _, _ := newTestEngine(newMemLedger(), nil)
	_, err := engine.RecalculateEntryTotals(context.Background(), 0, nil)
	assert.ErrorIs(t, err, shared.ErrStoreRequired)
}

func TestAuditCollectsFindings(t *testing.T) {
	m := newMemLedger()
	m.addEntry(driftedEntry(1))
	m.addEntry(journals.Entry{ID: 2, Number: "AS-202603-0002"})
	mismatch := journals.Entry{
		ID:     3,
		Number: "AS-202603-0003",
		Lines:  []journals.Line{{AccountID: 1, DebitBS: dec("80")}, {AccountID: 2, CreditBS: dec("80")}},
	}
	mismatch.TotalDebitBS = dec("8")
	mismatch.TotalCreditBS = dec("80")
	m.addEntry(mismatch)
	m.buckets["2026-03"] = []balances.Bucket{
		{AccountID: 1, Opening: balances.Amounts{DebitBS: dec("10")}, Period: balances.Amounts{DebitBS: dec("5")}, Closing: balances.Amounts{DebitBS: dec("15")}},
		{AccountID: 2, Opening: balances.Amounts{CreditBS: dec("10")}, Period: balances.Amounts{CreditBS: dec("5")}, Closing: balances.Amounts{CreditBS: dec("12")}},
	}
	m.tbRows = []reports.AccountBalance{
		{AccountID: 1, Code: "1.1.01", Sums: balances.Amounts{DebitBS: dec("100")}},
		{AccountID: 2, Code: "4.1.01", Sums: balances.Amounts{CreditBS: dec("90")}},
	}
	m.historyErr = errors.New("history table missing")
	engine, _, _ := newTestEngine(m, nil)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	report, err := engine.Audit(context.Background(), 1, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, report.EntriesScanned)
	assert.False(t, report.Healthy())
	assert.Nil(t, report.Benford)

	kinds := map[string]Finding{}
	for _, f := range report.Errors {
		kinds[f.Kind] = f
	}
	require.Contains(t, kinds, KindUnbalancedEntry)
	assert.Equal(t, int64(1), kinds[KindUnbalancedEntry].EntryID)
	assert.Equal(t, SeverityMedium, kinds[KindUnbalancedEntry].Severity)
	require.Contains(t, kinds, KindOrphanEntry)
	assert.Equal(t, int64(2), kinds[KindOrphanEntry].EntryID)
	require.Contains(t, kinds, KindBucketMismatch)
	assert.Equal(t, int64(2), kinds[KindBucketMismatch].AccountID)
	require.Contains(t, kinds, KindTrialBalance)
	assert.True(t, dec("10").Equal(kinds[KindTrialBalance].DiffBS))

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, KindTotalsMismatch, report.Warnings[0].Kind)
	assert.Equal(t, int64(3), report.Warnings[0].EntryID)
}

func TestAuditTurnsCheckFailureIntoFinding(t *testing.T) {
	m := newMemLedger()
	m.bucketErr = errors.New("connection reset")
	engine, _, _ := newTestEngine(m, nil)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	report, err := engine.Audit(context.Background(), 1, from, to)
	require.NoError(t, err)
	require.Len(t, report.Errors, 2)
	for _, f := range report.Errors {
		assert.Equal(t, KindCheckFailed, f.Kind)
		assert.Contains(t, f.Message, "connection reset")
	}

	_, err = engine.Audit(context.Background(), 1, to, from)
	assert.True(t, shared.IsValidation(err))
}

func TestAuditFlagsStaleOpeningAfterBackdatedPosting(t *testing.T) {
	m := newMemLedger()
	m.buckets["2026-02"] = []balances.Bucket{
		{AccountID: 1, PeriodStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), Opening: balances.Amounts{DebitBS: dec("10")}, Period: balances.Amounts{DebitBS: dec("40")}, Closing: balances.Amounts{DebitBS: dec("50")}},
		{AccountID: 2, PeriodStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), Period: balances.Amounts{CreditBS: dec("50")}, Closing: balances.Amounts{CreditBS: dec("50")}},
	}
	m.buckets["2026-03"] = []balances.Bucket{
		{AccountID: 1, Opening: balances.Amounts{DebitBS: dec("10")}, Period: balances.Amounts{DebitBS: dec("5")}, Closing: balances.Amounts{DebitBS: dec("15")}},
		{AccountID: 2, Opening: balances.Amounts{CreditBS: dec("50")}, Period: balances.Amounts{CreditBS: dec("5")}, Closing: balances.Amounts{CreditBS: dec("55")}},
	}
	engine, _, _ := newTestEngine(m, nil)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	report, err := engine.Audit(context.Background(), 1, from, to)
	require.NoError(t, err)

	var stale []Finding
	for _, f := range report.Errors {
		if f.Kind == KindOpeningMismatch {
			stale = append(stale, f)
		}
	}
	require.Len(t, stale, 1)
	assert.Equal(t, int64(1), stale[0].AccountID)
	assert.True(t, dec("-40").Equal(stale[0].DiffBS))
	assert.Contains(t, stale[0].Message, "2026-02")
}
