package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/integrity"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type stubLedger struct {
	closeIn   periods.ClosePeriodInput
	closeErr  error
	reopened  string
	auditFrom time.Time
	auditTo   time.Time
	report    integrity.Report
	recalc    integrity.CorrectionReport
	tb        reports.TrialBalance
}

func (s *stubLedger) ClosePeriod(_ context.Context, in periods.ClosePeriodInput) (periods.CloseResult, error) {
	s.closeIn = in
	if s.closeErr != nil {
		return periods.CloseResult{}, s.closeErr
	}
	return periods.CloseResult{
		Period:       periods.Period{Code: shared.PeriodCode(in.Start), StoreID: in.StoreID, Status: shared.PeriodStatusClosed},
		NetIncome:    periods.NetIncome{BS: decimal.RequireFromString("1500"), USD: decimal.RequireFromString("40.5")},
		ClosingEntry: &journals.Entry{Number: "AS-202403-0007"},
		Warnings:     []string{"inactive account 4.1.02 carries a balance"},
	}, nil
}

func (s *stubLedger) ReopenPeriod(_ context.Context, storeID int64, code string, _ int64, _ string) (periods.Period, error) {
	s.reopened = code
	return periods.Period{Code: code, StoreID: storeID, Status: shared.PeriodStatusOpen}, nil
}

func (s *stubLedger) LockPeriod(_ context.Context, storeID int64, code string, _ int64) (periods.Period, error) {
	return periods.Period{Code: code, StoreID: storeID, Status: shared.PeriodStatusLocked}, nil
}

func (s *stubLedger) RecalculateEntryTotals(context.Context, int64, []int64) (integrity.CorrectionReport, error) {
	return s.recalc, nil
}

func (s *stubLedger) Audit(_ context.Context, _ int64, from, to time.Time) (integrity.Report, error) {
	s.auditFrom, s.auditTo = from, to
	return s.report, nil
}

func (s *stubLedger) TrialBalance(context.Context, int64, time.Time) (reports.TrialBalance, error) {
	return s.tb, nil
}

func newTestCLI(t *testing.T, ledger *stubLedger) (*LedgerCLI, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	c, err := NewLedgerCLI(ledger)
	require.NoError(t, err)
	return c, new(bytes.Buffer), new(bytes.Buffer)
}

func TestCloseCommandJSON(t *testing.T) {
	ledger := &stubLedger{}
	c, stdout, stderr := newTestCLI(t, ledger)

	code := c.CloseCommand(context.Background(), PeriodOptions{
		Output:  Output{JSONOutput: true, Stdout: stdout, Stderr: stderr},
		StoreID: 3,
		Period:  "2024-03",
		Note:    "march close",
	})
	require.Equal(t, ExitOK, code)
	require.Empty(t, stderr.String())
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ledger.closeIn.Start)
	require.Equal(t, 31, ledger.closeIn.End.Day())

	var summary CloseSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "2024-03", summary.Period)
	require.Equal(t, "1500.00", summary.NetIncomeBS)
	require.Equal(t, "40.50", summary.NetIncomeUSD)
	require.Equal(t, "AS-202403-0007", summary.ClosingEntry)
	require.Len(t, summary.Warnings, 1)
}

func TestCloseCommandRejectsBadInput(t *testing.T) {
	c, stdout, stderr := newTestCLI(t, &stubLedger{})

	code := c.CloseCommand(context.Background(), PeriodOptions{Output: Output{Stdout: stdout, Stderr: stderr}, StoreID: 3, Period: "202403"})
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr.String(), "invalid period")

	stderr.Reset()
	code = c.CloseCommand(context.Background(), PeriodOptions{Output: Output{Stdout: stdout, Stderr: stderr}, Period: "2024-03"})
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr.String(), "--store")
}

func TestCloseCommandReportsLedgerError(t *testing.T) {
	c, stdout, stderr := newTestCLI(t, &stubLedger{closeErr: shared.ErrPeriodLocked})
	code := c.CloseCommand(context.Background(), PeriodOptions{Output: Output{Stdout: stdout, Stderr: stderr}, StoreID: 1, Period: "2024-01"})
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr.String(), shared.ErrPeriodLocked.Error())
}

func TestReopenCommandNeedsReason(t *testing.T) {
	ledger := &stubLedger{}
	c, stdout, stderr := newTestCLI(t, ledger)
	code := c.ReopenCommand(context.Background(), PeriodOptions{Output: Output{Stdout: stdout, Stderr: stderr}, StoreID: 1, Period: "2024-01"})
	require.Equal(t, ExitError, code)
	require.Empty(t, ledger.reopened)

	code = c.ReopenCommand(context.Background(), PeriodOptions{Output: Output{Stdout: stdout, Stderr: stderr}, StoreID: 1, Period: "2024-01", Note: "late invoice"})
	require.Equal(t, ExitOK, code)
	require.Equal(t, "2024-01", ledger.reopened)
	require.Contains(t, stdout.String(), "OPEN")
}

func TestRecalcCommandExitsWithFindingsOnFailures(t *testing.T) {
	ledger := &stubLedger{recalc: integrity.CorrectionReport{
		Processed: 4,
		Corrected: 2,
		Failures: []integrity.CorrectionFailure{
			{EntryID: 9, ErrorType: integrity.ErrorUnknown, Err: errors.New("difference above critical threshold"), Suggestion: []integrity.Adjustment{
				{ID: 31, Original: decimal.RequireFromString("500"), NewAmount: decimal.RequireFromString("1000")},
			}},
		},
	}}
	c, stdout, stderr := newTestCLI(t, ledger)
	code := c.RecalcCommand(context.Background(), RecalcOptions{Output: Output{JSONOutput: true, Stdout: stdout, Stderr: stderr}, StoreID: 2})
	require.Equal(t, ExitFindings, code)

	var summary RecalcSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, 2, summary.Corrected)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, int64(9), summary.Failures[0].EntryID)
	require.Equal(t, []SuggestedAmount{{LineID: 31, From: "500.00", To: "1000.00"}}, summary.Failures[0].Suggested)
}

func TestAuditCommandDefaultsToCurrentMonth(t *testing.T) {
	ledger := &stubLedger{report: integrity.Report{
		EntriesScanned: 12,
		Errors:         []integrity.Finding{{Kind: integrity.KindUnbalancedEntry, Severity: integrity.SeverityHigh, Message: "entry AS-202402-0001 is unbalanced"}},
	}}
	c, stdout, stderr := newTestCLI(t, ledger)
	code := c.AuditCommand(context.Background(), AuditOptions{
		Output:  Output{Stdout: stdout, Stderr: stderr},
		StoreID: 5,
		Now:     func() time.Time { return time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC) },
	})
	require.Equal(t, ExitFindings, code)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), ledger.auditFrom)
	require.Equal(t, 29, ledger.auditTo.Day())
	require.Contains(t, stdout.String(), "[HIGH] unbalanced_entry")

	stdout.Reset()
	code = c.AuditCommand(context.Background(), AuditOptions{Output: Output{Stdout: stdout, Stderr: stderr}, StoreID: 5, From: "2024/01/01"})
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr.String(), "invalid --from")
}

func TestTrialBalanceCommand(t *testing.T) {
	dec := decimal.RequireFromString
	ledger := &stubLedger{tb: reports.TrialBalance{
		Groups: []reports.TrialBalanceGroup{{
			Key: "1",
			Accounts: []reports.TrialBalanceAccount{
				{Code: "1.1.01", Name: "Caja", ClosingBS: dec("100"), ClosingUSD: dec("2.5")},
			},
		}},
		Totals: balances.Amounts{DebitBS: dec("100"), CreditBS: dec("100"), DebitUSD: dec("2.5"), CreditUSD: dec("2.5")},
	}}
	c, stdout, stderr := newTestCLI(t, ledger)
	code := c.TrialBalanceCommand(context.Background(), TrialBalanceOptions{Output: Output{Stdout: stdout, Stderr: stderr}, StoreID: 1, AsOf: "2024-03-31"})
	require.Equal(t, ExitOK, code)
	require.Contains(t, stdout.String(), "1.1.01")
	require.Contains(t, stdout.String(), "Totals BS 100.00 / 100.00  USD 2.50 / 2.50")

	ledger.tb.Totals.CreditBS = dec("90")
	require.Equal(t, ExitFindings, c.TrialBalanceCommand(context.Background(), TrialBalanceOptions{Output: Output{Stdout: stdout, Stderr: stderr}, StoreID: 1, AsOf: "2024-03-31"}))
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskLedgerIntegrityAudit, TriggerOptions{StoreIDs: []int64{1, 2}, WindowMonths: 2, AutoCorrect: true})
	require.NoError(t, err)
	var payload jobs.IntegrityAuditPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, []int64{1, 2}, payload.StoreIDs)
	require.True(t, payload.AutoCorrect)

	_, err = BuildTask(jobs.TaskLedgerRecalculateTotals, TriggerOptions{StoreIDs: []int64{1, 2}})
	require.Error(t, err)

	_, err = BuildTask("mail:send", TriggerOptions{})
	require.Error(t, err)
}
