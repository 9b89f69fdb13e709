package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/integrity"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Exit codes shared by the ledger commands.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitFindings = 10
)

// LedgerOps is the part of the ledger the operator commands drive.
type LedgerOps interface {
	ClosePeriod(ctx context.Context, in periods.ClosePeriodInput) (periods.CloseResult, error)
	ReopenPeriod(ctx context.Context, storeID int64, code string, actorID int64, reason string) (periods.Period, error)
	LockPeriod(ctx context.Context, storeID int64, code string, actorID int64) (periods.Period, error)
	RecalculateEntryTotals(ctx context.Context, storeID int64, entryIDs []int64) (integrity.CorrectionReport, error)
	Audit(ctx context.Context, storeID int64, from, to time.Time) (integrity.Report, error)
	TrialBalance(ctx context.Context, storeID int64, asOf time.Time) (reports.TrialBalance, error)
}

// LedgerCLI runs operator commands against the ledger.
type LedgerCLI struct {
	ledger LedgerOps
}

// NewLedgerCLI constructs the helper.
func NewLedgerCLI(ledger LedgerOps) (*LedgerCLI, error) {
	if ledger == nil {
		return nil, errors.New("ledger cli: ledger not configured")
	}
	return &LedgerCLI{ledger: ledger}, nil
}

// Output carries the common output flags.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *Output) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

func (o Output) fail(cmd string, format string, args ...any) int {
	_, _ = fmt.Fprintf(o.Stderr, cmd+": "+format+"\n", args...)
	return ExitError
}

func (o Output) encode(cmd string, v any) int {
	if err := json.NewEncoder(o.Stdout).Encode(v); err != nil {
		return o.fail(cmd, "encode json: %v", err)
	}
	return ExitOK
}

// PeriodOptions identifies a monthly period of a store.
type PeriodOptions struct {
	Output
	StoreID int64
	Period  string
	ActorID int64
	Note    string
}

func (o PeriodOptions) validate(cmd string) (time.Time, int, bool) {
	if o.StoreID <= 0 {
		return time.Time{}, o.fail(cmd, "--store is required and must be positive"), false
	}
	month, err := time.Parse("2006-01", strings.TrimSpace(o.Period))
	if err != nil {
		return time.Time{}, o.fail(cmd, "invalid period %q (expected YYYY-MM)", o.Period), false
	}
	return month, ExitOK, true
}

// CloseSummary is the JSON output of the close command.
type CloseSummary struct {
	Period       string   `json:"period"`
	Status       string   `json:"status"`
	NetIncomeBS  string   `json:"net_income_bs"`
	NetIncomeUSD string   `json:"net_income_usd"`
	ClosingEntry string   `json:"closing_entry,omitempty"`
	YearEndEntry string   `json:"year_end_entry,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// CloseCommand closes a monthly period.
func (c *LedgerCLI) CloseCommand(ctx context.Context, opts PeriodOptions) int {
	const cmd = "period close"
	opts.defaults()
	month, code, ok := opts.validate(cmd)
	if !ok {
		return code
	}
	start, end := shared.MonthBounds(month)
	result, err := c.ledger.ClosePeriod(ctx, periods.ClosePeriodInput{
		StoreID: opts.StoreID,
		Start:   start,
		End:     end,
		ActorID: opts.ActorID,
		Note:    opts.Note,
	})
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	summary := CloseSummary{
		Period:       result.Period.Code,
		Status:       string(result.Period.Status),
		NetIncomeBS:  result.NetIncome.BS.StringFixed(2),
		NetIncomeUSD: result.NetIncome.USD.StringFixed(2),
		Warnings:     result.Warnings,
	}
	if result.ClosingEntry != nil {
		summary.ClosingEntry = result.ClosingEntry.Number
	}
	if result.YearEndEntry != nil {
		summary.YearEndEntry = result.YearEndEntry.Number
	}
	if opts.JSONOutput {
		return opts.encode(cmd, summary)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Period %s of store %d is %s\n", summary.Period, opts.StoreID, summary.Status)
	_, _ = fmt.Fprintf(opts.Stdout, "Net income: %s BS / %s USD\n", summary.NetIncomeBS, summary.NetIncomeUSD)
	if summary.ClosingEntry != "" {
		_, _ = fmt.Fprintf(opts.Stdout, "Closing entry: %s\n", summary.ClosingEntry)
	}
	if summary.YearEndEntry != "" {
		_, _ = fmt.Fprintf(opts.Stdout, "Year-end entry: %s\n", summary.YearEndEntry)
	}
	for _, w := range summary.Warnings {
		_, _ = fmt.Fprintf(opts.Stdout, "warning: %s\n", w)
	}
	return ExitOK
}

// ReopenCommand reopens a CLOSED period. The reason is mandatory.
func (c *LedgerCLI) ReopenCommand(ctx context.Context, opts PeriodOptions) int {
	const cmd = "period reopen"
	opts.defaults()
	month, code, ok := opts.validate(cmd)
	if !ok {
		return code
	}
	if strings.TrimSpace(opts.Note) == "" {
		return opts.fail(cmd, "--reason is required")
	}
	period, err := c.ledger.ReopenPeriod(ctx, opts.StoreID, shared.PeriodCode(month), opts.ActorID, opts.Note)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	return c.printPeriod(cmd, opts.Output, period)
}

// LockCommand locks a CLOSED period permanently.
func (c *LedgerCLI) LockCommand(ctx context.Context, opts PeriodOptions) int {
	const cmd = "period lock"
	opts.defaults()
	month, code, ok := opts.validate(cmd)
	if !ok {
		return code
	}
	period, err := c.ledger.LockPeriod(ctx, opts.StoreID, shared.PeriodCode(month), opts.ActorID)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	return c.printPeriod(cmd, opts.Output, period)
}

func (c *LedgerCLI) printPeriod(cmd string, out Output, p periods.Period) int {
	if out.JSONOutput {
		return out.encode(cmd, map[string]string{"period": p.Code, "status": string(p.Status)})
	}
	_, _ = fmt.Fprintf(out.Stdout, "Period %s of store %d is %s\n", p.Code, p.StoreID, p.Status)
	return ExitOK
}

// RecalcOptions selects the entries to recalculate.
type RecalcOptions struct {
	Output
	StoreID  int64
	EntryIDs []int64
}

// RecalcSummary is the JSON output of the recalc command.
type RecalcSummary struct {
	Processed   int             `json:"processed"`
	Corrected   int             `json:"corrected"`
	TotalsFixed int             `json:"totals_fixed"`
	Skipped     int             `json:"skipped"`
	Failures    []RecalcFailure `json:"failures"`
}

// RecalcFailure is one entry left for manual review.
type RecalcFailure struct {
	EntryID   int64             `json:"entry_id"`
	ErrorType string            `json:"error_type,omitempty"`
	Error     string            `json:"error"`
	Suggested []SuggestedAmount `json:"suggested,omitempty"`
}

// SuggestedAmount is a proposed credit for a line of an entry left for review.
type SuggestedAmount struct {
	LineID int64  `json:"line_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// RecalcCommand re-derives entry totals and auto-corrects small drifts.
// It exits with ExitFindings when some entries could not be corrected.
func (c *LedgerCLI) RecalcCommand(ctx context.Context, opts RecalcOptions) int {
	const cmd = "recalc"
	opts.defaults()
	if opts.StoreID <= 0 {
		return opts.fail(cmd, "--store is required and must be positive")
	}
	report, err := c.ledger.RecalculateEntryTotals(ctx, opts.StoreID, opts.EntryIDs)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	summary := RecalcSummary{
		Processed:   report.Processed,
		Corrected:   report.Corrected,
		TotalsFixed: report.TotalsFixed,
		Skipped:     report.Skipped,
		Failures:    make([]RecalcFailure, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		failure := RecalcFailure{EntryID: f.EntryID, ErrorType: string(f.ErrorType), Error: f.Err.Error()}
		for _, a := range f.Suggestion {
			failure.Suggested = append(failure.Suggested, SuggestedAmount{LineID: a.ID, From: a.Original.StringFixed(2), To: a.NewAmount.StringFixed(2)})
		}
		summary.Failures = append(summary.Failures, failure)
	}
	exit := ExitOK
	if len(summary.Failures) > 0 {
		exit = ExitFindings
	}
	if opts.JSONOutput {
		if code := opts.encode(cmd, summary); code != ExitOK {
			return code
		}
		return exit
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Processed %d entries: %d corrected, %d totals fixed, %d skipped\n",
		summary.Processed, summary.Corrected, summary.TotalsFixed, summary.Skipped)
	for _, f := range summary.Failures {
		_, _ = fmt.Fprintf(opts.Stdout, " - entry %d needs manual review (%s): %s\n", f.EntryID, f.ErrorType, f.Error)
		for _, a := range f.Suggested {
			_, _ = fmt.Fprintf(opts.Stdout, "     line %d credit %s -> %s\n", a.LineID, a.From, a.To)
		}
	}
	return exit
}

// AuditOptions bounds an audit run. Empty dates default to the current month.
type AuditOptions struct {
	Output
	StoreID int64
	From    string
	To      string
	Now     func() time.Time
}

// AuditCommand prints the integrity report and exits with ExitFindings when it holds errors.
func (c *LedgerCLI) AuditCommand(ctx context.Context, opts AuditOptions) int {
	const cmd = "audit"
	opts.defaults()
	if opts.StoreID <= 0 {
		return opts.fail(cmd, "--store is required and must be positive")
	}
	now := time.Now().UTC()
	if opts.Now != nil {
		now = opts.Now()
	}
	from, to := shared.MonthBounds(now)
	var err error
	if opts.From != "" {
		if from, err = time.Parse(time.DateOnly, opts.From); err != nil {
			return opts.fail(cmd, "invalid --from %q (expected YYYY-MM-DD)", opts.From)
		}
	}
	if opts.To != "" {
		if to, err = time.Parse(time.DateOnly, opts.To); err != nil {
			return opts.fail(cmd, "invalid --to %q (expected YYYY-MM-DD)", opts.To)
		}
	}
	report, err := c.ledger.Audit(ctx, opts.StoreID, from, to)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	exit := ExitOK
	if !report.Healthy() {
		exit = ExitFindings
	}
	if opts.JSONOutput {
		if code := opts.encode(cmd, report); code != ExitOK {
			return code
		}
		return exit
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Integrity audit for store %d (%s to %s): %d entries scanned\n",
		opts.StoreID, from.Format(time.DateOnly), to.Format(time.DateOnly), report.EntriesScanned)
	if report.Healthy() && len(report.Warnings) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "No findings.")
	}
	for _, f := range report.Errors {
		_, _ = fmt.Fprintf(opts.Stdout, " [%s] %s: %s\n", f.Severity, f.Kind, f.Message)
	}
	for _, f := range report.Warnings {
		_, _ = fmt.Fprintf(opts.Stdout, " (warning) %s: %s\n", f.Kind, f.Message)
	}
	return exit
}

// TrialBalanceOptions selects the store and cut-off date.
type TrialBalanceOptions struct {
	Output
	StoreID int64
	AsOf    string
}

// TrialBalanceCommand prints the grouped trial balance. Unbalanced totals exit with ExitFindings.
func (c *LedgerCLI) TrialBalanceCommand(ctx context.Context, opts TrialBalanceOptions) int {
	const cmd = "trial-balance"
	opts.defaults()
	if opts.StoreID <= 0 {
		return opts.fail(cmd, "--store is required and must be positive")
	}
	asOf, err := time.Parse(time.DateOnly, strings.TrimSpace(opts.AsOf))
	if err != nil {
		return opts.fail(cmd, "invalid --as-of %q (expected YYYY-MM-DD)", opts.AsOf)
	}
	tb, err := c.ledger.TrialBalance(ctx, opts.StoreID, asOf)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	exit := ExitOK
	if !tb.Balanced() {
		exit = ExitFindings
	}
	if opts.JSONOutput {
		if code := opts.encode(cmd, tb); code != ExitOK {
			return code
		}
		return exit
	}
	for _, g := range tb.Groups {
		_, _ = fmt.Fprintf(opts.Stdout, "%s\n", g.Key)
		for _, a := range g.Accounts {
			_, _ = fmt.Fprintf(opts.Stdout, "  %-12s %-32s %14s %14s\n", a.Code, a.Name, a.ClosingBS.StringFixed(2), a.ClosingUSD.StringFixed(2))
		}
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Totals BS %s / %s  USD %s / %s\n",
		tb.Totals.DebitBS.StringFixed(2), tb.Totals.CreditBS.StringFixed(2),
		tb.Totals.DebitUSD.StringFixed(2), tb.Totals.CreditUSD.StringFixed(2))
	return exit
}
