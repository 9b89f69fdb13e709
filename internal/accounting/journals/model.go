package journals

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// Currency is the transaction currency of an entry.
type Currency string

const (
	CurrencyBS  Currency = "BS"
	CurrencyUSD Currency = "USD"
)

// EntryType classifies where an entry comes from.
type EntryType string

const (
	TypeManual              EntryType = "MANUAL"
	TypeSale                EntryType = "SALE"
	TypePurchase            EntryType = "PURCHASE"
	TypeInvoice             EntryType = "INVOICE"
	TypeTransfer            EntryType = "TRANSFER"
	TypeInventoryAdjustment EntryType = "INVENTORY_ADJUSTMENT"
	TypeDebtPayment         EntryType = "DEBT_PAYMENT"
	TypeCashClose           EntryType = "CASH_CLOSE"
	TypePeriodClose         EntryType = "PERIOD_CLOSE"
	TypeYearEnd             EntryType = "YEAR_END"
	TypeAdjustment          EntryType = "ADJUSTMENT"
	TypeReversal            EntryType = "REVERSAL"
)

// numberPrefix starts every entry number.
const numberPrefix = "AS"

// Entry is a journal entry with its lines.
type Entry struct {
	ID              int64
	StoreID         int64
	Number          string
	Date            time.Time
	Type            EntryType
	SourceType      string
	SourceID        *uuid.UUID
	Description     string
	Currency        Currency
	ExchangeRate    decimal.Decimal
	TotalDebitBS    decimal.Decimal
	TotalCreditBS   decimal.Decimal
	TotalDebitUSD   decimal.Decimal
	TotalCreditUSD  decimal.Decimal
	Status          Status
	IsAutoGenerated bool
	CreatedBy       int64
	PostedAt        *time.Time
	PostedBy        *int64
	CancelledAt     *time.Time
	CancelledBy     *int64
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Lines           []Line
}

// Line stores debit or credit amounts in both currencies for an account.
type Line struct {
	ID          int64
	EntryID     int64
	LineNumber  int
	AccountID   int64
	DebitBS     decimal.Decimal
	CreditBS    decimal.Decimal
	DebitUSD    decimal.Decimal
	CreditUSD   decimal.Decimal
	Description string
}

// Amounts returns the line as a balance accumulator.
func (l Line) Amounts() balances.Amounts {
	return balances.Amounts{DebitBS: l.DebitBS, CreditBS: l.CreditBS, DebitUSD: l.DebitUSD, CreditUSD: l.CreditUSD}
}

// Deltas returns the balance changes posting the entry applies.
func (e Entry) Deltas() []balances.Delta {
	out := make([]balances.Delta, 0, len(e.Lines))
	for _, l := range e.Lines {
		out = append(out, balances.Delta{AccountID: l.AccountID, Amounts: l.Amounts()})
	}
	return balances.MergeDeltas(out)
}

// ReversalDeltas undo Deltas.
func (e Entry) ReversalDeltas() []balances.Delta {
	out := e.Deltas()
	for i := range out {
		out[i].Amounts = out[i].Amounts.Neg()
	}
	return out
}

// LineTotals sums the lines exactly.
func LineTotals(lines []Line) balances.Amounts {
	var total balances.Amounts
	for _, l := range lines {
		total = total.Add(l.Amounts())
	}
	return total
}

// Totals returns the stored entry totals.
func (e Entry) Totals() balances.Amounts {
	return balances.Amounts{DebitBS: e.TotalDebitBS, CreditBS: e.TotalCreditBS, DebitUSD: e.TotalDebitUSD, CreditUSD: e.TotalCreditUSD}
}

// SetTotals stores t as the entry totals.
func (e *Entry) SetTotals(t balances.Amounts) {
	e.TotalDebitBS = t.DebitBS
	e.TotalCreditBS = t.CreditBS
	e.TotalDebitUSD = t.DebitUSD
	e.TotalCreditUSD = t.CreditUSD
}

// Balanced reports whether debit and credit agree within tolerance in both currencies.
func Balanced(t balances.Amounts) bool {
	return shared.Balanced(t.DebitBS, t.CreditBS) && shared.Balanced(t.DebitUSD, t.CreditUSD)
}

// FormatNumber renders AS-YYYYMM-NNNN.
func FormatNumber(date time.Time, seq int64) string {
	return fmt.Sprintf("%s%04d", NumberPrefix(date), seq)
}

// NumberPrefix is what every entry number of date's month starts with.
func NumberPrefix(date time.Time) string {
	return fmt.Sprintf("%s-%s-", numberPrefix, PeriodKey(date))
}

// PeriodKey is the sequence key YYYYMM of date.
func PeriodKey(date time.Time) string {
	return date.Format("200601")
}

// ParseNumberSuffix extracts the trailing sequence of an entry number.
func ParseNumberSuffix(number string) (int64, bool) {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0, false
	}
	seq, err := strconv.ParseInt(number[idx+1:], 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
