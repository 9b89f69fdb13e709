package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID   int64
	DebitBS     decimal.Decimal
	CreditBS    decimal.Decimal
	DebitUSD    decimal.Decimal
	CreditUSD   decimal.Decimal
	Description string
}

// LineFromFloats builds a line from raw floats, coercing NaN and infinities to zero.
func LineFromFloats(accountID int64, debitBS, creditBS, debitUSD, creditUSD float64, description string) LineInput {
	return LineInput{
		AccountID:   accountID,
		DebitBS:     shared.Dec(debitBS),
		CreditBS:    shared.Dec(creditBS),
		DebitUSD:    shared.Dec(debitUSD),
		CreditUSD:   shared.Dec(creditUSD),
		Description: description,
	}
}

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	StoreID      int64
	Date         time.Time
	Type         EntryType
	SourceType   string
	SourceID     *uuid.UUID
	Description  string
	Currency     Currency
	ExchangeRate decimal.Decimal
	ActorID      int64
	Lines        []LineInput
}

func (in CreateInput) normalize() CreateInput {
	in.Date = shared.DateOnly(in.Date)
	if in.Type == "" {
		in.Type = TypeManual
	}
	if in.Currency == "" {
		in.Currency = CurrencyBS
	}
	if in.ExchangeRate.IsZero() {
		in.ExchangeRate = decimal.NewFromInt(1)
	}
	in.Description = strings.TrimSpace(in.Description)
	in.SourceType = strings.TrimSpace(in.SourceType)
	lines := make([]LineInput, len(in.Lines))
	for i, l := range in.Lines {
		l.DebitBS = shared.Round2(l.DebitBS)
		l.CreditBS = shared.Round2(l.CreditBS)
		l.DebitUSD = shared.Round2(l.DebitUSD)
		l.CreditUSD = shared.Round2(l.CreditUSD)
		l.Description = strings.TrimSpace(l.Description)
		lines[i] = l
	}
	in.Lines = lines
	return in
}

// Validate ensures the entry is balanced per currency and well formed.
func (in CreateInput) Validate() error {
	if in.StoreID <= 0 {
		return shared.ErrStoreRequired
	}
	if in.Date.IsZero() {
		return shared.Invalid("date", shared.ErrDateOutOfRange, "date required")
	}
	if in.Currency != CurrencyBS && in.Currency != CurrencyUSD {
		return shared.Invalid("currency", shared.ErrInvalidCurrency, "unsupported currency %q", in.Currency)
	}
	if in.ExchangeRate.IsNegative() {
		return shared.Invalid("exchange_rate", shared.ErrNegativeAmount, "exchange rate cannot be negative")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debitBS, creditBS, debitUSD, creditUSD decimal.Decimal
	for idx, line := range in.Lines {
		field := fmt.Sprintf("lines[%d]", idx)
		if line.AccountID <= 0 {
			return shared.Invalid(field, shared.ErrAccountNotFound, "line %d missing account", idx+1)
		}
		if line.DebitBS.IsNegative() || line.CreditBS.IsNegative() || line.DebitUSD.IsNegative() || line.CreditUSD.IsNegative() {
			return shared.Invalid(field, shared.ErrNegativeAmount, "line %d has a negative amount", idx+1)
		}
		debitBS = debitBS.Add(line.DebitBS)
		creditBS = creditBS.Add(line.CreditBS)
		debitUSD = debitUSD.Add(line.DebitUSD)
		creditUSD = creditUSD.Add(line.CreditUSD)
	}
	if !shared.Balanced(debitBS, creditBS) {
		return shared.Invalid("lines", shared.ErrUnbalanced, "BS debit %s != credit %s", debitBS.StringFixed(2), creditBS.StringFixed(2))
	}
	if !shared.Balanced(debitUSD, creditUSD) {
		return shared.Invalid("lines", shared.ErrUnbalanced, "USD debit %s != credit %s", debitUSD.StringFixed(2), creditUSD.StringFixed(2))
	}
	return nil
}

// ListFilter narrows List results.
type ListFilter struct {
	StoreID int64
	From    *time.Time
	To      *time.Time
	Status  Status
	Limit   int
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	StoreID     int64
	EntryID     int64
	ActorID     int64
	Date        *time.Time
	Description string
}
