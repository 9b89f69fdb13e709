package periods

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Period represents a monthly fiscal period window.
type Period = shared.Period

// Source types of entries generated by the close engine.
const (
	SourcePeriodClose = "period_close"
	SourceYearEnd     = "year_end"
)

// ClosePeriodInput captures a close request.
type ClosePeriodInput struct {
	StoreID int64     `validate:"required,gt=0"`
	Start   time.Time `validate:"required"`
	End     time.Time `validate:"required"`
	ActorID int64     `validate:"gte=0"`
	Note    string    `validate:"max=1000"`
}

// NetIncome holds revenue minus expenses per currency.
type NetIncome struct {
	BS  decimal.Decimal
	USD decimal.Decimal
}

// IsZero reports whether both currencies are within the balance tolerance.
func (n NetIncome) IsZero() bool {
	return n.BS.Abs().LessThan(shared.Tolerance) && n.USD.Abs().LessThan(shared.Tolerance)
}

// IncomeStatementProvider returns net income for [start, end].
type IncomeStatementProvider func(ctx context.Context, storeID int64, start, end time.Time) (NetIncome, error)

// CloseResult reports what a close produced.
type CloseResult struct {
	Period       Period
	NetIncome    NetIncome
	ClosingEntry *journals.Entry
	YearEndEntry *journals.Entry
	Warnings     []string
}
