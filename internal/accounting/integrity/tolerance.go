package integrity

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var (
	materialRatio = decimal.New(1, -2)
	materialCap   = decimal.NewFromInt(100)
	criticalScale = decimal.NewFromInt(10)
)

// Thresholds scale with the size of an entry.
type Thresholds struct {
	Rounding decimal.Decimal
	Material decimal.Decimal
	Critical decimal.Decimal
}

// ThresholdsFor derives thresholds from the larger of the debit and credit totals
// across both currencies.
func ThresholdsFor(totals balances.Amounts) Thresholds {
	largest := decimal.Max(totals.DebitBS.Abs(), totals.CreditBS.Abs(), totals.DebitUSD.Abs(), totals.CreditUSD.Abs())
	material := decimal.Min(largest.Mul(materialRatio), materialCap)
	return Thresholds{
		Rounding: shared.Tolerance,
		Material: material,
		Critical: material.Mul(criticalScale),
	}
}

// IsCritical reports whether diff must never be corrected automatically.
func (t Thresholds) IsCritical(diff decimal.Decimal) bool {
	return diff.Abs().GreaterThanOrEqual(t.Critical)
}

// Severity grades diff against the thresholds.
func (t Thresholds) Severity(diff decimal.Decimal) Severity {
	abs := diff.Abs()
	switch {
	case t.IsCritical(abs):
		return SeverityCritical
	case abs.GreaterThan(t.Material):
		return SeverityHigh
	case abs.GreaterThan(t.Rounding):
		return SeverityMedium
	default:
		return SeverityLow
	}
}
