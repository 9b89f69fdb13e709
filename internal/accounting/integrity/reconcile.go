package integrity

import (
	"errors"

	"github.com/shopspring/decimal"
)

var errNothingToReconcile = errors.New("integrity: no lines to reconcile")

// ReconcileLine is an amount taking part in a reconciliation. Weight overrides the
// default share, which is the line's absolute amount.
type ReconcileLine struct {
	ID     int64
	Amount decimal.Decimal
	Weight *decimal.Decimal
}

// Adjustment is the change Reconcile applies to one line.
type Adjustment struct {
	ID         int64
	Original   decimal.Decimal
	Adjustment decimal.Decimal
	NewAmount  decimal.Decimal
}

// Reconcile spreads target − Σamount over lines proportionally to their weights so
// the new amounts sum to target exactly. Each share is rounded to 6 decimals and each
// new amount to 2; the rounding residual goes to the largest-magnitude line.
func Reconcile(lines []ReconcileLine, target decimal.Decimal) ([]Adjustment, error) {
	if len(lines) == 0 {
		return nil, errNothingToReconcile
	}
	current := decimal.Zero
	totalWeight := decimal.Zero
	largest := 0
	weights := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		current = current.Add(l.Amount)
		w := l.Amount.Abs()
		if l.Weight != nil {
			w = l.Weight.Abs()
		}
		weights[i] = w
		totalWeight = totalWeight.Add(w)
		if l.Amount.Abs().GreaterThan(lines[largest].Amount.Abs()) {
			largest = i
		}
	}
	delta := target.Sub(current)

	out := make([]Adjustment, len(lines))
	sum := decimal.Zero
	for i, l := range lines {
		share := decimal.Zero
		if totalWeight.IsPositive() {
			share = delta.Mul(weights[i]).Div(totalWeight).Round(6)
		}
		newAmount := l.Amount.Add(share).Round(2)
		out[i] = Adjustment{ID: l.ID, Original: l.Amount, NewAmount: newAmount}
		sum = sum.Add(newAmount)
	}
	residual := target.Sub(sum)
	out[largest].NewAmount = out[largest].NewAmount.Add(residual)
	for i := range out {
		out[i].Adjustment = out[i].NewAmount.Sub(out[i].Original)
	}
	return out, nil
}
