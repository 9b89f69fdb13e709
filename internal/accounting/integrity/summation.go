package integrity

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// kahanLimit is the largest input summed with plain Kahan.
const kahanLimit = 50

// KahanSum adds values carrying the lost low-order bits in a compensation term.
func KahanSum(values []float64) float64 {
	var sum, c float64
	for _, v := range values {
		y := shared.Coerce(v) - c
		t := sum + y
		c = (t - sum) - y
		sum = t
	}
	return sum
}

// NeumaierSum is Kahan's algorithm with the compensation also correct when the
// incoming term is larger in magnitude than the running sum.
func NeumaierSum(values []float64) float64 {
	var sum, c float64
	for _, v := range values {
		v = shared.Coerce(v)
		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			c += (sum - t) + v
		} else {
			c += (v - t) + sum
		}
		sum = t
	}
	return sum + c
}

// CompensatedSum uses Kahan for small inputs and Neumaier for large ones. Small inputs
// where some term outweighs the running sum also go through Neumaier, the case plain
// Kahan loses entirely.
func CompensatedSum(values []float64) float64 {
	if len(values) > kahanLimit || dominated(values) {
		return NeumaierSum(values)
	}
	return KahanSum(values)
}

func dominated(values []float64) bool {
	var running float64
	for i, v := range values {
		v = shared.Coerce(v)
		if i > 0 && running != 0 && math.Abs(v) >= math.Abs(running) {
			return true
		}
		running += v
	}
	return false
}

// RoundTwoStage rounds to 3 decimals and then to 2.
func RoundTwoStage(v float64) decimal.Decimal {
	return decimal.NewFromFloat(shared.Coerce(v)).Round(3).Round(2)
}

// SumAmounts sums decimal amounts through CompensatedSum and rounds the result in two stages.
func SumAmounts(amounts []decimal.Decimal) decimal.Decimal {
	values := make([]float64, len(amounts))
	for i, a := range amounts {
		values[i] = a.InexactFloat64()
	}
	return RoundTwoStage(CompensatedSum(values))
}
