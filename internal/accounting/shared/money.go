package shared

import (
	"math"

	"github.com/shopspring/decimal"
)

// Tolerance is the maximum absolute difference treated as balanced.
var Tolerance = decimal.New(1, -2)

// Coerce maps NaN and infinities to zero so they never reach stored balances.
func Coerce(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Dec converts a float into a two-decimal amount, coercing invalid input to zero.
func Dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(Coerce(v)).Round(2)
}

// OrZero returns the pointed value or zero.
func OrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// Balanced reports whether a and b differ by at most Tolerance.
func Balanced(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
