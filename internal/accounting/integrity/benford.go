package integrity

import (
	"math"
	"strconv"
)

// benfordCritical is the chi-square critical value for df=8 at α=0.05.
const benfordCritical = 15.507

// BenfordExpected holds P(d) = log10(1+1/d) for d = 1..9.
var BenfordExpected = func() [9]float64 {
	var out [9]float64
	for d := 1; d <= 9; d++ {
		out[d-1] = math.Log10(1 + 1/float64(d))
	}
	return out
}()

// BenfordResult is the outcome of a first-digit test.
type BenfordResult struct {
	SampleSize       int
	Observed         [9]int
	Expected         [9]float64
	ChiSquare        float64
	IsAnomalous      bool
	SuspiciousDigits []int
}

// BenfordTest compares the first-digit histogram of the nonzero amounts against
// Benford's law with a chi-square test.
func BenfordTest(amounts []float64) BenfordResult {
	var res BenfordResult
	for _, a := range amounts {
		d := firstDigit(a)
		if d == 0 {
			continue
		}
		res.Observed[d-1]++
		res.SampleSize++
	}
	if res.SampleSize == 0 {
		return res
	}
	n := float64(res.SampleSize)
	for i, p := range BenfordExpected {
		expected := p * n
		res.Expected[i] = expected
		observed := float64(res.Observed[i])
		res.ChiSquare += (observed - expected) * (observed - expected) / expected
		if expected > 5 && math.Abs(observed-expected) > 0.2*expected {
			res.SuspiciousDigits = append(res.SuspiciousDigits, i+1)
		}
	}
	res.IsAnomalous = res.ChiSquare > benfordCritical
	return res
}

// firstDigit returns the leading nonzero digit of |v|, or 0 for zero and invalid input.
func firstDigit(v float64) int {
	v = math.Abs(v)
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	return int(s[0] - '0')
}
