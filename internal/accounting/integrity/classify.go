package integrity

import (
	"fmt"
	"math"
)

// ErrorType classifies the cause of an imbalance.
type ErrorType string

const (
	ErrorRounding      ErrorType = "rounding"
	ErrorTransposition ErrorType = "transposition"
	ErrorSystematic    ErrorType = "systematic"
	ErrorSlide         ErrorType = "slide"
	ErrorOmission      ErrorType = "omission"
	ErrorUnknown       ErrorType = "unknown"
)

const (
	roundingTolerance = 0.01
	multipleTolerance = 0.001
	zScoreLimit       = 3.0
	// benfordMinSample applies to the store-wide first-digit check of Audit only.
	benfordMinSample = 30
)

// History summarises the absolute differences of past corrections.
type History struct {
	Count  int
	Mean   float64
	StdDev float64
}

// NewHistory computes mean and population standard deviation of values.
func NewHistory(values []float64) History {
	if len(values) == 0 {
		return History{}
	}
	mean := NeumaierSum(values) / float64(len(values))
	sq := make([]float64, len(values))
	for i, v := range values {
		sq[i] = (v - mean) * (v - mean)
	}
	return History{Count: len(values), Mean: mean, StdDev: math.Sqrt(NeumaierSum(sq) / float64(len(values)))}
}

// ZScore of v against the history, ok=false when the history cannot score.
func (h History) ZScore(v float64) (float64, bool) {
	if h.Count < 2 || h.StdDev == 0 {
		return 0, false
	}
	return (v - h.Mean) / h.StdDev, true
}

// Classification is the verdict on one difference.
type Classification struct {
	Type   ErrorType
	Reason string
	ZScore float64
}

// Classify evaluates diff = Σdebit − Σcredit against the rules in priority order; the
// first match wins. amounts are the entry's line amounts used for the Benford test.
func Classify(diff float64, amounts []float64, hist History) Classification {
	abs := math.Abs(diff)
	switch {
	case abs <= roundingTolerance:
		return Classification{Type: ErrorRounding, Reason: "within rounding tolerance"}
	case nearMultiple(abs, 9):
		return Classification{Type: ErrorTransposition, Reason: "difference is a multiple of 9"}
	}
	if res := BenfordTest(amounts); res.IsAnomalous {
		return Classification{Type: ErrorSystematic, Reason: fmt.Sprintf("first digits deviate from Benford (chi2=%.2f)", res.ChiSquare)}
	}
	switch {
	case nearMultiple(abs, 10) || nearMultiple(abs, 100):
		return Classification{Type: ErrorSlide, Reason: "difference suggests a misplaced decimal point"}
	case nearMultiple(abs, 2) && abs > 1:
		return Classification{Type: ErrorOmission, Reason: "even difference suggests a missing paired line"}
	}
	if z, ok := hist.ZScore(abs); ok && z > zScoreLimit {
		return Classification{Type: ErrorSystematic, Reason: fmt.Sprintf("outlier against history (z=%.2f)", z), ZScore: z}
	}
	return Classification{Type: ErrorUnknown, Reason: "requires manual review"}
}

// nearMultiple reports whether v is a multiple of m within multipleTolerance on either side.
func nearMultiple(v, m float64) bool {
	r := math.Mod(v, m)
	return r < multipleTolerance || m-r < multipleTolerance
}

func nonzeroCount(amounts []float64) int {
	n := 0
	for _, a := range amounts {
		if firstDigit(a) != 0 {
			n++
		}
	}
	return n
}
