package integrity

// Transposition describes two swapped digits.
type Transposition struct {
	First  int
	Second int
	DigitA byte
	DigitB byte
}

// DetectTransposition reports whether a and b are equal-length numeric strings that
// differ only by one swapped pair of digits. Separators never take part in a swap.
func DetectTransposition(a, b string) (Transposition, bool) {
	if len(a) != len(b) || a == b {
		return Transposition{}, false
	}
	var diffs []int
	for i := 0; i < len(a); i++ {
		if !isDigitOrPoint(a[i]) || !isDigitOrPoint(b[i]) {
			return Transposition{}, false
		}
		if a[i] != b[i] {
			diffs = append(diffs, i)
			if len(diffs) > 2 {
				return Transposition{}, false
			}
		}
	}
	if len(diffs) != 2 {
		return Transposition{}, false
	}
	i, j := diffs[0], diffs[1]
	if !isDigit(a[i]) || !isDigit(a[j]) {
		return Transposition{}, false
	}
	if a[i] != b[j] || a[j] != b[i] {
		return Transposition{}, false
	}
	return Transposition{First: i, Second: j, DigitA: a[i], DigitB: a[j]}, true
}

func isDigitOrPoint(c byte) bool {
	return isDigit(c) || c == '.' || c == ','
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
