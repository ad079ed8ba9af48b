package math

import (
	"math"
	"strconv"
)

// Format formats a float based on the given precision
func Format(f float64, precision int) string {
	if precision < 0 {
		precision = 2
	}
	return strconv.FormatFloat(f, 'f', precision, 64)
}

// Finite checks that none of the values is NaN or infinite.
func Finite(ff ...float64) bool {
	for _, f := range ff {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Clamp forces f into the [lo, hi] range.
func Clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
