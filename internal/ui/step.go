package ui

import (
	"math"
	"strconv"
)

// adjustStep returns the increment the +/- buttons apply to a parameter:
// one tenth of the value's leading decimal place, or 0.001 for zero.
func adjustStep(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.001
	}
	return math.Pow(10, math.Floor(math.Log10(math.Abs(v)))-1)
}

// formatValue prints v with enough digits to show one adjustStep change.
func formatValue(v float64) string {
	step := adjustStep(v)
	precision := int(math.Max(0, math.Round(-math.Log10(step))))
	return strconv.FormatFloat(v, 'f', precision, 64)
}
