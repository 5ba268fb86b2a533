package ui

import (
	"math"
	"testing"
)

func TestAdjustStep(t *testing.T) {
	cases := []struct {
		v, want float64
	}{
		{0.064, 0.001},
		{0.035, 0.001},
		{1, 0.1},
		{25, 1},
		{-0.5, 0.01},
		{0, 0.001},
	}
	for _, c := range cases {
		if got := adjustStep(c.v); math.Abs(got-c.want) > c.want*1e-9 {
			t.Fatalf("adjustStep(%g) = %g, want %g", c.v, got, c.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{
		0.064: "0.064",
		1:     "1.0",
		25:    "25",
		0:     "0.000",
	}
	for v, want := range cases {
		if got := formatValue(v); got != want {
			t.Fatalf("formatValue(%g) = %q, want %q", v, got, want)
		}
	}
}
