package main

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// dominantWavelength averages the power spectrum of every row of a w*h
// field and returns the wavelength in cells of the strongest non-constant
// component, or 0 for a flat field.
func dominantWavelength(field []float32, w, h int) float64 {
	if w < 2 || len(field) < w*h {
		return 0
	}
	fft := fourier.NewFFT(w)
	row := make([]float64, w)
	var coeffs []complex128
	power := make([]float64, w/2+1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			row[x] = float64(field[y*w+x])
		}
		coeffs = fft.Coefficients(coeffs, row)
		for i, c := range coeffs {
			a := cmplx.Abs(c)
			power[i] += a * a
		}
	}
	best := 0
	for i := 1; i < len(power); i++ {
		if power[i] > power[best] || best == 0 {
			best = i
		}
	}
	if best == 0 || power[best] < 1e-12 {
		return 0
	}
	return float64(w) / float64(best)
}
