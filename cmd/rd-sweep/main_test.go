package main

import "testing"

func TestGridCoversCorners(t *testing.T) {
	sets := grid(0.01, 0.07, 0.045, 0.07, 4)
	if len(sets) != 16 {
		t.Fatalf("expected 16 sets, got %d", len(sets))
	}
	first, last := sets[0], sets[len(sets)-1]
	if first.f != 0.01 || first.k != 0.045 || last.f != 0.07 || last.k != 0.07 {
		t.Fatalf("unexpected corners %s .. %s", first, last)
	}
	if one := grid(0.02, 0.05, 0.06, 0.07, 1); len(one) != 1 || one[0].f != 0.02 {
		t.Fatalf("single sample should use the lower bounds, got %v", one)
	}
}

func TestRunScenarioReportsDivergence(t *testing.T) {
	res := runScenario(paramSet{f: 0.035, k: 0.064}, 16, 50)
	if res.err != nil {
		t.Fatalf("default parameters diverged: %v", res.err)
	}
	if res.maxB <= 0 || res.contrast <= 0 {
		t.Fatalf("expected a non-trivial pattern, got %+v", res)
	}
}

func TestDominantWavelength(t *testing.T) {
	const w, h = 32, 4
	field := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/4)%2 == 0 {
				field[y*w+x] = 1
			}
		}
	}
	if got := dominantWavelength(field, w, h); got != 8 {
		t.Fatalf("expected wavelength 8 for stripes of period 8, got %f", got)
	}
	if got := dominantWavelength(make([]float32, w*h), w, h); got != 0 {
		t.Fatalf("flat field should report 0, got %f", got)
	}
}
