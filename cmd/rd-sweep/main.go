package main

import (
	"errors"
	"flag"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"rdsim/internal/core"
	"rdsim/internal/sims/grayscott"
)

type paramSet struct {
	f float64
	k float64
}

func (p paramSet) String() string {
	return fmt.Sprintf("F=%.4f k=%.4f", p.f, p.k)
}

type scenarioResult struct {
	params   paramSet
	meanB    float64
	maxB     float64
	contrast float64
	waveLen  float64
	err      error
}

func main() {
	steps := flag.Int("steps", 2000, "timesteps to simulate per scenario")
	size := flag.Int("size", 64, "edge length of the square 2D grid")
	workers := flag.Int("workers", runtime.NumCPU(), "number of worker goroutines")
	fMin := flag.Float64("fmin", 0.010, "lowest feed rate F")
	fMax := flag.Float64("fmax", 0.070, "highest feed rate F")
	kMin := flag.Float64("kmin", 0.045, "lowest kill rate k")
	kMax := flag.Float64("kmax", 0.070, "highest kill rate k")
	n := flag.Int("n", 7, "samples per axis")
	top := flag.Int("top", 10, "number of results to print")
	flag.Parse()

	sets := grid(*fMin, *fMax, *kMin, *kMax, *n)
	fmt.Printf("Sweeping %d parameter sets (%d workers, %d steps, %dx%d grid)\n", len(sets), *workers, *steps, *size, *size)

	jobs := make(chan paramSet)
	results := make(chan scenarioResult)
	var wg sync.WaitGroup

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for params := range jobs {
				results <- runScenario(params, *size, *steps)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		for _, params := range sets {
			jobs <- params
		}
		close(jobs)
	}()

	start := time.Now()
	var all []scenarioResult
	failed := 0
	for res := range results {
		if res.err != nil {
			failed++
			fmt.Printf("Diverged: %s: %v\n", res.params, res.err)
			continue
		}
		all = append(all, res)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].contrast > all[j].contrast })
	elapsed := time.Since(start)

	fmt.Printf("\nTop %d by pattern contrast (elapsed %s, %d diverged):\n", *top, elapsed.Round(time.Millisecond), failed)
	for i := 0; i < len(all) && i < *top; i++ {
		res := all[i]
		fmt.Printf("%2d) contrast=%.4f wavelength=%.1f meanB=%.4f maxB=%.4f %s\n", i+1, res.contrast, res.waveLen, res.meanB, res.maxB, res.params)
	}
}

func grid(fMin, fMax, kMin, kMax float64, n int) []paramSet {
	if n < 1 {
		n = 1
	}
	at := func(lo, hi float64, i int) float64 {
		switch {
		case i == 0:
			return lo
		case i == n-1:
			return hi
		}
		return lo + (hi-lo)*float64(i)/float64(n-1)
	}
	var sets []paramSet
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sets = append(sets, paramSet{f: at(fMin, fMax, i), k: at(kMin, kMax, j)})
		}
	}
	return sets
}

func runScenario(params paramSet, size, steps int) scenarioResult {
	cfg := grayscott.DefaultConfig()
	cfg.F = params.f
	cfg.K = params.k
	cfg.Workers = 1
	e := grayscott.New(cfg)
	res := scenarioResult{params: params}
	if err := e.Allocate(size, size, 1, 2); err != nil {
		res.err = err
		return res
	}
	if err := e.GenerateInitialPattern(); err != nil {
		res.err = err
		return res
	}
	if err := e.Update(steps); err != nil {
		var ce *core.ComputeError
		if errors.As(err, &ce) {
			err = fmt.Errorf("step %d: %w", ce.Step, ce.Err)
		}
		res.err = err
		return res
	}
	b := e.Image().Channel(1)
	vals := make([]float64, len(b))
	for i, v := range b {
		vals[i] = float64(v)
	}
	st := e.Image().Stats(1)
	res.meanB = st.Mean
	res.maxB = st.Max
	res.contrast = stat.StdDev(vals, nil)
	res.waveLen = dominantWavelength(b, size, size)
	return res
}
