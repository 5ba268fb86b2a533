package grayscott

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"rdsim/internal/core"
)

// Name is the implementation name pattern files use for this rule.
const Name = "Gray-Scott"

// Parameter order is fixed; Update reads them by position.
const (
	paramK = iota
	paramF
	paramDA
	paramDB
	numParams
)

// Engine implements the Gray-Scott two-chemical reaction-diffusion law on
// the host with periodic boundaries:
//
//	da/dt = D_a ∇²a − ab² + F(1−a)
//	db/dt = D_b ∇²b + ab² − (F+k)b
type Engine struct {
	core.Base
	seed    int64
	workers int
}

// New returns an unallocated Gray-Scott engine.
func New(cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	e := &Engine{
		Base: core.NewBase(cfg.Timestep, core.ParameterList{
			{Name: "k", Value: cfg.K},
			{Name: "F", Value: cfg.F},
			{Name: "D_a", Value: cfg.DA},
			{Name: "D_b", Value: cfg.DB},
		}),
		seed:    cfg.Seed,
		workers: workers,
	}
	e.SetRuleName(Name)
	e.SetRuleDescription("The Gray-Scott model: two chemicals a and b react as a + 2b → 3b, b → P, with a fed in at rate F and b removed at rate F+k.")
	e.SetModified(false)
	return e
}

// Kind reports that the law is built in.
func (e *Engine) Kind() core.RuleKind { return core.KindInbuilt }

// Implementation returns the registry name.
func (e *Engine) Implementation() string { return Name }

// Allocate sizes the grid. The law needs exactly two chemicals.
func (e *Engine) Allocate(x, y, z, chemicals int) error {
	if chemicals > 0 && chemicals != 2 {
		return fmt.Errorf("%w: %s needs 2 chemicals, got %d", core.ErrUnsupportedConfiguration, Name, chemicals)
	}
	return e.AllocateBuffers(x, y, z, chemicals)
}

// Update advances the system by steps forward-Euler steps.
func (e *Engine) Update(steps int) error {
	if e.NumParameters() != numParams {
		return fmt.Errorf("%w: %s needs %d parameters, has %d", core.ErrUnsupportedConfiguration, Name, numParams, e.NumParameters())
	}
	law := e.law()
	return e.Advance(steps, func(src, dst *core.Grid) error {
		return e.step(src, dst, law)
	})
}

// GenerateInitialPattern fills the grid with a = 1, b = 0 and seeds a
// perturbed blob of b at the centre. The result depends only on the shape
// and the configured seed. The step counter resets to zero.
func (e *Engine) GenerateInitialPattern() error {
	if err := e.RequireAllocated(); err != nil {
		return err
	}
	rng := core.NewRNG(e.seed)
	g := e.Buffers().Readable()
	s := g.Shape()
	cx, cy, cz := float64(s.X)/2, float64(s.Y)/2, float64(s.Z)/2
	for z := 0; z < s.Z; z++ {
		for y := 0; y < s.Y; y++ {
			for x := 0; x < s.X; x++ {
				dist := hypot3(float64(x)-cx, (float64(y)-cy)/1.5, float64(z)-cz)
				if dist <= rng.Range(2, 5) {
					g.Set(0, x, y, z, float32(0.5+rng.Range(-0.01, 0.01)))
					g.Set(1, x, y, z, float32(0.25+rng.Range(-0.01, 0.01)))
					continue
				}
				g.Set(0, x, y, z, 1)
				g.Set(1, x, y, z, 0)
			}
		}
	}
	e.SetTimestepsTaken(0)
	return nil
}

// Close is a no-op; the host engine holds no external resources.
func (e *Engine) Close() error { return nil }

type law struct {
	dt, k, f, da, db float32
}

func (e *Engine) law() law {
	p := e.Parameters()
	return law{
		dt: float32(e.Timestep()),
		k:  float32(p[paramK].Value),
		f:  float32(p[paramF].Value),
		da: float32(p[paramDA].Value),
		db: float32(p[paramDB].Value),
	}
}

// step computes one full-grid pass from src into dst. Rows are split into
// bands processed concurrently; every cell is written exactly once from src
// values only, so the result does not depend on scheduling.
func (e *Engine) step(src, dst *core.Grid, l law) error {
	s := src.Shape()
	rows := s.Y * s.Z
	workers := e.workers
	if workers < 1 {
		workers = 1
	}
	if workers > rows {
		workers = rows
	}
	per := (rows + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for r0 := 0; r0 < rows; r0 += per {
		r1 := r0 + per
		if r1 > rows {
			r1 = rows
		}
		g.Go(func() error {
			processRows(src, dst, l, r0, r1)
			return nil
		})
	}
	return g.Wait()
}

func processRows(src, dst *core.Grid, l law, r0, r1 int) {
	s := src.Shape()
	w, h := s.X, s.Y
	a, b := src.Channel(0), src.Channel(1)
	na, nb := dst.Channel(0), dst.Channel(1)
	for r := r0; r < r1; r++ {
		z := r / h
		y := r % h
		_, ym, zm := src.Wrap(0, y-1, z-1)
		_, yp, zp := src.Wrap(0, y+1, z+1)
		base := (z*h + y) * w
		rowYm := (z*h + ym) * w
		rowYp := (z*h + yp) * w
		rowZm := (zm*h + y) * w
		rowZp := (zp*h + y) * w
		for x := 0; x < w; x++ {
			xm, xp := x-1, x+1
			if xm < 0 {
				xm = w - 1
			}
			if xp == w {
				xp = 0
			}
			i := base + x
			av, bv := a[i], b[i]
			// Differences against the centre are exactly zero when a
			// neighbour wraps onto the cell itself.
			lapA := (a[base+xm] - av) + (a[base+xp] - av) +
				(a[rowYm+x] - av) + (a[rowYp+x] - av) +
				(a[rowZm+x] - av) + (a[rowZp+x] - av)
			lapB := (b[base+xm] - bv) + (b[base+xp] - bv) +
				(b[rowYm+x] - bv) + (b[rowYp+x] - bv) +
				(b[rowZm+x] - bv) + (b[rowZp+x] - bv)
			abb := av * bv * bv
			na[i] = av + l.dt*(l.da*lapA-abb+l.f*(1-av))
			nb[i] = bv + l.dt*(l.db*lapB+abb-(l.f+l.k)*bv)
		}
	}
}

func hypot3(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

func init() {
	core.Register(Name, func(opts core.Options) core.Engine {
		cfg := DefaultConfig()
		if opts.Seed != 0 {
			cfg.Seed = opts.Seed
		}
		return New(cfg)
	})
}
