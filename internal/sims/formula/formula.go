package formula

import (
	"errors"
	"fmt"
	"math"

	"rdsim/internal/compute"
	"rdsim/internal/core"
)

// DefaultFormula is the Gray-Scott law written as a formula over chemicals
// a and b, used for freshly created formula engines.
const DefaultFormula = `delta_a = D_a * laplacian_a - a*b*b + F*(1.0f - a);
delta_b = D_b * laplacian_b + a*b*b - (F + k)*b;`

// Engine runs a user-authored formula on a compute device. The kernel is
// built lazily on the first Update after anything that changes its source
// or layout; parameter values are passed per launch.
type Engine struct {
	core.Base
	formula  string
	provider compute.Provider
	platform int
	device   int
	seed     int64

	dev     compute.Device
	opened  [2]int
	program compute.Program
	built   buildKey

	// resident is set while the device's current buffer holds the same
	// values as the readable grid.
	resident bool
}

type buildKey struct {
	source string
	layout compute.Layout
	device [2]int
}

// New returns an unallocated formula engine with the default formula and
// parameters.
func New(opts core.Options) *Engine {
	provider := opts.Provider
	if provider == nil {
		provider = compute.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 1337
	}
	e := &Engine{
		Base: core.NewBase(1.0, core.ParameterList{
			{Name: "k", Value: 0.064},
			{Name: "F", Value: 0.035},
			{Name: "D_a", Value: 0.082},
			{Name: "D_b", Value: 0.041},
		}),
		formula:  DefaultFormula,
		provider: provider,
		platform: opts.Platform,
		device:   opts.Device,
		seed:     seed,
	}
	e.SetModified(false)
	return e
}

func (e *Engine) Kind() core.RuleKind { return core.KindFormula }

func (e *Engine) Implementation() string { return string(core.KindFormula) }

// Formula returns the formula text.
func (e *Engine) Formula() string { return e.formula }

// SetFormula replaces the formula text. The kernel is rebuilt on the next
// Compile or Update.
func (e *Engine) SetFormula(s string) {
	e.formula = s
	e.SetModified(true)
}

// SetDevice selects the compute device used by the next build.
func (e *Engine) SetDevice(platform, device int) {
	e.platform, e.device = platform, device
}

// AddParameter appends a named constant the formula can reference.
func (e *Engine) AddParameter(name string, v float64) error {
	if err := checkName(name, e.NumChemicals()); err != nil {
		return err
	}
	if e.Parameters().Index(name) >= 0 {
		return fmt.Errorf("%w: %q declared twice", ErrInvalidName, name)
	}
	e.AppendParameter(name, v)
	return nil
}

func (e *Engine) DeleteParameter(i int) error { return e.RemoveParameter(i) }

func (e *Engine) ClearParameters() { e.ResetParameters() }

// Allocate sizes the grid for 1 to 26 chemicals.
func (e *Engine) Allocate(x, y, z, chemicals int) error {
	if chemicals > MaxChemicals {
		return fmt.Errorf("%w: formula rules support at most %d chemicals, got %d",
			core.ErrUnsupportedConfiguration, MaxChemicals, chemicals)
	}
	if err := e.AllocateBuffers(x, y, z, chemicals); err != nil {
		return err
	}
	e.resident = false
	return nil
}

func (e *Engine) BlankImage() error {
	e.resident = false
	return e.Base.BlankImage()
}

// Image returns the host grid. Callers may edit it between updates, so the
// device copy is treated as stale from here on.
func (e *Engine) Image() *core.Grid {
	e.resident = false
	return e.Base.Image()
}

func (e *Engine) CopyFromImage(src *core.Grid) error {
	e.resident = false
	return e.Base.CopyFromImage(src)
}

// GenerateInitialPattern sets chemical a to 1 and the rest to 0, then seeds
// a perturbed blob at the centre in which a is about 0.5 and every other
// chemical about 0.25. The step counter resets to zero.
func (e *Engine) GenerateInitialPattern() error {
	if err := e.RequireAllocated(); err != nil {
		return err
	}
	e.resident = false
	rng := core.NewRNG(e.seed)
	g := e.Buffers().Readable()
	s := g.Shape()
	cx, cy, cz := float64(s.X)/2, float64(s.Y)/2, float64(s.Z)/2
	for z := 0; z < s.Z; z++ {
		for y := 0; y < s.Y; y++ {
			for x := 0; x < s.X; x++ {
				dx, dy, dz := float64(x)-cx, (float64(y)-cy)/1.5, float64(z)-cz
				inside := math.Sqrt(dx*dx+dy*dy+dz*dz) <= rng.Range(2, 5)
				for c := 0; c < g.Channels(); c++ {
					v := 0.0
					switch {
					case inside && c == 0:
						v = 0.5 + rng.Range(-0.01, 0.01)
					case inside:
						v = 0.25 + rng.Range(-0.01, 0.01)
					case c == 0:
						v = 1
					}
					g.Set(c, x, y, z, float32(v))
				}
			}
		}
	}
	e.SetTimestepsTaken(0)
	return nil
}

func (e *Engine) layout() compute.Layout {
	s := e.Shape()
	return compute.Layout{X: s.X, Y: s.Y, Z: s.Z, Channels: e.NumChemicals()}
}

// Compile builds the kernel for the current formula, parameters, layout and
// device unless an up-to-date build exists. On failure the previous build,
// if any, stays in place and the error is a *core.FormulaCompileError.
func (e *Engine) Compile() error {
	if err := e.RequireAllocated(); err != nil {
		return err
	}
	source, err := Source(e.formula, e.NumChemicals(), e.Parameters())
	if err != nil {
		return &core.FormulaCompileError{Err: err}
	}
	key := buildKey{source: source, layout: e.layout(), device: [2]int{e.platform, e.device}}
	if e.program != nil && e.built == key {
		return nil
	}
	dev, err := e.openDevice()
	if err != nil {
		return &core.FormulaCompileError{Err: err}
	}
	program, err := dev.Build(source, Entry, key.layout)
	if err != nil {
		var be *compute.BuildError
		if errors.As(err, &be) {
			return &core.FormulaCompileError{Log: be.Log, Err: err}
		}
		return &core.FormulaCompileError{Err: err}
	}
	if e.program != nil {
		e.program.Release()
	}
	e.program = program
	e.built = key
	e.resident = false
	return nil
}

// openDevice returns the selected device, reopening it when the selection
// changed. A program built on a previous device is released first.
func (e *Engine) openDevice() (compute.Device, error) {
	want := [2]int{e.platform, e.device}
	if e.dev != nil && e.opened == want {
		return e.dev, nil
	}
	dev, err := e.provider.Open(want[0], want[1])
	if err != nil {
		return nil, fmt.Errorf("opening device %d on platform %d: %w", want[1], want[0], err)
	}
	e.releaseDevice()
	e.dev = dev
	e.opened = want
	return dev, nil
}

func (e *Engine) releaseDevice() {
	if e.program != nil {
		e.program.Release()
		e.program = nil
		e.built = buildKey{}
	}
	if e.dev != nil {
		_ = e.dev.Close()
		e.dev = nil
	}
	e.resident = false
}

// Update builds the kernel if needed, runs steps launches on the device
// and copies the result back before swapping. Any failure leaves the
// readable grid and step counter untouched and discards device progress.
func (e *Engine) Update(steps int) error {
	if err := e.RequireAllocated(); err != nil {
		return err
	}
	if steps < 0 {
		return fmt.Errorf("%w: negative step count %d", core.ErrUnsupportedConfiguration, steps)
	}
	if steps == 0 {
		return nil
	}
	if err := core.CheckTimestep(e.Timestep()); err != nil {
		return err
	}
	start := e.TimestepsTaken()
	fail := func(err error) error {
		e.resident = false
		return &core.ComputeError{Step: start + 1, Err: err}
	}
	if err := e.Compile(); err != nil {
		return fail(err)
	}
	buffers := e.Buffers()
	if !e.resident {
		if err := e.program.Upload(buffers.Readable().Data()); err != nil {
			return fail(err)
		}
		e.resident = true
	}
	scalars := append([]float32{float32(e.Timestep())}, e.Parameters().Values()...)
	if err := e.program.Run(steps, scalars); err != nil {
		return fail(err)
	}
	dst := buffers.Writable()
	if err := e.program.Download(dst.Data()); err != nil {
		return fail(err)
	}
	if !dst.Finite() {
		return fail(core.ErrNonFinite)
	}
	buffers.Swap()
	e.SetTimestepsTaken(start + steps)
	return nil
}

// Close releases the compiled program and the device.
func (e *Engine) Close() error {
	e.releaseDevice()
	return nil
}

func init() {
	core.RegisterFormula(func(opts core.Options) core.Engine {
		return New(opts)
	})
}
