package formula

import (
	"errors"
	"math"
	"strings"
	"testing"

	"rdsim/internal/compute"
	"rdsim/internal/core"
)

// fakeProvider hands out fakeDevices whose programs add timestep times the
// first parameter to every value on each launch.
type fakeProvider struct {
	opens   int
	devices []*fakeDevice
	openErr error
}

func (p *fakeProvider) NumPlatforms() (int, error) { return 1, nil }
func (p *fakeProvider) NumDevices(int) (int, error) { return 2, nil }
func (p *fakeProvider) PlatformDescription(int) (string, error) { return "Fake", nil }
func (p *fakeProvider) DeviceDescription(_, d int) (string, error) { return "dev", nil }
func (p *fakeProvider) Diagnostics() string { return "fake" }

func (p *fakeProvider) Open(platform, device int) (compute.Device, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opens++
	d := &fakeDevice{}
	p.devices = append(p.devices, d)
	return d, nil
}

type fakeDevice struct {
	builds   int
	sources  []string
	closed   bool
	programs []*fakeProgram
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Build(source, entry string, layout compute.Layout) (compute.Program, error) {
	d.builds++
	d.sources = append(d.sources, source)
	if strings.Contains(source, "@@") {
		return nil, &compute.BuildError{Log: "error: expected expression near '@@'"}
	}
	p := &fakeProgram{buf: make([]float32, layout.Len())}
	d.programs = append(d.programs, p)
	return p, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type fakeProgram struct {
	buf      []float32
	uploads  int
	launches int
	runErr   error
	released bool
}

func (p *fakeProgram) Upload(src []float32) error {
	p.uploads++
	copy(p.buf, src)
	return nil
}

func (p *fakeProgram) Run(steps int, scalars []float32) error {
	if p.runErr != nil {
		return p.runErr
	}
	inc := float32(0)
	if len(scalars) > 1 {
		inc = scalars[0] * scalars[1]
	}
	for s := 0; s < steps; s++ {
		for i := range p.buf {
			p.buf[i] += inc
		}
		p.launches++
	}
	return nil
}

func (p *fakeProgram) Download(dst []float32) error {
	copy(dst, p.buf)
	return nil
}

func (p *fakeProgram) Release() { p.released = true }

func newEngine(t *testing.T, p *fakeProvider) *Engine {
	t.Helper()
	e := New(core.Options{Provider: p})
	e.ClearParameters()
	if err := e.AddParameter("rate", 0.5); err != nil {
		t.Fatalf("add parameter: %v", err)
	}
	e.SetFormula("delta_a = rate;\ndelta_b = rate;")
	if err := e.Allocate(4, 3, 1, 2); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return e
}

func TestUpdateAdvancesCounterAndGrid(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, p)
	if err := e.Update(4); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := e.TimestepsTaken(); got != 4 {
		t.Fatalf("expected 4 timesteps, got %d", got)
	}
	if err := e.Update(1); err != nil {
		t.Fatalf("second update: %v", err)
	}
	prog := p.devices[0].programs[0]
	if prog.uploads != 1 {
		t.Fatalf("resident grid should not be uploaded again, got %d uploads", prog.uploads)
	}
	if p.devices[0].builds != 1 {
		t.Fatalf("unchanged kernel rebuilt: %d builds", p.devices[0].builds)
	}
	if got := e.Image().At(1, 2, 1, 0); got != 2.5 {
		t.Fatalf("expected 5 steps of 0.5, got %f", got)
	}
}

func TestEditsThroughImageReachTheDevice(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, p)
	if err := e.Update(1); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Image().Set(0, 3, 2, 0, 10)
	if err := e.Update(1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := e.Image().At(0, 3, 2, 0); got != 10.5 {
		t.Fatalf("edited cell should step from 10, got %f", got)
	}
	if got := e.Image().At(0, 0, 0, 0); got != 1 {
		t.Fatalf("untouched cell should hold 2 steps of 0.5, got %f", got)
	}
}

func TestUpdateRejectsBadTimestep(t *testing.T) {
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		p := &fakeProvider{}
		e := newEngine(t, p)
		e.SetTimestep(dt)
		before := e.Image().Clone()
		err := e.Update(3)
		if !errors.Is(err, core.ErrUnsupportedConfiguration) {
			t.Fatalf("timestep %v: expected ErrUnsupportedConfiguration, got %v", dt, err)
		}
		if e.TimestepsTaken() != 0 || !before.Equal(e.Image()) {
			t.Fatalf("timestep %v: rejected update changed state", dt)
		}
		if p.opens != 0 {
			t.Fatalf("timestep %v: device opened for a rejected update", dt)
		}
	}
}

func TestParameterValueChangeNeedsNoRebuild(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, p)
	if err := e.Update(1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.SetParameterValue(0, 2); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if err := e.Update(1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.devices[0].builds != 1 {
		t.Fatalf("value change triggered a rebuild: %d builds", p.devices[0].builds)
	}
	if got := e.Image().At(0, 0, 0, 0); got != 2.5 {
		t.Fatalf("expected 0.5 + 2, got %f", got)
	}
}

func TestRebuildTriggers(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, p)
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	e.SetFormula("delta_a = 2.0f * rate;")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile after formula change: %v", err)
	}
	if err := e.SetParameterName(0, "speed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	e.SetFormula("delta_a = speed;")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile after rename: %v", err)
	}
	if err := e.Allocate(8, 8, 2, 2); err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if err := e.Compile(); err != nil {
		t.Fatalf("compile after reallocate: %v", err)
	}
	dev := p.devices[0]
	if dev.builds != 4 {
		t.Fatalf("expected 4 builds, got %d", dev.builds)
	}
	for i, prog := range dev.programs[:3] {
		if !prog.released {
			t.Fatalf("program %d not released after rebuild", i)
		}
	}

	e.SetDevice(0, 1)
	if err := e.Compile(); err != nil {
		t.Fatalf("compile after device change: %v", err)
	}
	if p.opens != 2 || !dev.closed {
		t.Fatalf("device change should close the old device and open a new one (opens=%d closed=%v)", p.opens, dev.closed)
	}
}

func TestCompileErrorKeepsState(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, p)
	if err := e.GenerateInitialPattern(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := e.Update(2); err != nil {
		t.Fatalf("update: %v", err)
	}
	before := e.Image().Clone()
	params := e.Parameters()

	e.SetFormula("delta_a = @@;")
	err := e.Compile()
	var ce *core.FormulaCompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected FormulaCompileError, got %v", err)
	}
	if !strings.Contains(ce.Log, "@@") {
		t.Fatalf("compiler log not carried: %q", ce.Log)
	}
	if !before.Equal(e.Image()) || e.TimestepsTaken() != 2 || e.NumParameters() != len(params) {
		t.Fatal("failed compile changed engine state")
	}
	if e.program == nil || e.program.(*fakeProgram).released {
		t.Fatal("previous program should survive a failed compile")
	}

	err = e.Update(1)
	if !errors.As(err, &ce) {
		t.Fatalf("update with broken formula should carry the compile error, got %v", err)
	}
	if e.TimestepsTaken() != 2 || !before.Equal(e.Image()) {
		t.Fatal("update with broken formula changed state")
	}

	e.SetFormula("delta_a = rate;")
	if err := e.Update(1); err != nil {
		t.Fatalf("corrected formula should run: %v", err)
	}
	if e.TimestepsTaken() != 3 {
		t.Fatalf("expected 3 timesteps, got %d", e.TimestepsTaken())
	}
}

func TestLaunchFailureIsAtomic(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, p)
	if err := e.Update(1); err != nil {
		t.Fatalf("update: %v", err)
	}
	before := e.Image().Clone()
	prog := p.devices[0].programs[0]
	prog.runErr = errors.New("CL_OUT_OF_RESOURCES")

	err := e.Update(10)
	var ce *core.ComputeError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ComputeError, got %v", err)
	}
	if e.TimestepsTaken() != 1 || !before.Equal(e.Image()) {
		t.Fatal("failed launch changed readable state")
	}

	prog.runErr = nil
	uploads := prog.uploads
	if err := e.Update(1); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if prog.uploads != uploads+1 {
		t.Fatalf("device state should be re-uploaded after a failure, got %d uploads", prog.uploads-uploads)
	}
}

func TestHostEditsInvalidateDeviceCopy(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, p)
	if err := e.Update(1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.BlankImage(); err != nil {
		t.Fatalf("blank: %v", err)
	}
	if err := e.Update(1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := e.Image().At(0, 0, 0, 0); got != 0.5 {
		t.Fatalf("blank image not uploaded before stepping, got %f", got)
	}
}

func TestDeviceUnavailable(t *testing.T) {
	p := &fakeProvider{openErr: compute.ErrUnavailable}
	e := newEngine(t, p)
	err := e.Update(1)
	if !errors.Is(err, compute.ErrUnavailable) {
		t.Fatalf("expected unavailable device error, got %v", err)
	}
	if e.TimestepsTaken() != 0 {
		t.Fatalf("counter moved: %d", e.TimestepsTaken())
	}
}

func TestParameterNames(t *testing.T) {
	e := newEngine(t, &fakeProvider{})
	for _, name := range []string{"a", "timestep", "delta_a", "rd_x", "2x", "has space", "rate"} {
		if err := e.AddParameter(name, 1); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}
	if err := e.AddParameter("c", 1); err != nil {
		t.Fatalf("c is not a chemical of a 2-chemical system: %v", err)
	}
}

func TestSourceDeclaresChemicalsAndParameters(t *testing.T) {
	src, err := Source("delta_c = k * laplacian_c;", 3, core.ParameterList{{Name: "k", Value: 1}})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	for _, want := range []string{
		"__kernel void rd_compute(",
		"const float timestep,\n    const float k)",
		"float laplacian_c = 0.0f;",
		"delta_c = k * laplacian_c;",
		"output[2 * rd_cells + rd_i] = c + timestep * delta_c;",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("generated source missing %q:\n%s", want, src)
		}
	}
	if _, err := Source("", 27, nil); !errors.Is(err, core.ErrUnsupportedConfiguration) {
		t.Fatalf("expected unsupported configuration for 27 chemicals, got %v", err)
	}
}

func TestRegisteredAsFormula(t *testing.T) {
	e, err := core.NewFormula(core.Options{Provider: &fakeProvider{}})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if e.Kind() != core.KindFormula || e.Formula() != DefaultFormula {
		t.Fatalf("unexpected formula engine %q", e.Kind())
	}
}
