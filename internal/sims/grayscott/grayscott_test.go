package grayscott

import (
	"errors"
	"math"
	"slices"
	"testing"

	"rdsim/internal/core"
)

func newAllocated(t *testing.T, x, y, z int) *Engine {
	t.Helper()
	e := New(DefaultConfig())
	if err := e.Allocate(x, y, z, 2); err != nil {
		t.Fatalf("allocate %dx%dx%d: %v", x, y, z, err)
	}
	if err := e.GenerateInitialPattern(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return e
}

func TestDefaultScenarioRunsHundredSteps(t *testing.T) {
	e := newAllocated(t, 30, 25, 20)
	if err := e.Update(100); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := e.TimestepsTaken(); got != 100 {
		t.Fatalf("expected 100 timesteps taken, got %d", got)
	}
	if e.Dimensionality() != 3 {
		t.Fatalf("expected 3D system, got %dD", e.Dimensionality())
	}
}

func TestStepComposition(t *testing.T) {
	for _, shape := range []core.Shape{{X: 16, Y: 1, Z: 1}, {X: 12, Y: 9, Z: 1}, {X: 7, Y: 6, Z: 5}} {
		one := newAllocated(t, shape.X, shape.Y, shape.Z)
		two := newAllocated(t, shape.X, shape.Y, shape.Z)

		if err := one.Update(1); err != nil {
			t.Fatalf("%s first update: %v", shape, err)
		}
		if err := one.Update(1); err != nil {
			t.Fatalf("%s second update: %v", shape, err)
		}
		if err := two.Update(2); err != nil {
			t.Fatalf("%s double update: %v", shape, err)
		}
		if !one.Image().Equal(two.Image()) {
			t.Fatalf("%s: Update(1)+Update(1) differs from Update(2)", shape)
		}
		if one.TimestepsTaken() != 2 || two.TimestepsTaken() != 2 {
			t.Fatalf("%s: expected 2 timesteps, got %d and %d", shape, one.TimestepsTaken(), two.TimestepsTaken())
		}
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	serial := newAllocated(t, 10, 8, 6)
	serial.workers = 1
	parallel := newAllocated(t, 10, 8, 6)
	parallel.workers = 7

	if err := serial.Update(5); err != nil {
		t.Fatalf("serial update: %v", err)
	}
	if err := parallel.Update(5); err != nil {
		t.Fatalf("parallel update: %v", err)
	}
	if !serial.Image().Equal(parallel.Image()) {
		t.Fatal("banding across workers changed the result")
	}
}

func TestSingleCellHasNoDiffusion(t *testing.T) {
	run := func(da, db float64) *core.Grid {
		cfg := DefaultConfig()
		cfg.DA = da
		cfg.DB = db
		e := New(cfg)
		if err := e.Allocate(1, 1, 1, 2); err != nil {
			t.Fatalf("allocate: %v", err)
		}
		e.Image().Set(0, 0, 0, 0, 0.6)
		e.Image().Set(1, 0, 0, 0, 0.3)
		if err := e.Update(10); err != nil {
			t.Fatalf("update: %v", err)
		}
		return e.Image().Clone()
	}

	slow := run(0.082, 0.041)
	none := run(0, 0)
	fast := run(50, 80)
	if !slow.Equal(none) || !fast.Equal(none) {
		t.Fatalf("diffusion coefficients changed a single-cell run: %v %v %v", slow.Data(), none.Data(), fast.Data())
	}
}

func TestUniformFieldStaysUniform(t *testing.T) {
	e := New(DefaultConfig())
	if err := e.Allocate(5, 4, 3, 2); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for i := range e.Image().Channel(0) {
		e.Image().Channel(0)[i] = 0.7
		e.Image().Channel(1)[i] = 0.2
	}
	if err := e.Update(3); err != nil {
		t.Fatalf("update: %v", err)
	}
	a := e.Image().Channel(0)
	for i := range a {
		if a[i] != a[0] {
			t.Fatalf("cell %d diverged from a uniform field: %f vs %f", i, a[i], a[0])
		}
	}
}

func TestGenerateInitialPatternResetsCounterAndIsDeterministic(t *testing.T) {
	e := newAllocated(t, 20, 20, 1)
	first := e.Image().Clone()
	if err := e.Update(7); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.GenerateInitialPattern(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := e.TimestepsTaken(); got != 0 {
		t.Fatalf("expected counter reset to 0, got %d", got)
	}
	if !first.Equal(e.Image()) {
		t.Fatal("initial pattern not deterministic")
	}
	if first.Stats(1).Max == 0 {
		t.Fatal("initial pattern should seed chemical b")
	}
}

func TestAllocateValidation(t *testing.T) {
	e := New(DefaultConfig())
	if err := e.Allocate(4, 4, 1, 3); !errors.Is(err, core.ErrUnsupportedConfiguration) {
		t.Fatalf("expected unsupported configuration for 3 chemicals, got %v", err)
	}
	if err := e.Allocate(0, 4, 1, 2); !errors.Is(err, core.ErrInvalidShape) {
		t.Fatalf("expected invalid shape, got %v", err)
	}
	if err := e.Allocate(4, 4, 1, 0); !errors.Is(err, core.ErrInvalidShape) {
		t.Fatalf("expected invalid shape for zero chemicals, got %v", err)
	}
}

func TestUpdateBeforeAllocate(t *testing.T) {
	e := New(DefaultConfig())
	if err := e.Update(1); !errors.Is(err, core.ErrUnsupportedConfiguration) {
		t.Fatalf("expected unsupported configuration, got %v", err)
	}
	if e.TimestepsTaken() != 0 {
		t.Fatalf("counter moved on failed update: %d", e.TimestepsTaken())
	}
}

func TestNegativeTimestepIsRejected(t *testing.T) {
	e := newAllocated(t, 12, 12, 1)
	before := e.Image().Clone()
	e.SetTimestep(-1)
	if err := e.Update(3); !errors.Is(err, core.ErrUnsupportedConfiguration) {
		t.Fatalf("expected ErrUnsupportedConfiguration, got %v", err)
	}
	if e.TimestepsTaken() != 0 || !before.Equal(e.Image()) {
		t.Fatal("rejected update changed state")
	}
}

func TestOversizedAllocateIsRejected(t *testing.T) {
	e := New(DefaultConfig())
	if err := e.Allocate(math.MaxInt32, 2, 1, 2); !errors.Is(err, core.ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
	if err := e.Update(1); !errors.Is(err, core.ErrUnsupportedConfiguration) {
		t.Fatalf("update after a rejected allocation should fail cleanly, got %v", err)
	}
}

func TestOverflowRollsBack(t *testing.T) {
	e := newAllocated(t, 12, 12, 1)
	if err := e.Update(3); err != nil {
		t.Fatalf("warm-up update: %v", err)
	}
	before := e.Image().Clone()
	e.SetTimestep(1e38)

	err := e.Update(5)
	var ce *core.ComputeError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ComputeError, got %v", err)
	}
	if !errors.Is(err, core.ErrNonFinite) {
		t.Fatalf("expected non-finite cause, got %v", err)
	}
	if ce.Step <= 3 {
		t.Fatalf("failing step should be counted after the warm-up, got %d", ce.Step)
	}
	if got := e.TimestepsTaken(); got != 3 {
		t.Fatalf("expected counter to stay at 3, got %d", got)
	}
	if !before.Equal(e.Image()) {
		t.Fatal("readable grid changed by a failed update")
	}
}

func TestBlankImageKeepsMetadata(t *testing.T) {
	e := newAllocated(t, 6, 6, 6)
	if err := e.SetParameterValueByName("F", 0.05); err != nil {
		t.Fatalf("set F: %v", err)
	}
	if err := e.Update(2); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.BlankImage(); err != nil {
		t.Fatalf("blank: %v", err)
	}
	if !slices.Equal(e.Image().Data(), make([]float32, len(e.Image().Data()))) {
		t.Fatal("blank image left non-zero values")
	}
	if v, _ := e.ParameterValue(paramF); v != 0.05 {
		t.Fatalf("blank reset parameter F to %f", v)
	}
	if e.RuleName() != Name {
		t.Fatalf("blank changed rule name to %q", e.RuleName())
	}
}

func TestParameterSettersMarkModified(t *testing.T) {
	e := New(DefaultConfig())
	if e.IsModified() {
		t.Fatal("new engine should be unmodified")
	}
	e.SetFilename("x.vti")
	if e.IsModified() {
		t.Fatal("filename changes are not scientific state")
	}
	if err := e.SetParameterValue(paramK, 0.06); err != nil {
		t.Fatalf("set k: %v", err)
	}
	if !e.IsModified() {
		t.Fatal("parameter change should mark the engine modified")
	}
	if err := e.SetParameterValueByName("nope", 1); !errors.Is(err, core.ErrUnsupportedConfiguration) {
		t.Fatalf("expected unsupported configuration for unknown parameter, got %v", err)
	}
	if err := e.SetParameterValue(9, 1); !errors.Is(err, core.ErrIndexRange) {
		t.Fatalf("expected index range error, got %v", err)
	}
}

func TestRegistered(t *testing.T) {
	e, err := core.NewInbuilt(Name, core.Options{})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if e.Implementation() != Name || e.Kind() != core.KindInbuilt {
		t.Fatalf("unexpected engine %q/%q", e.Implementation(), e.Kind())
	}
}

func TestFromMap(t *testing.T) {
	c := FromMap(map[string]string{"k": "0.06", "F": "bad", "timestep": "-1", "seed": "9"})
	if c.K != 0.06 || c.F != DefaultConfig().F || c.Timestep != DefaultConfig().Timestep || c.Seed != 9 {
		t.Fatalf("unexpected config %+v", c)
	}
}
