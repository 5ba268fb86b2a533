package core

import (
	"fmt"
	"math"
)

// Base carries the state shared by every engine: the double buffer, the
// step counter and the descriptive metadata. Engines embed it and supply
// Kind, Implementation, Allocate, Update, GenerateInitialPattern and Close.
type Base struct {
	buffers    DoubleBuffer
	checkpoint *Grid

	timestep float64
	taken    int
	modified bool
	filename string

	ruleName    string
	ruleDesc    string
	patternDesc string
	params      ParameterList
}

// NewBase returns a Base with the given timestep and parameters.
func NewBase(timestep float64, params ParameterList) Base {
	return Base{
		timestep: timestep,
		filename: "untitled",
		params:   append(ParameterList(nil), params...),
	}
}

// AllocateBuffers sizes the double buffer and resets the step counter.
func (b *Base) AllocateBuffers(x, y, z, chemicals int) error {
	if err := b.buffers.Allocate(Shape{X: x, Y: y, Z: z}, chemicals); err != nil {
		return err
	}
	b.checkpoint = nil
	b.taken = 0
	return nil
}

// RequireAllocated fails when no grid has been allocated yet.
func (b *Base) RequireAllocated() error {
	if !b.buffers.Allocated() {
		return fmt.Errorf("%w: engine has not been allocated", ErrUnsupportedConfiguration)
	}
	return nil
}

// Buffers exposes the double buffer to embedding engines.
func (b *Base) Buffers() *DoubleBuffer { return &b.buffers }

// Advance runs steps full-grid passes of step, swapping after each one. If
// any pass fails or produces non-finite values, the readable grid and the
// step counter are restored to their values on entry.
func (b *Base) Advance(steps int, step func(src, dst *Grid) error) error {
	if err := b.RequireAllocated(); err != nil {
		return err
	}
	if steps < 0 {
		return fmt.Errorf("%w: negative step count %d", ErrUnsupportedConfiguration, steps)
	}
	if steps == 0 {
		return nil
	}
	if err := CheckTimestep(b.timestep); err != nil {
		return err
	}
	if steps > 1 {
		b.saveCheckpoint()
	}
	start := b.taken
	for i := 0; i < steps; i++ {
		src, dst := b.buffers.Readable(), b.buffers.Writable()
		err := step(src, dst)
		if err == nil && !dst.Finite() {
			err = ErrNonFinite
		}
		if err != nil {
			if i > 0 {
				_ = b.buffers.Readable().CopyFrom(b.checkpoint)
			}
			b.taken = start
			return &ComputeError{Step: start + i + 1, Err: err}
		}
		b.buffers.Swap()
		b.taken++
	}
	return nil
}

func (b *Base) saveCheckpoint() {
	src := b.buffers.Readable()
	if b.checkpoint == nil || !b.checkpoint.SameLayout(src) {
		b.checkpoint = src.Clone()
		return
	}
	_ = b.checkpoint.CopyFrom(src)
}

// Image returns the readable grid, or nil before allocation.
func (b *Base) Image() *Grid {
	if !b.buffers.Allocated() {
		return nil
	}
	return b.buffers.Readable()
}

// BlankImage zeroes the grid and the step counter, keeping rule metadata.
func (b *Base) BlankImage() error {
	if err := b.RequireAllocated(); err != nil {
		return err
	}
	b.buffers.Readable().Clear()
	b.buffers.Writable().Clear()
	b.taken = 0
	return nil
}

// CopyFromImage imports src verbatim into the readable grid.
func (b *Base) CopyFromImage(src *Grid) error {
	if err := b.RequireAllocated(); err != nil {
		return err
	}
	return b.buffers.Readable().CopyFrom(src)
}

func (b *Base) Shape() Shape {
	if !b.buffers.Allocated() {
		return Shape{}
	}
	return b.buffers.Readable().Shape()
}

func (b *Base) Dimensionality() int {
	if !b.buffers.Allocated() {
		return 0
	}
	return b.Shape().Dimensionality()
}

func (b *Base) NumChemicals() int {
	if !b.buffers.Allocated() {
		return 0
	}
	return b.buffers.Readable().Channels()
}

func (b *Base) Timestep() float64 { return b.timestep }

// CheckTimestep rejects a timestep that is not a finite positive number.
func CheckTimestep(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return fmt.Errorf("%w: timestep %v must be finite and positive", ErrUnsupportedConfiguration, dt)
	}
	return nil
}

func (b *Base) SetTimestep(dt float64) {
	b.timestep = dt
	b.modified = true
}

func (b *Base) TimestepsTaken() int { return b.taken }

// SetTimestepsTaken overrides the counter; used to reset it to zero.
func (b *Base) SetTimestepsTaken(n int) { b.taken = n }

func (b *Base) NumParameters() int { return len(b.params) }

// Parameters returns a copy of the parameter list.
func (b *Base) Parameters() ParameterList {
	return append(ParameterList(nil), b.params...)
}

func (b *Base) ParameterName(i int) (string, error) {
	if err := b.params.check(i); err != nil {
		return "", err
	}
	return b.params[i].Name, nil
}

func (b *Base) ParameterValue(i int) (float64, error) {
	if err := b.params.check(i); err != nil {
		return 0, err
	}
	return b.params[i].Value, nil
}

func (b *Base) SetParameterName(i int, name string) error {
	if err := b.params.check(i); err != nil {
		return err
	}
	b.params[i].Name = name
	b.modified = true
	return nil
}

func (b *Base) SetParameterValue(i int, v float64) error {
	if err := b.params.check(i); err != nil {
		return err
	}
	b.params[i].Value = v
	b.modified = true
	return nil
}

// SetParameterValueByName fails with ErrUnsupportedConfiguration when the
// rule has no parameter of that name.
func (b *Base) SetParameterValueByName(name string, v float64) error {
	i := b.params.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: no parameter named %q", ErrUnsupportedConfiguration, name)
	}
	return b.SetParameterValue(i, v)
}

// AppendParameter adds a parameter to the end of the list.
func (b *Base) AppendParameter(name string, v float64) {
	b.params = append(b.params, Parameter{Name: name, Value: v})
	b.modified = true
}

// RemoveParameter deletes parameter i.
func (b *Base) RemoveParameter(i int) error {
	if err := b.params.check(i); err != nil {
		return err
	}
	b.params = append(b.params[:i], b.params[i+1:]...)
	b.modified = true
	return nil
}

// ResetParameters empties the parameter list.
func (b *Base) ResetParameters() {
	b.params = nil
	b.modified = true
}

func (b *Base) RuleName() string { return b.ruleName }

func (b *Base) SetRuleName(s string) {
	b.ruleName = s
	b.modified = true
}

func (b *Base) RuleDescription() string { return b.ruleDesc }

func (b *Base) SetRuleDescription(s string) {
	b.ruleDesc = s
	b.modified = true
}

func (b *Base) PatternDescription() string { return b.patternDesc }

func (b *Base) SetPatternDescription(s string) {
	b.patternDesc = s
	b.modified = true
}

func (b *Base) Filename() string { return b.filename }

func (b *Base) SetFilename(s string) { b.filename = s }

func (b *Base) IsModified() bool { return b.modified }

func (b *Base) SetModified(m bool) { b.modified = m }
