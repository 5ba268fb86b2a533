package core

import (
	"sort"

	"rdsim/internal/compute"
)

// RuleKind distinguishes inbuilt reaction laws from user-authored formulas.
type RuleKind string

const (
	// KindInbuilt names a reaction law implemented in this module.
	KindInbuilt RuleKind = "inbuilt"
	// KindFormula names a reaction law compiled from user formula text.
	KindFormula RuleKind = "formula"
)

// Engine is the stepping contract every reaction-diffusion implementation
// satisfies. Engines are not safe for concurrent use; the driver serializes
// calls.
type Engine interface {
	Kind() RuleKind
	// Implementation is the registry name for inbuilt engines.
	Implementation() string

	Allocate(x, y, z, chemicals int) error
	Update(steps int) error
	GenerateInitialPattern() error
	BlankImage() error
	CopyFromImage(src *Grid) error
	// Image returns the readable buffer. Callers must not retain it across
	// Update calls.
	Image() *Grid

	Shape() Shape
	Dimensionality() int
	NumChemicals() int

	Timestep() float64
	SetTimestep(dt float64)
	TimestepsTaken() int
	SetTimestepsTaken(n int)

	NumParameters() int
	Parameters() ParameterList
	ParameterName(i int) (string, error)
	ParameterValue(i int) (float64, error)
	SetParameterName(i int, name string) error
	SetParameterValue(i int, v float64) error
	SetParameterValueByName(name string, v float64) error

	RuleName() string
	SetRuleName(s string)
	RuleDescription() string
	SetRuleDescription(s string)
	PatternDescription() string
	SetPatternDescription(s string)

	Filename() string
	SetFilename(s string)
	IsModified() bool
	SetModified(m bool)

	// Close releases device resources held by the engine.
	Close() error
}

// FormulaEngine is implemented by engines whose reaction law is user text.
type FormulaEngine interface {
	Engine
	Formula() string
	SetFormula(s string)
	AddParameter(name string, v float64) error
	DeleteParameter(i int) error
	ClearParameters()
	Compile() error
}

// Options carries construction inputs shared by every engine factory.
type Options struct {
	// Provider supplies compute devices to formula engines. Nil selects
	// compute.Default().
	Provider compute.Provider
	Platform int
	Device   int
	Seed     int64
}

// Factory constructs an Engine.
type Factory func(opts Options) Engine

var (
	inbuilt = map[string]Factory{}
	formula Factory
)

// Register adds an inbuilt engine factory under the provided implementation
// name.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		return
	}
	inbuilt[name] = f
}

// RegisterFormula installs the factory used for formula rules.
func RegisterFormula(f Factory) {
	formula = f
}

// Names returns the registered inbuilt implementation names, sorted.
func Names() []string {
	names := make([]string, 0, len(inbuilt))
	for name := range inbuilt {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewInbuilt constructs the named inbuilt engine.
func NewInbuilt(name string, opts Options) (Engine, error) {
	f, ok := inbuilt[name]
	if !ok {
		return nil, &UnsupportedRuleError{Name: name}
	}
	return f(opts), nil
}

// NewFormula constructs a formula engine.
func NewFormula(opts Options) (FormulaEngine, error) {
	if formula == nil {
		return nil, &UnsupportedRuleError{Name: string(KindFormula)}
	}
	e, ok := formula(opts).(FormulaEngine)
	if !ok {
		return nil, &UnsupportedRuleError{Name: string(KindFormula)}
	}
	return e, nil
}
