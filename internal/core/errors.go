package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShape indicates a non-positive extent or channel count, or a
	// grid whose layout does not match the engine's.
	ErrInvalidShape = errors.New("rd: invalid grid shape")

	// ErrUnsupportedConfiguration indicates an operation requested before
	// allocation, or a chemical/parameter layout the rule cannot run.
	ErrUnsupportedConfiguration = errors.New("rd: unsupported configuration")

	// ErrNonFinite indicates a step produced NaN or infinite values.
	ErrNonFinite = errors.New("rd: non-finite value produced")

	// ErrIndexRange indicates a parameter index outside the parameter list.
	ErrIndexRange = errors.New("rd: parameter index out of range")
)

// ComputeError reports a step that could not complete. The engine state is
// left as it was before the failing Update call.
type ComputeError struct {
	Step int
	Err  error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("rd: compute failed at step %d: %v", e.Step, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// FormulaCompileError carries the device compiler's diagnostic output.
type FormulaCompileError struct {
	Log string
	Err error
}

func (e *FormulaCompileError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("rd: formula failed to compile: %v", e.Err)
	}
	return fmt.Sprintf("rd: formula failed to compile: %v\n%s", e.Err, e.Log)
}

func (e *FormulaCompileError) Unwrap() error { return e.Err }

// UnsupportedRuleError names an inbuilt rule this build does not provide.
type UnsupportedRuleError struct {
	Name string
}

func (e *UnsupportedRuleError) Error() string {
	return fmt.Sprintf("rd: unsupported inbuilt implementation: %q", e.Name)
}

// NewerVersionWarning is returned alongside a successfully loaded pattern
// whose format version exceeds the supported one.
type NewerVersionWarning struct {
	FileVersion      int
	SupportedVersion int
}

func (w *NewerVersionWarning) Error() string {
	return fmt.Sprintf("rd: file format version %d is newer than supported version %d; download a newer version",
		w.FileVersion, w.SupportedVersion)
}

// IsWarning reports whether err only carries a non-fatal warning.
func IsWarning(err error) bool {
	var w *NewerVersionWarning
	return errors.As(err, &w)
}
