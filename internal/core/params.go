package core

import (
	"fmt"
	"strconv"
)

// Parameter is a named scalar referenced by a reaction rule.
type Parameter struct {
	Name  string
	Value float64
}

func (p Parameter) String() string {
	return p.Name + "=" + strconv.FormatFloat(p.Value, 'g', -1, 64)
}

// ParameterList is the ordered set of parameters an engine exposes.
type ParameterList []Parameter

// Index returns the position of the named parameter, or -1.
func (l ParameterList) Index(name string) int {
	for i, p := range l {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Values returns the parameter values as float32 in list order.
func (l ParameterList) Values() []float32 {
	out := make([]float32, len(l))
	for i, p := range l {
		out[i] = float32(p.Value)
	}
	return out
}

// Names returns the parameter names in list order.
func (l ParameterList) Names() []string {
	out := make([]string, len(l))
	for i, p := range l {
		out[i] = p.Name
	}
	return out
}

func (l ParameterList) check(i int) error {
	if i < 0 || i >= len(l) {
		return fmt.Errorf("%w: %d of %d", ErrIndexRange, i, len(l))
	}
	return nil
}
