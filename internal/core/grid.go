package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Shape describes the spatial extents of a simulation grid. A depth of 1
// denotes a 2D system; height and depth of 1 denote a 1D system.
type Shape struct {
	X, Y, Z int
}

// Cells returns the number of spatial positions covered by the shape.
func (s Shape) Cells() int { return s.X * s.Y * s.Z }

// Dimensionality reports 3 when depth exceeds 1, 2 when height exceeds 1 and
// 1 otherwise.
func (s Shape) Dimensionality() int {
	switch {
	case s.Z > 1:
		return 3
	case s.Y > 1:
		return 2
	default:
		return 1
	}
}

// Valid reports whether every extent is at least 1.
func (s Shape) Valid() bool { return s.X > 0 && s.Y > 0 && s.Z > 0 }

func (s Shape) String() string { return fmt.Sprintf("%dx%dx%d", s.X, s.Y, s.Z) }

// MaxValues bounds the number of float32 values one grid may hold.
const MaxValues = math.MaxInt32

// valueCount returns x*y*z*channels, or false when the product exceeds
// MaxValues. Every factor must already be positive.
func valueCount(s Shape, channels int) (int, bool) {
	n := 1
	for _, v := range [...]int{s.X, s.Y, s.Z, channels} {
		if v > MaxValues/n {
			return 0, false
		}
		n *= v
	}
	return n, true
}

// Grid stores one snapshot of a multi-channel scalar field. Channels are laid
// out one after another; within a channel cells are in x-fastest order.
type Grid struct {
	shape    Shape
	channels int
	data     []float32
}

// NewGrid allocates a zeroed grid for the given shape and channel count.
func NewGrid(shape Shape, channels int) (*Grid, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("%w: extents %s", ErrInvalidShape, shape)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidShape, channels)
	}
	n, ok := valueCount(shape, channels)
	if !ok {
		return nil, fmt.Errorf("%w: %s with %d channels exceeds %d values", ErrInvalidShape, shape, channels, MaxValues)
	}
	return &Grid{
		shape:    shape,
		channels: channels,
		data:     make([]float32, n),
	}, nil
}

// Shape returns the spatial extents.
func (g *Grid) Shape() Shape { return g.shape }

// Channels returns the number of chemicals stored per cell.
func (g *Grid) Channels() int { return g.channels }

// Data exposes the backing slice so callers can read/write values directly.
func (g *Grid) Data() []float32 { return g.data }

// Channel returns the sub-slice holding channel c.
func (g *Grid) Channel(c int) []float32 {
	n := g.shape.Cells()
	return g.data[c*n : (c+1)*n]
}

// Index returns the within-channel index for coordinates (x, y, z).
func (g *Grid) Index(x, y, z int) int {
	return (z*g.shape.Y+y)*g.shape.X + x
}

// Wrap applies periodic wrapping on every axis.
func (g *Grid) Wrap(x, y, z int) (int, int, int) {
	x = (x%g.shape.X + g.shape.X) % g.shape.X
	y = (y%g.shape.Y + g.shape.Y) % g.shape.Y
	z = (z%g.shape.Z + g.shape.Z) % g.shape.Z
	return x, y, z
}

// At reads channel c at (x, y, z).
func (g *Grid) At(c, x, y, z int) float32 {
	return g.data[c*g.shape.Cells()+g.Index(x, y, z)]
}

// Set writes channel c at (x, y, z).
func (g *Grid) Set(c, x, y, z int, v float32) {
	g.data[c*g.shape.Cells()+g.Index(x, y, z)] = v
}

// Clear fills the grid with zeros.
func (g *Grid) Clear() {
	for i := range g.data {
		g.data[i] = 0
	}
}

// SameLayout reports whether o has identical extents and channel count.
func (g *Grid) SameLayout(o *Grid) bool {
	return o != nil && g.shape == o.shape && g.channels == o.channels
}

// CopyFrom overwrites g with the contents of src. Both grids must share the
// same layout.
func (g *Grid) CopyFrom(src *Grid) error {
	if !g.SameLayout(src) {
		return fmt.Errorf("%w: cannot copy %s/%d into %s/%d", ErrInvalidShape,
			layoutShape(src), layoutChannels(src), g.shape, g.channels)
	}
	copy(g.data, src.data)
	return nil
}

// Clone returns an independently owned deep copy of g.
func (g *Grid) Clone() *Grid {
	return &Grid{
		shape:    g.shape,
		channels: g.channels,
		data:     append([]float32(nil), g.data...),
	}
}

// Equal reports whether o has the same layout and bit-identical values.
func (g *Grid) Equal(o *Grid) bool {
	if !g.SameLayout(o) {
		return false
	}
	for i, v := range g.data {
		if math.Float32bits(v) != math.Float32bits(o.data[i]) {
			return false
		}
	}
	return true
}

// Finite reports whether every value is neither NaN nor infinite.
func (g *Grid) Finite() bool {
	for _, v := range g.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ChannelStats summarizes the values of one chemical.
type ChannelStats struct {
	Min, Max, Mean float64
}

// Stats computes min/max/mean for channel c.
func (g *Grid) Stats(c int) ChannelStats {
	src := g.Channel(c)
	vals := make([]float64, len(src))
	for i, v := range src {
		vals[i] = float64(v)
	}
	return ChannelStats{
		Min:  floats.Min(vals),
		Max:  floats.Max(vals),
		Mean: floats.Sum(vals) / float64(len(vals)),
	}
}

func layoutShape(g *Grid) Shape {
	if g == nil {
		return Shape{}
	}
	return g.shape
}

func layoutChannels(g *Grid) int {
	if g == nil {
		return 0
	}
	return g.channels
}
