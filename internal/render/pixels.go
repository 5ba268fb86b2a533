package render

import (
	"image/color"
	"math"

	"rdsim/internal/core"
)

type colorStop struct {
	t   float64
	col color.RGBA
}

// concentrationStops maps low concentrations to dark blue and high ones to
// near white.
var concentrationStops = []colorStop{
	{0.0, color.RGBA{R: 8, G: 10, B: 40, A: 255}},
	{0.25, color.RGBA{R: 40, G: 60, B: 140, A: 255}},
	{0.5, color.RGBA{R: 60, G: 160, B: 150, A: 255}},
	{0.75, color.RGBA{R: 220, G: 190, B: 80, A: 255}},
	{1.0, color.RGBA{R: 250, G: 245, B: 230, A: 255}},
}

// Palette is a 256-entry lookup table from normalized concentration to colour.
type Palette [256]color.RGBA

// DefaultPalette returns the concentration colour ramp.
func DefaultPalette() *Palette {
	var p Palette
	for i := range p {
		p[i] = rampColor(float64(i) / 255)
	}
	return &p
}

// Grayscale returns a black to white ramp.
func Grayscale() *Palette {
	var p Palette
	for i := range p {
		v := uint8(i)
		p[i] = color.RGBA{R: v, G: v, B: v, A: 255}
	}
	return &p
}

func rampColor(t float64) color.RGBA {
	t = clamp01(t)
	for i := 1; i < len(concentrationStops); i++ {
		curr := concentrationStops[i]
		if t <= curr.t {
			prev := concentrationStops[i-1]
			span := curr.t - prev.t
			var local float64
			if span > 0 {
				local = (t - prev.t) / span
			}
			return lerpRGBA(prev.col, curr.col, local)
		}
	}
	return concentrationStops[len(concentrationStops)-1].col
}

// FillSliceRGBA writes the z-slice of one chemical into buf as RGBA pixels,
// mapping lo..hi onto the palette. buf must hold 4*X*Y bytes. When hi <= lo
// the slice is drawn with the palette's first colour.
func FillSliceRGBA(buf []byte, g *core.Grid, chemical, z int, lo, hi float64, p *Palette) {
	s := g.Shape()
	n := s.X * s.Y
	if len(buf) < 4*n || chemical < 0 || chemical >= g.Channels() || z < 0 || z >= s.Z {
		return
	}
	src := g.Channel(chemical)[z*n : (z+1)*n]
	span := hi - lo
	for i, v := range src {
		idx := 0
		if span > 0 {
			idx = int(math.Round(clamp01((float64(v)-lo)/span) * 255))
		}
		col := p[idx]
		base := i * 4
		buf[base+0] = col.R
		buf[base+1] = col.G
		buf[base+2] = col.B
		buf[base+3] = col.A
	}
}

// AutoRange returns the value range of a chemical across the whole grid.
func AutoRange(g *core.Grid, chemical int) (lo, hi float64) {
	st := g.Stats(chemical)
	return st.Min, st.Max
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func lerpRGBA(a, b color.RGBA, t float64) color.RGBA {
	t = clamp01(t)
	return color.RGBA{
		R: lerpComponent(a.R, b.R, t),
		G: lerpComponent(a.G, b.G, t),
		B: lerpComponent(a.B, b.B, t),
		A: lerpComponent(a.A, b.A, t),
	}
}

func lerpComponent(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
