//go:build ebiten

package render

import (
	"github.com/hajimehoshi/ebiten/v2"

	"rdsim/internal/core"
)

// GridPainter draws one chemical z-slice of a grid through a palette.
type GridPainter struct {
	w, h    int
	img     *ebiten.Image
	buf     []byte
	palette *Palette
}

// NewGridPainter allocates a painter for slices of size w*h.
func NewGridPainter(w, h int) *GridPainter {
	gp := &GridPainter{w: w, h: h, buf: make([]byte, 4*w*h), palette: DefaultPalette()}
	gp.img = ebiten.NewImage(w, h)
	return gp
}

// SetPalette replaces the colour ramp.
func (gp *GridPainter) SetPalette(p *Palette) { gp.palette = p }

// Blit uploads the slice into the painter image and draws it scaled.
func (gp *GridPainter) Blit(dst *ebiten.Image, g *core.Grid, chemical, z int, lo, hi float64, scale int) {
	s := g.Shape()
	if s.X != gp.w || s.Y != gp.h {
		return
	}
	FillSliceRGBA(gp.buf, g, chemical, z, lo, hi, gp.palette)
	gp.img.WritePixels(gp.buf)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(scale), float64(scale))
	dst.DrawImage(gp.img, op)
}

// Size returns the dimensions of the underlying image.
func (gp *GridPainter) Size() (int, int) { return gp.w, gp.h }
