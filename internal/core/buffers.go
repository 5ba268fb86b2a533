package core

// DoubleBuffer holds the two grids an engine steps between. One is readable
// (the last fully computed state) and the other writable.
type DoubleBuffer struct {
	bufs [2]*Grid
	read int
}

// Allocate (re)sizes both buffers to the given layout and clears them.
func (d *DoubleBuffer) Allocate(shape Shape, channels int) error {
	a, err := NewGrid(shape, channels)
	if err != nil {
		return err
	}
	b, err := NewGrid(shape, channels)
	if err != nil {
		return err
	}
	d.bufs = [2]*Grid{a, b}
	d.read = 0
	return nil
}

// Allocated reports whether Allocate has succeeded at least once.
func (d *DoubleBuffer) Allocated() bool { return d.bufs[0] != nil }

// Readable returns the buffer holding the last complete step.
func (d *DoubleBuffer) Readable() *Grid { return d.bufs[d.read] }

// Writable returns the buffer the next step is computed into.
func (d *DoubleBuffer) Writable() *Grid { return d.bufs[1-d.read] }

// Swap exchanges the read and write roles. Call only after Writable holds a
// fully computed step.
func (d *DoubleBuffer) Swap() { d.read = 1 - d.read }
