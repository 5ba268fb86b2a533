package core

import "time"

// Meter tracks stepping throughput across successive Update calls.
type Meter struct {
	now     func() time.Time
	started time.Time

	fps  float64
	mcgs float64
}

// NewMeter constructs a Meter using the wall clock.
func NewMeter() *Meter {
	return &Meter{now: time.Now}
}

// Begin marks the start of an Update call.
func (m *Meter) Begin() {
	m.started = m.now()
}

// End records that steps were computed over a grid of cells positions since
// the matching Begin.
func (m *Meter) End(steps, cells int) {
	elapsed := m.now().Sub(m.started)
	if elapsed <= 0 || steps <= 0 {
		return
	}
	m.fps = float64(steps) / elapsed.Seconds()
	m.mcgs = m.fps * float64(cells) / 1e6
}

// FramesPerSecond reports computed steps per second for the last call.
func (m *Meter) FramesPerSecond() float64 { return m.fps }

// MCGS reports million cell generations per second for the last call.
func (m *Meter) MCGS() float64 { return m.mcgs }
