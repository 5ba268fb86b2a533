// Package session drives a reaction-diffusion engine the way an interactive
// shell does: it owns the current engine, remembers the starting pattern so
// a run can be reset, and handles opening, saving and device selection.
// A Session is not safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"rdsim/internal/compute"
	"rdsim/internal/core"
	"rdsim/internal/pattern"
	"rdsim/internal/sims/grayscott"
)

// Untitled is the filename of patterns that have not been saved.
const Untitled = "untitled"

// Session owns one engine at a time.
type Session struct {
	cfg      Config
	log      *log.Logger
	provider compute.Provider

	engine core.Engine
	start  *core.Grid
	meter  *core.Meter

	// platform and device are applied the next time a formula pattern is
	// opened.
	platform int
	device   int
}

// New creates a session holding the default Gray-Scott pattern. A nil
// provider selects compute.Default and a nil logger log.Default.
func New(cfg *Config, provider compute.Provider, logger *log.Logger) (*Session, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if provider == nil {
		provider = compute.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		cfg:      *cfg,
		log:      logger,
		provider: provider,
		meter:    core.NewMeter(),
		platform: cfg.Platform,
		device:   cfg.Device,
	}
	if err := s.NewPattern(); err != nil {
		return nil, err
	}
	return s, nil
}

// Engine returns the current engine.
func (s *Session) Engine() core.Engine { return s.engine }

// Config returns a copy of the session configuration.
func (s *Session) Config() Config { return s.cfg }

func (s *Session) options() core.Options {
	return core.Options{
		Provider: s.provider,
		Platform: s.platform,
		Device:   s.device,
		Seed:     s.cfg.Seed,
	}
}

// NewPattern creates the default Gray-Scott system the first time it is
// called; afterwards it blanks the current one. Either way the pattern
// becomes untitled and unmodified.
func (s *Session) NewPattern() error {
	if s.engine == nil {
		e, err := core.NewInbuilt(grayscott.Name, s.options())
		if err != nil {
			return err
		}
		if err := e.Allocate(s.cfg.Width, s.cfg.Height, s.cfg.Depth, s.cfg.Chemicals); err != nil {
			_ = e.Close()
			return err
		}
		if err := e.GenerateInitialPattern(); err != nil {
			_ = e.Close()
			return err
		}
		s.engine = e
	} else if err := s.engine.BlankImage(); err != nil {
		return err
	}
	s.start = nil
	s.engine.SetFilename(Untitled)
	s.engine.SetModified(false)
	return nil
}

// Generate regenerates the initial pattern of the current rule.
func (s *Session) Generate() error {
	if err := s.engine.GenerateInitialPattern(); err != nil {
		return err
	}
	s.start = nil
	s.engine.SetFilename(Untitled)
	s.engine.SetModified(false)
	return nil
}

// Blank zeroes every chemical, keeping the rule.
func (s *Session) Blank() error {
	if err := s.engine.BlankImage(); err != nil {
		return err
	}
	s.start = nil
	s.engine.SetFilename(Untitled)
	s.engine.SetModified(false)
	return nil
}

// Step advances the engine by n timesteps. The grid is remembered as the
// starting pattern when no steps have been taken yet.
func (s *Session) Step(n int) error {
	if s.engine.TimestepsTaken() == 0 {
		s.saveStart()
	}
	s.meter.Begin()
	if err := s.engine.Update(n); err != nil {
		s.log.Printf("update of %d steps failed: %v", n, err)
		return err
	}
	s.meter.End(n, s.engine.Shape().Cells())
	return nil
}

// Run steps in chunks of StepsPerRender until total timesteps have been
// computed or ctx is done; total <= 0 runs until ctx is done. After each
// chunk onRender, if non-nil, is called.
func (s *Session) Run(ctx context.Context, total int, onRender func()) error {
	chunk := s.cfg.StepsPerRender
	if chunk < 1 {
		chunk = 1
	}
	done := 0
	for total <= 0 || done < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := chunk
		if total > 0 && total-done < n {
			n = total - done
		}
		if err := s.Step(n); err != nil {
			return err
		}
		done += n
		if onRender != nil {
			onRender()
		}
	}
	return nil
}

func (s *Session) saveStart() {
	img := s.engine.Image()
	if img == nil {
		return
	}
	if s.start == nil || !s.start.SameLayout(img) {
		s.start = img.Clone()
		return
	}
	_ = s.start.CopyFrom(img)
}

// CanReset reports whether Reset would do anything.
func (s *Session) CanReset() bool {
	return s.engine.TimestepsTaken() > 0 && s.start != nil
}

// Reset restores the pattern held before the first step and zeroes the
// step counter.
func (s *Session) Reset() error {
	if !s.CanReset() {
		return nil
	}
	if err := s.engine.CopyFromImage(s.start); err != nil {
		return err
	}
	s.engine.SetTimestepsTaken(0)
	return nil
}

// SetEngine replaces the current engine and closes the previous one.
func (s *Session) SetEngine(e core.Engine) {
	if s.engine != nil && s.engine != e {
		if err := s.engine.Close(); err != nil {
			s.log.Printf("closing %s engine: %v", s.engine.Kind(), err)
		}
	}
	s.engine = e
	s.start = nil
	s.log.Printf("using %s rule %q on a %s grid with %d chemicals", e.Kind(), e.RuleName(), e.Shape(), e.NumChemicals())
}

// Open loads a pattern file and makes it current. A file from a newer
// format version is still opened; the *core.NewerVersionWarning is returned
// so the caller can show it.
func (s *Session) Open(path string) error {
	e, err := pattern.Load(path, s.options())
	if err != nil && !core.IsWarning(err) {
		return err
	}
	if err != nil {
		s.log.Printf("%s: %v", path, err)
	}
	e.SetFilename(path)
	e.SetModified(false)
	s.SetEngine(e)
	return err
}

// Save writes the current pattern to path and marks it unmodified.
func (s *Session) Save(path string) error {
	if err := pattern.Save(path, s.engine); err != nil {
		return err
	}
	s.engine.SetFilename(path)
	s.engine.SetModified(false)
	return nil
}

// SetDevice selects the compute device used the next time a formula
// pattern is opened.
func (s *Session) SetDevice(platform, device int) {
	s.platform, s.device = platform, device
	s.log.Printf("device %d on platform %d will be used the next time a formula pattern is opened", device, platform)
}

// Device returns the selected platform and device indices.
func (s *Session) Device() (platform, device int) { return s.platform, s.device }

// Devices lists every compute device as "<platform> : <device>".
func (s *Session) Devices() ([][]string, error) { return compute.Describe(s.provider) }

// Diagnostics returns the compute provider's report.
func (s *Session) Diagnostics() string { return s.provider.Diagnostics() }

// FramesPerSecond reports timesteps per second for the last Step.
func (s *Session) FramesPerSecond() float64 { return s.meter.FramesPerSecond() }

// MCGS reports million cell generations per second for the last Step.
func (s *Session) MCGS() float64 { return s.meter.MCGS() }

// Title summarizes the pattern for window titles and reports.
func (s *Session) Title() string {
	name := filepath.Base(s.engine.Filename())
	if s.engine.IsModified() {
		name += "*"
	}
	return fmt.Sprintf("%s - %s [%dD %s, %d chemicals] - %d steps",
		name, s.engine.RuleName(), s.engine.Dimensionality(), s.engine.Shape(), s.engine.NumChemicals(), s.engine.TimestepsTaken())
}

// Close releases the current engine.
func (s *Session) Close() error {
	if s.engine == nil {
		return nil
	}
	return s.engine.Close()
}
