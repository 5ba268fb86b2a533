package session

import (
	"flag"
	"strconv"
)

// Config holds the driver settings shared by the command-line tools and the
// preview app.
type Config struct {
	Width     int
	Height    int
	Depth     int
	Chemicals int

	// StepsPerRender is how many timesteps Run computes between callbacks.
	StepsPerRender int

	// Platform and Device select the compute device for formula rules.
	Platform int
	Device   int

	Seed int64
}

// NewConfig returns a Config populated with the defaults for a new pattern.
func NewConfig() *Config {
	return &Config{
		Width:          30,
		Height:         25,
		Depth:          20,
		Chemicals:      2,
		StepsPerRender: 100,
		Seed:           1337,
	}
}

// Bind attaches the configuration to the provided FlagSet.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.IntVar(&c.Width, "width", c.Width, "grid width for new patterns")
	fs.IntVar(&c.Height, "height", c.Height, "grid height for new patterns")
	fs.IntVar(&c.Depth, "depth", c.Depth, "grid depth for new patterns")
	fs.IntVar(&c.Chemicals, "chemicals", c.Chemicals, "number of chemicals for new patterns")
	fs.IntVar(&c.StepsPerRender, "steps-per-render", c.StepsPerRender, "timesteps computed between redraws")
	fs.IntVar(&c.Platform, "platform", c.Platform, "OpenCL platform index for formula rules")
	fs.IntVar(&c.Device, "device", c.Device, "OpenCL device index for formula rules")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "seed for initial pattern generation")
}

// FromMap populates a Config from a string map. Invalid values are ignored.
func FromMap(cfg map[string]string) *Config {
	c := NewConfig()
	positive := func(key string, dst *int) {
		if v, ok := cfg[key]; ok {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				*dst = parsed
			}
		}
	}
	nonNegative := func(key string, dst *int) {
		if v, ok := cfg[key]; ok {
			if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
				*dst = parsed
			}
		}
	}
	positive("width", &c.Width)
	positive("height", &c.Height)
	positive("depth", &c.Depth)
	positive("chemicals", &c.Chemicals)
	positive("steps_per_render", &c.StepsPerRender)
	nonNegative("platform", &c.Platform)
	nonNegative("device", &c.Device)
	if v, ok := cfg["seed"]; ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = parsed
		}
	}
	return c
}
