package grayscott

import "strconv"

// Config holds the rate constants and seeding for the Gray-Scott law.
type Config struct {
	Timestep float64
	K        float64
	F        float64
	DA       float64
	DB       float64

	// Seed drives the perturbation added by GenerateInitialPattern.
	Seed int64

	// Workers bounds the goroutines used per step; 0 uses GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Timestep: 1.0,
		K:        0.064,
		F:        0.035,
		DA:       0.082,
		DB:       0.041,
		Seed:     1337,
	}
}

// FromMap populates a Config from a string map.
func FromMap(cfg map[string]string) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if v, ok := cfg["timestep"]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			c.Timestep = parsed
		}
	}
	if v, ok := cfg["k"]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			c.K = parsed
		}
	}
	if v, ok := cfg["F"]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			c.F = parsed
		}
	}
	if v, ok := cfg["D_a"]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
			c.DA = parsed
		}
	}
	if v, ok := cfg["D_b"]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
			c.DB = parsed
		}
	}
	if v, ok := cfg["workers"]; ok {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			c.Workers = parsed
		}
	}
	if v, ok := cfg["seed"]; ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = parsed
		}
	}
	return c
}
