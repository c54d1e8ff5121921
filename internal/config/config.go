// Package config loads the YAML settings shared by the harness, viewer,
// report and stream server.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full settings tree.
type Config struct {
	Grid   GridConfig   `yaml:"grid"`
	Search SearchConfig `yaml:"search"`
	Gather GatherConfig `yaml:"gather"`
	Wander WanderConfig `yaml:"wander"`
	Sim    SimConfig    `yaml:"sim"`
	Stream StreamConfig `yaml:"stream"`
}

// GridConfig sizes the lattice.
type GridConfig struct {
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	CellSize float64 `yaml:"cellSize"`
}

// SearchConfig bounds ring searches made on arrival.
type SearchConfig struct {
	MaxRadius int `yaml:"maxRadius"`
}

// GatherConfig tunes the group coordinator.
type GatherConfig struct {
	RadiusCap int    `yaml:"radiusCap"`
	TieBreak  string `yaml:"tieBreak"` // "random" or "stable"
}

// WanderConfig tunes local wandering.
type WanderConfig struct {
	Window   int `yaml:"window"`
	Attempts int `yaml:"attempts"`
}

// SimConfig seeds and populates a harness run.
type SimConfig struct {
	Seed      int64 `yaml:"seed"`
	Agents    int   `yaml:"agents"`
	Obstacles int   `yaml:"obstacles"`
	TickRate  int   `yaml:"tickRate"` // ticks per second for live hosts
}

// StreamConfig configures the event stream server.
type StreamConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Grid:   GridConfig{Width: 100, Height: 100, CellSize: 1},
		Search: SearchConfig{MaxRadius: 10},
		Gather: GatherConfig{RadiusCap: 10, TieBreak: "random"},
		Wander: WanderConfig{Window: 5, Attempts: 8},
		Sim:    SimConfig{Seed: 1, Agents: 12, Obstacles: 300, TickRate: 10},
		Stream: StreamConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults, so a file only needs the keys it
// changes, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Grid.Width <= 0 || c.Grid.Height <= 0 {
		return fmt.Errorf("%w: grid size must be positive, got %dx%d", ErrInvalid, c.Grid.Width, c.Grid.Height)
	}
	if c.Grid.CellSize <= 0 || math.IsNaN(c.Grid.CellSize) || math.IsInf(c.Grid.CellSize, 0) {
		return fmt.Errorf("%w: grid cellSize must be positive and finite, got %g", ErrInvalid, c.Grid.CellSize)
	}
	if c.Search.MaxRadius < 0 {
		return fmt.Errorf("%w: search maxRadius cannot be negative, got %d", ErrInvalid, c.Search.MaxRadius)
	}
	if c.Gather.RadiusCap < 0 {
		return fmt.Errorf("%w: gather radiusCap cannot be negative, got %d", ErrInvalid, c.Gather.RadiusCap)
	}
	switch c.Gather.TieBreak {
	case "", "random", "stable":
	default:
		return fmt.Errorf("%w: gather tieBreak must be random or stable, got %q", ErrInvalid, c.Gather.TieBreak)
	}
	if c.Wander.Window < 0 || c.Wander.Attempts < 0 {
		return fmt.Errorf("%w: wander window and attempts cannot be negative", ErrInvalid)
	}
	if c.Sim.Agents < 0 || c.Sim.Obstacles < 0 {
		return fmt.Errorf("%w: sim agents and obstacles cannot be negative", ErrInvalid)
	}
	if cells := c.Grid.Width * c.Grid.Height; c.Sim.Agents+c.Sim.Obstacles > cells {
		return fmt.Errorf("%w: %d agents and %d obstacles do not fit in %d cells", ErrInvalid, c.Sim.Agents, c.Sim.Obstacles, cells)
	}
	if c.Sim.TickRate <= 0 {
		return fmt.Errorf("%w: sim tickRate must be positive, got %d", ErrInvalid, c.Sim.TickRate)
	}
	return nil
}
