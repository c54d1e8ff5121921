package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Grid.Width)
	assert.Equal(t, 10, cfg.Gather.RadiusCap)
	assert.Equal(t, "random", cfg.Gather.TieBreak)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	body := `
grid:
  width: 40
  height: 30
gather:
  tieBreak: stable
sim:
  seed: 99
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Grid.Width)
	assert.Equal(t, 30, cfg.Grid.Height)
	assert.Equal(t, 1.0, cfg.Grid.CellSize, "unset keys keep their defaults")
	assert.Equal(t, "stable", cfg.Gather.TieBreak)
	assert.Equal(t, int64(99), cfg.Sim.Seed)
	assert.Equal(t, ":8080", cfg.Stream.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("grid: [1, 2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero width":       func(c *Config) { c.Grid.Width = 0 },
		"negative height":  func(c *Config) { c.Grid.Height = -1 },
		"zero cell size":   func(c *Config) { c.Grid.CellSize = 0 },
		"negative radius":  func(c *Config) { c.Search.MaxRadius = -2 },
		"negative cap":     func(c *Config) { c.Gather.RadiusCap = -1 },
		"unknown tiebreak": func(c *Config) { c.Gather.TieBreak = "coinflip" },
		"negative window":  func(c *Config) { c.Wander.Window = -5 },
		"negative agents":  func(c *Config) { c.Sim.Agents = -1 },
		"overfull":         func(c *Config) { c.Grid.Width, c.Grid.Height, c.Sim.Agents, c.Sim.Obstacles = 4, 4, 10, 10 },
		"zero tick rate":   func(c *Config) { c.Sim.TickRate = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParse_InvalidValueIsWrapped(t *testing.T) {
	_, err := Parse([]byte("grid:\n  width: -4\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "invalid config")
}
