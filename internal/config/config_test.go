package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mouldnet/internal/world"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mouldnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 200, cfg.Simulation.GridWidth)
	assert.Equal(t, 200, cfg.Simulation.GridHeight)
	assert.Equal(t, 0.01, cfg.Simulation.Decay)
	assert.Equal(t, 5, cfg.Simulation.InitialSlime)
	assert.Equal(t, 3.5, cfg.Simulation.DiffusionThreshold)
	assert.Equal(t, 1.26, cfg.Simulation.DiffusionDecayRate)
	assert.Equal(t, 55.0, cfg.Simulation.DistanceForDiffusionThreshold)
	assert.Equal(t, 1.0, cfg.Simulation.MovingThreshold)
	assert.Equal(t, 5.5, cfg.Simulation.MaxPh)
	assert.Equal(t, 0.2, cfg.Simulation.MaxPhIncreaseStep)
	assert.Empty(t, cfg.Simulation.StartLoc)
	assert.True(t, cfg.Stations.FitToGrid, "stations are rescaled into the grid unless disabled")
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.Interval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
simulation:
  grid_width: 120
  grid_height: 80
  decay: 0.2
  start_loc: [95, 40]
  moving_threshold: 1.5
stations:
  path: stops.geojson
  fit_to_grid: false
engine:
  interval: 250ms
  max_ticks: 500
api:
  admin_key: ${MOULD_TEST_ADMIN}
logging:
  level: debug
`)
	t.Setenv("MOULD_TEST_ADMIN", "s3cret")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Simulation.GridWidth)
	assert.Equal(t, 80, cfg.Simulation.GridHeight)
	assert.Equal(t, 0.2, cfg.Simulation.Decay)
	assert.Equal(t, 1.5, cfg.Simulation.MovingThreshold)
	assert.Equal(t, 3.5, cfg.Simulation.DiffusionThreshold, "unset keys keep defaults")
	assert.Equal(t, "stops.geojson", cfg.Stations.Path)
	assert.False(t, cfg.Stations.FitToGrid)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Interval)
	assert.Equal(t, uint64(500), cfg.Engine.MaxTicks)
	assert.Equal(t, "s3cret", cfg.API.AdminKey)
	assert.Equal(t, "debug", cfg.Logging.Level)

	sim := cfg.SimulationConfig()
	require.NotNil(t, sim.StartLoc)
	assert.Equal(t, world.Pos{X: 95, Y: 40}, *sim.StartLoc)
	assert.Equal(t, 1.5, sim.Params.MovingThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeConfig(t, "simulation: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "simulation:\n  grid_width: 50\n")
	t.Setenv("MOULD_GRID_WIDTH", "64")
	t.Setenv("MOULD_SEED", "7")
	t.Setenv("MOULD_DB", "/tmp/x.db")
	t.Setenv("MOULD_LOG_LEVEL", "trace")
	t.Setenv("MOULD_API_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Simulation.GridWidth)
	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.Path)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.API.Port, "unparseable values are ignored")
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Simulation, cfg.Simulation)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero width", func(c *Config) { c.Simulation.GridWidth = 0 }},
		{"negative decay", func(c *Config) { c.Simulation.Decay = -0.1 }},
		{"zero decay rate", func(c *Config) { c.Simulation.DiffusionDecayRate = 0 }},
		{"zero max ph", func(c *Config) { c.Simulation.MaxPh = 0 }},
		{"start outside grid", func(c *Config) { c.Simulation.StartLoc = []int{200, 3} }},
		{"start wrong arity", func(c *Config) { c.Simulation.StartLoc = []int{1} }},
		{"bad scale", func(c *Config) { c.Stations.Scale = 0 }},
		{"bad port", func(c *Config) { c.API.Port = 70000 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_Synthetic(t *testing.T) {
	cfg := Default()
	cfg.Stations.Synthetic = 12
	assert.NoError(t, cfg.Validate())

	cfg.Stations.Synthetic = -1
	assert.Error(t, cfg.Validate())
}
