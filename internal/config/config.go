// Package config provides configuration loading for mouldnet.
// Values come from defaults, then an optional YAML file, then MOULD_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/mouldnet/internal/agents"
	"github.com/talgya/mouldnet/internal/engine"
	"github.com/talgya/mouldnet/internal/world"
)

// Config contains all mouldnet settings.
type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Stations   StationsConfig   `json:"stations" yaml:"stations"`
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	API        APIConfig        `json:"api" yaml:"api"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// SimulationConfig holds the grid and growth rule parameters.
type SimulationConfig struct {
	GridWidth    int     `json:"grid_width" yaml:"grid_width"`
	GridHeight   int     `json:"grid_height" yaml:"grid_height"`
	Decay        float64 `json:"decay" yaml:"decay"`
	InitialSlime int     `json:"initial_slime" yaml:"initial_slime"`

	// StartLoc is the [x, y] center of the initial colony. Empty = grid center.
	StartLoc []int `json:"start_loc,omitempty" yaml:"start_loc,omitempty"`

	DiffusionThreshold            float64 `json:"diffusion_threshold" yaml:"diffusion_threshold"`
	DiffusionDecayRate            float64 `json:"diffusion_decay_rate" yaml:"diffusion_decay_rate"`
	DistanceForDiffusionThreshold float64 `json:"distance_for_diffusion_threshold" yaml:"distance_for_diffusion_threshold"`
	MovingThreshold               float64 `json:"moving_threshold" yaml:"moving_threshold"`
	MaxPh                         float64 `json:"max_ph" yaml:"max_ph"`
	MaxPhIncreaseStep             float64 `json:"max_ph_increase_step" yaml:"max_ph_increase_step"`

	Seed          int64 `json:"seed" yaml:"seed"`
	MaxAgents     int   `json:"max_agents" yaml:"max_agents"`
	InitialTarget int   `json:"initial_target" yaml:"initial_target"`
}

// StationsConfig describes where food locations come from.
type StationsConfig struct {
	// Path is a .geojson point collection or a .csv of x,y grid cells.
	Path    string  `json:"path" yaml:"path"`
	Scale   float64 `json:"scale" yaml:"scale"`
	Padding int     `json:"padding" yaml:"padding"`

	// FitToGrid rescales the stations to span the whole grid.
	FitToGrid bool `json:"fit_to_grid" yaml:"fit_to_grid"`

	// Synthetic generates this many stops when Path is empty.
	Synthetic int `json:"synthetic" yaml:"synthetic"`
}

// EngineConfig controls the pace of the tick loop.
type EngineConfig struct {
	Interval    time.Duration `json:"interval" yaml:"interval"`
	MaxTicks    uint64        `json:"max_ticks" yaml:"max_ticks"`
	ReportEvery uint64        `json:"report_every" yaml:"report_every"`
}

// StorageConfig controls SQLite snapshots.
type StorageConfig struct {
	Path          string `json:"path" yaml:"path"`
	SnapshotEvery uint64 `json:"snapshot_every" yaml:"snapshot_every"`
}

// APIConfig configures the observation server.
type APIConfig struct {
	Port int `json:"port" yaml:"port"`

	// AdminKey is the bearer token for POST endpoints. Empty disables them.
	// Supports ${VAR} syntax.
	AdminKey string `json:"-" yaml:"admin_key"`
}

// LoggingConfig sets log verbosity: "info" (default), "debug" or "trace".
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with the tuned model defaults.
func Default() *Config {
	sim := engine.DefaultConfig()
	return &Config{
		Simulation: SimulationConfig{
			GridWidth:                     sim.GridWidth,
			GridHeight:                    sim.GridHeight,
			Decay:                         sim.Params.Decay,
			InitialSlime:                  sim.InitialSlime,
			DiffusionThreshold:            sim.Params.DiffusionThreshold,
			DiffusionDecayRate:            sim.Params.DiffusionDecayRate,
			DistanceForDiffusionThreshold: sim.Params.DistanceForDiffusionThreshold,
			MovingThreshold:               sim.Params.MovingThreshold,
			MaxPh:                         sim.Params.MaxPheromone,
			MaxPhIncreaseStep:             sim.Params.MaxPheromoneIncreaseStep,
			Seed:                          sim.Seed,
			MaxAgents:                     sim.MaxAgents,
			InitialTarget:                 sim.InitialTarget,
		},
		Stations: StationsConfig{
			Scale:     1000,
			Padding:   10,
			FitToGrid: true,
		},
		Engine: EngineConfig{
			Interval:    100 * time.Millisecond,
			ReportEvery: 100,
		},
		Storage: StorageConfig{
			Path: "data/mouldnet.db",
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then path (if non-empty), then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.API.AdminKey = expandEnvVars(cfg.API.AdminKey)
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Simulation.StartLoc) != 0 && len(c.Simulation.StartLoc) != 2 {
		errs = append(errs, fmt.Errorf("start_loc must be [x, y], got %v", c.Simulation.StartLoc))
	} else if err := c.SimulationConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Stations.Scale <= 0 {
		errs = append(errs, fmt.Errorf("stations.scale must be positive, got %g", c.Stations.Scale))
	}
	if c.Stations.Padding < 0 {
		errs = append(errs, fmt.Errorf("stations.padding must be non-negative, got %d", c.Stations.Padding))
	}
	if c.Stations.Synthetic < 0 {
		errs = append(errs, fmt.Errorf("stations.synthetic must be non-negative, got %d", c.Stations.Synthetic))
	}
	if c.Engine.Interval < 0 {
		errs = append(errs, fmt.Errorf("engine.interval must be non-negative, got %v", c.Engine.Interval))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// SimulationConfig converts the simulation section to the engine's form.
func (c *Config) SimulationConfig() engine.Config {
	s := c.Simulation
	out := engine.Config{
		GridWidth:     s.GridWidth,
		GridHeight:    s.GridHeight,
		InitialSlime:  s.InitialSlime,
		InitialTarget: s.InitialTarget,
		Seed:          s.Seed,
		MaxAgents:     s.MaxAgents,
		Params: agents.Params{
			Decay:                         s.Decay,
			DiffusionThreshold:            s.DiffusionThreshold,
			DiffusionDecayRate:            s.DiffusionDecayRate,
			DistanceForDiffusionThreshold: s.DistanceForDiffusionThreshold,
			MovingThreshold:               s.MovingThreshold,
			MaxPheromone:                  s.MaxPh,
			MaxPheromoneIncreaseStep:      s.MaxPhIncreaseStep,
		},
	}
	if len(s.StartLoc) == 2 {
		out.StartLoc = &world.Pos{X: s.StartLoc[0], Y: s.StartLoc[1]}
	}
	return out
}

// applyEnvOverrides applies MOULD_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOULD_STATIONS"); v != "" {
		cfg.Stations.Path = v
	}
	if v := os.Getenv("MOULD_GRID_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.GridWidth = n
		}
	}
	if v := os.Getenv("MOULD_GRID_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.GridHeight = n
		}
	}
	if v := os.Getenv("MOULD_INITIAL_SLIME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.InitialSlime = n
		}
	}
	if v := os.Getenv("MOULD_DECAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulation.Decay = f
		}
	}
	if v := os.Getenv("MOULD_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulation.Seed = n
		}
	}
	if v := os.Getenv("MOULD_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("MOULD_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}
	if v := os.Getenv("MOULD_ADMIN_KEY"); v != "" {
		cfg.API.AdminKey = v
	}
	if v := os.Getenv("MOULD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
