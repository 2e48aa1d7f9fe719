package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/mouldnet/internal/agents"
	"github.com/talgya/mouldnet/internal/world"
)

// Config holds the simulation parameters.
type Config struct {
	GridWidth     int        `json:"grid_width"`
	GridHeight    int        `json:"grid_height"`
	InitialSlime  int        `json:"initial_slime"`
	StartLoc      *world.Pos `json:"start_loc,omitempty"` // nil = grid center
	InitialTarget int        `json:"initial_target"`
	Seed          int64      `json:"seed"`
	MaxAgents     int        `json:"max_agents"` // Slime population bound, 0 = unbounded

	Params agents.Params `json:"params"`
}

// DefaultConfig returns the configuration the colony was tuned with.
func DefaultConfig() Config {
	return Config{
		GridWidth:     200,
		GridHeight:    200,
		InitialSlime:  5,
		InitialTarget: 0,
		Seed:          42,
		MaxAgents:     250000,
		Params:        agents.DefaultParams(),
	}
}

// Validate checks grid bounds and rule parameters.
func (c Config) Validate() error {
	if c.GridWidth <= 0 || c.GridHeight <= 0 {
		return fmt.Errorf("grid must be positive, got %dx%d", c.GridWidth, c.GridHeight)
	}
	if c.InitialSlime < 0 {
		return fmt.Errorf("initial_slime must be non-negative, got %d", c.InitialSlime)
	}
	if c.MaxAgents < 0 {
		return fmt.Errorf("max_agents must be non-negative, got %d", c.MaxAgents)
	}
	if c.StartLoc != nil {
		p := *c.StartLoc
		if p.X < 0 || p.X >= c.GridWidth || p.Y < 0 || p.Y >= c.GridHeight {
			return fmt.Errorf("start_loc %s outside %dx%d grid", p, c.GridWidth, c.GridHeight)
		}
	}
	return validateParams(c.Params)
}

func validateParams(p agents.Params) error {
	var errs []error
	if p.Decay < 0 {
		errs = append(errs, fmt.Errorf("decay must be non-negative, got %g", p.Decay))
	}
	if p.DiffusionDecayRate <= 0 {
		errs = append(errs, fmt.Errorf("diffusion_decay_rate must be positive, got %g", p.DiffusionDecayRate))
	}
	if p.DiffusionThreshold < 0 {
		errs = append(errs, fmt.Errorf("diffusion_threshold must be non-negative, got %g", p.DiffusionThreshold))
	}
	if p.DistanceForDiffusionThreshold < 0 {
		errs = append(errs, fmt.Errorf("distance_for_diffusion_threshold must be non-negative, got %g", p.DistanceForDiffusionThreshold))
	}
	if p.MovingThreshold < 0 {
		errs = append(errs, fmt.Errorf("moving_threshold must be non-negative, got %g", p.MovingThreshold))
	}
	if p.MaxPheromone <= 0 {
		errs = append(errs, fmt.Errorf("max_ph must be positive, got %g", p.MaxPheromone))
	}
	if p.MaxPheromoneIncreaseStep < 0 {
		errs = append(errs, fmt.Errorf("max_ph_increase_step must be non-negative, got %g", p.MaxPheromoneIncreaseStep))
	}
	return errors.Join(errs...)
}
