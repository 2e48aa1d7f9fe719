// Package agents provides the food and slime agents and the per-tick
// growth rule the slime follows.
package agents

import (
	"github.com/talgya/mouldnet/internal/world"
)

// AgentID is a unique identifier for any agent on the grid.
type AgentID uint64

// FoodID is the dense index of a food node, assigned in input order.
type FoodID int

// Kind distinguishes the agent variants sharing the grid.
type Kind uint8

const (
	KindFood  Kind = 0
	KindSlime Kind = 1
)

func (k Kind) String() string {
	if k == KindFood {
		return "food"
	}
	return "slime"
}

// Rule constants that are not exposed as configuration.
const (
	BaseMaxPheromone   = 4.0 // Cap every new slime starts with
	ReplenishPheromone = 7.0 // Pheromone and cap after touching food
	SeedPheromone      = 7.0 // Pheromone of the initial colony
	StepProximity      = 3.0 // Distance at which a path step counts as reached
	ReinforceDivisor   = 10.0
)

// Occupant is anything that can sit in a grid cell and take a turn.
type Occupant interface {
	AgentID() AgentID
	Kind() Kind
	Position() world.Pos
	Step(env Environment)
}

// Food is a static target location. It never moves and its step is a no-op.
type Food struct {
	ID     AgentID   `json:"id"`
	FoodID FoodID    `json:"food_id"`
	Pos    world.Pos `json:"position"`
}

func (f *Food) AgentID() AgentID    { return f.ID }
func (f *Food) Kind() Kind          { return KindFood }
func (f *Food) Position() world.Pos { return f.Pos }
func (f *Food) Step(Environment)    {}

// StepTarget is the food node a slime is currently walking toward.
type StepTarget struct {
	FoodID FoodID    `json:"food_id"`
	Pos    world.Pos `json:"position"`
}

// Slime is a pheromone-carrying cell of the colony.
type Slime struct {
	ID  AgentID   `json:"id"`
	Pos world.Pos `json:"position"`

	Pheromone    float64   `json:"pheromone"`
	MaxPheromone float64   `json:"max_pheromone"`
	Direction    Direction `json:"direction"`
	Capital      bool      `json:"capital"` // Original colony seed, cleared on first forward spawn

	// Food contact. LastReachedFood doubles as the model's record of the
	// last food it linked into the spread graph for this slime.
	ReachedFood     *FoodID `json:"reached_food,omitempty"`
	LastReachedFood *FoodID `json:"last_reached_food,omitempty"`

	// Routing
	Path     []FoodID    `json:"path"`
	StepFood *StepTarget `json:"step_food,omitempty"`
	Target   *FoodID     `json:"target,omitempty"` // Global target the path was planned for

	BornTick uint64 `json:"born_tick"`
}

func (s *Slime) AgentID() AgentID    { return s.ID }
func (s *Slime) Kind() Kind          { return KindSlime }
func (s *Slime) Position() world.Pos { return s.Pos }

// Params are the tunable thresholds and rates of the growth rule.
type Params struct {
	Decay                         float64 `json:"decay"`
	DiffusionThreshold            float64 `json:"diffusion_threshold"`
	DiffusionDecayRate            float64 `json:"diffusion_decay_rate"`
	DistanceForDiffusionThreshold float64 `json:"distance_for_diffusion_threshold"`
	MovingThreshold               float64 `json:"moving_threshold"`
	MaxPheromone                  float64 `json:"max_ph"`
	MaxPheromoneIncreaseStep      float64 `json:"max_ph_increase_step"`
}

// DefaultParams returns the rule parameters the colony was tuned with.
func DefaultParams() Params {
	return Params{
		Decay:                         0.01,
		DiffusionThreshold:            3.5,
		DiffusionDecayRate:            1.26,
		DistanceForDiffusionThreshold: 55,
		MovingThreshold:               1,
		MaxPheromone:                  5.5,
		MaxPheromoneIncreaseStep:      0.2,
	}
}

func foodPtr(id FoodID) *FoodID { return &id }
