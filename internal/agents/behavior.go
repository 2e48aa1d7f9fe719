// Slime behavior: pick a food to walk toward, turn toward it, then grow,
// reinforce or feed against the surrounding cells.
package agents

import (
	"context"
	"log/slog"
	"math"

	"github.com/talgya/mouldnet/internal/logging"
	"github.com/talgya/mouldnet/internal/world"
)

// Step runs one turn: target acquisition, sensing, diffusion.
func (s *Slime) Step(env Environment) {
	s.ResetStepFood(env)
	s.Sense()
	s.Diffuse(env)

	ctx := context.Background()
	if slog.Default().Enabled(ctx, logging.LevelTrace) {
		var step any
		if s.StepFood != nil {
			step = s.StepFood.FoodID
		}
		slog.Log(ctx, logging.LevelTrace, "slime turn",
			"slime", s.ID, "pos", s.Pos, "dir", s.Direction,
			"step", step, "path", s.Path, "ph", s.Pheromone, "max_ph", s.MaxPheromone)
	}
}

// ResetStepFood keeps the slime's step target current. It replans when the
// slime has nothing left to walk toward, and advances along the path once
// the current step is close.
func (s *Slime) ResetStepFood(env Environment) {
	target := env.CurrentTarget()
	if s.ReachedFood != nil && s.Target != nil &&
		*s.ReachedFood == *s.Target && *s.Target == target {
		return
	}

	if s.StepFood == nil || len(s.Path) == 0 {
		s.PlanPath(env)
	}

	// A fresh plan can start on a food the slime already stands beside.
	if s.StepFood != nil && len(s.Path) > 0 &&
		world.Distance(s.StepFood.Pos, s.Pos) < StepProximity {
		s.popStep(env)
	}
}

// PlanPath routes from the reached food nearest to the slime to the current
// target and takes the first hop as the step target.
func (s *Slime) PlanPath(env Environment) {
	target := env.CurrentTarget()
	s.Target = foodPtr(target)

	nearest, _, ok := s.NearestReached(env)
	if !ok {
		s.Path = []FoodID{target}
	} else {
		path, err := env.FoodPath(nearest, target)
		if err != nil {
			slog.Debug("food path failed, routing direct",
				"slime", s.ID, "from", nearest, "to", target, "error", err)
			path = []FoodID{nearest, target}
		}
		s.Path = path
	}

	s.popStep(env)
}

func (s *Slime) popStep(env Environment) {
	if len(s.Path) == 0 {
		return
	}
	id := s.Path[0]
	s.Path = s.Path[1:]
	s.StepFood = &StepTarget{FoodID: id, Pos: env.FoodPosition(id)}
}

// NearestReached returns the reached food closest to the slime. Ties go to
// the lowest id. ok is false when nothing has been reached yet, in which
// case dist is +Inf.
func (s *Slime) NearestReached(env Environment) (id FoodID, dist float64, ok bool) {
	dist = math.Inf(1)
	for _, fid := range env.ReachedFood() {
		d := world.Distance(s.Pos, env.FoodPosition(fid))
		if d < dist {
			id, dist, ok = fid, d, true
		}
	}
	return id, dist, ok
}

// Sense points the slime at its step target.
func (s *Slime) Sense() {
	if s.StepFood == nil {
		s.Direction = DirNone
		return
	}
	s.Direction = DirectionToward(s.StepFood.Pos.X-s.Pos.X, s.StepFood.Pos.Y-s.Pos.Y)
}

// ScanOrder returns the neighbor cells in the order Diffuse visits them:
// the forward cell first, then the remaining neighbors in row-major order.
func (s *Slime) ScanOrder() []world.Pos {
	forward := s.Pos.Add(s.Direction.Offset())
	order := make([]world.Pos, 0, 8)
	if s.Pos.IsNeighbor(forward) {
		order = append(order, forward)
	}
	for _, n := range s.Pos.Neighbors() {
		if n != forward {
			order = append(order, n)
		}
	}
	return order
}

// Diffuse applies the growth rule to the neighborhood. At most one slime is
// spawned per turn.
func (s *Slime) Diffuse(env Environment) {
	grid := env.Grid()
	p := env.Params()
	forward := s.Pos.Add(s.Direction.Offset())

	for _, cell := range s.ScanOrder() {
		if !grid.InBounds(cell) {
			continue
		}
		isForward := cell == forward

		occupants := grid.Occupants(cell)
		if len(occupants) == 0 {
			if isForward && s.Pheromone > p.MovingThreshold {
				if env.SpawnSlime(cell, s.Pheromone, s.Capital) != nil {
					s.Pheromone = scale(s.Pheromone, 1-p.DiffusionDecayRate*p.Decay)
					s.Capital = false
				}
				return
			}
			if s.Pheromone > p.DiffusionThreshold {
				if _, dist, _ := s.NearestReached(env); dist < p.DistanceForDiffusionThreshold {
					if env.SpawnSlime(cell, s.Pheromone/p.DiffusionDecayRate, false) != nil {
						s.Pheromone = scale(s.Pheromone, 1-2*p.DiffusionDecayRate*p.Decay)
					}
					return
				}
			}
			continue
		}

		switch other := occupants[0].(type) {
		case *Slime:
			if isForward && s.Pheromone > p.MovingThreshold {
				other.Pheromone = math.Min(other.Pheromone+s.Pheromone/p.DiffusionDecayRate, other.MaxPheromone)
				s.Pheromone /= p.DiffusionDecayRate
			}
			if other.Pheromone > s.Pheromone && s.MaxPheromone < p.MaxPheromone {
				s.MaxPheromone += p.MaxPheromoneIncreaseStep
				s.Pheromone += other.Pheromone / ReinforceDivisor
			}
		case *Food:
			s.touchFood(env, other.FoodID)
		}
	}
}

func (s *Slime) touchFood(env Environment, id FoodID) {
	if s.ReachedFood == nil || *s.ReachedFood != id {
		s.LastReachedFood = s.ReachedFood
		s.ReachedFood = foodPtr(id)
		env.MarkReached(id)
	}
	s.Pheromone = ReplenishPheromone
	s.MaxPheromone = ReplenishPheromone
}

// scale multiplies v by f without letting it go negative.
func scale(v, f float64) float64 {
	return math.Max(0, v*f)
}
