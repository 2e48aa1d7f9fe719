// Read-only views of the simulation for observers (API, persistence, CLI).
package engine

import (
	"fmt"

	"github.com/talgya/mouldnet/internal/agents"
	"github.com/talgya/mouldnet/internal/graph"
	"github.com/talgya/mouldnet/internal/world"
)

// AgentView is what an observer sees of one agent.
type AgentView struct {
	ID        agents.AgentID `json:"id"`
	Kind      string         `json:"kind"`
	X         int            `json:"x"`
	Y         int            `json:"y"`
	Pheromone float64        `json:"pheromone,omitempty"`
	FoodID    *agents.FoodID `json:"food_id,omitempty"`
	Reached   bool           `json:"reached,omitempty"`
}

// Snapshot is a consistent copy of the observable state at one tick.
type Snapshot struct {
	Tick   uint64        `json:"tick"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Target agents.FoodID `json:"target"`
	Agents []AgentView   `json:"agents"`
	Stats  SimStats      `json:"stats"`
}

// Snapshot copies agent positions, kinds and pheromone levels.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Tick:   s.lastTick,
		Width:  s.grid.Width,
		Height: s.grid.Height,
		Target: s.target,
		Agents: make([]AgentView, 0, len(s.roster)),
		Stats:  s.Stats,
	}
	for _, a := range s.roster {
		v := AgentView{
			ID:   a.AgentID(),
			Kind: a.Kind().String(),
			X:    a.Position().X,
			Y:    a.Position().Y,
		}
		switch a := a.(type) {
		case *agents.Food:
			id := a.FoodID
			v.FoodID = &id
			v.Reached = s.reached[id]
		case *agents.Slime:
			v.Pheromone = a.Pheromone
		}
		snap.Agents = append(snap.Agents, v)
	}
	return snap
}

// CurrentTick returns the number of ticks completed.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// StatsSnapshot returns the statistics of the last completed tick.
func (s *Simulation) StatsSnapshot() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stats
}

// FoodPositions returns the food cells indexed by food id.
func (s *Simulation) FoodPositions() []world.Pos {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]world.Pos, len(s.foods))
	for i, f := range s.foods {
		out[i] = f.Pos
	}
	return out
}

// ReachedSet returns a copy of the reached food ids, ascending.
func (s *Simulation) ReachedSet() []agents.FoodID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]agents.FoodID(nil), s.reachedOrder...)
}

// SpreadEdges returns the connections the colony has made so far.
func (s *Simulation) SpreadEdges() []graph.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spreadGraph.Edges()
}

// RenderSpread returns the spread graph with food positions for export.
func (s *Simulation) RenderSpread() graph.Rendered {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return renderSpread(s.spreadGraph, s.foods, s.reached)
}

func renderSpread(g *graph.Graph, foods []*agents.Food, reached map[agents.FoodID]bool) graph.Rendered {
	positions := make(map[graph.NodeID]graph.Point, len(foods))
	marks := make(map[graph.NodeID]bool, len(reached))
	for _, f := range foods {
		positions[graph.NodeID(f.FoodID)] = graph.Point{X: f.Pos.X, Y: f.Pos.Y}
		marks[graph.NodeID(f.FoodID)] = reached[f.FoodID]
	}
	return graph.Render(g, positions, marks)
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.Events) > limit {
		start = len(s.Events) - limit
	}
	return append([]Event(nil), s.Events[start:]...)
}

// Target returns the food the colony is routing toward.
func (s *Simulation) Target() agents.FoodID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// SetTarget retargets the colony. Slimes replan on their next turn.
func (s *Simulation) SetTarget(id agents.FoodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validFood(id) {
		return fmt.Errorf("set target %d: %w", id, ErrUnknownFood)
	}
	if id == s.target {
		return nil
	}
	s.target = id
	for _, sl := range s.slimes {
		sl.StepFood = nil
		sl.Path = nil
	}
	s.recordEvent(s.lastTick, "target", fmt.Sprintf("colony retargeted to food %d", id))
	return nil
}
