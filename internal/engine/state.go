package engine

import (
	"fmt"
	"sort"

	"github.com/talgya/mouldnet/internal/agents"
	"github.com/talgya/mouldnet/internal/graph"
	"github.com/talgya/mouldnet/internal/world"
)

// State is everything beyond the config and food list needed to resume a run.
type State struct {
	Tick    uint64
	Target  agents.FoodID
	NextID  agents.AgentID
	Refused uint64
	Slimes  []*agents.Slime // Creation order
	Reached []agents.FoodID
	Spread  []graph.Edge
	Events  []Event
}

// State returns a deep copy of the mutable model state.
func (s *Simulation) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Tick:    s.lastTick,
		Target:  s.target,
		NextID:  s.spawner.NextID(),
		Refused: s.refused,
		Slimes:  make([]*agents.Slime, len(s.slimes)),
		Reached: append([]agents.FoodID(nil), s.reachedOrder...),
		Spread:  s.spreadGraph.Edges(),
		Events:  append([]Event(nil), s.Events...),
	}
	for i, sl := range s.slimes {
		st.Slimes[i] = cloneSlime(sl)
	}
	return st
}

// Restore rebuilds a simulation from a saved state. Food agents are
// recreated in input order, so they get the same agent ids as in the saved run.
func Restore(cfg Config, food []world.Pos, st State) (*Simulation, error) {
	s, err := newSimulation(cfg, food)
	if err != nil {
		return nil, err
	}
	if !s.validFood(st.Target) {
		return nil, fmt.Errorf("restore target %d: %w", st.Target, ErrUnknownFood)
	}
	s.lastTick = st.Tick
	s.target = st.Target
	s.refused = st.Refused

	slimes := make([]*agents.Slime, len(st.Slimes))
	copy(slimes, st.Slimes)
	sort.SliceStable(slimes, func(i, j int) bool { return slimes[i].ID < slimes[j].ID })

	maxID := s.spawner.NextID() - 1
	for _, sl := range slimes {
		if !s.grid.InBounds(sl.Pos) {
			return nil, fmt.Errorf("restore slime %d at %s: %w", sl.ID, sl.Pos, world.ErrOutOfBounds)
		}
		s.addSlime(cloneSlime(sl))
		if sl.ID > maxID {
			maxID = sl.ID
		}
	}
	next := st.NextID
	if next <= maxID {
		next = maxID + 1
	}
	s.spawner.SetNextID(next)

	for _, id := range st.Reached {
		if !s.validFood(id) {
			return nil, fmt.Errorf("restore reached %d: %w", id, ErrUnknownFood)
		}
		s.reached[id] = true
	}
	s.reachedOrder = make([]agents.FoodID, 0, len(s.reached))
	for id := range s.reached {
		s.reachedOrder = append(s.reachedOrder, id)
	}
	sort.Slice(s.reachedOrder, func(i, j int) bool { return s.reachedOrder[i] < s.reachedOrder[j] })

	for _, e := range st.Spread {
		s.spreadGraph.AddEdge(e.A, e.B)
	}
	if !s.spreadGraph.IsSubgraphOf(s.foodGraph) {
		return nil, fmt.Errorf("restore spread edges %v: %w", st.Spread, ErrUnknownFood)
	}

	s.Events = append([]Event(nil), st.Events...)
	s.updateStats()
	return s, nil
}

func cloneSlime(sl *agents.Slime) *agents.Slime {
	c := *sl
	c.Path = append([]agents.FoodID(nil), sl.Path...)
	if sl.ReachedFood != nil {
		v := *sl.ReachedFood
		c.ReachedFood = &v
	}
	if sl.LastReachedFood != nil {
		v := *sl.LastReachedFood
		c.LastReachedFood = &v
	}
	if sl.Target != nil {
		v := *sl.Target
		c.Target = &v
	}
	if sl.StepFood != nil {
		v := *sl.StepFood
		c.StepFood = &v
	}
	return &c
}
