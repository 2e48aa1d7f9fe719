// Simulation owns the grid, the colony and the food graphs and advances
// them one tick at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/mouldnet/internal/agents"
	"github.com/talgya/mouldnet/internal/graph"
	"github.com/talgya/mouldnet/internal/world"
)

var (
	// ErrNoFood is returned when a simulation is created without food nodes.
	ErrNoFood = errors.New("no food nodes: at least one station is required")
	// ErrUnknownFood is returned for a food id outside [0, N).
	ErrUnknownFood = errors.New("unknown food id")
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Simulation holds the complete model state. All access from outside the
// tick goroutine goes through the read-locked accessors.
type Simulation struct {
	mu sync.RWMutex

	Config Config

	grid   *world.Grid[agents.Occupant]
	roster []agents.Occupant // Every agent in creation order
	foods  []*agents.Food    // Indexed by FoodID
	slimes []*agents.Slime   // Creation order

	foodGraph   *graph.Graph // Complete, static
	spreadGraph *graph.Graph // Connections realized by the colony

	reached      map[agents.FoodID]bool
	reachedOrder []agents.FoodID // Ascending view of reached

	target   agents.FoodID
	lastTick uint64 // Ticks completed

	spawner *agents.Spawner
	refused uint64 // Spawns turned away by the population bound

	Events []Event
	Stats  SimStats
}

// Event is a notable occurrence in the colony.
type Event struct {
	Tick        uint64 `json:"tick" db:"tick"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "reached", "spread", "target"
}

// SimStats tracks aggregate colony statistics, refreshed every tick.
type SimStats struct {
	Slimes         int     `json:"slimes"`
	Capitals       int     `json:"capitals"`
	Food           int     `json:"food"`
	Occupants      int     `json:"occupants"` // Agents on the grid, food included
	ReachedFood    int     `json:"reached_food"`
	SpreadEdges    int     `json:"spread_edges"`
	TotalPheromone float64 `json:"total_pheromone"`
	AvgPheromone   float64 `json:"avg_pheromone"`
	RefusedSpawns  uint64  `json:"refused_spawns"`
}

// NewSimulation places the food nodes and the initial colony.
func NewSimulation(cfg Config, food []world.Pos) (*Simulation, error) {
	s, err := newSimulation(cfg, food)
	if err != nil {
		return nil, err
	}

	center := world.Pos{X: cfg.GridWidth / 2, Y: cfg.GridHeight / 2}
	if cfg.StartLoc != nil {
		center = *cfg.StartLoc
	}
	for _, p := range s.spawner.SeedPositions(cfg.InitialSlime, center, cfg.GridWidth, cfg.GridHeight) {
		s.addSlime(s.spawner.NewSlime(p, agents.SeedPheromone, true, 0))
	}

	s.updateStats()
	slog.Debug("simulation created",
		"grid", s.grid.String(),
		"food", len(s.foods),
		"seeds", len(s.slimes),
		"start", center.String(),
	)
	return s, nil
}

// newSimulation builds the grid, food and graphs without any slime.
func newSimulation(cfg Config, food []world.Pos) (*Simulation, error) {
	if len(food) == 0 {
		return nil, ErrNoFood
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.InitialTarget < 0 || cfg.InitialTarget >= len(food) {
		return nil, fmt.Errorf("initial target %d: %w", cfg.InitialTarget, ErrUnknownFood)
	}

	s := &Simulation{
		Config:      cfg,
		grid:        world.NewGrid[agents.Occupant](cfg.GridWidth, cfg.GridHeight),
		foods:       make([]*agents.Food, 0, len(food)),
		foodGraph:   graph.Complete(len(food)),
		spreadGraph: graph.New(),
		reached:     make(map[agents.FoodID]bool),
		target:      agents.FoodID(cfg.InitialTarget),
		spawner:     agents.NewSpawner(cfg.Seed),
	}

	seen := make(map[world.Pos]int, len(food))
	for i, p := range food {
		if j, dup := seen[p]; dup {
			return nil, fmt.Errorf("food %d duplicates food %d at %s", i, j, p)
		}
		seen[p] = i

		f := s.spawner.NewFood(agents.FoodID(i), p)
		if err := s.grid.Place(f, p); err != nil {
			return nil, fmt.Errorf("food %d: %w", i, err)
		}
		s.foods = append(s.foods, f)
		s.roster = append(s.roster, f)
		s.spreadGraph.AddNode(graph.NodeID(i))
	}
	return s, nil
}

// addSlime places a slime and adds it to the roster. The position has
// already been checked by the caller.
func (s *Simulation) addSlime(sl *agents.Slime) {
	if err := s.grid.Place(sl, sl.Pos); err != nil {
		slog.Warn("slime placement rejected", "slime", sl.ID, "error", err)
		return
	}
	s.roster = append(s.roster, sl)
	s.slimes = append(s.slimes, sl)
}

// Step advances the simulation by one tick and returns the tick number.
//
// Every agent present when the tick starts takes one turn, in creation
// order. Slime spawned during the tick sits on the grid immediately, so
// later agents in the same tick see it, but it takes its first turn on the
// next tick. Afterwards every slime that moved on to a new food links it to
// the food it reached before.
func (s *Simulation) Step() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance(func(a agents.Occupant) { a.Step(s) })
}

// advance runs one tick, handing every agent of the starting roster to turn.
// The caller holds the write lock.
func (s *Simulation) advance(turn func(agents.Occupant)) uint64 {
	tick := s.lastTick + 1
	s.lastTick = tick

	roster := s.roster // spawns this tick are appended past its end
	for _, a := range roster {
		turn(a)
	}

	s.commitSpread(tick)
	s.updateStats()
	return tick
}

func (s *Simulation) commitSpread(tick uint64) {
	for _, sl := range s.slimes {
		if sl.ReachedFood == nil {
			continue
		}
		reached := *sl.ReachedFood
		if last := sl.LastReachedFood; last != nil && *last != reached {
			if s.addSpreadEdge(*last, reached) {
				s.recordEvent(tick, "spread", fmt.Sprintf("slime %d linked food %d and %d", sl.ID, *last, reached))
			}
		}
		sl.LastReachedFood = &reached
	}
}

// AddSpreadEdge links two food nodes in the spread graph. It is a no-op
// when a == b or the edge exists. Returns true if an edge was added.
func (s *Simulation) AddSpreadEdge(a, b agents.FoodID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := s.addSpreadEdge(a, b)
	s.updateStats()
	return added
}

func (s *Simulation) addSpreadEdge(a, b agents.FoodID) bool {
	if !s.validFood(a) || !s.validFood(b) {
		return false
	}
	return s.spreadGraph.AddEdge(graph.NodeID(a), graph.NodeID(b))
}

func (s *Simulation) validFood(id agents.FoodID) bool {
	return id >= 0 && int(id) < len(s.foods)
}

func (s *Simulation) recordEvent(tick uint64, category, desc string) {
	s.Events = append(s.Events, Event{Tick: tick, Description: desc, Category: category})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
	slog.Debug("event", "tick", tick, "category", category, "description", desc)
}

func (s *Simulation) updateStats() {
	st := SimStats{
		Slimes:        len(s.slimes),
		Food:          len(s.foods),
		Occupants:     s.grid.Count(),
		ReachedFood:   len(s.reached),
		SpreadEdges:   s.spreadGraph.EdgeCount(),
		RefusedSpawns: s.refused,
	}
	for _, sl := range s.slimes {
		st.TotalPheromone += sl.Pheromone
		if sl.Capital {
			st.Capitals++
		}
	}
	if st.Slimes > 0 {
		st.AvgPheromone = st.TotalPheromone / float64(st.Slimes)
	}
	s.Stats = st
}

// ── agents.Environment ───────────────────────────────────────────────

// Grid returns the lattice. Only valid inside a tick or with the lock held.
func (s *Simulation) Grid() *world.Grid[agents.Occupant] { return s.grid }

// Params returns the growth rule parameters.
func (s *Simulation) Params() agents.Params { return s.Config.Params }

// CurrentTarget returns the food the colony routes toward.
func (s *Simulation) CurrentTarget() agents.FoodID { return s.target }

// FoodPosition returns the cell of a food node.
func (s *Simulation) FoodPosition(id agents.FoodID) world.Pos {
	return s.foods[id].Pos
}

// ReachedFood returns the reached food ids in ascending order. The slice
// is shared and must not be modified.
func (s *Simulation) ReachedFood() []agents.FoodID { return s.reachedOrder }

// MarkReached adds a food id to the reached set.
func (s *Simulation) MarkReached(id agents.FoodID) {
	if s.reached[id] {
		return
	}
	s.reached[id] = true

	// Copy so slices handed out earlier in the tick stay valid.
	order := make([]agents.FoodID, 0, len(s.reachedOrder)+1)
	order = append(order, s.reachedOrder...)
	order = append(order, id)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	s.reachedOrder = order

	s.recordEvent(s.lastTick, "reached", fmt.Sprintf("food %d reached at %s", id, s.foods[id].Pos))
}

// FoodPath returns the minimum-hop route between two food nodes.
func (s *Simulation) FoodPath(from, to agents.FoodID) ([]agents.FoodID, error) {
	nodes, err := s.foodGraph.ShortestPath(graph.NodeID(from), graph.NodeID(to))
	if err != nil {
		return nil, err
	}
	path := make([]agents.FoodID, len(nodes))
	for i, n := range nodes {
		path[i] = agents.FoodID(n)
	}
	return path, nil
}

// SpawnSlime creates a slime at pos unless the population bound is reached.
func (s *Simulation) SpawnSlime(pos world.Pos, pheromone float64, capital bool) *agents.Slime {
	if s.Config.MaxAgents > 0 && len(s.slimes) >= s.Config.MaxAgents {
		s.refused++
		return nil
	}
	if !s.grid.InBounds(pos) {
		return nil
	}
	sl := s.spawner.NewSlime(pos, pheromone, capital, s.lastTick)
	s.addSlime(sl)
	return sl
}
