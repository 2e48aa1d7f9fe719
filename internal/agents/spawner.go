// Agent creation: id allocation and placement of the initial colony.
package agents

import (
	"math/rand"

	"github.com/talgya/mouldnet/internal/world"
)

// Spawner creates agents with unique ids.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the id the next agent will get.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

func (s *Spawner) allocID() AgentID {
	id := s.nextID
	s.nextID++
	return id
}

// NewFood creates the food agent for the given food id.
func (s *Spawner) NewFood(id FoodID, pos world.Pos) *Food {
	return &Food{ID: s.allocID(), FoodID: id, Pos: pos}
}

// NewSlime creates a slime with the base pheromone cap.
func (s *Spawner) NewSlime(pos world.Pos, pheromone float64, capital bool, tick uint64) *Slime {
	return &Slime{
		ID:           s.allocID(),
		Pos:          pos,
		Pheromone:    pheromone,
		MaxPheromone: BaseMaxPheromone,
		Capital:      capital,
		BornTick:     tick,
	}
}

// SeedPositions scatters count cells around center, each offset by at most
// one cell on either axis and clamped to the grid.
func (s *Spawner) SeedPositions(count int, center world.Pos, width, height int) []world.Pos {
	positions := make([]world.Pos, 0, count)
	for i := 0; i < count; i++ {
		dx := s.rng.Intn(3) - 1
		dy := s.rng.Intn(3) - 1
		positions = append(positions, world.Pos{
			X: clamp(center.X+dx, 0, width-1),
			Y: clamp(center.Y+dy, 0, height-1),
		})
	}
	return positions
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
