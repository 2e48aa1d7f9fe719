package agents

import "github.com/talgya/mouldnet/internal/world"

// Environment is the simulation state a slime reads and the requests it can
// make while taking its turn. The simulation owns everything behind it.
type Environment interface {
	Grid() *world.Grid[Occupant]
	Params() Params

	// CurrentTarget is the food node the whole colony is routing toward.
	CurrentTarget() FoodID
	FoodPosition(id FoodID) world.Pos

	// ReachedFood lists every food id ever touched, ascending.
	ReachedFood() []FoodID
	// MarkReached adds id to the reached set. Repeated calls are no-ops.
	MarkReached(id FoodID)

	// FoodPath returns a shortest path over the food graph, both ends included.
	FoodPath(from, to FoodID) ([]FoodID, error)

	// SpawnSlime places a new slime at pos. Returns nil when the
	// simulation refuses to grow (population bound reached).
	SpawnSlime(pos world.Pos, pheromone float64, capital bool) *Slime
}
