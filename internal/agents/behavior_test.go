package agents

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mouldnet/internal/logging"
	"github.com/talgya/mouldnet/internal/world"
)

// testEnv is a minimal Environment backed by a grid and a list of food.
type testEnv struct {
	grid     *world.Grid[Occupant]
	params   Params
	target   FoodID
	food     map[FoodID]world.Pos
	reached  map[FoodID]bool
	spawner  *Spawner
	spawned  []*Slime
	pathErr  error
	refuse   bool
	pathLogs [][2]FoodID // FoodPath calls
}

func newTestEnv(t *testing.T, w, h int, food ...world.Pos) *testEnv {
	t.Helper()
	env := &testEnv{
		grid:    world.NewGrid[Occupant](w, h),
		params:  DefaultParams(),
		food:    make(map[FoodID]world.Pos),
		reached: make(map[FoodID]bool),
		spawner: NewSpawner(1),
	}
	for i, p := range food {
		f := env.spawner.NewFood(FoodID(i), p)
		require.NoError(t, env.grid.Place(f, p))
		env.food[FoodID(i)] = p
	}
	return env
}

func (e *testEnv) Grid() *world.Grid[Occupant]      { return e.grid }
func (e *testEnv) Params() Params                   { return e.params }
func (e *testEnv) CurrentTarget() FoodID            { return e.target }
func (e *testEnv) FoodPosition(id FoodID) world.Pos { return e.food[id] }
func (e *testEnv) MarkReached(id FoodID)            { e.reached[id] = true }

func (e *testEnv) ReachedFood() []FoodID {
	ids := make([]FoodID, 0, len(e.reached))
	for id := range e.reached {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *testEnv) FoodPath(from, to FoodID) ([]FoodID, error) {
	e.pathLogs = append(e.pathLogs, [2]FoodID{from, to})
	if e.pathErr != nil {
		return nil, e.pathErr
	}
	if from == to {
		return []FoodID{from}, nil
	}
	return []FoodID{from, to}, nil
}

func (e *testEnv) SpawnSlime(pos world.Pos, pheromone float64, capital bool) *Slime {
	if e.refuse {
		return nil
	}
	s := e.spawner.NewSlime(pos, pheromone, capital, 0)
	if err := e.grid.Place(s, pos); err != nil {
		panic(err)
	}
	e.spawned = append(e.spawned, s)
	return s
}

func (e *testEnv) addSlime(t *testing.T, pos world.Pos, pheromone float64) *Slime {
	t.Helper()
	s := e.spawner.NewSlime(pos, pheromone, false, 0)
	require.NoError(t, e.grid.Place(s, pos))
	return s
}

func TestDirectionToward_AllCombinations(t *testing.T) {
	tests := []struct {
		dx, dy int
		want   Direction
	}{
		{0, 0, DirNone},
		{-3, -2, DirUpLeft},
		{4, -1, DirUpRight},
		{-1, 9, DirDownLeft},
		{2, 2, DirDownRight},
		{-5, 0, DirLeft},
		{7, 0, DirRight},
		{0, -4, DirUp},
		{0, 1, DirDown},
	}
	for _, tt := range tests {
		got := DirectionToward(tt.dx, tt.dy)
		assert.Equal(t, tt.want, got, "dx=%d dy=%d", tt.dx, tt.dy)
	}
}

func TestDirection_NumericCodes(t *testing.T) {
	assert.Equal(t, Direction(0), DirNone)
	assert.Equal(t, Direction(1), DirUpLeft)
	assert.Equal(t, Direction(2), DirUpRight)
	assert.Equal(t, Direction(3), DirDownLeft)
	assert.Equal(t, Direction(4), DirDownRight)
	assert.Equal(t, Direction(5), DirLeft)
	assert.Equal(t, Direction(6), DirRight)
	assert.Equal(t, Direction(7), DirUp)
	assert.Equal(t, Direction(8), DirDown)
	assert.Equal(t, world.Pos{X: 1, Y: -1}, DirUpRight.Offset())
	assert.Equal(t, "up-right", DirUpRight.String())
}

func TestScanOrder_ForwardFirst(t *testing.T) {
	s := &Slime{Pos: world.Pos{X: 5, Y: 5}, Direction: DirRight}

	order := s.ScanOrder()
	require.Len(t, order, 8)
	assert.Equal(t, []world.Pos{
		{X: 6, Y: 5},
		{X: 4, Y: 4}, {X: 4, Y: 5}, {X: 4, Y: 6},
		{X: 5, Y: 4}, {X: 5, Y: 6},
		{X: 6, Y: 4}, {X: 6, Y: 6},
	}, order)
}

func TestScanOrder_NoDirection(t *testing.T) {
	s := &Slime{Pos: world.Pos{X: 5, Y: 5}, Direction: DirNone}

	order := s.ScanOrder()
	nbrs := s.Pos.Neighbors()
	assert.Equal(t, nbrs[:], order)
}

func TestPlanPath_NothingReached(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1}, world.Pos{X: 8, Y: 8})
	env.target = 1
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 7)

	s.ResetStepFood(env)

	require.NotNil(t, s.StepFood)
	assert.Equal(t, FoodID(1), s.StepFood.FoodID)
	assert.Equal(t, world.Pos{X: 8, Y: 8}, s.StepFood.Pos)
	assert.Empty(t, s.Path)
	assert.Empty(t, env.pathLogs, "no graph query without reached food")
}

func TestPlanPath_FromNearestReached(t *testing.T) {
	env := newTestEnv(t, 20, 20, world.Pos{X: 0, Y: 0}, world.Pos{X: 6, Y: 5}, world.Pos{X: 4, Y: 5}, world.Pos{X: 19, Y: 19})
	env.target = 3
	env.reached[0] = true
	env.reached[1] = true
	env.reached[2] = true
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 7)

	s.PlanPath(env)

	// Food 1 and 2 are equally near; the lower id wins.
	require.Len(t, env.pathLogs, 1)
	assert.Equal(t, [2]FoodID{1, 3}, env.pathLogs[0])
	assert.Equal(t, FoodID(1), s.StepFood.FoodID)
	assert.Equal(t, []FoodID{3}, s.Path)
}

func TestPlanPath_FallbackOnError(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1}, world.Pos{X: 8, Y: 8})
	env.target = 1
	env.reached[0] = true
	env.pathErr = errors.New("disconnected")
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 7)

	s.ResetStepFood(env)

	assert.Equal(t, FoodID(0), s.StepFood.FoodID)
	assert.Equal(t, []FoodID{1}, s.Path)
}

func TestResetStepFood_AdvancesWhenClose(t *testing.T) {
	env := newTestEnv(t, 20, 20, world.Pos{X: 5, Y: 6}, world.Pos{X: 15, Y: 15})
	env.target = 1
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 7)
	s.StepFood = &StepTarget{FoodID: 0, Pos: world.Pos{X: 5, Y: 6}}
	s.Path = []FoodID{1}

	s.ResetStepFood(env)

	assert.Equal(t, FoodID(1), s.StepFood.FoodID)
	assert.Empty(t, s.Path)
}

func TestResetStepFood_KeepsStepWhenFar(t *testing.T) {
	env := newTestEnv(t, 20, 20, world.Pos{X: 0, Y: 0}, world.Pos{X: 15, Y: 15})
	env.target = 1
	s := env.addSlime(t, world.Pos{X: 10, Y: 10}, 7)
	s.StepFood = &StepTarget{FoodID: 0, Pos: world.Pos{X: 0, Y: 0}}
	s.Path = []FoodID{1}

	s.ResetStepFood(env)

	assert.Equal(t, FoodID(0), s.StepFood.FoodID)
	assert.Equal(t, []FoodID{1}, s.Path)
}

func TestResetStepFood_AdvancesAfterFreshPlan(t *testing.T) {
	env := newTestEnv(t, 20, 20, world.Pos{X: 0, Y: 0}, world.Pos{X: 6, Y: 5}, world.Pos{X: 19, Y: 19})
	env.target = 2
	env.reached[1] = true
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 7)

	s.ResetStepFood(env)

	require.Len(t, env.pathLogs, 1)
	assert.Equal(t, [2]FoodID{1, 2}, env.pathLogs[0])
	assert.Equal(t, FoodID(2), s.StepFood.FoodID, "planned hop is already within reach")
	assert.Empty(t, s.Path)
}

func TestResetStepFood_NoAlternationNearIntermediate(t *testing.T) {
	env := newTestEnv(t, 20, 20, world.Pos{X: 2, Y: 2}, world.Pos{X: 15, Y: 15})
	env.target = 0
	env.reached[1] = true
	s := env.addSlime(t, world.Pos{X: 14, Y: 13}, 7)

	for tick := 1; tick <= 4; tick++ {
		s.ResetStepFood(env)
		s.Sense()

		require.NotNil(t, s.StepFood, "tick %d", tick)
		assert.Equal(t, FoodID(0), s.StepFood.FoodID, "tick %d", tick)
		assert.Empty(t, s.Path, "tick %d", tick)
		assert.Equal(t, DirUpLeft, s.Direction, "tick %d", tick)
	}
}

func TestResetStepFood_NoReplanAtTarget(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1}, world.Pos{X: 8, Y: 8})
	env.target = 0
	env.reached[1] = true
	s := env.addSlime(t, world.Pos{X: 2, Y: 2}, 7)
	s.ReachedFood = foodPtr(0)
	s.Target = foodPtr(0)
	s.StepFood = &StepTarget{FoodID: 0, Pos: world.Pos{X: 1, Y: 1}}

	s.ResetStepFood(env)

	assert.Empty(t, env.pathLogs)
	assert.Equal(t, FoodID(0), s.StepFood.FoodID)
}

func TestDiffuse_ForwardSpawn(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	env.params.Decay = 0.1
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 5)
	s.Capital = true

	s.Step(env)

	require.Len(t, env.spawned, 1, "one spawn per turn")
	child := env.spawned[0]
	assert.Equal(t, world.Pos{X: 4, Y: 4}, child.Pos)
	assert.Equal(t, 5.0, child.Pheromone)
	assert.True(t, child.Capital)
	assert.Equal(t, BaseMaxPheromone, child.MaxPheromone)
	assert.False(t, s.Capital)
	assert.InDelta(t, 5*(1-1.26*0.1), s.Pheromone, 1e-9)
}

func TestDiffuse_BranchSpawnNearReachedFood(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	env.params.Decay = 0.1
	env.params.MovingThreshold = 10 // forward move disabled
	env.params.DiffusionThreshold = 3.5
	env.reached[0] = true
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 5)
	s.Capital = true

	s.Step(env)

	require.Len(t, env.spawned, 1)
	child := env.spawned[0]
	// The forward cell (4,4) is scanned first and is empty.
	assert.Equal(t, world.Pos{X: 4, Y: 4}, child.Pos)
	assert.InDelta(t, 5/1.26, child.Pheromone, 1e-9)
	assert.False(t, child.Capital)
	assert.True(t, s.Capital, "branching keeps the capital flag")
	assert.InDelta(t, 5*(1-2*1.26*0.1), s.Pheromone, 1e-9)
}

func TestDiffuse_BranchNeedsReachedFoodNearby(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	env.params.MovingThreshold = 10
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 5)

	s.Step(env)
	assert.Empty(t, env.spawned, "no reached food means infinite distance")

	env.reached[0] = true
	env.params.DistanceForDiffusionThreshold = 2
	s.Step(env)
	assert.Empty(t, env.spawned)
}

func TestDiffuse_TransferCapsTarget(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 6)
	ahead := env.addSlime(t, world.Pos{X: 4, Y: 4}, 3)

	s.Step(env)

	assert.Empty(t, env.spawned)
	assert.Equal(t, ahead.MaxPheromone, ahead.Pheromone)
	assert.LessOrEqual(t, ahead.Pheromone, ahead.MaxPheromone)
	assert.InDelta(t, 6/1.26, s.Pheromone, 1e-9)
}

func TestDiffuse_BelowMovingThreshold(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 0.5)
	ahead := env.addSlime(t, world.Pos{X: 4, Y: 4}, 0.5)

	s.Step(env)

	assert.Empty(t, env.spawned)
	assert.Equal(t, 0.5, s.Pheromone)
	assert.Equal(t, 0.5, ahead.Pheromone)
	assert.Equal(t, BaseMaxPheromone, s.MaxPheromone)
}

func TestDiffuse_ReinforceFromStrongerNeighbor(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 0.5)
	side := env.addSlime(t, world.Pos{X: 6, Y: 6}, 3)

	s.Step(env)

	assert.InDelta(t, BaseMaxPheromone+0.2, s.MaxPheromone, 1e-9)
	assert.InDelta(t, 0.5+3.0/10, s.Pheromone, 1e-9)
	assert.Equal(t, 3.0, side.Pheromone)
}

func TestDiffuse_ReinforceStopsAtCeiling(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 0.5)
	s.MaxPheromone = env.params.MaxPheromone
	env.addSlime(t, world.Pos{X: 6, Y: 6}, 3)

	s.Step(env)

	assert.Equal(t, env.params.MaxPheromone, s.MaxPheromone)
	assert.Equal(t, 0.5, s.Pheromone)
}

func TestDiffuse_TouchFood(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1}, world.Pos{X: 8, Y: 8})
	env.params.DiffusionThreshold = 100
	s := env.addSlime(t, world.Pos{X: 2, Y: 2}, 2)
	s.ReachedFood = foodPtr(1)

	s.Step(env)

	require.NotNil(t, s.ReachedFood)
	assert.Equal(t, FoodID(0), *s.ReachedFood)
	require.NotNil(t, s.LastReachedFood)
	assert.Equal(t, FoodID(1), *s.LastReachedFood)
	assert.True(t, env.reached[0])
	assert.Equal(t, ReplenishPheromone, s.Pheromone)
	assert.Equal(t, ReplenishPheromone, s.MaxPheromone)
	assert.Empty(t, env.spawned, "touching food does not spawn")

	// Touching the same food again keeps the previous link.
	s.Step(env)
	assert.Equal(t, FoodID(1), *s.LastReachedFood)
}

func TestDiffuse_RefusedSpawn(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	env.refuse = true
	env.params.Decay = 0.5
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 5)
	s.Capital = true

	s.Step(env)

	assert.Equal(t, 5.0, s.Pheromone)
	assert.True(t, s.Capital)
}

func TestDiffuse_PheromoneNeverNegative(t *testing.T) {
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	env.params.Decay = 1
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 5)

	s.Step(env)

	require.Len(t, env.spawned, 1)
	assert.Equal(t, 0.0, s.Pheromone)
}

func TestDiffuse_OutOfBoundsSkipped(t *testing.T) {
	env := newTestEnv(t, 3, 3, world.Pos{X: 2, Y: 2})
	env.target = 0
	s := env.addSlime(t, world.Pos{X: 0, Y: 0}, 0.5)
	s.Direction = DirUpLeft
	env.params.MovingThreshold = 10

	assert.NotPanics(t, func() { s.Diffuse(env) })
	assert.Empty(t, env.spawned)
}

func TestFood_StepIsNoop(t *testing.T) {
	env := newTestEnv(t, 5, 5, world.Pos{X: 2, Y: 2})
	f := env.grid.Occupants(world.Pos{X: 2, Y: 2})[0]

	f.Step(env)

	assert.Equal(t, KindFood, f.Kind())
	assert.Equal(t, world.Pos{X: 2, Y: 2}, f.Position())
	assert.Equal(t, 1, env.grid.Count())
}

func captureLog(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.NewLogger(level, &buf))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStep_TraceLogsTurn(t *testing.T) {
	buf := captureLog(t, "trace")
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 0.5)

	s.Step(env)

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, `msg="slime turn"`)
	assert.Contains(t, out, fmt.Sprintf("slime=%d", s.ID))
	assert.Contains(t, out, "step=0")
}

func TestStep_NoTraceAtInfo(t *testing.T) {
	buf := captureLog(t, "info")
	env := newTestEnv(t, 10, 10, world.Pos{X: 1, Y: 1})
	s := env.addSlime(t, world.Pos{X: 5, Y: 5}, 0.5)

	s.Step(env)

	assert.Empty(t, buf.String())
}
