package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mouldnet/internal/world"
)

func counterEngine() (*Engine, *uint64) {
	var tick uint64
	e := &Engine{
		Step: func() uint64 {
			tick++
			return tick
		},
	}
	e.SetSpeed(1)
	return e, &tick
}

func TestEngine_MaxTicks(t *testing.T) {
	e, tick := counterEngine()
	e.MaxTicks = 25

	err := e.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, uint64(25), *tick)
	assert.Equal(t, uint64(25), e.Ticks())
	assert.False(t, e.Running())
}

func TestEngine_Callbacks(t *testing.T) {
	e, _ := counterEngine()
	e.MaxTicks = 10
	e.ReportEvery = 3
	e.SnapshotEvery = 5

	var reports, snapshots []uint64
	e.OnReport = func(tick uint64) { reports = append(reports, tick) }
	e.OnSnapshot = func(tick uint64) { snapshots = append(snapshots, tick) }

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []uint64{3, 6, 9}, reports)
	assert.Equal(t, []uint64{5, 10}, snapshots)
}

func TestEngine_ContextCancel(t *testing.T) {
	e, _ := counterEngine()
	e.Interval = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := e.Run(ctx)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Positive(t, e.Ticks())
}

func TestEngine_Paused(t *testing.T) {
	e, tick := counterEngine()
	e.SetSpeed(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = e.Run(ctx)

	assert.Equal(t, uint64(0), *tick)
	assert.Equal(t, 0.0, e.Speed())
}

func TestEngine_SetSpeedClampsNegative(t *testing.T) {
	e, _ := counterEngine()
	e.SetSpeed(-3)
	assert.Equal(t, 0.0, e.Speed())
	e.SetSpeed(2.5)
	assert.Equal(t, 2.5, e.Speed())
}

func TestNewEngine_StepsSimulation(t *testing.T) {
	cfg := smallConfig(10, 10)
	cfg.InitialSlime = 1
	sim, err := NewSimulation(cfg, []world.Pos{{X: 1, Y: 1}})
	require.NoError(t, err)

	e := NewEngine(sim)
	e.Interval = 0
	e.MaxTicks = 7
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, uint64(7), sim.CurrentTick())
}
