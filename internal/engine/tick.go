// Package engine provides the colony model and the loop that drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine drives a simulation forward at a configurable pace.
type Engine struct {
	Interval      time.Duration // Base tick interval; 0 runs as fast as possible
	MaxTicks      uint64        // Stop after this many ticks of this run; 0 = unbounded
	ReportEvery   uint64        // Ticks between OnReport calls; 0 disables
	SnapshotEvery uint64        // Ticks between OnSnapshot calls; 0 disables

	// Step advances the model and returns the completed tick number.
	Step func() uint64

	// Optional callbacks, populated during setup.
	OnReport   func(tick uint64)
	OnSnapshot func(tick uint64)

	speed   atomic.Uint64 // float64 bits; multiplier, 0 = paused
	running atomic.Bool
	ticks   atomic.Uint64 // Ticks run by this engine
}

// NewEngine creates an engine stepping the given simulation.
func NewEngine(sim *Simulation) *Engine {
	e := &Engine{
		Interval:    100 * time.Millisecond,
		ReportEvery: 100,
		Step:        sim.Step,
	}
	e.SetSpeed(1)
	return e
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed sets the speed multiplier. Values <= 0 pause the engine.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Ticks returns the number of ticks this engine has run.
func (e *Engine) Ticks() uint64 {
	return e.ticks.Load()
}

// Run steps the simulation until ctx is done or MaxTicks is reached.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "speed", e.Speed(), "interval", e.Interval, "max_ticks", e.MaxTicks)

	var tick uint64
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation engine stopped", "tick", tick, "reason", err)
			return err
		}
		if e.MaxTicks > 0 && e.ticks.Load() >= e.MaxTicks {
			slog.Info("simulation engine finished", "tick", tick, "ticks", e.ticks.Load())
			return nil
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused; sleep briefly and check again.
			sleep(ctx, 100*time.Millisecond)
			continue
		}

		start := time.Now()
		tick = e.step()

		if e.Interval > 0 {
			target := time.Duration(float64(e.Interval) / speed)
			if elapsed := time.Since(start); elapsed < target {
				sleep(ctx, target-elapsed)
			}
		}
	}
}

func (e *Engine) step() uint64 {
	tick := e.Step()
	e.ticks.Add(1)

	if e.ReportEvery > 0 && tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
	if e.SnapshotEvery > 0 && tick%e.SnapshotEvery == 0 && e.OnSnapshot != nil {
		e.OnSnapshot(tick)
	}
	return tick
}

// sleep waits for d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// LogReport writes the periodic colony summary.
func LogReport(sim *Simulation, tick uint64) {
	st := sim.StatsSnapshot()
	slog.Info("colony report",
		"tick", tick,
		"slimes", st.Slimes,
		"capitals", st.Capitals,
		"reached_food", st.ReachedFood,
		"food", st.Food,
		"spread_edges", st.SpreadEdges,
		"avg_pheromone", fmt.Sprintf("%.3f", st.AvgPheromone),
		"refused_spawns", st.RefusedSpawns,
	)
}
