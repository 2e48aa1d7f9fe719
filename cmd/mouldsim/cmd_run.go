package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/mouldnet/internal/engine"
	"github.com/talgya/mouldnet/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the colony headless for a number of ticks",
		Long: `Run steps the colony as fast as possible, saves the result to the
database and prints a summary. Interrupting the run still saves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ticks, _ := cmd.Flags().GetUint64("ticks")
			resume, _ := cmd.Flags().GetBool("resume")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sim, err := prepareSimulation(cfg, db, resume)
			if err != nil {
				return err
			}

			eng := engine.NewEngine(sim)
			eng.Interval = 0
			eng.MaxTicks = ticks
			eng.ReportEvery = cfg.Engine.ReportEvery
			eng.SnapshotEvery = cfg.Storage.SnapshotEvery
			eng.OnReport = func(tick uint64) { engine.LogReport(sim, tick) }
			eng.OnSnapshot = func(tick uint64) { saveState(db, sim) }

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			runErr := eng.Run(ctx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}

			if err := db.SaveWorldState(sim); err != nil {
				return fmt.Errorf("save world state: %w", err)
			}
			printSummary(cmd.OutOrStdout(), sim, eng.Ticks(), time.Since(start))
			return nil
		},
	}

	cmd.Flags().Uint64("ticks", 1000, "Number of ticks to run")
	cmd.Flags().Bool("resume", false, "Continue the run saved in the database")
	return cmd
}

// saveState is the periodic snapshot hook; failures are logged, not fatal.
func saveState(db *persistence.DB, sim *engine.Simulation) {
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("periodic save failed", "error", err)
	}
}

func printSummary(w io.Writer, sim *engine.Simulation, ticks uint64, elapsed time.Duration) {
	st := sim.StatsSnapshot()
	fmt.Fprintf(w, "Ran %s ticks in %s (now at tick %s)\n",
		humanize.Comma(int64(ticks)), elapsed.Round(time.Millisecond), humanize.Comma(int64(sim.CurrentTick())))
	fmt.Fprintf(w, "  slimes:        %s (%s capitals)\n", humanize.Comma(int64(st.Slimes)), humanize.Comma(int64(st.Capitals)))
	fmt.Fprintf(w, "  food reached:  %d of %d\n", st.ReachedFood, st.Food)
	fmt.Fprintf(w, "  spread edges:  %d\n", st.SpreadEdges)
	fmt.Fprintf(w, "  pheromone:     %s total, %.3f average\n", humanize.CommafWithDigits(st.TotalPheromone, 2), st.AvgPheromone)
	if st.RefusedSpawns > 0 {
		fmt.Fprintf(w, "  refused spawns: %s\n", humanize.Comma(int64(st.RefusedSpawns)))
	}
}
