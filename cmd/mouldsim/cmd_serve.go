package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/mouldnet/internal/api"
	"github.com/talgya/mouldnet/internal/engine"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the colony in real time behind the HTTP API",
		Long: `Serve runs the colony at the configured tick interval and exposes it
over HTTP until interrupted. State is saved periodically when
storage.snapshot_every is set, and always on shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resume, _ := cmd.Flags().GetBool("resume")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.API.Port = port
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
			eng.Interval = cfg.Engine.Interval
			eng.MaxTicks = cfg.Engine.MaxTicks
			eng.ReportEvery = cfg.Engine.ReportEvery
			eng.SnapshotEvery = cfg.Storage.SnapshotEvery
			eng.OnReport = func(tick uint64) { engine.LogReport(sim, tick) }
			eng.OnSnapshot = func(tick uint64) { saveState(db, sim) }

			srv := &api.Server{
				Sim:      sim,
				Eng:      eng,
				DB:       db,
				Port:     cfg.API.Port,
				AdminKey: cfg.API.AdminKey,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			apiErr := make(chan error, 1)
			go func() {
				err := srv.ListenAndServe(ctx)
				if err != nil {
					slog.Error("HTTP API failed", "error", err)
					stop()
				}
				apiErr <- err
			}()

			// The engine stopping on max_ticks keeps the API up for inspection.
			engErr := eng.Run(ctx)
			if engErr != nil && !errors.Is(engErr, context.Canceled) {
				stop()
				<-apiErr
				return engErr
			}
			if engErr == nil {
				saveState(db, sim)
				slog.Info("tick budget reached, API still serving; interrupt to exit")
			}

			err = <-apiErr
			slog.Info("shutting down", "tick", sim.CurrentTick())
			if saveErr := db.SaveWorldState(sim); saveErr != nil {
				return fmt.Errorf("save world state: %w", saveErr)
			}
			return err
		},
	}

	cmd.Flags().Bool("resume", true, "Continue the run saved in the database if there is one")
	cmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	return cmd
}
