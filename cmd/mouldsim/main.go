// Command mouldsim grows a slime mould colony over transit stops and records
// the network it builds.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/mouldnet/internal/config"
	"github.com/talgya/mouldnet/internal/engine"
	"github.com/talgya/mouldnet/internal/logging"
	"github.com/talgya/mouldnet/internal/persistence"
	"github.com/talgya/mouldnet/internal/stations"
	"github.com/talgya/mouldnet/internal/world"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mouldsim",
		Short: "Slime mould network growth over transit stops",
		Long: `mouldsim seeds a grid with food at transit stop locations and lets a
pheromone-driven slime colony grow between them. The food-to-food links the
colony makes are recorded as the spread graph.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newExportCmd(),
	)
	return rootCmd
}

// loadSettings resolves config file, environment and flags, and installs
// the logger. Logs go to stderr so stdout stays clean for output.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Storage.Path = db
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cmd.ErrOrStderr())
	return cfg, nil
}

// openDB opens the configured database, creating its directory.
func openDB(cfg *config.Config) (*persistence.DB, error) {
	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := persistence.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.Storage.Path)
	return db, nil
}

// prepareSimulation resumes the stored run when asked and one exists;
// otherwise it loads the stations and registers a fresh run.
func prepareSimulation(cfg *config.Config, db *persistence.DB, resume bool) (*engine.Simulation, error) {
	if resume {
		has, err := db.HasState()
		if err != nil {
			return nil, fmt.Errorf("check saved state: %w", err)
		}
		if has {
			source, _ := db.GetMeta(persistence.MetaStations)
			slog.Info("found saved run, resuming", "stations", source)
			return db.LoadWorldState()
		}
		slog.Info("no saved run, starting fresh")
	}

	simCfg := cfg.SimulationConfig()
	food, source, err := loadFood(cfg, simCfg)
	if err != nil {
		return nil, err
	}

	sim, err := engine.NewSimulation(simCfg, food)
	if err != nil {
		return nil, fmt.Errorf("create simulation: %w", err)
	}
	if _, err := db.BeginRun(simCfg, source); err != nil {
		return nil, fmt.Errorf("register run: %w", err)
	}
	if err := db.SaveMeta(persistence.MetaStations, source); err != nil {
		return nil, fmt.Errorf("save stations source: %w", err)
	}
	return sim, nil
}

// loadFood reads the stations file, or generates a layout when only
// stations.synthetic is set. It returns the positions and a source label.
func loadFood(cfg *config.Config, simCfg engine.Config) ([]world.Pos, string, error) {
	if cfg.Stations.Path == "" {
		if cfg.Stations.Synthetic == 0 {
			return nil, "", fmt.Errorf("no stations file: set stations.path, MOULD_STATIONS or stations.synthetic")
		}
		food, err := stations.Synthetic(stations.SyntheticConfig{
			Count:  cfg.Stations.Synthetic,
			Width:  simCfg.GridWidth,
			Height: simCfg.GridHeight,
			Margin: cfg.Stations.Padding,
			Seed:   simCfg.Seed,
		})
		if err != nil {
			return nil, "", err
		}
		slog.Info("generated synthetic stations", "count", len(food))
		return food, fmt.Sprintf("synthetic:%d", cfg.Stations.Synthetic), nil
	}

	food, err := stations.Load(cfg.Stations.Path, stations.Options{
		Scale:   cfg.Stations.Scale,
		Padding: cfg.Stations.Padding,
	})
	if err != nil {
		return nil, "", err
	}
	if cfg.Stations.FitToGrid {
		food = stations.FitToGrid(food, simCfg.GridWidth, simCfg.GridHeight)
	} else if w, h := stations.Bounds(food); w > simCfg.GridWidth || h > simCfg.GridHeight {
		return nil, "", fmt.Errorf("stations need a %dx%d grid, have %dx%d (enable stations.fit_to_grid)",
			w, h, simCfg.GridWidth, simCfg.GridHeight)
	}
	return food, cfg.Stations.Path, nil
}
