package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/mouldnet/internal/graph"
	"github.com/talgya/mouldnet/internal/persistence"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the saved spread graph",
		Long: `Export writes the spread graph of the saved run in DOT (Graphviz,
laid out at the food positions) or JSON format. The events format lists
the most recent colony events instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			db, err := persistence.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			var rendered graph.Rendered
			if format != "events" {
				if rendered, err = loadSpread(db); err != nil {
					return err
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "dot":
				_, err = fmt.Fprint(w, graph.RenderDOT("spread", rendered))
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				err = enc.Encode(rendered)
			case "events":
				err = writeEvents(w, db, limit)
			default:
				return fmt.Errorf("unsupported format %q (use 'dot', 'json' or 'events')", format)
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", format, err)
			}
			if output != "" {
				what := "Spread graph"
				if format == "events" {
					what = "Events"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s written to %s\n", what, output)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, events")
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	cmd.Flags().Int("limit", 20, "Number of recent events for the events format")
	return cmd
}

// writeEvents lists the newest stored events, oldest first, under a header
// naming the run and its stations.
func writeEvents(w io.Writer, db *persistence.DB, limit int) error {
	runID, err := db.RunID()
	if err != nil {
		return err
	}
	source, err := db.GetMeta(persistence.MetaStations)
	if err != nil {
		source = "unknown"
	}
	events, err := db.RecentEvents(limit)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	if _, err := fmt.Fprintf(w, "# run %s, stations %s\n", runID, source); err != nil {
		return err
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if _, err := fmt.Fprintf(w, "tick %d [%s] %s\n", e.Tick, e.Category, e.Description); err != nil {
			return err
		}
	}
	return nil
}

// loadSpread rebuilds the rendered spread graph from stored rows.
func loadSpread(db *persistence.DB) (graph.Rendered, error) {
	if _, err := db.RunID(); err != nil {
		return graph.Rendered{}, err
	}
	food, err := db.FoodPositions()
	if err != nil {
		return graph.Rendered{}, fmt.Errorf("load food: %w", err)
	}
	reached, err := db.ReachedFood()
	if err != nil {
		return graph.Rendered{}, fmt.Errorf("load reached: %w", err)
	}
	edges, err := db.SpreadEdges()
	if err != nil {
		return graph.Rendered{}, fmt.Errorf("load spread edges: %w", err)
	}

	g := graph.New()
	positions := make(map[graph.NodeID]graph.Point, len(food))
	marks := make(map[graph.NodeID]bool, len(reached))
	for i, p := range food {
		id := graph.NodeID(i)
		g.AddNode(id)
		positions[id] = graph.Point{X: p.X, Y: p.Y}
	}
	for _, id := range reached {
		marks[graph.NodeID(id)] = true
	}
	for _, e := range edges {
		g.AddEdge(e.A, e.B)
	}
	return graph.Render(g, positions, marks), nil
}
