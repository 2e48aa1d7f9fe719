// Package persistence provides SQLite storage for colony runs.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mouldnet/internal/agents"
	"github.com/talgya/mouldnet/internal/engine"
	"github.com/talgya/mouldnet/internal/graph"
	"github.com/talgya/mouldnet/internal/world"
)

// ErrNoRun is returned when the database holds no saved run.
var ErrNoRun = errors.New("no saved run")

// Meta keys.
const (
	metaRunID   = "run_id"
	metaTick    = "last_tick"
	metaTarget  = "target"
	metaNextID  = "next_id"
	metaRefused = "refused_spawns"

	// MetaStations holds the stations source label of the current run.
	MetaStations = "stations"
)

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		source TEXT NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS food (
		food_id INTEGER PRIMARY KEY,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS slime (
		id INTEGER PRIMARY KEY,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		pheromone REAL NOT NULL,
		max_pheromone REAL NOT NULL,
		direction INTEGER NOT NULL,
		capital INTEGER NOT NULL,
		reached_food INTEGER,
		last_reached_food INTEGER,
		target INTEGER,
		step_food INTEGER,
		step_x INTEGER,
		step_y INTEGER,
		path_json TEXT NOT NULL,
		born_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reached_food (
		food_id INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS spread_edges (
		a INTEGER NOT NULL,
		b INTEGER NOT NULL,
		PRIMARY KEY (a, b)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun registers a fresh run, clears any previous run state and
// returns the new run id.
func (db *DB) BeginRun(cfg engine.Config, source string) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	runID := uuid.NewString()

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	for _, table := range []string{"food", "slime", "reached_food", "spread_edges", "events", "world_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return "", fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(
		"INSERT INTO runs (run_id, created_at, source, config_json) VALUES (?, ?, ?, ?)",
		runID, time.Now().UTC().Format(time.RFC3339), source, string(cfgJSON),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO world_meta (key, value) VALUES (?, ?)", metaRunID, runID); err != nil {
		return "", fmt.Errorf("save run id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	slog.Info("run registered", "run_id", runID, "source", source)
	return runID, nil
}

// RunID returns the id of the run currently stored, or ErrNoRun.
func (db *DB) RunID() (string, error) {
	id, err := db.GetMeta(metaRunID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRun
	}
	return id, err
}

// HasState reports whether a run has been saved at least once.
func (db *DB) HasState() (bool, error) {
	if _, err := db.RunID(); err != nil {
		if errors.Is(err, ErrNoRun) {
			return false, nil
		}
		return false, err
	}
	_, err := db.GetMeta(metaTick)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type slimeRow struct {
	ID              uint64        `db:"id"`
	X               int           `db:"x"`
	Y               int           `db:"y"`
	Pheromone       float64       `db:"pheromone"`
	MaxPheromone    float64       `db:"max_pheromone"`
	Direction       int           `db:"direction"`
	Capital         bool          `db:"capital"`
	ReachedFood     sql.NullInt64 `db:"reached_food"`
	LastReachedFood sql.NullInt64 `db:"last_reached_food"`
	Target          sql.NullInt64 `db:"target"`
	StepFood        sql.NullInt64 `db:"step_food"`
	StepX           sql.NullInt64 `db:"step_x"`
	StepY           sql.NullInt64 `db:"step_y"`
	PathJSON        string        `db:"path_json"`
	BornTick        uint64        `db:"born_tick"`
}

func nullFood(id *agents.FoodID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func foodFromNull(n sql.NullInt64) *agents.FoodID {
	if !n.Valid {
		return nil
	}
	id := agents.FoodID(n.Int64)
	return &id
}

func toRow(sl *agents.Slime) (slimeRow, error) {
	pathJSON, err := json.Marshal(sl.Path)
	if err != nil {
		return slimeRow{}, err
	}
	if sl.Path == nil {
		pathJSON = []byte("[]")
	}
	r := slimeRow{
		ID:              uint64(sl.ID),
		X:               sl.Pos.X,
		Y:               sl.Pos.Y,
		Pheromone:       sl.Pheromone,
		MaxPheromone:    sl.MaxPheromone,
		Direction:       int(sl.Direction),
		Capital:         sl.Capital,
		ReachedFood:     nullFood(sl.ReachedFood),
		LastReachedFood: nullFood(sl.LastReachedFood),
		Target:          nullFood(sl.Target),
		PathJSON:        string(pathJSON),
		BornTick:        sl.BornTick,
	}
	if sl.StepFood != nil {
		r.StepFood = sql.NullInt64{Int64: int64(sl.StepFood.FoodID), Valid: true}
		r.StepX = sql.NullInt64{Int64: int64(sl.StepFood.Pos.X), Valid: true}
		r.StepY = sql.NullInt64{Int64: int64(sl.StepFood.Pos.Y), Valid: true}
	}
	return r, nil
}

func (r slimeRow) slime() (*agents.Slime, error) {
	sl := &agents.Slime{
		ID:              agents.AgentID(r.ID),
		Pos:             world.Pos{X: r.X, Y: r.Y},
		Pheromone:       r.Pheromone,
		MaxPheromone:    r.MaxPheromone,
		Direction:       agents.Direction(r.Direction),
		Capital:         r.Capital,
		ReachedFood:     foodFromNull(r.ReachedFood),
		LastReachedFood: foodFromNull(r.LastReachedFood),
		Target:          foodFromNull(r.Target),
		BornTick:        r.BornTick,
	}
	if err := json.Unmarshal([]byte(r.PathJSON), &sl.Path); err != nil {
		return nil, fmt.Errorf("slime %d path: %w", r.ID, err)
	}
	if len(sl.Path) == 0 {
		sl.Path = nil
	}
	if r.StepFood.Valid {
		sl.StepFood = &agents.StepTarget{
			FoodID: agents.FoodID(r.StepFood.Int64),
			Pos:    world.Pos{X: int(r.StepX.Int64), Y: int(r.StepY.Int64)},
		}
	}
	return sl, nil
}

// SaveWorldState performs a full replace of the stored run state in one
// transaction. A run must have been registered with BeginRun.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	runID, err := db.RunID()
	if err != nil {
		return err
	}
	st := sim.State()
	food := sim.FoodPositions()

	slog.Info("saving world state", "run_id", runID, "tick", st.Tick, "slimes", len(st.Slimes))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"food", "slime", "reached_food", "spread_edges", "events"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, p := range food {
		if _, err := tx.Exec("INSERT INTO food (food_id, x, y) VALUES (?, ?, ?)", i, p.X, p.Y); err != nil {
			return fmt.Errorf("insert food %d: %w", i, err)
		}
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO slime
		(id, x, y, pheromone, max_pheromone, direction, capital, reached_food,
		 last_reached_food, target, step_food, step_x, step_y, path_json, born_tick)
		VALUES (:id, :x, :y, :pheromone, :max_pheromone, :direction, :capital, :reached_food,
		 :last_reached_food, :target, :step_food, :step_x, :step_y, :path_json, :born_tick)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sl := range st.Slimes {
		row, err := toRow(sl)
		if err != nil {
			return fmt.Errorf("encode slime %d: %w", sl.ID, err)
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert slime %d: %w", sl.ID, err)
		}
	}

	for _, id := range st.Reached {
		if _, err := tx.Exec("INSERT INTO reached_food (food_id) VALUES (?)", id); err != nil {
			return fmt.Errorf("insert reached %d: %w", id, err)
		}
	}
	for _, e := range st.Spread {
		if _, err := tx.NamedExec("INSERT INTO spread_edges (a, b) VALUES (:a, :b)", e); err != nil {
			return fmt.Errorf("insert spread edge %s: %w", e, err)
		}
	}
	for _, e := range st.Events {
		if _, err := tx.NamedExec(
			"INSERT INTO events (tick, description, category) VALUES (:tick, :description, :category)", e,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	meta := map[string]string{
		metaTick:    strconv.FormatUint(st.Tick, 10),
		metaTarget:  strconv.Itoa(int(st.Target)),
		metaNextID:  strconv.FormatUint(uint64(st.NextID), 10),
		metaRefused: strconv.FormatUint(st.Refused, 10),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved", "tick", st.Tick)
	return nil
}

// LoadWorldState rebuilds the stored run as a simulation ready to resume.
func (db *DB) LoadWorldState() (*engine.Simulation, error) {
	runID, err := db.RunID()
	if err != nil {
		return nil, err
	}
	cfg, err := db.RunConfig(runID)
	if err != nil {
		return nil, err
	}
	food, err := db.FoodPositions()
	if err != nil {
		return nil, fmt.Errorf("load food: %w", err)
	}

	var st engine.State
	if st.Tick, err = db.metaUint(metaTick); err != nil {
		return nil, err
	}
	target, err := db.metaUint(metaTarget)
	if err != nil {
		return nil, err
	}
	st.Target = agents.FoodID(target)
	nextID, err := db.metaUint(metaNextID)
	if err != nil {
		return nil, err
	}
	st.NextID = agents.AgentID(nextID)
	if st.Refused, err = db.metaUint(metaRefused); err != nil {
		return nil, err
	}

	var rows []slimeRow
	if err := db.conn.Select(&rows, "SELECT * FROM slime ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load slime: %w", err)
	}
	st.Slimes = make([]*agents.Slime, 0, len(rows))
	for _, r := range rows {
		sl, err := r.slime()
		if err != nil {
			return nil, err
		}
		st.Slimes = append(st.Slimes, sl)
	}

	if st.Reached, err = db.ReachedFood(); err != nil {
		return nil, fmt.Errorf("load reached: %w", err)
	}
	if st.Spread, err = db.SpreadEdges(); err != nil {
		return nil, fmt.Errorf("load spread: %w", err)
	}
	if err := db.conn.Select(&st.Events, "SELECT tick, description, category FROM events ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	sim, err := engine.Restore(cfg, food, st)
	if err != nil {
		return nil, err
	}
	slog.Info("world state loaded", "run_id", runID, "tick", st.Tick, "slimes", len(st.Slimes))
	return sim, nil
}

// RunConfig returns the simulation config a run was started with.
func (db *DB) RunConfig(runID string) (engine.Config, error) {
	var cfgJSON string
	if err := db.conn.Get(&cfgJSON, "SELECT config_json FROM runs WHERE run_id = ?", runID); err != nil {
		return engine.Config{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	var cfg engine.Config
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return engine.Config{}, fmt.Errorf("decode run config: %w", err)
	}
	return cfg, nil
}

// FoodPositions returns the stored food cells indexed by food id.
func (db *DB) FoodPositions() ([]world.Pos, error) {
	var food []world.Pos
	err := db.conn.Select(&food, "SELECT x, y FROM food ORDER BY food_id")
	return food, err
}

// ReachedFood returns the stored reached food ids, ascending.
func (db *DB) ReachedFood() ([]agents.FoodID, error) {
	var ids []agents.FoodID
	err := db.conn.Select(&ids, "SELECT food_id FROM reached_food ORDER BY food_id")
	return ids, err
}

// SpreadEdges returns the stored spread graph edges, sorted.
func (db *DB) SpreadEdges() ([]graph.Edge, error) {
	var edges []graph.Edge
	err := db.conn.Select(&edges, "SELECT a, b FROM spread_edges ORDER BY a, b")
	return edges, err
}

// RecentEvents returns the most recent N saved events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func (db *DB) metaUint(key string) (uint64, error) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, fmt.Errorf("load meta %s: %w", key, err)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse meta %s: %w", key, err)
	}
	return n, nil
}
