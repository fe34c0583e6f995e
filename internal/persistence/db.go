// Package persistence provides SQLite-based run storage: the arena, the
// agents with their committed behaviors, the event log and run metadata.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/engine"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/world"
)

// Metadata keys.
const (
	MetaRunID     = "run_id"
	MetaSeed      = "seed"
	MetaLastTick  = "last_tick"
	MetaArenaSize = "arena_size"
	MetaScore     = "score"
	MetaRemaining = "round_remaining"
	MetaEventSeq  = "last_event_seq"
)

// ErrNoState is returned when loading from a database that was never saved to.
var ErrNoState = errors.New("no saved run")

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
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		pos_z REAL NOT NULL,
		wakefulness REAL NOT NULL,
		interrupted INTEGER NOT NULL,
		spawn_tick INTEGER NOT NULL,
		body_json TEXT NOT NULL,
		behavior_json TEXT NOT NULL,
		memories_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS destinations (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		pos_z REAL NOT NULL,
		fwd_x REAL NOT NULL,
		fwd_z REAL NOT NULL,
		half_x REAL NOT NULL,
		half_y REAL NOT NULL,
		half_z REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_destinations_kind ON destinations(kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type agentRow struct {
	ID           uint64  `db:"id"`
	Name         string  `db:"name"`
	PosX         float64 `db:"pos_x"`
	PosY         float64 `db:"pos_y"`
	PosZ         float64 `db:"pos_z"`
	Wakefulness  float64 `db:"wakefulness"`
	Interrupted  bool    `db:"interrupted"`
	SpawnTick    uint64  `db:"spawn_tick"`
	BodyJSON     string  `db:"body_json"`
	BehaviorJSON string  `db:"behavior_json"`
	MemoriesJSON string  `db:"memories_json"`
}

type destinationRow struct {
	ID    uint64  `db:"id"`
	Kind  string  `db:"kind"`
	PosX  float64 `db:"pos_x"`
	PosY  float64 `db:"pos_y"`
	PosZ  float64 `db:"pos_z"`
	FwdX  float64 `db:"fwd_x"`
	FwdZ  float64 `db:"fwd_z"`
	HalfX float64 `db:"half_x"`
	HalfY float64 `db:"half_y"`
	HalfZ float64 `db:"half_z"`
}

// SaveAgents writes all agents to the database (full replace).
func (db *DB) SaveAgents(list []engine.AgentExport) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO agents
		(id, name, pos_x, pos_y, pos_z, wakefulness, interrupted, spawn_tick,
		 body_json, behavior_json, memories_json)
		VALUES (:id, :name, :pos_x, :pos_y, :pos_z, :wakefulness, :interrupted, :spawn_tick,
		 :body_json, :behavior_json, :memories_json)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ex := range list {
		a := ex.Agent
		bodyJSON, err := json.Marshal(a.Body)
		if err != nil {
			return fmt.Errorf("agent %d body: %w", a.ID, err)
		}
		memJSON, err := json.Marshal(a.Memories)
		if err != nil {
			return fmt.Errorf("agent %d memories: %w", a.ID, err)
		}

		row := agentRow{
			ID:           uint64(a.ID),
			Name:         a.Name,
			PosX:         a.Body.Position.X,
			PosY:         a.Body.Position.Y,
			PosZ:         a.Body.Position.Z,
			Wakefulness:  a.Wakefulness,
			Interrupted:  a.Interrupted,
			SpawnTick:    a.SpawnTick,
			BodyJSON:     string(bodyJSON),
			BehaviorJSON: string(ex.Behavior),
			MemoriesJSON: string(memJSON),
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// SaveDestinations writes the arena's destinations (full replace).
func (db *DB) SaveDestinations(dests []world.Destination) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM destinations"); err != nil {
		return err
	}

	for _, d := range dests {
		_, err := tx.Exec(`INSERT INTO destinations
			(id, kind, pos_x, pos_y, pos_z, fwd_x, fwd_z, half_x, half_y, half_z)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uint64(d.ID), d.Kind.String(),
			d.Position.X, d.Position.Y, d.Position.Z,
			d.Forward.X, d.Forward.Z,
			d.HalfExtents.X, d.HalfExtents.Y, d.HalfExtents.Z,
		)
		if err != nil {
			return fmt.Errorf("insert destination %d: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (seq, tick, description, category) VALUES (?, ?, ?, ?)",
			e.Seq, e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in run metadata.
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

// GetMetaUint retrieves a numeric metadata value.
func (db *DB) GetMetaUint(key string) (uint64, error) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	return n, nil
}

// HasWorldState reports whether a run was saved before.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta(MetaLastTick)
	return err == nil
}

// SaveWorldState performs a full save of the run. Events already persisted
// up to the previous save are not written again.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	ex, err := sim.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	slog.Info("saving world state", "agents", len(ex.Agents), "destinations", len(ex.Destinations), "tick", ex.Tick)

	if err := db.SaveDestinations(ex.Destinations); err != nil {
		return fmt.Errorf("save destinations: %w", err)
	}
	if err := db.SaveAgents(ex.Agents); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}

	cursor := db.EventCursor()
	fresh := sim.EventsSince(cursor)
	if err := db.SaveEvents(fresh); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if n := len(fresh); n > 0 {
		cursor = fresh[n-1].Seq
	}

	meta := map[string]string{
		MetaRunID:     ex.RunID,
		MetaSeed:      strconv.FormatInt(ex.Seed, 10),
		MetaLastTick:  strconv.FormatUint(ex.Tick, 10),
		MetaArenaSize: strconv.FormatFloat(ex.ArenaSize, 'g', -1, 64),
		MetaScore:     strconv.Itoa(ex.Score.Score),
		MetaRemaining: strconv.FormatFloat(ex.Score.Remaining, 'g', -1, 64),
		MetaEventSeq:  strconv.FormatUint(cursor, 10),
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	slog.Info("world state saved")
	return nil
}

// EventCursor returns the sequence number of the last persisted event, or 0.
func (db *DB) EventCursor() uint64 {
	seq, err := db.GetMetaUint(MetaEventSeq)
	if err != nil {
		return 0
	}
	return seq
}

// LoadArena rebuilds the arena from saved destinations.
func (db *DB) LoadArena() (*world.Arena, error) {
	sizeStr, err := db.GetMeta(MetaArenaSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, err
	}
	size, err := strconv.ParseFloat(sizeStr, 64)
	if err != nil {
		return nil, fmt.Errorf("arena size: %w", err)
	}

	var rows []destinationRow
	if err := db.conn.Select(&rows, "SELECT * FROM destinations ORDER BY id"); err != nil {
		return nil, fmt.Errorf("select destinations: %w", err)
	}

	arena := world.NewArena(size)
	for _, r := range rows {
		kind, ok := world.ParseDestinationKind(r.Kind)
		if !ok {
			return nil, fmt.Errorf("destination %d: unknown kind %q", r.ID, r.Kind)
		}
		arena.Add(&world.Destination{
			ID:          world.EntityID(r.ID),
			Kind:        kind,
			Position:    world.Vec3{X: r.PosX, Y: r.PosY, Z: r.PosZ},
			Forward:     world.Vec3{X: r.FwdX, Z: r.FwdZ},
			HalfExtents: world.Vec3{X: r.HalfX, Y: r.HalfY, Z: r.HalfZ},
		})
	}
	return arena, nil
}

// LoadAgents rebuilds agents with their committed behaviors. Advisors are
// created with the given consideration depth.
func (db *DB) LoadAgents(depth float64) ([]*agents.Agent, error) {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY id"); err != nil {
		return nil, fmt.Errorf("select agents: %w", err)
	}

	out := make([]*agents.Agent, 0, len(rows))
	for _, r := range rows {
		var body motion.Body
		if err := json.Unmarshal([]byte(r.BodyJSON), &body); err != nil {
			return nil, fmt.Errorf("agent %d body: %w", r.ID, err)
		}
		b, err := behavior.Decode([]byte(r.BehaviorJSON))
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", r.ID, err)
		}

		a := &agents.Agent{
			ID:          agents.AgentID(r.ID),
			Name:        r.Name,
			Advisor:     agents.NewAdvisor(depth),
			Body:        body,
			Wakefulness: r.Wakefulness,
			Interrupted: r.Interrupted,
			SpawnTick:   r.SpawnTick,
		}
		if err := json.Unmarshal([]byte(r.MemoriesJSON), &a.Memories); err != nil {
			return nil, fmt.Errorf("agent %d memories: %w", r.ID, err)
		}
		a.Advisor.Restore(b)
		out = append(out, a)
	}
	return out, nil
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT seq, tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// LoadScore returns the saved score and round time remaining.
func (db *DB) LoadScore() (int, float64, error) {
	s, err := db.GetMeta(MetaScore)
	if err != nil {
		return 0, 0, err
	}
	r, err := db.GetMeta(MetaRemaining)
	if err != nil {
		return 0, 0, err
	}
	score, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, fmt.Errorf("meta %s: %w", MetaScore, err)
	}
	remaining, err := strconv.ParseFloat(r, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("meta %s: %w", MetaRemaining, err)
	}
	return score, remaining, nil
}
