package db

import (
	"database/sql"
	"encoding/json"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentsim/society/internal/relation"
	"github.com/agentsim/society/internal/sim"
)

// DB wraps run persistence: experiment records, per-tick agent outputs,
// encounter events and relation graph snapshots.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// NewDB opens (and migrates) the sqlite database at dbPath.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		slug TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		relation_influence REAL NOT NULL,
		agent_count INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tick_outputs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL,
		tick INTEGER NOT NULL,
		agent_id TEXT NOT NULL,
		action TEXT NOT NULL,
		speech TEXT NOT NULL,
		location TEXT NOT NULL,
		thoughts TEXT NOT NULL,
		state_json TEXT NOT NULL,
		memory_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (slug) REFERENCES experiments(slug) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS encounters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL,
		tick INTEGER NOT NULL,
		location TEXT NOT NULL,
		participants_json TEXT NOT NULL,
		notes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (slug) REFERENCES experiments(slug) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS relation_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL,
		tick INTEGER NOT NULL,
		graph_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (slug) REFERENCES experiments(slug) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tick_outputs_slug_tick ON tick_outputs(slug, tick);
	CREATE INDEX IF NOT EXISTS idx_tick_outputs_agent ON tick_outputs(slug, agent_id);
	CREATE INDEX IF NOT EXISTS idx_encounters_slug_tick ON encounters(slug, tick);
	CREATE INDEX IF NOT EXISTS idx_relation_snapshots_slug ON relation_snapshots(slug, tick);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveExperiment upserts an experiment record.
func (db *DB) SaveExperiment(slug, name string, relationInfluence float64, agentCount int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO experiments (slug, name, relation_influence, agent_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			relation_influence = excluded.relation_influence,
			agent_count = excluded.agent_count,
			updated_at = CURRENT_TIMESTAMP
	`, slug, name, relationInfluence, agentCount)
	return err
}

// GetExperimentList returns all experiment slugs, most recently updated
// first.
func (db *DB) GetExperimentList() ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT slug FROM experiments ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}

	return slugs, rows.Err()
}

// DeleteExperiment deletes an experiment and all its run data.
func (db *DB) DeleteExperiment(slug string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("DELETE FROM experiments WHERE slug = ?", slug)
	return err
}

// SaveTickOutputs stores every agent's final output for one tick in a
// single transaction.
func (db *DB) SaveTickOutputs(slug string, outputs []*sim.TickOutput) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, out := range outputs {
		stateJSON, _ := json.Marshal(out.State)
		memoryJSON, _ := json.Marshal(out.Memory)

		_, err = tx.Exec(`
			INSERT INTO tick_outputs (slug, tick, agent_id, action, speech, location, thoughts, state_json, memory_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, slug, out.Tick, out.AgentID, out.Action, out.Speech, out.Location, out.Thoughts, stateJSON, memoryJSON)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTickOutputs loads outputs for one experiment, optionally filtered by
// agent, ordered by tick. A non-positive limit means no limit.
func (db *DB) GetTickOutputs(slug, agentID string, limit int) ([]*sim.TickOutput, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT tick, agent_id, action, speech, location, thoughts, state_json, memory_json
		FROM tick_outputs WHERE slug = ?`
	args := []any{slug}
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY tick ASC, agent_id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []*sim.TickOutput
	for rows.Next() {
		var (
			out                   sim.TickOutput
			stateJSON, memoryJSON string
		)
		if err := rows.Scan(&out.Tick, &out.AgentID, &out.Action, &out.Speech,
			&out.Location, &out.Thoughts, &stateJSON, &memoryJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(stateJSON), &out.State); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(memoryJSON), &out.Memory); err != nil {
			return nil, err
		}
		outputs = append(outputs, &out)
	}

	return outputs, rows.Err()
}

// SaveEncounter stores one encounter event.
func (db *DB) SaveEncounter(slug string, tick int, location string, participants []string, notes string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	participantsJSON, _ := json.Marshal(participants)
	_, err := db.conn.Exec(`
		INSERT INTO encounters (slug, tick, location, participants_json, notes)
		VALUES (?, ?, ?, ?, ?)
	`, slug, tick, location, participantsJSON, notes)
	return err
}

// Encounter is one persisted encounter row.
type Encounter struct {
	Tick         int      `json:"tick"`
	Location     string   `json:"location"`
	Participants []string `json:"participants"`
	Notes        string   `json:"notes,omitempty"`
}

// GetEncounters loads every encounter of an experiment in tick order.
func (db *DB) GetEncounters(slug string) ([]*Encounter, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT tick, location, participants_json, notes
		FROM encounters WHERE slug = ? ORDER BY tick ASC, id ASC
	`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var encounters []*Encounter
	for rows.Next() {
		var (
			enc              Encounter
			participantsJSON string
			notes            sql.NullString
		)
		if err := rows.Scan(&enc.Tick, &enc.Location, &participantsJSON, &notes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(participantsJSON), &enc.Participants); err != nil {
			return nil, err
		}
		if notes.Valid {
			enc.Notes = notes.String
		}
		encounters = append(encounters, &enc)
	}

	return encounters, rows.Err()
}

// SaveRelationSnapshot stores the evolving relation graph at one tick.
func (db *DB) SaveRelationSnapshot(slug string, tick int, doc *relation.GraphDoc) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	graphJSON, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		INSERT INTO relation_snapshots (slug, tick, graph_json)
		VALUES (?, ?, ?)
	`, slug, tick, graphJSON)
	return err
}

// LoadLatestRelationSnapshot returns the newest relation snapshot for an
// experiment, or sql.ErrNoRows when none exists.
func (db *DB) LoadLatestRelationSnapshot(slug string) (int, *relation.GraphDoc, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var (
		tick      int
		graphJSON string
	)
	err := db.conn.QueryRow(`
		SELECT tick, graph_json FROM relation_snapshots
		WHERE slug = ? ORDER BY tick DESC, id DESC LIMIT 1
	`, slug).Scan(&tick, &graphJSON)
	if err != nil {
		return 0, nil, err
	}

	var doc relation.GraphDoc
	if err := json.Unmarshal([]byte(graphJSON), &doc); err != nil {
		return 0, nil, err
	}
	return tick, &doc, nil
}
