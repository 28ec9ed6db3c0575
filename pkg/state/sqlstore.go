package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists agent state in SQLite via database/sql: one header row
// per agent plus one row per turn, replaced transactionally on save so
// readers never observe a partially written log.
type SQLStore struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS agent_headers (
    agent_id   TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_turns (
    agent_id TEXT NOT NULL,
    idx      INTEGER NOT NULL,
    payload  TEXT NOT NULL,
    PRIMARY KEY (agent_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_agent_turns_agent ON agent_turns(agent_id);
`

// NewSQLStore creates a SQLite-backed store at the given path and
// initializes the schema.
func NewSQLStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, &StoreError{Store: "SQLStore", Action: "New", Err: fmt.Errorf("path cannot be empty")}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, &StoreError{Store: "SQLStore", Action: "New", Err: err}
	}
	s := &SQLStore{db: db}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, &StoreError{Store: "SQLStore", Action: "New", Err: fmt.Errorf("initialize schema: %w", err)}
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// Load implements Store. Corrupt rows degrade to (nil, nil) with a warning.
func (s *SQLStore) Load(ctx context.Context, agentID string) (*AgentState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM agent_headers WHERE agent_id = ?`, agentID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Store: "SQLStore", Action: "Load", AgentID: agentID, Err: err}
	}

	var hdr header
	if err := json.Unmarshal([]byte(payload), &hdr); err != nil {
		slog.Warn("State header corrupt, treating as missing", "agent_id", agentID, "error", err)
		return nil, nil
	}

	st := &AgentState{
		AgentID:            hdr.AgentID,
		Goal:               hdr.Goal,
		Turns:              make([]AgentTurn, 0, hdr.TurnCount),
		ReasoningChain:     hdr.ReasoningChain,
		ReasoningTree:      hdr.ReasoningTree,
		AdditionalMessages: hdr.AdditionalMessages,
		Metadata:           hdr.Metadata,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM agent_turns WHERE agent_id = ? ORDER BY idx`, agentID)
	if err != nil {
		return nil, &StoreError{Store: "SQLStore", Action: "Load", AgentID: agentID, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var turnPayload string
		if err := rows.Scan(&turnPayload); err != nil {
			return nil, &StoreError{Store: "SQLStore", Action: "Load", AgentID: agentID, Err: err}
		}
		var turn AgentTurn
		if err := json.Unmarshal([]byte(turnPayload), &turn); err != nil {
			slog.Warn("Turn row corrupt, treating state as missing",
				"agent_id", agentID, "index", len(st.Turns), "error", err)
			return nil, nil
		}
		if turn.Index != len(st.Turns) {
			slog.Warn("Turn rows out of order, treating state as missing",
				"agent_id", agentID, "index", turn.Index, "expected", len(st.Turns))
			return nil, nil
		}
		st.Turns = append(st.Turns, turn)
		st.UpdatedAt = turn.CreatedAt
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Store: "SQLStore", Action: "Load", AgentID: agentID, Err: err}
	}
	return st, nil
}

// Save implements Store. The header and turn rows are replaced in a single
// transaction.
func (s *SQLStore) Save(ctx context.Context, agentID string, st *AgentState) error {
	hdr := header{
		AgentID:            st.AgentID,
		Goal:               st.Goal,
		UpdatedAt:          st.UpdatedAt.UTC().Format(time.RFC3339Nano),
		TurnCount:          len(st.Turns),
		ReasoningChain:     st.ReasoningChain,
		ReasoningTree:      st.ReasoningTree,
		AdditionalMessages: st.AdditionalMessages,
		Metadata:           st.Metadata,
	}
	hdrPayload, err := json.Marshal(hdr)
	if err != nil {
		return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agent_headers (agent_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		agentID, string(hdrPayload), st.UpdatedAt.UTC()); err != nil {
		return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
	}

	// The turn log is append-only, so replacing rows is equivalent to
	// appending the new suffix; replacement keeps the statement simple.
	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_turns WHERE agent_id = ?`, agentID); err != nil {
		return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO agent_turns (agent_id, idx, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
	}
	defer stmt.Close()

	for i := range st.Turns {
		turnPayload, err := json.Marshal(&st.Turns[i])
		if err != nil {
			return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
		}
		if _, err := stmt.ExecContext(ctx, agentID, st.Turns[i].Index, string(turnPayload)); err != nil {
			return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Store: "SQLStore", Action: "Save", AgentID: agentID, Err: err}
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, agentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Store: "SQLStore", Action: "Delete", AgentID: agentID, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_turns WHERE agent_id = ?`, agentID); err != nil {
		return &StoreError{Store: "SQLStore", Action: "Delete", AgentID: agentID, Err: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_headers WHERE agent_id = ?`, agentID); err != nil {
		return &StoreError{Store: "SQLStore", Action: "Delete", AgentID: agentID, Err: err}
	}
	return tx.Commit()
}
