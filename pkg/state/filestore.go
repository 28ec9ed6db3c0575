package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists each agent as a line-delimited JSON file: one header
// record followed by one record per turn in index order. Saves write to a
// temp file in the same directory and rename it into place, so readers of
// the same id always observe a complete file.
type FileStore struct {
	dir string
}

// header is the first record of a state file: everything except the turns.
type header struct {
	AgentID            string                 `json:"agent_id"`
	Goal               string                 `json:"goal"`
	UpdatedAt          string                 `json:"updated_at"`
	TurnCount          int                    `json:"turn_count"`
	ReasoningChain     *ReasoningChain        `json:"current_reasoning_chain,omitempty"`
	ReasoningTree      *ReasoningTree         `json:"current_reasoning_tree,omitempty"`
	AdditionalMessages []SeedMessage          `json:"additional_messages,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, &StoreError{Store: "FileStore", Action: "New", Err: fmt.Errorf("dir cannot be empty")}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StoreError{Store: "FileStore", Action: "New", Err: err}
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(agentID string) string {
	// Agent ids may contain path-hostile characters; flatten them.
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, agentID)
	return filepath.Join(f.dir, safe+".jsonl")
}

// Load implements Store. Malformed content returns (nil, nil) with a warning
// so a corrupt file behaves like a missing one.
func (f *FileStore) Load(_ context.Context, agentID string) (*AgentState, error) {
	file, err := os.Open(f.path(agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StoreError{Store: "FileStore", Action: "Load", AgentID: agentID, Err: err}
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		slog.Warn("State file empty, treating as missing", "agent_id", agentID)
		return nil, nil
	}

	var hdr header
	if err := json.Unmarshal(scanner.Bytes(), &hdr); err != nil {
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

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var turn AgentTurn
		if err := json.Unmarshal(line, &turn); err != nil {
			slog.Warn("Turn record corrupt, treating state as missing",
				"agent_id", agentID, "index", len(st.Turns), "error", err)
			return nil, nil
		}
		if turn.Index != len(st.Turns) {
			slog.Warn("Turn records out of order, treating state as missing",
				"agent_id", agentID, "index", turn.Index, "expected", len(st.Turns))
			return nil, nil
		}
		st.Turns = append(st.Turns, turn)
		st.UpdatedAt = turn.CreatedAt
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("State file unreadable, treating as missing", "agent_id", agentID, "error", err)
		return nil, nil
	}
	return st, nil
}

// Save implements Store with write-temp-then-rename atomicity.
func (f *FileStore) Save(_ context.Context, agentID string, st *AgentState) error {
	tmp, err := os.CreateTemp(f.dir, ".state-*.tmp")
	if err != nil {
		return &StoreError{Store: "FileStore", Action: "Save", AgentID: agentID, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	hdr := header{
		AgentID:            st.AgentID,
		Goal:               st.Goal,
		UpdatedAt:          st.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		TurnCount:          len(st.Turns),
		ReasoningChain:     st.ReasoningChain,
		ReasoningTree:      st.ReasoningTree,
		AdditionalMessages: st.AdditionalMessages,
		Metadata:           st.Metadata,
	}
	if err := writeRecord(w, hdr); err != nil {
		tmp.Close()
		return &StoreError{Store: "FileStore", Action: "Save", AgentID: agentID, Err: err}
	}
	for i := range st.Turns {
		if err := writeRecord(w, &st.Turns[i]); err != nil {
			tmp.Close()
			return &StoreError{Store: "FileStore", Action: "Save", AgentID: agentID, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return &StoreError{Store: "FileStore", Action: "Save", AgentID: agentID, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Store: "FileStore", Action: "Save", AgentID: agentID, Err: err}
	}
	if err := os.Rename(tmpName, f.path(agentID)); err != nil {
		return &StoreError{Store: "FileStore", Action: "Save", AgentID: agentID, Err: err}
	}
	return nil
}

// Delete implements Store. Deleting a missing id is not an error.
func (f *FileStore) Delete(_ context.Context, agentID string) error {
	if err := os.Remove(f.path(agentID)); err != nil && !os.IsNotExist(err) {
		return &StoreError{Store: "FileStore", Action: "Delete", AgentID: agentID, Err: err}
	}
	return nil
}

func writeRecord(w *bufio.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	return w.WriteByte('\n')
}
