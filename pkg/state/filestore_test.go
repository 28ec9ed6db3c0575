package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *AgentState {
	t.Helper()
	st := NewAgentState("agent-1", "compute things")
	st.Metadata["origin"] = "test"

	turn0 := AgentTurn{
		Index:  0,
		TurnID: "turn-0",
		LLMMessage: &ModelMessage{
			Thoughts: "let me add",
			Action:   ActionToolCall,
			ActionInput: ActionInput{
				Tool:   "add",
				Params: map[string]interface{}{"a": float64(2), "b": float64(3)},
			},
		},
		ToolCall: &ToolCallRequest{
			Tool:   "add",
			Params: map[string]interface{}{"a": float64(2), "b": float64(3)},
			TurnID: "dedupe-hash",
		},
		ToolResult: &ToolExecutionResult{
			Success:       true,
			Output:        float64(5),
			Tool:          "add",
			TurnID:        "dedupe-hash",
			ExecutionTime: 3 * time.Millisecond,
			CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, st.AppendTurn(turn0))

	turn1 := AgentTurn{
		Index:  1,
		TurnID: "turn-1",
		LLMMessage: &ModelMessage{
			Action:      ActionFinish,
			ActionInput: ActionInput{Final: "5"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, st.AppendTurn(turn1))
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	st := newTestState(t)
	require.NoError(t, store.Save(ctx, st.AgentID, st))

	loaded, err := store.Load(ctx, st.AgentID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, st.AgentID, loaded.AgentID)
	assert.Equal(t, st.Goal, loaded.Goal)
	require.Len(t, loaded.Turns, 2)
	assert.Equal(t, "dedupe-hash", loaded.Turns[0].ToolResult.TurnID)
	assert.Equal(t, ActionFinish, loaded.Turns[1].LLMMessage.Action)
	assert.Equal(t, "test", loaded.Metadata["origin"])
}

func TestFileStoreLoadUnknownReturnsNil(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreCorruptContentReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jsonl"), []byte("not json\n"), 0o644))

	loaded, err := store.Load(context.Background(), "broken")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreCorruptTurnReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	content := `{"agent_id":"x","goal":"g","turn_count":1}` + "\n" + `{"index":` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.jsonl"), []byte(content), 0o644))

	loaded, err := store.Load(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	st := newTestState(t)
	require.NoError(t, store.Save(ctx, st.AgentID, st))

	require.NoError(t, st.AppendTurn(AgentTurn{Index: 2, TurnID: "turn-2", CreatedAt: time.Now()}))
	require.NoError(t, store.Save(ctx, st.AgentID, st))

	loaded, err := store.Load(ctx, st.AgentID)
	require.NoError(t, err)
	require.Len(t, loaded.Turns, 3)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	st := newTestState(t)
	require.NoError(t, store.Save(ctx, st.AgentID, st))
	require.NoError(t, store.Delete(ctx, st.AgentID))

	loaded, err := store.Load(ctx, st.AgentID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is fine.
	assert.NoError(t, store.Delete(ctx, st.AgentID))
}

func TestFileStorePathHostileAgentIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	st := NewAgentState("team/alpha:1", "goal")
	require.NoError(t, store.Save(ctx, st.AgentID, st))

	loaded, err := store.Load(ctx, st.AgentID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "team/alpha:1", loaded.AgentID)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	st := newTestState(t)
	require.NoError(t, store.Save(ctx, st.AgentID, st))

	loaded, err := store.Load(ctx, st.AgentID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Turns, 2)

	// Mutating the loaded copy must not affect the stored bytes.
	loaded.Goal = "changed"
	again, err := store.Load(ctx, st.AgentID)
	require.NoError(t, err)
	assert.Equal(t, "compute things", again.Goal)

	require.NoError(t, store.Delete(ctx, st.AgentID))
	gone, err := store.Load(ctx, st.AgentID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
