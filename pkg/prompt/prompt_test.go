package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/state"
	"github.com/kadirpekel/conductor/pkg/tools"
)

func testCatalog() []tools.ToolInfo {
	return []tools.ToolInfo{
		{
			Name:        "search",
			Description: "Search the corpus",
			Parameters: []tools.ToolParameter{
				{Name: "query", Type: "string", Required: true},
			},
		},
		{
			Name:        "fetch",
			Description: "Fetch a document",
			Parameters: []tools.ToolParameter{
				{Name: "query", Type: "string", Required: true},
			},
		},
	}
}

func stateWithTurns(t *testing.T, n int) *state.AgentState {
	t.Helper()
	st := state.NewAgentState("a1", "summarize the report")
	for i := 0; i < n; i++ {
		require.NoError(t, st.AppendTurn(state.AgentTurn{
			Index:  i,
			TurnID: fmt.Sprintf("turn-%d", i),
			LLMMessage: &state.ModelMessage{
				Action:      state.ActionToolCall,
				ActionInput: state.ActionInput{Tool: "search", Params: map[string]interface{}{"query": fmt.Sprintf("q%d", i)}},
			},
			ToolResult: &state.ToolExecutionResult{
				Success: true,
				Tool:    "search",
				TurnID:  fmt.Sprintf("hash-%d", i),
				Output:  fmt.Sprintf("result %d", i),
			},
		}))
	}
	return st
}

func TestBuildShape(t *testing.T) {
	b := NewBuilder(Options{MaxRecentTurns: 5})
	messages := b.Build(stateWithTurns(t, 2), testCatalog())

	require.Len(t, messages, 2)
	assert.Equal(t, llms.RoleSystem, messages[0].Role)
	assert.Equal(t, llms.RoleUser, messages[1].Role)

	assert.Contains(t, messages[0].Content, "AVAILABLE TOOLS")
	assert.Contains(t, messages[0].Content, "search")
	assert.Contains(t, messages[1].Content, "GOAL: summarize the report")
	assert.Contains(t, messages[1].Content, "HISTORY")
}

func TestStatusContractOptional(t *testing.T) {
	st := stateWithTurns(t, 0)

	withStatus := NewBuilder(Options{EmitPublicStatus: true}).Build(st, nil)
	assert.Contains(t, withStatus[0].Content, "status_title")
	assert.Contains(t, withStatus[0].Content, "progress_pct")

	without := NewBuilder(Options{}).Build(st, nil)
	assert.NotContains(t, without[0].Content, "status_title")
}

func TestSeedMessagesPartitioned(t *testing.T) {
	st := stateWithTurns(t, 0)
	st.AdditionalMessages = []state.SeedMessage{
		{Role: "user", Content: "prefer bullet points"},
		{Role: "system", Content: "you speak like a pirate"},
		{Role: "assistant", Content: "noted"},
	}

	messages := NewBuilder(Options{}).Build(st, nil)
	require.Len(t, messages, 5)
	assert.Equal(t, llms.RoleSystem, messages[1].Role)
	assert.Equal(t, "you speak like a pirate", messages[1].Content)
	assert.Equal(t, llms.RoleAssistant, messages[2].Role)
	assert.Equal(t, llms.RoleUser, messages[3].Role)
	assert.Equal(t, "prefer bullet points", messages[3].Content)
}

func TestRecentTurnsFullOlderSummarized(t *testing.T) {
	b := NewBuilder(Options{SummarizeHistory: true, MaxRecentTurns: 2})
	messages := b.Build(stateWithTurns(t, 5), testCatalog())
	history := messages[len(messages)-1].Content

	// Old turns appear only as one-liners.
	assert.Contains(t, history, "turn 0: search succeeded")
	assert.NotContains(t, history, `"turn_id":"hash-0"`)

	// Recent turns carry full JSON.
	assert.Contains(t, history, `"turn_id":"hash-4"`)
	assert.Contains(t, history, `"turn_id":"hash-3"`)
}

func TestSummarizationDisabledRendersAllTurnsFull(t *testing.T) {
	b := NewBuilder(Options{SummarizeHistory: false, MaxRecentTurns: 2})
	history := b.Build(stateWithTurns(t, 5), testCatalog())[1].Content

	for i := 0; i < 5; i++ {
		assert.Contains(t, history, fmt.Sprintf(`"turn_id":"hash-%d"`, i))
	}
	assert.NotContains(t, history, "turn 0: search succeeded")
}

func TestTokenBudgetShrinksFullWindow(t *testing.T) {
	st := state.NewAgentState("a1", "goal")
	filler := strings.Repeat("data ", 400)
	for i := 0; i < 4; i++ {
		require.NoError(t, st.AppendTurn(state.AgentTurn{
			Index:  i,
			TurnID: fmt.Sprintf("turn-%d", i),
			ToolResult: &state.ToolExecutionResult{
				Success: true,
				Tool:    "fetch",
				TurnID:  fmt.Sprintf("hash-%d", i),
				Output:  filler,
			},
		}))
	}

	roomy := NewBuilder(Options{SummarizeHistory: true, MaxRecentTurns: 4, MaxContextTokens: 1 << 20})
	history := roomy.Build(st, nil)[1].Content
	assert.Equal(t, 4, strings.Count(history, `"index":`))

	// A budget far below the rendered size forces the window down to one
	// full turn, the rest summarized.
	tight := NewBuilder(Options{SummarizeHistory: true, MaxRecentTurns: 4, MaxContextTokens: 50})
	history = tight.Build(st, nil)[1].Content
	assert.Equal(t, 1, strings.Count(history, `"index":`))
	assert.Contains(t, history, "turn 0: fetch succeeded")
}

func TestOneLineKeepsRuneBoundary(t *testing.T) {
	s := oneLine("héllo wörld", 9) // cut lands inside ö's two bytes
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, "héllo w…", s)
}

func TestLargeOutputTruncated(t *testing.T) {
	st := state.NewAgentState("a1", "goal")
	big := strings.Repeat("x", 500)
	require.NoError(t, st.AppendTurn(state.AgentTurn{
		Index:  0,
		TurnID: "t0",
		ToolResult: &state.ToolExecutionResult{
			Success: true,
			Tool:    "fetch",
			TurnID:  "hash",
			Output:  big,
		},
	}))

	b := NewBuilder(Options{MaxRecentTurns: 5, MaxToolOutputSize: 100})
	history := b.Build(st, nil)[1].Content

	assert.Contains(t, history, `"truncated":true`)
	assert.Contains(t, history, `"original_size":502`)
	assert.NotContains(t, history, big)
}

func TestTruncateOutputPassThrough(t *testing.T) {
	small := map[string]interface{}{"ok": true}
	assert.Equal(t, small, TruncateOutput(small, 1024))
}

func TestCentralizedSchemasEmittedOnce(t *testing.T) {
	b := NewBuilder(Options{UseCentralizedSchemas: true})
	system := b.Build(stateWithTurns(t, 0), testCatalog())[0].Content

	// Both tools share one parameter schema; it must appear once.
	assert.Contains(t, system, "SCHEMAS:")
	assert.Contains(t, system, "(schema: s1)")
	assert.Equal(t, 1, strings.Count(system, `s1: {`))
}

func TestFunctionDefinitionsSorted(t *testing.T) {
	defs := FunctionDefinitions(testCatalog())
	require.Len(t, defs, 2)
	assert.Equal(t, "fetch", defs[0].Name)
	assert.Equal(t, "search", defs[1].Name)

	// Parameters must be valid JSON Schema objects.
	raw, err := json.Marshal(defs[1].Parameters)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"required":["query"]`)
}

func TestTokenCounterApproximation(t *testing.T) {
	c := &TokenCounter{}
	assert.Equal(t, 3, c.CountText("twelve chars"))

	total := c.CountMessages([]llms.Message{
		{Role: llms.RoleSystem, Content: "abcd"},
		{Role: llms.RoleUser, Content: "efgh"},
	})
	assert.Equal(t, 2*(messageOverhead+1), total)
}
