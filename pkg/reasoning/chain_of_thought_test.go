package reasoning

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/state"
)

// scriptedCaller replays canned replies in order.
type scriptedCaller struct {
	replies []string
	calls   int
}

func (c *scriptedCaller) Call(_ context.Context, _ []llms.Message) (string, error) {
	if c.calls >= len(c.replies) {
		return "", fmt.Errorf("no reply scripted for call %d", c.calls+1)
	}
	reply := c.replies[c.calls]
	c.calls++
	return reply, nil
}

func stageReply(reasoning string, confidence float64) string {
	return fmt.Sprintf(`{"reasoning": %q, "confidence": %v, "insights": ["i"]}`, reasoning, confidence)
}

func TestChainOfThoughtPipeline(t *testing.T) {
	caller := &scriptedCaller{replies: []string{
		stageReply("the goal needs X", 0.8),
		stageReply("do A then B", 0.7),
		stageReply("commit to A-first", 0.9),
		`{"reasoning": "A-first works", "confidence": 0.6, "conclusion": "use A-first"}`,
	}}

	engine := NewChainOfThoughtEngine(caller, 4, false, 0.5)
	result, err := engine.Reason(context.Background(), "solve it", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "use A-first", result.Conclusion)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)

	require.NotNil(t, result.Chain)
	require.Len(t, result.Chain.Steps, 4)
	assert.Equal(t, state.StepAnalysis, result.Chain.Steps[0].StepType)
	assert.Equal(t, state.StepEvaluation, result.Chain.Steps[3].StepType)
	assert.NotNil(t, result.Chain.CompletedAt)
	assert.Equal(t, 4, caller.calls)
}

func TestChainOfThoughtValidationPasses(t *testing.T) {
	caller := &scriptedCaller{replies: []string{
		stageReply("a", 0.9),
		stageReply("b", 0.9),
		stageReply("c", 0.9),
		`{"reasoning": "d", "confidence": 0.9, "conclusion": "done"}`,
		`{"valid": true, "reasoning": "chain is sound"}`,
	}}

	engine := NewChainOfThoughtEngine(caller, 4, true, 0.5)
	result, err := engine.Reason(context.Background(), "goal", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 5, caller.calls)
}

func TestChainOfThoughtValidationFailureBelowFloor(t *testing.T) {
	// Invalid chain with low confidence is a reasoning failure; the chain
	// artifact is still returned for the audit trail.
	caller := &scriptedCaller{replies: []string{
		stageReply("a", 0.2),
		stageReply("b", 0.3),
		stageReply("c", 0.2),
		`{"reasoning": "d", "confidence": 0.3, "conclusion": "shaky"}`,
		`{"valid": false, "reasoning": "does not follow"}`,
	}}

	engine := NewChainOfThoughtEngine(caller, 4, true, 0.5)
	result, err := engine.Reason(context.Background(), "goal", "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "shaky", result.Conclusion)
	assert.NotNil(t, result.Chain)
}

func TestChainOfThoughtValidationFailureHighConfidenceSurvives(t *testing.T) {
	caller := &scriptedCaller{replies: []string{
		stageReply("a", 0.9),
		stageReply("b", 0.9),
		stageReply("c", 0.9),
		`{"reasoning": "d", "confidence": 0.9, "conclusion": "solid"}`,
		`{"valid": false, "reasoning": "nitpick"}`,
	}}

	engine := NewChainOfThoughtEngine(caller, 4, true, 0.5)
	result, err := engine.Reason(context.Background(), "goal", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestChainOfThoughtToleratesFencedJSON(t *testing.T) {
	caller := &scriptedCaller{replies: []string{
		"```json\n" + stageReply("a", 0.8) + "\n```",
		stageReply("b", 0.8),
		stageReply("c", 0.8),
		`{"reasoning": "d", "confidence": 0.8, "conclusion": "ok"}`,
	}}

	engine := NewChainOfThoughtEngine(caller, 4, false, 0.5)
	result, err := engine.Reason(context.Background(), "goal", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestChainOfThoughtStageError(t *testing.T) {
	caller := &scriptedCaller{replies: []string{"not json at all"}}

	engine := NewChainOfThoughtEngine(caller, 4, false, 0.5)
	_, err := engine.Reason(context.Background(), "goal", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis stage")
}
