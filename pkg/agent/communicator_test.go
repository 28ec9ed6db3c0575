package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/events"
	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/state"
)

type eventLog struct {
	events []events.Event
}

func (l *eventLog) record(e events.Event) {
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestCommunicator(provider llms.LLM) (*Communicator, *eventLog) {
	bus := events.NewBus()
	log := &eventLog{}
	bus.SubscribeAll(log.record)
	cfg := config.LLMConfig{Model: "test-model"}
	return NewCommunicator(provider, cfg, 5*time.Second, bus, "agent-1"), log
}

func TestCommunicatorCallReturnsText(t *testing.T) {
	provider := llms.NewScriptedProvider("scripted", llms.ScriptedResponse{Text: "plain answer"})
	comm, log := newTestCommunicator(provider)

	text, err := comm.Call(context.Background(), []llms.Message{{Role: llms.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", text)

	assert.Len(t, log.ofType(events.LLMCallStarted), 1)
	completed := log.ofType(events.LLMCallCompleted)
	require.Len(t, completed, 1)
	assert.Empty(t, completed[0].Payload.(events.LLMCallCompletedPayload).Error)
}

func TestCommunicatorCallAndParseDecodesDecision(t *testing.T) {
	provider := llms.NewScriptedProvider("scripted", llms.ScriptedResponse{
		Text: "```json\n{\"thoughts\": \"wrapping up\", \"action\": \"finish\", \"action_input\": {\"final\": \"42\"}}\n```",
	})
	comm, _ := newTestCommunicator(provider)

	msg, err := comm.CallAndParse(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, state.ActionFinish, msg.Action)
	assert.Equal(t, "42", msg.ActionInput.Final)
}

func TestCommunicatorParseErrorIsTyped(t *testing.T) {
	provider := llms.NewScriptedProvider("scripted",
		llms.ScriptedResponse{Text: "no json here"},
		llms.ScriptedResponse{Text: `{"action": "tool_call", "action_input": {}}`},
		llms.ScriptedResponse{Text: `{"action": "teleport"}`},
	)
	comm, log := newTestCommunicator(provider)

	for i := 0; i < 3; i++ {
		_, err := comm.CallAndParse(context.Background(), i, nil)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
	}

	// The provider calls themselves succeeded; one clean pair each.
	assert.Len(t, log.ofType(events.LLMCallStarted), 3)
	for _, e := range log.ofType(events.LLMCallCompleted) {
		assert.Empty(t, e.Payload.(events.LLMCallCompletedPayload).Error)
	}
}

func TestCommunicatorProviderErrorCompletesPair(t *testing.T) {
	provider := llms.NewScriptedProvider("scripted",
		llms.ScriptedResponse{Err: errors.New("upstream unavailable")})
	comm, log := newTestCommunicator(provider)

	_, err := comm.Call(context.Background(), nil)
	require.Error(t, err)

	completed := log.ofType(events.LLMCallCompleted)
	require.Len(t, completed, 1)
	assert.Contains(t, completed[0].Payload.(events.LLMCallCompletedPayload).Error, "upstream unavailable")
}

func TestCommunicatorEmitsCleanedChunks(t *testing.T) {
	provider := llms.NewScriptedProvider("scripted", llms.ScriptedResponse{
		Chunks: []string{`{"thoughts": "inspec`, `ting the data", "action": "plan", `, `"action_input": {"summary": "look"}}`},
	})
	comm, log := newTestCommunicator(provider)

	msg, err := comm.CallAndParse(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, state.ActionPlan, msg.Action)

	var streamed strings.Builder
	for _, e := range log.ofType(events.LLMChunkReceived) {
		streamed.WriteString(e.Payload.(events.LLMChunkPayload).Content)
	}
	assert.Equal(t, "inspecting the data", streamed.String())
}

func TestCommunicatorDeadline(t *testing.T) {
	provider := &stallingProvider{}
	bus := events.NewBus()
	comm := NewCommunicator(provider, config.LLMConfig{Model: "m"}, 20*time.Millisecond, bus, "agent-1")

	_, err := comm.Call(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline")
}

// stallingProvider never produces a chunk until the context dies.
type stallingProvider struct{}

func (p *stallingProvider) Name() string                  { return "stalling" }
func (p *stallingProvider) SupportsFunctionCalling() bool { return false }

func (p *stallingProvider) Stream(ctx context.Context, _ llms.Request) (<-chan llms.StreamChunk, error) {
	out := make(chan llms.StreamChunk)
	go func() {
		defer close(out)
		<-ctx.Done()
		out <- llms.StreamChunk{Err: ctx.Err(), IsFinal: true}
	}()
	return out, nil
}
