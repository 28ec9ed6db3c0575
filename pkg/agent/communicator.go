package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/events"
	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/observability"
	"github.com/kadirpekel/conductor/pkg/state"
)

// ParseError reports a model reply that could not be decoded into a
// decision. It is recoverable: the orchestrator appends a failure turn and
// asks again on the next step.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model reply is not a valid decision: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Communicator wraps an LLM provider with the engine's calling discipline:
// a per-call deadline, exactly one started/completed event pair per call,
// chunk cleanup for subscribers, and decoding into model decisions.
type Communicator struct {
	llm llms.LLM
	cfg config.LLMConfig
	bus *events.Bus

	timeout time.Duration
	agentID string
}

// NewCommunicator creates a communicator bound to one agent's event scope.
func NewCommunicator(llm llms.LLM, cfg config.LLMConfig, timeout time.Duration, bus *events.Bus, agentID string) *Communicator {
	return &Communicator{
		llm:     llm,
		cfg:     cfg,
		bus:     bus,
		timeout: timeout,
		agentID: agentID,
	}
}

// SupportsFunctionCalling reports the underlying provider capability.
func (c *Communicator) SupportsFunctionCalling() bool {
	return c.llm.SupportsFunctionCalling()
}

// Call issues one plain prompt and returns the aggregated text. This is the
// reasoning engines' entry point.
func (c *Communicator) Call(ctx context.Context, messages []llms.Message) (string, error) {
	resp, err := c.call(ctx, 0, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CallWithFunctions issues one prompt with declared function schemas.
func (c *Communicator) CallWithFunctions(ctx context.Context, turnIndex int, messages []llms.Message, functions []llms.FunctionDefinition) (*llms.Response, error) {
	return c.call(ctx, turnIndex, messages, functions)
}

// CallAndParse issues one prompt and decodes the Re/Act JSON decision.
// A malformed reply yields a *ParseError.
func (c *Communicator) CallAndParse(ctx context.Context, turnIndex int, messages []llms.Message) (*state.ModelMessage, error) {
	resp, err := c.call(ctx, turnIndex, messages, nil)
	if err != nil {
		return nil, err
	}
	return ParseModelMessage(resp.Text)
}

// call runs one provider call under the deadline, emitting exactly one
// started/completed pair and re-emitting cleaned chunks along the way.
func (c *Communicator) call(ctx context.Context, turnIndex int, messages []llms.Message, functions []llms.FunctionDefinition) (*llms.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	c.bus.Emit(events.Event{
		Type:      events.LLMCallStarted,
		AgentID:   c.agentID,
		TurnIndex: turnIndex,
		Payload: events.LLMCallStartedPayload{
			Model:        c.cfg.Model,
			MessageCount: len(messages),
			Functions:    len(functions),
		},
	})

	resp, err := c.stream(ctx, turnIndex, messages, functions)

	completed := events.LLMCallCompletedPayload{Duration: time.Since(started)}
	if err != nil {
		completed.Error = err.Error()
	}
	if resp != nil && resp.Usage != nil {
		completed.Tokens = resp.Usage.TotalTokens
	}
	c.bus.Emit(events.Event{
		Type:      events.LLMCallCompleted,
		AgentID:   c.agentID,
		TurnIndex: turnIndex,
		Payload:   completed,
	})

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		in, out := 0, 0
		if resp != nil && resp.Usage != nil {
			in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		}
		metrics.RecordLLMCall(ctx, c.cfg.Model, time.Since(started), in, out, err)
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("llm call exceeded deadline of %s: %w", c.timeout, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Communicator) stream(ctx context.Context, turnIndex int, messages []llms.Message, functions []llms.FunctionDefinition) (*llms.Response, error) {
	req := llms.Request{
		Model:       c.cfg.Model,
		Messages:    messages,
		Functions:   functions,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      c.cfg.Streaming == nil || *c.cfg.Streaming,
	}

	ch, err := c.llm.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	filter := NewChunkFilter()
	return llms.Aggregate(ch, func(chunk llms.StreamChunk) {
		if chunk.Content == "" {
			return
		}
		if cleaned := filter.Feed(chunk.Content); cleaned != "" {
			c.bus.Emit(events.Event{
				Type:      events.LLMChunkReceived,
				AgentID:   c.agentID,
				TurnIndex: turnIndex,
				Payload:   events.LLMChunkPayload{Content: cleaned},
			})
		}
	})
}

// ParseModelMessage decodes a Re/Act JSON reply, tolerating code fences and
// prose around the object.
func ParseModelMessage(raw string) (*state.ModelMessage, error) {
	cleaned := extractJSONObject(raw)
	if cleaned == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("no JSON object found")}
	}

	var msg state.ModelMessage
	if err := json.Unmarshal([]byte(cleaned), &msg); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	switch msg.Action {
	case state.ActionPlan, state.ActionToolCall, state.ActionFinish, state.ActionRetry:
	case "":
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("missing action")}
	default:
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("unknown action %q", msg.Action)}
	}

	if msg.Action == state.ActionToolCall && msg.ActionInput.Tool == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("tool_call without a tool name")}
	}

	return &msg, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
