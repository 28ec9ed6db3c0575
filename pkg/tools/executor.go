package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/conductor/pkg/events"
	"github.com/kadirpekel/conductor/pkg/state"
)

// Executor validates and runs tool calls on behalf of the engine, enforcing
// the per-call deadline and classifying every outcome as a structured
// execution result.
//
// Recoverable failures (validation, timeout, tool errors) come back as
// failed results so the model can react to them. Only two conditions return
// an error instead: an unknown tool name, and caller cancellation; the
// latter is re-raised so the run stops at the turn boundary rather than
// being recorded as a tool failure.
type Executor struct {
	registry *ToolRegistry
	timeout  time.Duration
	bus      *events.Bus
}

// NewExecutor creates an executor over the registry. A zero timeout means
// no per-call deadline.
func NewExecutor(registry *ToolRegistry, timeout time.Duration, bus *events.Bus) *Executor {
	return &Executor{
		registry: registry,
		timeout:  timeout,
		bus:      bus,
	}
}

type execOutcome struct {
	result ToolResult
	err    error
}

// Execute runs one tool call. The returned result is non-nil for every
// classified outcome; the error return is reserved for unknown tools and
// cancellation.
func (e *Executor) Execute(ctx context.Context, agentID string, turnIndex int, call state.ToolCallRequest) (*state.ToolExecutionResult, error) {
	started := time.Now()

	e.bus.Emit(events.Event{
		Type:      events.ToolCallStarted,
		AgentID:   agentID,
		TurnIndex: turnIndex,
		Payload: events.ToolCallStartedPayload{
			Tool:     call.Tool,
			Params:   call.Params,
			DedupeID: call.TurnID,
		},
	})

	result, err := e.execute(ctx, call, started)

	e.bus.Emit(events.Event{
		Type:      events.ToolCallCompleted,
		AgentID:   agentID,
		TurnIndex: turnIndex,
		Payload: events.ToolCallCompletedPayload{
			Tool:     call.Tool,
			DedupeID: call.TurnID,
			Success:  result != nil && result.Success,
			Duration: time.Since(started),
		},
	})

	return result, err
}

func (e *Executor) execute(ctx context.Context, call state.ToolCallRequest, started time.Time) (*state.ToolExecutionResult, error) {
	info, err := e.registry.GetToolInfo(call.Tool)
	if err != nil {
		return nil, err
	}

	if verr := ValidateArgs(info, call.Params); verr != nil {
		return e.failure(call, started, &state.FailureDetail{
			Type:    state.FailureValidation,
			Missing: verr.Missing,
			Errors:  verr.FieldErrors,
			Message: verr.Error(),
		}), nil
	}

	execCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	// Run in a goroutine so the deadline holds even for tools that ignore
	// their context.
	done := make(chan execOutcome, 1)
	go func() {
		result, execErr := e.registry.ExecuteTool(execCtx, call.Tool, call.Params)
		done <- execOutcome{result: result, err: execErr}
	}()

	var out execOutcome
	select {
	case out = <-done:
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.failure(call, started, &state.FailureDetail{
			Type:    state.FailureTimeout,
			Message: fmt.Sprintf("tool %s exceeded deadline of %s", call.Tool, e.timeout),
		}), nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if out.err != nil || !out.result.Success {
		msg := out.result.Error
		if out.err != nil {
			msg = out.err.Error()
		}
		return e.failure(call, started, &state.FailureDetail{
			Type:    state.FailureToolError,
			Message: msg,
		}), nil
	}

	output := out.result.Output
	if output == nil {
		output = out.result.Content
	}

	return &state.ToolExecutionResult{
		Success:       true,
		Output:        output,
		Tool:          call.Tool,
		Params:        call.Params,
		TurnID:        call.TurnID,
		ExecutionTime: time.Since(started),
		CreatedAt:     time.Now(),
	}, nil
}

func (e *Executor) failure(call state.ToolCallRequest, started time.Time, detail *state.FailureDetail) *state.ToolExecutionResult {
	return &state.ToolExecutionResult{
		Success:       false,
		Output:        detail,
		Error:         detail.Message,
		Tool:          call.Tool,
		Params:        call.Params,
		TurnID:        call.TurnID,
		ExecutionTime: time.Since(started),
		CreatedAt:     time.Now(),
	}
}
