// Package agent hosts the engine's control plane: the communicator that
// disciplines LLM calls and the orchestrator that drives the turn loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/dedupe"
	"github.com/kadirpekel/conductor/pkg/events"
	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/loopdetect"
	"github.com/kadirpekel/conductor/pkg/observability"
	"github.com/kadirpekel/conductor/pkg/prompt"
	"github.com/kadirpekel/conductor/pkg/reasoning"
	"github.com/kadirpekel/conductor/pkg/state"
	"github.com/kadirpekel/conductor/pkg/tools"
)

// Run outcome classifiers.
const (
	ErrTypeMaxTurns  = "max_turns_exceeded"
	ErrTypeCancelled = "cancelled"
	ErrTypeSave      = "save_failed"
	ErrTypeLoad      = "load_failed"
)

// RunResult is the terminal outcome of one agent run.
type RunResult struct {
	Succeeded   bool
	FinalOutput string
	Error       string
	ErrorType   string
	TotalTurns  int
	Duration    time.Duration
}

// Orchestrator drives one agent's turn loop. It is the sole writer of the
// agent's state; every collaborator reads from it or receives copies.
type Orchestrator struct {
	agentID  string
	cfg      *config.Config
	store    state.Store
	registry *tools.ToolRegistry
	executor *tools.Executor
	dedupe   *dedupe.Deduplicator
	detector *loopdetect.Detector
	bus      *events.Bus
	comm     *Communicator
	builder  *prompt.Builder
	engine   reasoning.Engine
}

// NewOrchestrator wires an orchestrator for one agent. The detector and bus
// may be shared across agents; everything else is per-agent.
func NewOrchestrator(agentID string, cfg *config.Config, llm llms.LLM, registry *tools.ToolRegistry, store state.Store, detector *loopdetect.Detector, bus *events.Bus) (*Orchestrator, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id cannot be empty")
	}

	comm := NewCommunicator(llm, cfg.LLM, cfg.LLMTimeout, bus, agentID)

	engine, err := reasoning.NewEngine(cfg.Reasoning, comm)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		agentID:  agentID,
		cfg:      cfg,
		store:    store,
		registry: registry,
		executor: tools.NewExecutor(registry, cfg.ToolTimeout, bus),
		dedupe:   dedupe.New(cfg.DedupeStalenessThreshold),
		detector: detector,
		bus:      bus,
		comm:     comm,
		builder: prompt.NewBuilder(prompt.Options{
			UseFunctionCalling:    cfg.UseFunctionCalling,
			EmitPublicStatus:      cfg.EmitPublicStatus,
			SummarizeHistory:      cfg.SummarizeHistory(),
			MaxRecentTurns:        cfg.MaxRecentTurns,
			MaxToolOutputSize:     cfg.MaxToolOutputSize,
			UseCentralizedSchemas: cfg.UseCentralizedSchemas,
			Model:                 cfg.LLM.Model,
			MaxContextTokens:      cfg.MaxContextTokens,
		}),
		engine: engine,
	}, nil
}

// Run executes the agent toward the goal until it finishes, the step budget
// runs out, or a fatal error occurs. State is persisted after every step.
// The returned error is non-nil only for cancellation and fatal store
// failures; domain outcomes are reported through the result.
func (o *Orchestrator) Run(ctx context.Context, goal string, seeds []state.SeedMessage) (*RunResult, error) {
	started := time.Now()

	st, err := o.store.Load(ctx, o.agentID)
	if err != nil {
		return o.fail(ctx, nil, started, ErrTypeLoad, err), err
	}
	if st == nil {
		st = state.NewAgentState(o.agentID, goal)
		st.AdditionalMessages = seeds
	}

	o.bus.Emit(events.Event{
		Type:    events.RunStarted,
		AgentID: o.agentID,
		Payload: events.RunStartedPayload{Goal: st.Goal},
	})

	if o.engine != nil && len(st.Turns) == 0 {
		o.deliberate(ctx, st)
		if err := o.persist(ctx, st); err != nil {
			return o.fail(ctx, st, started, ErrTypeSave, err), err
		}
	}

	for step := 0; ; step++ {
		// Turn boundary: cancellation is honored here and re-raised from
		// in-flight LLM and tool calls.
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, st, started, ErrTypeCancelled, err), err
		}
		if step >= o.cfg.MaxTurns {
			result := o.fail(ctx, st, started, ErrTypeMaxTurns,
				fmt.Errorf("no finish after %d turns", o.cfg.MaxTurns))
			return result, nil
		}

		turnIndex := st.NextIndex()
		o.bus.Emit(events.Event{
			Type:      events.StepStarted,
			AgentID:   o.agentID,
			TurnIndex: turnIndex,
			Payload:   events.StepStartedPayload{TurnIndex: turnIndex},
		})

		outcome, err := o.step(ctx, st)
		if err != nil {
			errType := ErrTypeCancelled
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				errType = "fatal"
			}
			return o.fail(ctx, st, started, errType, err), err
		}

		if err := o.persist(ctx, st); err != nil {
			return o.fail(ctx, st, started, ErrTypeSave, err), err
		}

		o.bus.Emit(events.Event{
			Type:      events.StepCompleted,
			AgentID:   o.agentID,
			TurnIndex: turnIndex,
			Payload: events.StepCompletedPayload{
				TurnIndex:    turnIndex,
				ExecutedTool: outcome.executedTool,
				Continue:     !outcome.done,
			},
		})

		if outcome.done {
			return o.succeed(ctx, st, started, outcome.final), nil
		}
	}
}

type stepOutcome struct {
	done         bool
	final        string
	executedTool bool
}

// step runs one decision round: build the prompt, obtain a decision over
// the function-calling or Re/Act path, and apply it.
func (o *Orchestrator) step(ctx context.Context, st *state.AgentState) (stepOutcome, error) {
	catalog := o.registry.ListTools()
	messages := o.builder.Build(st, catalog)
	turnIndex := st.NextIndex()

	if o.cfg.UseFunctionCalling && o.comm.SupportsFunctionCalling() && len(catalog) > 0 {
		resp, err := o.comm.CallWithFunctions(ctx, turnIndex, messages, prompt.FunctionDefinitions(catalog))
		if err != nil {
			return o.llmFailure(ctx, st, err)
		}
		if resp.HasFunctionCall() {
			msg, err := NormalizeFunctionCall(resp.FunctionCall, resp.Text)
			if err != nil {
				return o.recordInvalidReply(st, fmt.Sprintf("tool call could not be decoded: %v; reply again following the contract", err))
			}
			return o.processToolCall(ctx, st, msg)
		}
		msg, err := ParseModelMessage(resp.Text)
		if err != nil {
			return o.recordInvalidReply(st, "reply was not a valid decision JSON object; reply again following the contract")
		}
		return o.applyDecision(ctx, st, msg)
	}

	msg, err := o.comm.CallAndParse(ctx, turnIndex, messages)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return o.recordInvalidReply(st, "reply was not a valid decision JSON object; reply again following the contract")
		}
		return o.llmFailure(ctx, st, err)
	}
	return o.applyDecision(ctx, st, msg)
}

// llmFailure distinguishes a cancelled call (fatal, re-raised) from a
// timed-out or errored one (recoverable failure turn).
func (o *Orchestrator) llmFailure(ctx context.Context, st *state.AgentState, err error) (stepOutcome, error) {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return stepOutcome{}, err
	}
	slog.Warn("LLM call failed, continuing", "agent_id", o.agentID, "error", err)
	if err := o.appendLLMFailure(st, fmt.Sprintf("model call failed: %v", err)); err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{}, nil
}

// recordInvalidReply handles a reply the engine could not turn into a
// decision: a failure turn is appended and subscribers are told.
func (o *Orchestrator) recordInvalidReply(st *state.AgentState, message string) (stepOutcome, error) {
	if err := o.appendLLMFailure(st, message); err != nil {
		return stepOutcome{}, err
	}
	o.bus.Emit(events.Event{
		Type:      events.StatusUpdate,
		AgentID:   o.agentID,
		TurnIndex: st.NextIndex() - 1,
		Payload: events.StatusUpdatePayload{
			Title:   "Invalid model output",
			Details: truncate(message, 160),
		},
	})
	return stepOutcome{}, nil
}

// appendLLMFailure records a failed or undecodable model call as a
// success=false result turn. The turn carries no llm_message: there is no
// decision to attribute, only the miss the model sees in its history.
func (o *Orchestrator) appendLLMFailure(st *state.AgentState, message string) error {
	turnID := uuid.NewString()
	return st.AppendTurn(state.AgentTurn{
		Index:  st.NextIndex(),
		TurnID: turnID,
		ToolResult: &state.ToolExecutionResult{
			Success:   false,
			Error:     message,
			TurnID:    turnID,
			CreatedAt: time.Now(),
		},
		Synthetic: true,
	})
}

func (o *Orchestrator) applyDecision(ctx context.Context, st *state.AgentState, msg *state.ModelMessage) (stepOutcome, error) {
	o.emitStatus(st.NextIndex(), msg)

	switch msg.Action {
	case state.ActionPlan, state.ActionRetry:
		err := st.AppendTurn(state.AgentTurn{
			Index:      st.NextIndex(),
			TurnID:     uuid.NewString(),
			LLMMessage: msg,
		})
		return stepOutcome{}, err

	case state.ActionFinish:
		err := st.AppendTurn(state.AgentTurn{
			Index:      st.NextIndex(),
			TurnID:     uuid.NewString(),
			LLMMessage: msg,
		})
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{done: true, final: msg.ActionInput.Final}, nil

	case state.ActionToolCall:
		return o.processToolCall(ctx, st, msg)

	default:
		return stepOutcome{}, fmt.Errorf("unreachable action %q", msg.Action)
	}
}

func (o *Orchestrator) processToolCall(ctx context.Context, st *state.AgentState, msg *state.ModelMessage) (stepOutcome, error) {
	tool := msg.ActionInput.Tool
	params := msg.ActionInput.Params

	dedupeID, err := o.dedupe.Key(tool, params)
	if err != nil {
		return o.recordInvalidReply(st, fmt.Sprintf("tool parameters could not be processed: %v; use plain JSON values", err))
	}

	if info, infoErr := o.registry.GetToolInfo(tool); infoErr == nil {
		if hit := o.dedupe.Lookup(st, info, dedupeID, time.Now()); hit != nil {
			// A reused result is still a turn: same turn_id on the result,
			// no execution behind it.
			cached := *hit
			turn := state.AgentTurn{
				Index:      st.NextIndex(),
				TurnID:     uuid.NewString(),
				LLMMessage: msg,
				ToolCall:   &state.ToolCallRequest{Tool: tool, Params: params, TurnID: dedupeID},
				ToolResult: &cached,
			}
			if err := st.AppendTurn(turn); err != nil {
				return stepOutcome{}, err
			}
			o.emitCachedToolCall(turn.Index, tool, params, dedupeID)
			return stepOutcome{executedTool: true}, nil
		}
	}

	turn := state.AgentTurn{
		Index:      st.NextIndex(),
		TurnID:     uuid.NewString(),
		LLMMessage: msg,
		ToolCall:   &state.ToolCallRequest{Tool: tool, Params: params, TurnID: dedupeID},
	}

	exec, execErr := o.executor.Execute(ctx, o.agentID, turn.Index, *turn.ToolCall)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded) {
			// Cancellation is not a tool failure; re-raise without
			// recording anything.
			return stepOutcome{}, execErr
		}
		// Unknown tool: recorded as a plain tool error so the model can
		// pick a real one.
		exec = &state.ToolExecutionResult{
			Success:   false,
			Output:    &state.FailureDetail{Type: state.FailureToolError, Message: execErr.Error()},
			Error:     execErr.Error(),
			Tool:      tool,
			Params:    params,
			TurnID:    dedupeID,
			CreatedAt: time.Now(),
		}
	}

	o.detector.RecordToolCall(o.agentID, tool, params, exec.Success)

	turn.ToolResult = exec
	if err := st.AppendTurn(turn); err != nil {
		return stepOutcome{}, err
	}

	if !exec.Success {
		if err := o.appendController(st, retryHint(exec)); err != nil {
			return stepOutcome{}, err
		}
		if o.detector.DetectRepeatedFailures(o.agentID, tool, params) {
			if err := o.appendController(st, "This exact call keeps failing. Stop repeating it; change the parameters or use a different tool."); err != nil {
				return stepOutcome{}, err
			}
		}
	}

	return stepOutcome{executedTool: true}, nil
}

// appendController records an engine-authored retry hint as a synthetic
// turn so it shows up in the model's history like any other turn.
func (o *Orchestrator) appendController(st *state.AgentState, summary string) error {
	return st.AppendTurn(state.AgentTurn{
		Index:  st.NextIndex(),
		TurnID: uuid.NewString(),
		LLMMessage: &state.ModelMessage{
			Action:      state.ActionRetry,
			ActionInput: state.ActionInput{Summary: summary},
		},
		Synthetic: true,
	})
}

// deliberate runs the configured reasoning engine before the first turn and
// seeds the plan from its conclusion. Reasoning failures are advisory.
func (o *Orchestrator) deliberate(ctx context.Context, st *state.AgentState) {
	result, err := o.engine.Reason(ctx, st.Goal, "")
	if err != nil {
		slog.Warn("Reasoning engine failed, continuing without a plan", "agent_id", o.agentID, "engine", o.engine.Name(), "error", err)
		return
	}

	st.ReasoningChain = result.Chain
	st.ReasoningTree = result.Tree

	if !result.Success || result.Conclusion == "" {
		return
	}

	if err := st.AppendTurn(state.AgentTurn{
		Index:  st.NextIndex(),
		TurnID: uuid.NewString(),
		LLMMessage: &state.ModelMessage{
			Thoughts:    fmt.Sprintf("Deliberated upfront with %s (confidence %.2f).", o.engine.Name(), result.Confidence),
			Action:      state.ActionPlan,
			ActionInput: state.ActionInput{Summary: result.Conclusion},
		},
		Synthetic: true,
	}); err != nil {
		slog.Warn("Could not record reasoning plan", "agent_id", o.agentID, "error", err)
	}
}

func (o *Orchestrator) persist(ctx context.Context, st *state.AgentState) error {
	return o.store.Save(ctx, st.AgentID, st)
}

func (o *Orchestrator) emitStatus(turnIndex int, msg *state.ModelMessage) {
	if !o.cfg.EmitPublicStatus {
		return
	}
	if msg.StatusTitle == "" && msg.StatusDetails == "" && msg.NextStepHint == "" && msg.ProgressPct == nil {
		return
	}

	payload := events.StatusUpdatePayload{
		Title:        truncate(msg.StatusTitle, 60),
		Details:      truncate(msg.StatusDetails, 160),
		NextStepHint: msg.NextStepHint,
	}
	if msg.ProgressPct != nil {
		pct := *msg.ProgressPct
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		payload.ProgressPct = &pct
	}

	o.bus.Emit(events.Event{
		Type:      events.StatusUpdate,
		AgentID:   o.agentID,
		TurnIndex: turnIndex,
		Payload:   payload,
	})
}

// emitCachedToolCall reports a dedupe hit with the same started/completed
// discipline as a real execution.
func (o *Orchestrator) emitCachedToolCall(turnIndex int, tool string, params map[string]interface{}, dedupeID string) {
	o.bus.Emit(events.Event{
		Type:      events.ToolCallStarted,
		AgentID:   o.agentID,
		TurnIndex: turnIndex,
		Payload:   events.ToolCallStartedPayload{Tool: tool, Params: params, DedupeID: dedupeID},
	})
	o.bus.Emit(events.Event{
		Type:      events.ToolCallCompleted,
		AgentID:   o.agentID,
		TurnIndex: turnIndex,
		Payload:   events.ToolCallCompletedPayload{Tool: tool, DedupeID: dedupeID, Success: true, Cached: true},
	})
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordDedupeHit(context.Background(), tool)
	}
}

func (o *Orchestrator) succeed(ctx context.Context, st *state.AgentState, started time.Time, final string) *RunResult {
	result := &RunResult{
		Succeeded:   true,
		FinalOutput: final,
		TotalTurns:  len(st.Turns),
		Duration:    time.Since(started),
	}
	o.complete(ctx, result)
	return result
}

func (o *Orchestrator) fail(ctx context.Context, st *state.AgentState, started time.Time, errType string, err error) *RunResult {
	result := &RunResult{
		ErrorType: errType,
		Duration:  time.Since(started),
	}
	if err != nil {
		result.Error = err.Error()
	}
	if st != nil {
		result.TotalTurns = len(st.Turns)
	}
	o.complete(ctx, result)
	return result
}

func (o *Orchestrator) complete(ctx context.Context, result *RunResult) {
	o.bus.Emit(events.Event{
		Type:    events.RunCompleted,
		AgentID: o.agentID,
		Payload: events.RunCompletedPayload{
			Succeeded:   result.Succeeded,
			FinalOutput: result.FinalOutput,
			Error:       result.Error,
			ErrorType:   result.ErrorType,
			TotalTurns:  result.TotalTurns,
			Duration:    result.Duration,
		},
	})
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		var runErr error
		if !result.Succeeded {
			runErr = errors.New(result.ErrorType)
		}
		metrics.RecordRun(ctx, result.Duration, result.TotalTurns, runErr)
	}
}

func retryHint(exec *state.ToolExecutionResult) string {
	detail, _ := exec.Failure()
	if detail == nil {
		return "The last tool call failed. Adjust the approach and continue."
	}
	switch detail.Type {
	case state.FailureValidation:
		return "The last tool call failed validation. Retry with the required parameters corrected."
	case state.FailureTimeout:
		return "The last tool call timed out. Narrow the request or use a different tool."
	default:
		return fmt.Sprintf("The last tool call failed: %s. Adjust the parameters or choose a different tool.", detail.Message)
	}
}

// truncate cuts a string to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
