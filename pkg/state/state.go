// Package state defines the agent execution state model and its persistence
// contract.
//
// AgentState is the single source of truth for a run across restarts: a
// turn-indexed append log plus the goal, optional reasoning artifacts, and
// free-form metadata. The orchestrator is the only writer; every other
// component reads from it or receives copies.
package state

import (
	"fmt"
	"time"
)

// ============================================================================
// ACTIONS
// ============================================================================

// ActionType is the model's decision for a turn.
type ActionType string

const (
	ActionPlan     ActionType = "plan"
	ActionToolCall ActionType = "tool_call"
	ActionFinish   ActionType = "finish"
	ActionRetry    ActionType = "retry"
)

// ActionInput is the union payload accompanying an action:
// tool_call carries {tool, params}, finish carries {final}, plan/retry carry
// {summary}.
type ActionInput struct {
	Tool    string                 `json:"tool,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Final   string                 `json:"final,omitempty"`
	Summary string                 `json:"summary,omitempty"`
}

// ModelMessage is a decoded model decision. Thoughts are opaque to the UI;
// the optional status fields are the model's public progress report.
type ModelMessage struct {
	Thoughts    string      `json:"thoughts,omitempty"`
	Action      ActionType  `json:"action"`
	ActionInput ActionInput `json:"action_input,omitempty"`

	StatusTitle   string   `json:"status_title,omitempty"`
	StatusDetails string   `json:"status_details,omitempty"`
	NextStepHint  string   `json:"next_step_hint,omitempty"`
	ProgressPct   *float64 `json:"progress_pct,omitempty"`
}

// ============================================================================
// TOOL CALLS AND RESULTS
// ============================================================================

// ToolCallRequest identifies one tool invocation. TurnID is the canonical
// hash of (tool, params), not the id of the turn that requested it.
type ToolCallRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params,omitempty"`
	TurnID string                 `json:"turn_id"`
}

// Failure classifiers carried in ToolExecutionResult.Output on failure.
const (
	FailureValidation = "validation_error"
	FailureTimeout    = "timeout"
	FailureToolError  = "tool_error"
)

// FailureDetail is the compact machine-readable classifier a failed
// execution carries in place of tool output.
type FailureDetail struct {
	Type    string   `json:"type"`
	Missing []string `json:"missing,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Message string   `json:"message,omitempty"`
}

// ToolExecutionResult records one execution outcome. TurnID equals the
// dedupe hash of (tool, params) so cached lookups can match it directly.
type ToolExecutionResult struct {
	Success       bool                   `json:"success"`
	Output        interface{}            `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Tool          string                 `json:"tool"`
	Params        map[string]interface{} `json:"params,omitempty"`
	TurnID        string                 `json:"turn_id"`
	ExecutionTime time.Duration          `json:"execution_time"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Failure returns the structured classifier of a failed result, if present.
func (r *ToolExecutionResult) Failure() (*FailureDetail, bool) {
	if r == nil || r.Success {
		return nil, false
	}
	switch out := r.Output.(type) {
	case *FailureDetail:
		return out, true
	case FailureDetail:
		return &out, true
	case map[string]interface{}:
		// Results reloaded from a store decode as plain maps.
		detail := &FailureDetail{}
		if t, ok := out["type"].(string); ok {
			detail.Type = t
		}
		if m, ok := out["message"].(string); ok {
			detail.Message = m
		}
		detail.Missing = toStringSlice(out["missing"])
		detail.Errors = toStringSlice(out["errors"])
		if detail.Type == "" {
			return nil, false
		}
		return detail, true
	}
	return nil, false
}

func toStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ============================================================================
// TURNS
// ============================================================================

// AgentTurn is one entry of the append-only turn log. At most one of
// ToolCall/ToolCalls is set. Synthetic marks engine-authored controller
// turns (retry hints, loop breakers) so their indices stay monotonic with
// natural turns.
type AgentTurn struct {
	Index       int                   `json:"index"`
	TurnID      string                `json:"turn_id"`
	LLMMessage  *ModelMessage         `json:"llm_message,omitempty"`
	ToolCall    *ToolCallRequest      `json:"tool_call,omitempty"`
	ToolCalls   []ToolCallRequest     `json:"tool_calls,omitempty"`
	ToolResult  *ToolExecutionResult  `json:"tool_result,omitempty"`
	ToolResults []ToolExecutionResult `json:"tool_results,omitempty"`
	Synthetic   bool                  `json:"synthetic,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Validate checks the turn's internal invariants.
func (t *AgentTurn) Validate() error {
	if t.TurnID == "" {
		return fmt.Errorf("turn %d: turn_id cannot be empty", t.Index)
	}
	if t.ToolCall != nil && len(t.ToolCalls) > 0 {
		return fmt.Errorf("turn %d: at most one of tool_call/tool_calls may be set", t.Index)
	}
	return nil
}

// ============================================================================
// SEED MESSAGES
// ============================================================================

// SeedMessage is a user-supplied prompt message appended ahead of history,
// partitioned by role (system, assistant, user).
type SeedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ============================================================================
// AGENT STATE
// ============================================================================

// AgentState is one agent's full execution record.
type AgentState struct {
	AgentID            string                 `json:"agent_id"`
	Goal               string                 `json:"goal"`
	Turns              []AgentTurn            `json:"turns"`
	UpdatedAt          time.Time              `json:"updated_at"`
	ReasoningChain     *ReasoningChain        `json:"current_reasoning_chain,omitempty"`
	ReasoningTree      *ReasoningTree         `json:"current_reasoning_tree,omitempty"`
	AdditionalMessages []SeedMessage          `json:"additional_messages,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// NewAgentState creates an empty state for a goal. The goal is immutable
// after this point.
func NewAgentState(agentID, goal string) *AgentState {
	return &AgentState{
		AgentID:   agentID,
		Goal:      goal,
		Turns:     make([]AgentTurn, 0),
		UpdatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// NextIndex returns the index the next appended turn must carry.
func (s *AgentState) NextIndex() int {
	return len(s.Turns)
}

// AppendTurn appends a turn to the log, enforcing dense monotonic indices.
// Turns are never rewritten once appended.
func (s *AgentState) AppendTurn(turn AgentTurn) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	if turn.Index != len(s.Turns) {
		return fmt.Errorf("turn index %d out of order: expected %d", turn.Index, len(s.Turns))
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = time.Now()
	return nil
}

// LastTurn returns the most recent turn, or nil for an empty log.
func (s *AgentState) LastTurn() *AgentTurn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}

// FindCachedResult scans the log from most recent to oldest for a successful
// tool result with the given dedupe id created within the freshness window.
func (s *AgentState) FindCachedResult(dedupeID string, ttl time.Duration, now time.Time) *ToolExecutionResult {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		for _, result := range s.turnResults(i) {
			if result.TurnID != dedupeID || !result.Success {
				continue
			}
			if now.Sub(result.CreatedAt) <= ttl {
				return result
			}
			// Older occurrences are necessarily staler.
			return nil
		}
	}
	return nil
}

func (s *AgentState) turnResults(i int) []*ToolExecutionResult {
	turn := &s.Turns[i]
	if turn.ToolResult != nil {
		return []*ToolExecutionResult{turn.ToolResult}
	}
	results := make([]*ToolExecutionResult, 0, len(turn.ToolResults))
	for j := range turn.ToolResults {
		results = append(results, &turn.ToolResults[j])
	}
	return results
}
