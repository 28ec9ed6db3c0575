// Package reasoning implements the optional deliberation engines: a staged
// chain-of-thought pipeline and a tree-of-thoughts explorer. Engines run
// between turns, own their artifact while reasoning, and hand it to the
// orchestrator on completion.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/state"
)

// Caller issues one blocking prompt on behalf of an engine and returns the
// aggregated text. The communicator satisfies this.
type Caller interface {
	Call(ctx context.Context, messages []llms.Message) (string, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, messages []llms.Message) (string, error)

func (f CallerFunc) Call(ctx context.Context, messages []llms.Message) (string, error) {
	return f(ctx, messages)
}

// Result is what an engine hands back to the orchestrator. Exactly one of
// Chain/Tree is set, matching the engine kind.
type Result struct {
	Success    bool
	Conclusion string
	Confidence float64
	Chain      *state.ReasoningChain
	Tree       *state.ReasoningTree
}

// Engine deliberates over a goal given rendered context and produces a
// conclusion with an auditable artifact.
type Engine interface {
	Name() string
	Reason(ctx context.Context, goal, contextText string) (*Result, error)
}

// stageResponse is the JSON shape every reasoning prompt asks for.
type stageResponse struct {
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"`
	Insights   []string `json:"insights,omitempty"`
	Conclusion string   `json:"conclusion,omitempty"`
	Valid      *bool    `json:"valid,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Thoughts   []string `json:"thoughts,omitempty"`
}

// decodeStage parses a model reply, tolerating code fences and surrounding
// prose around the JSON object.
func decodeStage(raw string) (*stageResponse, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var resp stageResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("decode reasoning response: %w", err)
	}
	resp.Confidence = clamp01(resp.Confidence)
	if resp.Score != nil {
		clamped := clamp01(*resp.Score)
		resp.Score = &clamped
	}
	return &resp, nil
}

// extractJSON returns the outermost {...} of a reply.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func systemAndUser(system, user string) []llms.Message {
	return []llms.Message{
		{Role: llms.RoleSystem, Content: system},
		{Role: llms.RoleUser, Content: user},
	}
}
