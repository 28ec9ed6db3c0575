package reasoning

import (
	"context"
	"fmt"

	"github.com/kadirpekel/conductor/pkg/state"
)

// cotStage binds a pipeline position to its prompt.
type cotStage struct {
	stepType state.StepType
	prompt   string
}

var cotPipeline = []cotStage{
	{state.StepAnalysis, "Analyze the goal. What is actually being asked, what is known, and what is missing?"},
	{state.StepPlanning, "Plan the approach. Which steps, in which order, would achieve the goal?"},
	{state.StepDecision, "Choose a concrete strategy from the plan and commit to it. Note trade-offs."},
	{state.StepEvaluation, "Evaluate the chosen strategy against the goal and state a conclusion."},
}

// ChainOfThoughtEngine runs a fixed analysis → planning → decision →
// evaluation pipeline, one LLM call per stage.
type ChainOfThoughtEngine struct {
	caller           Caller
	maxSteps         int
	enableValidation bool
	minConfidence    float64
}

// NewChainOfThoughtEngine creates the engine. maxSteps caps the pipeline
// (the full pipeline is 4 stages); minConfidence gates validation failures.
func NewChainOfThoughtEngine(caller Caller, maxSteps int, enableValidation bool, minConfidence float64) *ChainOfThoughtEngine {
	if maxSteps <= 0 || maxSteps > len(cotPipeline) {
		maxSteps = len(cotPipeline)
	}
	return &ChainOfThoughtEngine{
		caller:           caller,
		maxSteps:         maxSteps,
		enableValidation: enableValidation,
		minConfidence:    minConfidence,
	}
}

func (e *ChainOfThoughtEngine) Name() string { return "chain_of_thought" }

func (e *ChainOfThoughtEngine) Reason(ctx context.Context, goal, contextText string) (*Result, error) {
	chain := state.NewReasoningChain(goal)
	conclusion := ""

	for _, stage := range cotPipeline[:e.maxSteps] {
		resp, err := e.runStage(ctx, stage, goal, contextText, chain)
		if err != nil {
			return nil, fmt.Errorf("%s stage: %w", stage.stepType, err)
		}

		chain.AddStep(stage.stepType, resp.Reasoning, resp.Confidence, resp.Insights)
		if resp.Conclusion != "" {
			conclusion = resp.Conclusion
		}
	}

	chain.Complete(conclusion)

	if e.enableValidation {
		valid, err := e.validate(ctx, goal, chain)
		if err != nil {
			return nil, fmt.Errorf("validation stage: %w", err)
		}
		if !valid && chain.FinalConfidence < e.minConfidence {
			return &Result{
				Success:    false,
				Conclusion: conclusion,
				Confidence: chain.FinalConfidence,
				Chain:      chain,
			}, nil
		}
	}

	return &Result{
		Success:    true,
		Conclusion: conclusion,
		Confidence: chain.FinalConfidence,
		Chain:      chain,
	}, nil
}

func (e *ChainOfThoughtEngine) runStage(ctx context.Context, stage cotStage, goal, contextText string, chain *state.ReasoningChain) (*stageResponse, error) {
	system := `You are a careful reasoning assistant. Respond with a single JSON object:
{"reasoning": "...", "confidence": 0.0-1.0, "insights": ["..."]` +
		conclusionField(stage.stepType) + `}`

	user := fmt.Sprintf("GOAL: %s\n", goal)
	if contextText != "" {
		user += fmt.Sprintf("\nCONTEXT:\n%s\n", contextText)
	}
	for _, step := range chain.Steps {
		user += fmt.Sprintf("\nPrevious %s: %s", step.StepType, step.Reasoning)
	}
	user += "\n\n" + stage.prompt

	raw, err := e.caller.Call(ctx, systemAndUser(system, user))
	if err != nil {
		return nil, err
	}
	return decodeStage(raw)
}

func (e *ChainOfThoughtEngine) validate(ctx context.Context, goal string, chain *state.ReasoningChain) (bool, error) {
	system := `You review reasoning chains. Respond with a single JSON object:
{"valid": true|false, "reasoning": "..."}`

	user := fmt.Sprintf("GOAL: %s\n\nCHAIN:\n", goal)
	for _, step := range chain.Steps {
		user += fmt.Sprintf("%d. [%s] %s (confidence %.2f)\n", step.StepNumber, step.StepType, step.Reasoning, step.Confidence)
	}
	user += fmt.Sprintf("\nCONCLUSION: %s\n\nIs this chain sound and does the conclusion follow?", chain.Conclusion)

	raw, err := e.caller.Call(ctx, systemAndUser(system, user))
	if err != nil {
		return false, err
	}
	resp, err := decodeStage(raw)
	if err != nil {
		return false, err
	}
	return resp.Valid == nil || *resp.Valid, nil
}

func conclusionField(stepType state.StepType) string {
	if stepType == state.StepEvaluation {
		return `, "conclusion": "..."`
	}
	return ""
}
