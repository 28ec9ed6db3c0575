package reasoning

import (
	"context"
	"fmt"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/state"
)

// NewEngine builds the configured engine. Type "none" yields a nil engine:
// the orchestrator skips deliberation entirely.
func NewEngine(cfg config.ReasoningConfig, caller Caller) (Engine, error) {
	switch cfg.Type {
	case config.ReasoningNone, "":
		return nil, nil
	case config.ReasoningChainOfThought:
		return NewChainOfThoughtEngine(caller, cfg.MaxReasoningSteps, cfg.EnableValidation, cfg.MinConfidence), nil
	case config.ReasoningTreeOfThoughts:
		return NewTreeOfThoughtsEngine(caller, cfg.MaxTreeDepth, cfg.MaxTreeNodes, state.ExplorationStrategy(cfg.ExplorationStrategy)), nil
	case config.ReasoningHybrid:
		return &HybridEngine{
			chain:         NewChainOfThoughtEngine(caller, cfg.MaxReasoningSteps, cfg.EnableValidation, cfg.MinConfidence),
			tree:          NewTreeOfThoughtsEngine(caller, cfg.MaxTreeDepth, cfg.MaxTreeNodes, state.ExplorationStrategy(cfg.ExplorationStrategy)),
			minConfidence: cfg.MinConfidence,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported reasoning type: %s", cfg.Type)
	}
}

// HybridEngine runs chain-of-thought first and escalates to
// tree-of-thoughts when the chain fails or lands below the confidence
// floor.
type HybridEngine struct {
	chain         *ChainOfThoughtEngine
	tree          *TreeOfThoughtsEngine
	minConfidence float64
}

func (e *HybridEngine) Name() string { return "hybrid" }

func (e *HybridEngine) Reason(ctx context.Context, goal, contextText string) (*Result, error) {
	result, err := e.chain.Reason(ctx, goal, contextText)
	if err != nil {
		return nil, err
	}
	if result.Success && result.Confidence >= e.minConfidence {
		return result, nil
	}
	return e.tree.Reason(ctx, goal, contextText)
}
