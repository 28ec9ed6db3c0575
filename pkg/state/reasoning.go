package state

import (
	"fmt"
	"time"
)

// ============================================================================
// CHAIN-OF-THOUGHT ARTIFACTS
// ============================================================================

// StepType classifies a reasoning step.
type StepType string

const (
	StepAnalysis    StepType = "analysis"
	StepPlanning    StepType = "planning"
	StepDecision    StepType = "decision"
	StepObservation StepType = "observation"
	StepEvaluation  StepType = "evaluation"
	StepSynthesis   StepType = "synthesis"
)

// ReasoningStep is one stage of a chain-of-thought pipeline.
type ReasoningStep struct {
	StepNumber int      `json:"step_number"`
	StepType   StepType `json:"step_type"`
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"`
	Insights   []string `json:"insights,omitempty"`
}

// ReasoningChain is the ordered artifact a chain-of-thought engine produces
// for one reasoning call.
type ReasoningChain struct {
	Goal            string          `json:"goal"`
	Steps           []ReasoningStep `json:"steps"`
	FinalConfidence float64         `json:"final_confidence"`
	Conclusion      string          `json:"conclusion,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// NewReasoningChain starts an empty chain for a goal.
func NewReasoningChain(goal string) *ReasoningChain {
	return &ReasoningChain{
		Goal:      goal,
		Steps:     make([]ReasoningStep, 0),
		CreatedAt: time.Now(),
	}
}

// AddStep appends a step with the next step number.
func (c *ReasoningChain) AddStep(stepType StepType, reasoning string, confidence float64, insights []string) {
	c.Steps = append(c.Steps, ReasoningStep{
		StepNumber: len(c.Steps) + 1,
		StepType:   stepType,
		Reasoning:  reasoning,
		Confidence: confidence,
		Insights:   insights,
	})
}

// Complete records the conclusion and the mean confidence across steps.
func (c *ReasoningChain) Complete(conclusion string) {
	c.Conclusion = conclusion
	if len(c.Steps) > 0 {
		var sum float64
		for _, step := range c.Steps {
			sum += step.Confidence
		}
		c.FinalConfidence = sum / float64(len(c.Steps))
	}
	now := time.Now()
	c.CompletedAt = &now
}

// ============================================================================
// TREE-OF-THOUGHTS ARTIFACTS
// ============================================================================

// ThoughtType classifies a tree node's contribution.
type ThoughtType string

const (
	ThoughtHypothesis  ThoughtType = "hypothesis"
	ThoughtAnalysis    ThoughtType = "analysis"
	ThoughtAlternative ThoughtType = "alternative"
	ThoughtRefinement  ThoughtType = "refinement"
	ThoughtSynthesis   ThoughtType = "synthesis"
)

// NodeState is a thought node's lifecycle state. Pruned is terminal.
type NodeState string

const (
	NodeLive      NodeState = "live"
	NodeEvaluated NodeState = "evaluated"
	NodePruned    NodeState = "pruned"
	NodeLeaf      NodeState = "leaf"
)

// ExplorationStrategy selects how a tree-of-thoughts run expands nodes.
type ExplorationStrategy string

const (
	ExploreBestFirst    ExplorationStrategy = "best_first"
	ExploreBreadthFirst ExplorationStrategy = "breadth_first"
	ExploreDepthFirst   ExplorationStrategy = "depth_first"
	ExploreBeamSearch   ExplorationStrategy = "beam_search"
	ExploreMonteCarlo   ExplorationStrategy = "monte_carlo"
)

// ThoughtNode is one node of a reasoning tree.
type ThoughtNode struct {
	NodeID      string      `json:"node_id"`
	ParentID    string      `json:"parent_id,omitempty"`
	Depth       int         `json:"depth"`
	Thought     string      `json:"thought"`
	ThoughtType ThoughtType `json:"thought_type"`
	Score       float64     `json:"score"`
	State       NodeState   `json:"state"`
	Children    []string    `json:"children,omitempty"`
}

// ReasoningTree is the artifact a tree-of-thoughts engine produces.
// Invariants: exactly one root, |Nodes| <= MaxNodes, depth <= MaxDepth,
// pruned nodes are never expanded.
type ReasoningTree struct {
	RootID              string                  `json:"root_id"`
	Nodes               map[string]*ThoughtNode `json:"nodes"`
	MaxDepth            int                     `json:"max_depth"`
	MaxNodes            int                     `json:"max_nodes"`
	ExplorationStrategy ExplorationStrategy     `json:"exploration_strategy"`
	BestPath            []string                `json:"best_path,omitempty"`
	BestScore           float64                 `json:"best_score"`
	CreatedAt           time.Time               `json:"created_at"`
}

// NewReasoningTree creates an empty tree with the given caps.
func NewReasoningTree(maxDepth, maxNodes int, strategy ExplorationStrategy) *ReasoningTree {
	return &ReasoningTree{
		Nodes:               make(map[string]*ThoughtNode),
		MaxDepth:            maxDepth,
		MaxNodes:            maxNodes,
		ExplorationStrategy: strategy,
		CreatedAt:           time.Now(),
	}
}

// AddNode inserts a node, linking it under its parent and enforcing the
// tree caps and the single-root invariant.
func (t *ReasoningTree) AddNode(node *ThoughtNode) error {
	if len(t.Nodes) >= t.MaxNodes {
		return fmt.Errorf("tree at capacity (%d nodes)", t.MaxNodes)
	}
	if node.Depth > t.MaxDepth {
		return fmt.Errorf("node depth %d exceeds max depth %d", node.Depth, t.MaxDepth)
	}
	if node.ParentID == "" {
		if t.RootID != "" {
			return fmt.Errorf("tree already has root %s", t.RootID)
		}
		t.RootID = node.NodeID
	} else {
		parent, ok := t.Nodes[node.ParentID]
		if !ok {
			return fmt.Errorf("parent %s not found", node.ParentID)
		}
		if parent.State == NodePruned {
			return fmt.Errorf("parent %s is pruned", node.ParentID)
		}
		parent.Children = append(parent.Children, node.NodeID)
	}
	t.Nodes[node.NodeID] = node
	return nil
}

// AtCapacity reports whether the tree can accept no more nodes.
func (t *ReasoningTree) AtCapacity() bool {
	return len(t.Nodes) >= t.MaxNodes
}

// PathToRoot returns node ids from the root down to the given node.
func (t *ReasoningTree) PathToRoot(nodeID string) []string {
	var reversed []string
	for id := nodeID; id != ""; {
		node, ok := t.Nodes[id]
		if !ok {
			return nil
		}
		reversed = append(reversed, id)
		id = node.ParentID
	}
	path := make([]string, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = id
	}
	return path
}

// Prune marks a node pruned. Pruned nodes are terminal: they are never
// evaluated or expanded afterwards.
func (t *ReasoningTree) Prune(nodeID string) {
	if node, ok := t.Nodes[nodeID]; ok {
		node.State = NodePruned
	}
}
