package reasoning

import (
	"container/heap"
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/conductor/pkg/state"
)

const (
	maxChildrenPerNode = 3
	defaultBeamWidth   = 2
	monteCarloStopProb = 0.15
)

// TreeOfThoughtsEngine explores alternative lines of thought under depth and
// node caps, scoring each and synthesizing a conclusion from the best path.
type TreeOfThoughtsEngine struct {
	caller    Caller
	maxDepth  int
	maxNodes  int
	strategy  state.ExplorationStrategy
	beamWidth int
	rng       *rand.Rand
}

// NewTreeOfThoughtsEngine creates the engine for one exploration strategy.
func NewTreeOfThoughtsEngine(caller Caller, maxDepth, maxNodes int, strategy state.ExplorationStrategy) *TreeOfThoughtsEngine {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxNodes <= 0 {
		maxNodes = 15
	}
	if strategy == "" {
		strategy = state.ExploreBestFirst
	}
	return &TreeOfThoughtsEngine{
		caller:    caller,
		maxDepth:  maxDepth,
		maxNodes:  maxNodes,
		strategy:  strategy,
		beamWidth: defaultBeamWidth,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
}

func (e *TreeOfThoughtsEngine) Name() string { return "tree_of_thoughts" }

func (e *TreeOfThoughtsEngine) Reason(ctx context.Context, goal, contextText string) (*Result, error) {
	tree := state.NewReasoningTree(e.maxDepth, e.maxNodes, e.strategy)

	rootThought, err := e.rootHypothesis(ctx, goal, contextText)
	if err != nil {
		return nil, fmt.Errorf("root hypothesis: %w", err)
	}

	root := &state.ThoughtNode{
		NodeID:      uuid.NewString(),
		Depth:       0,
		Thought:     rootThought,
		ThoughtType: state.ThoughtHypothesis,
		State:       state.NodeLive,
	}
	if err := tree.AddNode(root); err != nil {
		return nil, err
	}

	frontier := e.newFrontier()
	frontier.push(root.NodeID, 0.5)

	for !frontier.empty() && !tree.AtCapacity() {
		nodeID, ok := frontier.pop()
		if !ok {
			break
		}
		node := tree.Nodes[nodeID]
		if node == nil || node.State == state.NodePruned {
			continue
		}

		score, err := e.evaluate(ctx, goal, tree, node)
		if err != nil {
			return nil, fmt.Errorf("evaluate node: %w", err)
		}
		node.Score = score
		node.State = state.NodeEvaluated

		expanded := false
		if node.Depth < e.maxDepth && !tree.AtCapacity() {
			children, err := e.expand(ctx, goal, tree, node)
			if err != nil {
				return nil, fmt.Errorf("expand node: %w", err)
			}
			for _, child := range children {
				if tree.AtCapacity() {
					break
				}
				if err := tree.AddNode(child); err != nil {
					break
				}
				// Children inherit the parent's score as their estimate
				// until their own evaluation.
				frontier.push(child.NodeID, node.Score)
				expanded = true
			}
		}

		if !expanded {
			node.State = state.NodeLeaf
			if node.Score > tree.BestScore || len(tree.BestPath) == 0 {
				tree.BestScore = node.Score
				tree.BestPath = tree.PathToRoot(node.NodeID)
			}
		}
	}

	// Capacity can be reached with only interior nodes scored; fall back to
	// the best evaluated node.
	if len(tree.BestPath) == 0 {
		if best := e.bestEvaluated(tree); best != nil {
			tree.BestScore = best.Score
			tree.BestPath = tree.PathToRoot(best.NodeID)
		}
	}
	if len(tree.BestPath) == 0 {
		return nil, fmt.Errorf("exploration produced no scored nodes")
	}

	conclusion, err := e.synthesize(ctx, goal, tree)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	return &Result{
		Success:    true,
		Conclusion: conclusion,
		Confidence: tree.BestScore,
		Tree:       tree,
	}, nil
}

func (e *TreeOfThoughtsEngine) bestEvaluated(tree *state.ReasoningTree) *state.ThoughtNode {
	var best *state.ThoughtNode
	for _, node := range tree.Nodes {
		if node.State != state.NodeEvaluated && node.State != state.NodeLeaf {
			continue
		}
		if best == nil || node.Score > best.Score {
			best = node
		}
	}
	return best
}

// ----------------------------------------------------------------------------
// Prompts
// ----------------------------------------------------------------------------

func (e *TreeOfThoughtsEngine) rootHypothesis(ctx context.Context, goal, contextText string) (string, error) {
	system := `You explore approaches to a goal. Respond with a single JSON object:
{"reasoning": "your initial hypothesis for how to achieve the goal"}`

	user := fmt.Sprintf("GOAL: %s\n", goal)
	if contextText != "" {
		user += fmt.Sprintf("\nCONTEXT:\n%s\n", contextText)
	}
	user += "\nState your strongest initial hypothesis."

	raw, err := e.caller.Call(ctx, systemAndUser(system, user))
	if err != nil {
		return "", err
	}
	resp, err := decodeStage(raw)
	if err != nil {
		return "", err
	}
	if resp.Reasoning == "" {
		return "", fmt.Errorf("empty hypothesis")
	}
	return resp.Reasoning, nil
}

func (e *TreeOfThoughtsEngine) evaluate(ctx context.Context, goal string, tree *state.ReasoningTree, node *state.ThoughtNode) (float64, error) {
	system := `You score a line of thought for how likely it is to achieve the goal. Respond with a single JSON object:
{"score": 0.0-1.0, "reasoning": "..."}`

	user := fmt.Sprintf("GOAL: %s\n\nLINE OF THOUGHT:\n%s\n\nScore it.", goal, e.pathText(tree, node.NodeID))

	raw, err := e.caller.Call(ctx, systemAndUser(system, user))
	if err != nil {
		return 0, err
	}
	resp, err := decodeStage(raw)
	if err != nil {
		return 0, err
	}
	if resp.Score != nil {
		return *resp.Score, nil
	}
	return resp.Confidence, nil
}

func (e *TreeOfThoughtsEngine) expand(ctx context.Context, goal string, tree *state.ReasoningTree, node *state.ThoughtNode) ([]*state.ThoughtNode, error) {
	system := fmt.Sprintf(`You branch a line of thought. Respond with a single JSON object:
{"thoughts": ["2 to %d distinct continuations or alternatives"]}`, maxChildrenPerNode)

	user := fmt.Sprintf("GOAL: %s\n\nLINE OF THOUGHT:\n%s\n\nPropose continuations.", goal, e.pathText(tree, node.NodeID))

	raw, err := e.caller.Call(ctx, systemAndUser(system, user))
	if err != nil {
		return nil, err
	}
	resp, err := decodeStage(raw)
	if err != nil {
		return nil, err
	}

	var children []*state.ThoughtNode
	for i, thought := range resp.Thoughts {
		if i >= maxChildrenPerNode || strings.TrimSpace(thought) == "" {
			break
		}
		thoughtType := state.ThoughtAnalysis
		if i > 0 {
			thoughtType = state.ThoughtAlternative
		}
		children = append(children, &state.ThoughtNode{
			NodeID:      uuid.NewString(),
			ParentID:    node.NodeID,
			Depth:       node.Depth + 1,
			Thought:     thought,
			ThoughtType: thoughtType,
			State:       state.NodeLive,
		})
	}
	return children, nil
}

func (e *TreeOfThoughtsEngine) synthesize(ctx context.Context, goal string, tree *state.ReasoningTree) (string, error) {
	system := `You synthesize an exploration into a conclusion. Respond with a single JSON object:
{"conclusion": "..."}`

	var path strings.Builder
	for i, nodeID := range tree.BestPath {
		if node := tree.Nodes[nodeID]; node != nil {
			fmt.Fprintf(&path, "%d. %s\n", i+1, node.Thought)
		}
	}

	user := fmt.Sprintf("GOAL: %s\n\nBEST PATH (score %.2f):\n%s\nState the conclusion.", goal, tree.BestScore, path.String())

	raw, err := e.caller.Call(ctx, systemAndUser(system, user))
	if err != nil {
		return "", err
	}
	resp, err := decodeStage(raw)
	if err != nil {
		return "", err
	}
	if resp.Conclusion != "" {
		return resp.Conclusion, nil
	}
	return resp.Reasoning, nil
}

func (e *TreeOfThoughtsEngine) pathText(tree *state.ReasoningTree, nodeID string) string {
	var sb strings.Builder
	for i, id := range tree.PathToRoot(nodeID) {
		if node := tree.Nodes[id]; node != nil {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, node.Thought)
		}
	}
	return sb.String()
}

// ----------------------------------------------------------------------------
// Frontiers
// ----------------------------------------------------------------------------

type frontier interface {
	push(nodeID string, score float64)
	pop() (string, bool)
	empty() bool
}

func (e *TreeOfThoughtsEngine) newFrontier() frontier {
	switch e.strategy {
	case state.ExploreBreadthFirst:
		return &queueFrontier{fifo: true}
	case state.ExploreDepthFirst:
		return &queueFrontier{}
	case state.ExploreBeamSearch:
		return &beamFrontier{width: e.beamWidth}
	case state.ExploreMonteCarlo:
		return &monteCarloFrontier{rng: e.rng, stopProb: monteCarloStopProb}
	default:
		h := &scoredHeap{}
		heap.Init(h)
		return &bestFirstFrontier{heap: h}
	}
}

type scored struct {
	nodeID string
	score  float64
}

// bestFirstFrontier pops the highest estimated score first.
type bestFirstFrontier struct {
	heap *scoredHeap
}

func (f *bestFirstFrontier) push(nodeID string, score float64) {
	heap.Push(f.heap, scored{nodeID: nodeID, score: score})
}

func (f *bestFirstFrontier) pop() (string, bool) {
	if f.heap.Len() == 0 {
		return "", false
	}
	return heap.Pop(f.heap).(scored).nodeID, true
}

func (f *bestFirstFrontier) empty() bool { return f.heap.Len() == 0 }

type scoredHeap []scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// queueFrontier is FIFO (breadth-first) or LIFO (depth-first).
type queueFrontier struct {
	items []scored
	fifo  bool
}

func (f *queueFrontier) push(nodeID string, score float64) {
	f.items = append(f.items, scored{nodeID: nodeID, score: score})
}

func (f *queueFrontier) pop() (string, bool) {
	if len(f.items) == 0 {
		return "", false
	}
	if f.fifo {
		item := f.items[0]
		f.items = f.items[1:]
		return item.nodeID, true
	}
	item := f.items[len(f.items)-1]
	f.items = f.items[:len(f.items)-1]
	return item.nodeID, true
}

func (f *queueFrontier) empty() bool { return len(f.items) == 0 }

// beamFrontier drains the current level, then keeps only the top-width
// candidates of the next.
type beamFrontier struct {
	current []scored
	next    []scored
	width   int
}

func (f *beamFrontier) push(nodeID string, score float64) {
	f.next = append(f.next, scored{nodeID: nodeID, score: score})
}

func (f *beamFrontier) pop() (string, bool) {
	if len(f.current) == 0 {
		f.advance()
	}
	if len(f.current) == 0 {
		return "", false
	}
	item := f.current[0]
	f.current = f.current[1:]
	return item.nodeID, true
}

func (f *beamFrontier) advance() {
	sort.SliceStable(f.next, func(i, j int) bool {
		return f.next[i].score > f.next[j].score
	})
	if len(f.next) > f.width {
		f.next = f.next[:f.width]
	}
	f.current = f.next
	f.next = nil
}

func (f *beamFrontier) empty() bool { return len(f.current) == 0 && len(f.next) == 0 }

// monteCarloFrontier pops a random candidate biased by score and may stop
// the walk early at each step.
type monteCarloFrontier struct {
	items    []scored
	rng      *rand.Rand
	stopProb float64
}

func (f *monteCarloFrontier) push(nodeID string, score float64) {
	f.items = append(f.items, scored{nodeID: nodeID, score: score})
}

func (f *monteCarloFrontier) pop() (string, bool) {
	if len(f.items) == 0 {
		return "", false
	}
	if f.rng.Float64() < f.stopProb {
		return "", false
	}

	total := 0.0
	for _, item := range f.items {
		total += item.score + 0.05 // floor so zero-scored nodes stay reachable
	}
	target := f.rng.Float64() * total

	idx := len(f.items) - 1
	acc := 0.0
	for i, item := range f.items {
		acc += item.score + 0.05
		if target <= acc {
			idx = i
			break
		}
	}

	item := f.items[idx]
	f.items = append(f.items[:idx], f.items[idx+1:]...)
	return item.nodeID, true
}

func (f *monteCarloFrontier) empty() bool { return len(f.items) == 0 }
