// Package prompt assembles the LLM input for one engine turn: the output
// contract, the tool catalog, user-seeded messages, and a bounded rendering
// of the turn history.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/state"
	"github.com/kadirpekel/conductor/pkg/tools"
)

// Options tunes how prompts are rendered.
type Options struct {
	// UseFunctionCalling switches the contract to native tool invocation:
	// the model calls declared functions instead of emitting tool_call JSON.
	UseFunctionCalling bool

	// EmitPublicStatus adds the optional progress-report fields to the
	// contract.
	EmitPublicStatus bool

	// SummarizeHistory compacts turns older than MaxRecentTurns to one-line
	// summaries. When false every turn is rendered in full.
	SummarizeHistory bool

	// MaxRecentTurns is how many trailing turns are rendered in full JSON
	// when SummarizeHistory is on.
	MaxRecentTurns int

	// MaxToolOutputSize truncates large tool outputs in rendered history.
	MaxToolOutputSize int

	// UseCentralizedSchemas emits each distinct parameter schema once in a
	// shared block instead of inline per tool.
	UseCentralizedSchemas bool

	// Model selects the token encoding for budgeting.
	Model string

	// MaxContextTokens bounds the estimated prompt size; the full-detail
	// window shrinks until the prompt fits. Zero disables budgeting.
	MaxContextTokens int
}

// Builder renders prompts. Safe for concurrent use; it holds no per-run
// state.
type Builder struct {
	opts    Options
	counter *TokenCounter
}

func NewBuilder(opts Options) *Builder {
	if opts.MaxRecentTurns <= 0 {
		opts.MaxRecentTurns = 5
	}
	if opts.MaxToolOutputSize <= 0 {
		opts.MaxToolOutputSize = 8 * 1024
	}
	b := &Builder{opts: opts}
	if opts.MaxContextTokens > 0 {
		b.counter = NewTokenCounter(opts.Model)
	}
	return b
}

// Build produces the message sequence for one turn: system contract and
// tool catalog, then seeded messages (system, assistant, user), then the
// goal and rendered history as the final user message. Under a token budget
// the full-detail window shrinks until the prompt fits (or one full turn
// remains).
func (b *Builder) Build(st *state.AgentState, catalog []tools.ToolInfo) []llms.Message {
	recent := b.opts.MaxRecentTurns
	messages := b.build(st, catalog, recent)

	// Shrinking the window only helps when older turns summarize away.
	if b.counter == nil || !b.opts.SummarizeHistory {
		return messages
	}
	for recent > 1 && b.counter.CountMessages(messages) > b.opts.MaxContextTokens {
		recent--
		messages = b.build(st, catalog, recent)
	}
	return messages
}

func (b *Builder) build(st *state.AgentState, catalog []tools.ToolInfo, recent int) []llms.Message {
	var messages []llms.Message

	messages = append(messages, llms.Message{
		Role:    llms.RoleSystem,
		Content: b.systemContract(catalog),
	})

	messages = append(messages, b.seedMessages(st)...)

	messages = append(messages, llms.Message{
		Role:    llms.RoleUser,
		Content: b.userTurn(st, recent),
	})

	return messages
}

func (b *Builder) systemContract(catalog []tools.ToolInfo) string {
	var sb strings.Builder

	sb.WriteString("You are an autonomous agent working toward a goal, one step at a time.\n\n")

	if b.opts.UseFunctionCalling {
		sb.WriteString("To use a tool, call the corresponding function. ")
		sb.WriteString("When the goal is complete, or to plan or retry, respond instead with a single JSON object:\n")
	} else {
		sb.WriteString("Respond with a single JSON object and nothing else:\n")
	}

	sb.WriteString(`{
  "thoughts": "your private reasoning",
  "action": "plan" | "tool_call" | "finish" | "retry",
  "action_input": {
    "tool": "<tool name>",        // action=tool_call
    "params": { ... },            // action=tool_call
    "final": "<final answer>",    // action=finish
    "summary": "<short summary>"  // action=plan or retry
  }`)
	if b.opts.EmitPublicStatus {
		sb.WriteString(`,
  "status_title": "<= 60 chars, user-visible",
  "status_details": "<= 160 chars, user-visible",
  "next_step_hint": "what you will do next",
  "progress_pct": 0-100`)
	}
	sb.WriteString("\n}\n\n")
	sb.WriteString("Rules: output raw JSON only — no code fences, no prose around it. ")
	sb.WriteString("Pick exactly one action. Do not repeat a tool call that already succeeded.\n")

	b.writeCatalog(&sb, catalog)

	return sb.String()
}

func (b *Builder) writeCatalog(sb *strings.Builder, catalog []tools.ToolInfo) {
	if len(catalog) == 0 {
		sb.WriteString("\nNo tools are available; work from the history alone.\n")
		return
	}

	sb.WriteString("\nAVAILABLE TOOLS:\n")

	if !b.opts.UseCentralizedSchemas {
		for _, info := range catalog {
			schema, _ := json.Marshal(tools.FunctionSchema(info))
			fmt.Fprintf(sb, "- %s: %s\n  parameters: %s\n", info.Name, info.Description, schema)
		}
		return
	}

	// Compact mode: distinct schemas are listed once and referenced by id.
	schemaIDs := make(map[string]string)
	var schemaOrder []string
	for _, info := range catalog {
		schema, _ := json.Marshal(tools.FunctionSchema(info))
		key := string(schema)
		if _, seen := schemaIDs[key]; !seen {
			id := fmt.Sprintf("s%d", len(schemaIDs)+1)
			schemaIDs[key] = id
			schemaOrder = append(schemaOrder, key)
		}
	}

	for _, info := range catalog {
		schema, _ := json.Marshal(tools.FunctionSchema(info))
		fmt.Fprintf(sb, "- %s: %s (schema: %s)\n", info.Name, info.Description, schemaIDs[string(schema)])
	}

	sb.WriteString("\nSCHEMAS:\n")
	for _, key := range schemaOrder {
		fmt.Fprintf(sb, "%s: %s\n", schemaIDs[key], key)
	}
}

// seedMessages partitions user-supplied messages by role and returns them
// in system, assistant, user order.
func (b *Builder) seedMessages(st *state.AgentState) []llms.Message {
	if len(st.AdditionalMessages) == 0 {
		return nil
	}

	byRole := map[string][]llms.Message{}
	for _, seed := range st.AdditionalMessages {
		role := strings.ToLower(seed.Role)
		byRole[role] = append(byRole[role], llms.Message{
			Role:    llms.Role(role),
			Content: seed.Content,
		})
	}

	var ordered []llms.Message
	for _, role := range []string{"system", "assistant", "user"} {
		ordered = append(ordered, byRole[role]...)
	}
	return ordered
}

func (b *Builder) userTurn(st *state.AgentState, recent int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "GOAL: %s\n", st.Goal)

	if len(st.Turns) == 0 {
		sb.WriteString("\nHISTORY: none yet. Decide the first step.\n")
		return sb.String()
	}

	sb.WriteString("\nHISTORY:\n")

	fullFrom := 0
	if b.opts.SummarizeHistory {
		fullFrom = len(st.Turns) - recent
	}
	for i := range st.Turns {
		turn := &st.Turns[i]
		if i < fullFrom {
			sb.WriteString(b.summarizeTurn(turn))
			continue
		}
		sb.WriteString(b.renderTurn(turn))
	}

	sb.WriteString("\nDecide the next step.\n")
	return sb.String()
}

// summarizeTurn compacts an old turn to one line.
func (b *Builder) summarizeTurn(turn *state.AgentTurn) string {
	switch {
	case turn.ToolResult != nil:
		outcome := "failed"
		if turn.ToolResult.Success {
			outcome = "succeeded"
		}
		return fmt.Sprintf("turn %d: %s %s\n", turn.Index, turn.ToolResult.Tool, outcome)
	case turn.LLMMessage != nil:
		summary := turn.LLMMessage.ActionInput.Summary
		if summary == "" {
			summary = turn.LLMMessage.ActionInput.Final
		}
		return fmt.Sprintf("turn %d: %s %s\n", turn.Index, turn.LLMMessage.Action, oneLine(summary, 120))
	default:
		return fmt.Sprintf("turn %d\n", turn.Index)
	}
}

// renderTurn emits a recent turn as full JSON with oversized tool outputs
// replaced by a truncation marker.
func (b *Builder) renderTurn(turn *state.AgentTurn) string {
	view := map[string]interface{}{
		"index": turn.Index,
	}
	if turn.Synthetic {
		view["synthetic"] = true
	}
	if turn.LLMMessage != nil {
		view["llm_message"] = turn.LLMMessage
	}
	if turn.ToolCall != nil {
		view["tool_call"] = turn.ToolCall
	}
	if len(turn.ToolCalls) > 0 {
		view["tool_calls"] = turn.ToolCalls
	}
	if turn.ToolResult != nil {
		view["tool_result"] = b.resultView(turn.ToolResult)
	}
	if len(turn.ToolResults) > 0 {
		views := make([]map[string]interface{}, 0, len(turn.ToolResults))
		for i := range turn.ToolResults {
			views = append(views, b.resultView(&turn.ToolResults[i]))
		}
		view["tool_results"] = views
	}

	rendered, err := json.Marshal(view)
	if err != nil {
		return fmt.Sprintf("turn %d: <unrenderable: %v>\n", turn.Index, err)
	}
	return string(rendered) + "\n"
}

func (b *Builder) resultView(result *state.ToolExecutionResult) map[string]interface{} {
	view := map[string]interface{}{
		"success": result.Success,
		"tool":    result.Tool,
		"turn_id": result.TurnID,
	}
	if result.Error != "" {
		view["error"] = result.Error
	}
	if result.Output != nil {
		view["output"] = TruncateOutput(result.Output, b.opts.MaxToolOutputSize)
	}
	return view
}

// TruncateOutput replaces an output whose JSON rendering exceeds max bytes
// with a marker carrying the original size and a preview.
func TruncateOutput(output interface{}, max int) interface{} {
	rendered, err := json.Marshal(output)
	if err != nil || len(rendered) <= max {
		return output
	}
	return map[string]interface{}{
		"truncated":     true,
		"original_size": len(rendered),
		"preview":       string(rendered[:max]),
	}
}

// FunctionDefinitions converts the catalog into native function specs,
// sorted by name for a stable prompt.
func FunctionDefinitions(catalog []tools.ToolInfo) []llms.FunctionDefinition {
	defs := make([]llms.FunctionDefinition, 0, len(catalog))
	for _, info := range catalog {
		defs = append(defs, llms.FunctionDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  tools.FunctionSchema(info),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	return s
}
