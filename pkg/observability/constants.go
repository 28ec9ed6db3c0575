package observability

const (
	AttrServiceName    = "service.name"
	AttrAgentID        = "agent.id"
	AttrToolName       = "tool.name"
	AttrLLMModel       = "llm.model"
	AttrLLMTokensIn    = "llm.tokens.input"
	AttrLLMTokensOut   = "llm.tokens.output"
	AttrTurnIndex      = "turn.index"
	AttrDedupeCacheHit = "dedupe.cache_hit"
	AttrErrorType      = "error.type"

	SpanRun           = "engine.run"
	SpanStep          = "engine.step"
	SpanLLMRequest    = "engine.llm_request"
	SpanToolExecution = "engine.tool_execution"
	SpanReasoning     = "engine.reasoning"
)
