// Package config defines the engine configuration surface.
//
// Every recognized option has a YAML tag, a default applied by SetDefaults,
// and a constraint enforced by Validate. Zero values always mean "use the
// default" so a partially specified file is valid.
package config

import (
	"fmt"
	"time"
)

// ReasoningType selects the reasoning engine consulted by the orchestrator.
type ReasoningType string

const (
	ReasoningNone           ReasoningType = "none"
	ReasoningChainOfThought ReasoningType = "chain_of_thought"
	ReasoningTreeOfThoughts ReasoningType = "tree_of_thoughts"
	ReasoningHybrid         ReasoningType = "hybrid"
)

// Config is the full engine configuration.
type Config struct {
	// Turn loop
	MaxTurns    int           `yaml:"max_turns"`
	LLMTimeout  time.Duration `yaml:"llm_timeout"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// Decoding
	UseFunctionCalling bool `yaml:"use_function_calling"`
	EmitPublicStatus   bool `yaml:"emit_public_status"`

	// History windowing. Summarization defaults to on; set the flag to
	// false to render every turn in full.
	MaxRecentTurns             int   `yaml:"max_recent_turns"`
	EnableHistorySummarization *bool `yaml:"enable_history_summarization"`
	MaxToolOutputSize          int   `yaml:"max_tool_output_size"`
	MaxContextTokens           int   `yaml:"max_context_tokens"`

	// Dedupe and loop detection
	DedupeStalenessThreshold    time.Duration `yaml:"dedupe_staleness_threshold"`
	MaxToolCallHistory          int           `yaml:"max_tool_call_history"`
	ConsecutiveFailureThreshold int           `yaml:"consecutive_failure_threshold"`

	// Tool catalog rendering
	UseCentralizedSchemas bool `yaml:"use_centralized_schemas"`

	Reasoning ReasoningConfig `yaml:"reasoning"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ReasoningConfig configures the optional reasoning engines.
type ReasoningConfig struct {
	Type                ReasoningType `yaml:"type"`
	MaxReasoningSteps   int           `yaml:"max_reasoning_steps"`
	EnableValidation    bool          `yaml:"enable_reasoning_validation"`
	MinConfidence       float64       `yaml:"min_reasoning_confidence"`
	MaxTreeDepth        int           `yaml:"max_tree_depth"`
	MaxTreeNodes        int           `yaml:"max_tree_nodes"`
	ExplorationStrategy string        `yaml:"tree_exploration_strategy"`
}

// LLMConfig configures the provider used by the communicator.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "scripted"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Streaming   *bool   `yaml:"streaming"`
}

// StoreConfig selects the state store backend.
type StoreConfig struct {
	Type string `yaml:"type"` // "memory", "file", "sqlite"
	Path string `yaml:"path"` // directory for file, db path for sqlite
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default values for the turn loop and its support subsystems.
const (
	DefaultMaxTurns                    = 25
	DefaultLLMTimeout                  = 2 * time.Minute
	DefaultToolTimeout                 = time.Minute
	DefaultMaxRecentTurns              = 5
	DefaultMaxToolOutputSize           = 8 * 1024
	DefaultMaxContextTokens            = 32 * 1024
	DefaultDedupeStaleness             = 10 * time.Minute
	DefaultMaxToolCallHistory          = 20
	DefaultConsecutiveFailureThreshold = 2
	DefaultMaxReasoningSteps           = 4
	DefaultMinReasoningConfidence      = 0.5
	DefaultMaxTreeDepth                = 3
	DefaultMaxTreeNodes                = 15
)

// SummarizeHistory reports whether turns older than the recency window
// compact to one-line summaries. Unset means yes.
func (c *Config) SummarizeHistory() bool {
	return c.EnableHistorySummarization == nil || *c.EnableHistorySummarization
}

// SetDefaults fills in zero values.
func (c *Config) SetDefaults() {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = DefaultLLMTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.MaxRecentTurns <= 0 {
		c.MaxRecentTurns = DefaultMaxRecentTurns
	}
	if c.MaxToolOutputSize <= 0 {
		c.MaxToolOutputSize = DefaultMaxToolOutputSize
	}
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.DedupeStalenessThreshold <= 0 {
		c.DedupeStalenessThreshold = DefaultDedupeStaleness
	}
	if c.MaxToolCallHistory <= 0 {
		c.MaxToolCallHistory = DefaultMaxToolCallHistory
	}
	if c.ConsecutiveFailureThreshold <= 0 {
		c.ConsecutiveFailureThreshold = DefaultConsecutiveFailureThreshold
	}
	c.Reasoning.SetDefaults()
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// SetDefaults fills in zero values.
func (r *ReasoningConfig) SetDefaults() {
	if r.Type == "" {
		r.Type = ReasoningNone
	}
	if r.MaxReasoningSteps <= 0 {
		r.MaxReasoningSteps = DefaultMaxReasoningSteps
	}
	if r.MinConfidence <= 0 {
		r.MinConfidence = DefaultMinReasoningConfidence
	}
	if r.MaxTreeDepth <= 0 {
		r.MaxTreeDepth = DefaultMaxTreeDepth
	}
	if r.MaxTreeNodes <= 0 {
		r.MaxTreeNodes = DefaultMaxTreeNodes
	}
	if r.ExplorationStrategy == "" {
		r.ExplorationStrategy = "best_first"
	}
}

// Validate checks cross-field constraints. Call after SetDefaults.
func (c *Config) Validate() error {
	if c.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be >= 1, got %d", c.MaxTurns)
	}
	switch c.Reasoning.Type {
	case ReasoningNone, ReasoningChainOfThought, ReasoningTreeOfThoughts, ReasoningHybrid:
	default:
		return fmt.Errorf("unknown reasoning type %q", c.Reasoning.Type)
	}
	switch c.Reasoning.ExplorationStrategy {
	case "best_first", "breadth_first", "depth_first", "beam_search", "monte_carlo":
	default:
		return fmt.Errorf("unknown tree exploration strategy %q", c.Reasoning.ExplorationStrategy)
	}
	if c.Reasoning.MinConfidence < 0 || c.Reasoning.MinConfidence > 1 {
		return fmt.Errorf("min_reasoning_confidence must be in [0,1], got %v", c.Reasoning.MinConfidence)
	}
	switch c.Store.Type {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store type %q requires a path", c.Store.Type)
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	return nil
}
