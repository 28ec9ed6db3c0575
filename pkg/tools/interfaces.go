// Package tools defines the tool abstraction: descriptors with declared
// parameter schemas, sources that discover tools, a registry that unifies
// them, and the executor that validates and runs calls on behalf of the
// engine.
package tools

import (
	"context"
	"time"
)

// ToolInfo describes a tool to the model and to the dedupe layer.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
	ServerURL   string          `json:"server_url,omitempty"`

	// AllowDedupe opts the tool out of result caching when set to false.
	// Unset means dedupe is allowed.
	AllowDedupe *bool `json:"allow_dedupe,omitempty"`

	// CustomTTL overrides the engine-wide cache staleness threshold.
	CustomTTL time.Duration `json:"custom_ttl,omitempty"`
}

// Dedupable reports whether cached results may be returned for this tool.
func (i ToolInfo) Dedupable() bool {
	return i.AllowDedupe == nil || *i.AllowDedupe
}

type ToolParameter struct {
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Required    bool                   `json:"required"`
	Default     interface{}            `json:"default,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Items       map[string]interface{} `json:"items,omitempty"`
}

// ToolResult is the raw outcome of one tool invocation, before the executor
// classifies it.
type ToolResult struct {
	Success       bool                   `json:"success"`
	Content       string                 `json:"content,omitempty"`
	Output        interface{}            `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ToolName      string                 `json:"tool_name"`
	ExecutionTime time.Duration          `json:"execution_time,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error)

	GetName() string

	GetDescription() string
}

type ToolSource interface {
	GetName() string

	GetType() string

	DiscoverTools(ctx context.Context) error

	ListTools() []ToolInfo

	GetTool(name string) (Tool, bool)
}
