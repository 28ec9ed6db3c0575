// Package llms defines the unified LLM adapter: one streaming method over
// which every provider, native function calling or plain text, is exposed
// to the engine.
package llms

import "context"

// Role identifies a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prompt message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FunctionDefinition describes a tool exposed for native function calling.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// FunctionCall is the model's request to invoke a declared function.
// Arguments arrive as the provider's raw JSON string.
type FunctionCall struct {
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments"`
}

// Usage carries provider token accounting, surfaced on the final chunk when
// available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseType tags how the provider actually answered.
type ResponseType string

const (
	ResponseText         ResponseType = "text"
	ResponseFunctionCall ResponseType = "function_call"
	ResponseStreaming    ResponseType = "streaming"
)

// StreamChunk is one unit of a provider stream. Text responses yield many
// streaming chunks then a final chunk; a function call yields exactly one
// final chunk with FunctionCall set; non-streaming text yields a single
// final chunk.
type StreamChunk struct {
	Content      string        `json:"content,omitempty"`
	IsFinal      bool          `json:"is_final"`
	FinishReason string        `json:"finish_reason,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	ResponseType ResponseType  `json:"actual_response_type"`
	Err          error         `json:"-"`
}

// Request is a unified generation request.
type Request struct {
	Model       string
	Messages    []Message
	Functions   []FunctionDefinition
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// LLM is the provider interface the engine consumes. Implementations must
// deliver exactly one IsFinal chunk, close the channel afterwards, and honor
// context cancellation.
type LLM interface {
	Name() string
	SupportsFunctionCalling() bool
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}
