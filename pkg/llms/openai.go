package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/conductor/internal/httpclient"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	// Transient upstream failures (429, 5xx) are retried a bounded number
	// of times before surfacing to the caller.
	defaultMaxRetries = 2
	defaultBackoffCap = 5 * time.Second
)

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint
// (OpenAI, Azure gateways, Ollama's compatibility layer). It supports
// streaming text and native function calling.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	maxRetries int
	backoffCap time.Duration
}

// NewOpenAIProvider creates a provider for the given credentials. An empty
// baseURL targets api.openai.com.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		client:     &http.Client{}, // per-call deadlines come from the caller's context
		maxRetries: defaultMaxRetries,
		backoffCap: defaultBackoffCap,
	}
}

// Name implements LLM.
func (p *OpenAIProvider) Name() string { return "openai" }

// SupportsFunctionCalling implements LLM.
func (p *OpenAIProvider) SupportsFunctionCalling() bool { return true }

// Wire types for the chat-completions API.

type openAIRequest struct {
	Model         string           `json:"model"`
	Messages      []openAIMessage  `json:"messages"`
	Temperature   *float64         `json:"temperature,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	Stream        bool             `json:"stream"`
	StreamOptions *streamOptions   `json:"stream_options,omitempty"`
	Tools         []openAITool     `json:"tools,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage"`
	Error   *openAIError   `json:"error"`
}

type openAIChoice struct {
	Message      *openAIChoiceMessage `json:"message,omitempty"`
	Delta        *openAIChoiceMessage `json:"delta,omitempty"`
	FinishReason string               `json:"finish_reason"`
}

type openAIChoiceMessage struct {
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Stream implements LLM.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	body := p.buildRequest(req)

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		var err error
		if body.Stream {
			err = p.streamRequest(ctx, body, out)
		} else {
			err = p.blockingRequest(ctx, body, out)
		}
		if err != nil {
			select {
			case out <- StreamChunk{Err: err, IsFinal: true}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) buildRequest(req Request) openAIRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	body := openAIRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if body.Stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	for _, fn := range req.Functions {
		body.Tools = append(body.Tools, openAITool{Type: "function", Function: fn})
	}
	// Function calls arrive whole; streaming them adds nothing but
	// fragment reassembly.
	if len(body.Tools) > 0 {
		body.Stream = false
		body.StreamOptions = nil
	}
	return body
}

// post sends the request, retrying transient upstream failures up to
// maxRetries extra attempts. The wait between attempts honors the server's
// Retry-After hint when present, capped at backoffCap.
func (p *OpenAIProvider) post(ctx context.Context, body openAIRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		resp, err := p.postOnce(ctx, raw)
		if err == nil {
			return resp, nil
		}
		var retryable *httpclient.RetryableError
		if attempt >= p.maxRetries || !errors.As(err, &retryable) {
			return nil, err
		}
		if waitErr := p.wait(ctx, retryable.RetryAfter, attempt); waitErr != nil {
			return nil, err
		}
	}
}

func (p *OpenAIProvider) wait(ctx context.Context, retryAfter time.Duration, attempt int) error {
	delay := retryAfter
	if delay <= 0 {
		delay = time.Duration(1<<attempt) * time.Second
	}
	if delay > p.backoffCap {
		delay = p.backoffCap
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OpenAIProvider) postOnce(ctx context.Context, raw []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 32*1024))
		msg := parseErrorMessage(raw)
		if httpclient.RetryableStatus(resp.StatusCode) {
			return nil, &httpclient.RetryableError{
				StatusCode: resp.StatusCode,
				Message:    msg,
				RetryAfter: httpclient.ParseRetryAfter(resp.Header),
			}
		}
		return nil, fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}

func (p *OpenAIProvider) blockingRequest(ctx context.Context, body openAIRequest, out chan<- StreamChunk) error {
	resp, err := p.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("openai: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return fmt.Errorf("openai: response has no choices")
	}

	choice := decoded.Choices[0]
	chunk := StreamChunk{
		IsFinal:      true,
		FinishReason: choice.FinishReason,
		ResponseType: ResponseText,
	}
	if choice.Message != nil {
		chunk.Content = choice.Message.Content
		if len(choice.Message.ToolCalls) > 0 {
			call := choice.Message.ToolCalls[0]
			chunk.FunctionCall = &FunctionCall{
				Name:          call.Function.Name,
				ArgumentsJSON: call.Function.Arguments,
			}
			chunk.ResponseType = ResponseFunctionCall
		}
	}
	if decoded.Usage != nil {
		chunk.Usage = &Usage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		}
	}

	select {
	case out <- chunk:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *OpenAIProvider) streamRequest(ctx context.Context, body openAIRequest, out chan<- StreamChunk) error {
	resp, err := p.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var usage *Usage
	finishReason := ""

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var event openAIResponse
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			// Skip malformed keep-alive fragments.
			continue
		}
		if event.Usage != nil {
			usage = &Usage{
				PromptTokens:     event.Usage.PromptTokens,
				CompletionTokens: event.Usage.CompletionTokens,
				TotalTokens:      event.Usage.TotalTokens,
			}
		}
		if len(event.Choices) == 0 {
			continue
		}
		choice := event.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if choice.Delta != nil && choice.Delta.Content != "" {
			select {
			case out <- StreamChunk{Content: choice.Delta.Content, ResponseType: ResponseStreaming}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	final := StreamChunk{
		IsFinal:      true,
		FinishReason: finishReason,
		Usage:        usage,
		ResponseType: ResponseStreaming,
	}
	select {
	case out <- final:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func parseErrorMessage(raw []byte) string {
	var decoded openAIResponse
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != nil {
		return decoded.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = "no response body"
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

var _ LLM = (*OpenAIProvider)(nil)
