package llms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/internal/httpclient"
)

func TestOpenAIStreamingText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n" +
				`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" +
				`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}` + "\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o", server.URL)
	ch, err := p.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Stream:   true,
	})
	require.NoError(t, err)

	resp, err := Aggregate(ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestOpenAIFunctionCallDisablesStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "clock", req.Tools[0].Function.Name)

		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"","tool_calls":[{"function":{"name":"clock","arguments":"{\"tz\":\"UTC\"}"}}]},"finish_reason":"tool_calls"}],
			"usage":{"prompt_tokens":20,"completion_tokens":8,"total_tokens":28}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", "gpt-4o", server.URL)
	ch, err := p.Stream(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "time?"}},
		Functions: []FunctionDefinition{{Name: "clock"}},
		Stream:    true,
	})
	require.NoError(t, err)

	resp, err := Aggregate(ch)
	require.NoError(t, err)
	require.True(t, resp.HasFunctionCall())
	assert.Equal(t, "clock", resp.FunctionCall.Name)
	assert.JSONEq(t, `{"tz":"UTC"}`, resp.FunctionCall.ArgumentsJSON)
	assert.Equal(t, ResponseFunctionCall, resp.ResponseType)
}

func TestOpenAIRetryableErrorExhaustsRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", "gpt-4o", server.URL)
	p.backoffCap = time.Millisecond // keep the Retry-After hint from stalling the test
	ch, err := p.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	_, err = Aggregate(ch)
	var retryable *httpclient.RetryableError
	require.True(t, errors.As(err, &retryable))
	assert.Equal(t, http.StatusTooManyRequests, retryable.StatusCode)
	assert.Equal(t, "rate limited", retryable.Message)
	assert.Equal(t, float64(10), retryable.RetryAfter.Seconds())
	assert.Equal(t, 1+defaultMaxRetries, attempts)
}

func TestOpenAIRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", "gpt-4o", server.URL)
	p.backoffCap = time.Millisecond
	ch, err := p.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	resp, err := Aggregate(ch)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestOpenAIFatalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", "gpt-4o", server.URL)
	ch, err := p.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	_, err = Aggregate(ch)
	require.Error(t, err)
	var retryable *httpclient.RetryableError
	assert.False(t, errors.As(err, &retryable))
	assert.ErrorContains(t, err, "bad key")
}

func TestOpenAIBlockingText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "custom-model", req.Model)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", "gpt-4o", server.URL)
	ch, err := p.Stream(context.Background(), Request{
		Model:    "custom-model",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	resp, err := Aggregate(ch)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, ResponseText, resp.ResponseType)
}
