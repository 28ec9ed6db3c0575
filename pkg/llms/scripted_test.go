package llms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedProviderReplaysInOrder(t *testing.T) {
	p := NewScriptedProvider("test",
		ScriptedResponse{Text: "first"},
		ScriptedResponse{FunctionCall: &FunctionCall{Name: "calc", ArgumentsJSON: `{"expr":"1+1"}`}},
	)

	ch, err := p.Stream(context.Background(), Request{})
	require.NoError(t, err)
	resp, err := Aggregate(ch)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	ch, err = p.Stream(context.Background(), Request{})
	require.NoError(t, err)
	resp, err = Aggregate(ch)
	require.NoError(t, err)
	require.True(t, resp.HasFunctionCall())
	assert.Equal(t, "calc", resp.FunctionCall.Name)
	assert.Equal(t, 2, p.Calls())
}

func TestScriptedProviderStreamsChunks(t *testing.T) {
	p := NewScriptedProvider("test", ScriptedResponse{Chunks: []string{"one ", "two"}, FinishReason: "stop"})

	ch, err := p.Stream(context.Background(), Request{})
	require.NoError(t, err)
	resp, err := Aggregate(ch)
	require.NoError(t, err)
	assert.Equal(t, "one two", resp.Text)
	assert.Equal(t, ResponseStreaming, resp.ResponseType)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestScriptedProviderExhausted(t *testing.T) {
	p := NewScriptedProvider("test", ScriptedResponse{Text: "only"})

	ch, err := p.Stream(context.Background(), Request{})
	require.NoError(t, err)
	_, err = Aggregate(ch)
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), Request{})
	assert.ErrorContains(t, err, "no response for call 2")
}

func TestScriptedProviderError(t *testing.T) {
	p := NewScriptedProvider("test", ScriptedResponse{Err: assert.AnError})

	ch, err := p.Stream(context.Background(), Request{})
	require.NoError(t, err)
	_, err = Aggregate(ch)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestScriptedProviderWithoutFunctionCalling(t *testing.T) {
	p := NewScriptedProvider("test").WithoutFunctionCalling()
	assert.False(t, p.SupportsFunctionCalling())
}
