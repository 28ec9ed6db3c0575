package llms

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedProvider replays a fixed sequence of responses, one per Stream
// call. It backs deterministic engine tests and the offline demo mode.
type ScriptedProvider struct {
	mu        sync.Mutex
	name      string
	functions bool
	script    []ScriptedResponse
	cursor    int
}

// ScriptedResponse is one canned reply. Chunks (when set) are streamed
// verbatim before the final chunk; otherwise Text is delivered whole.
type ScriptedResponse struct {
	Text         string
	Chunks       []string
	FunctionCall *FunctionCall
	FinishReason string
	Err          error
}

// NewScriptedProvider creates a provider that replays script in order.
func NewScriptedProvider(name string, script ...ScriptedResponse) *ScriptedProvider {
	return &ScriptedProvider{name: name, functions: true, script: script}
}

// WithoutFunctionCalling makes the provider report no native tool support,
// forcing callers onto the text protocol.
func (p *ScriptedProvider) WithoutFunctionCalling() *ScriptedProvider {
	p.functions = false
	return p
}

// Append adds responses to the end of the script.
func (p *ScriptedProvider) Append(responses ...ScriptedResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, responses...)
}

// Calls reports how many Stream calls have been made.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Name implements LLM.
func (p *ScriptedProvider) Name() string { return p.name }

// SupportsFunctionCalling implements LLM.
func (p *ScriptedProvider) SupportsFunctionCalling() bool { return p.functions }

// Stream implements LLM. It fails once the script is exhausted so tests
// catch unexpected extra turns.
func (p *ScriptedProvider) Stream(ctx context.Context, _ Request) (<-chan StreamChunk, error) {
	p.mu.Lock()
	if p.cursor >= len(p.script) {
		call := p.cursor
		p.mu.Unlock()
		return nil, fmt.Errorf("scripted provider %q: no response for call %d", p.name, call+1)
	}
	resp := p.script[p.cursor]
	p.cursor++
	p.mu.Unlock()

	out := make(chan StreamChunk, len(resp.Chunks)+1)
	go func() {
		defer close(out)

		if resp.Err != nil {
			p.deliver(ctx, out, StreamChunk{Err: resp.Err, IsFinal: true})
			return
		}

		final := StreamChunk{
			IsFinal:      true,
			FinishReason: resp.FinishReason,
			ResponseType: ResponseText,
		}
		switch {
		case resp.FunctionCall != nil:
			final.FunctionCall = resp.FunctionCall
			final.ResponseType = ResponseFunctionCall
		case len(resp.Chunks) > 0:
			final.ResponseType = ResponseStreaming
			for _, c := range resp.Chunks {
				if !p.deliver(ctx, out, StreamChunk{Content: c, ResponseType: ResponseStreaming}) {
					return
				}
			}
		default:
			final.Content = resp.Text
		}
		p.deliver(ctx, out, final)
	}()
	return out, nil
}

func (p *ScriptedProvider) deliver(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ LLM = (*ScriptedProvider)(nil)
