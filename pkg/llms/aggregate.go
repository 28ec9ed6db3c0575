package llms

import (
	"strings"
)

// Response is the aggregate of one provider stream.
type Response struct {
	Text         string
	FunctionCall *FunctionCall
	FinishReason string
	Usage        *Usage
	ResponseType ResponseType
	Chunks       int
}

// HasFunctionCall reports whether the provider answered with a native
// function call.
func (r *Response) HasFunctionCall() bool {
	return r != nil && r.FunctionCall != nil
}

// Aggregate drains a provider stream into a single response. Per-chunk
// callbacks (if any) observe streamed content before accumulation; the
// first chunk-level error aborts aggregation and is returned.
func Aggregate(ch <-chan StreamChunk, onChunk ...func(StreamChunk)) (*Response, error) {
	var text strings.Builder
	resp := &Response{ResponseType: ResponseText}

	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		resp.Chunks++
		for _, fn := range onChunk {
			fn(chunk)
		}

		if chunk.Content != "" {
			text.WriteString(chunk.Content)
		}
		if chunk.FunctionCall != nil {
			resp.FunctionCall = chunk.FunctionCall
		}
		if chunk.Usage != nil {
			resp.Usage = chunk.Usage
		}
		if chunk.IsFinal {
			resp.FinishReason = chunk.FinishReason
			resp.ResponseType = chunk.ResponseType
		}
	}

	resp.Text = text.String()
	return resp, nil
}
