package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kadirpekel/conductor/pkg/llms"
	"github.com/kadirpekel/conductor/pkg/state"
)

// defaultThoughts stands in when a function-calling reply carries no
// assistant prose.
const defaultThoughts = "Calling a tool to make progress on the goal."

// NormalizeFunctionCall converts a native function call into the engine's
// decision shape: the "functions." namespace prefix is stripped, argument
// numbers are narrowed to the smallest lossless type, and thoughts are
// synthesized from assistant prose when present.
func NormalizeFunctionCall(call *llms.FunctionCall, assistantText string) (*state.ModelMessage, error) {
	name := strings.TrimPrefix(call.Name, "functions.")
	if name == "" {
		return nil, fmt.Errorf("function call has no name")
	}

	params, err := decodeArguments(call.ArgumentsJSON)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", name, err)
	}

	thoughts := strings.TrimSpace(assistantText)
	if thoughts == "" {
		thoughts = defaultThoughts
	}

	return &state.ModelMessage{
		Thoughts: thoughts,
		Action:   state.ActionToolCall,
		ActionInput: state.ActionInput{
			Tool:   name,
			Params: params,
		},
	}, nil
}

func decodeArguments(argumentsJSON string) (map[string]interface{}, error) {
	if strings.TrimSpace(argumentsJSON) == "" {
		return map[string]interface{}{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(argumentsJSON)))
	dec.UseNumber()

	var params map[string]interface{}
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return narrowMap(params), nil
}

func narrowMap(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		m[k] = narrowValue(v)
	}
	return m
}

func narrowValue(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		return narrowNumber(val)
	case map[string]interface{}:
		return narrowMap(val)
	case []interface{}:
		for i := range val {
			val[i] = narrowValue(val[i])
		}
		return val
	default:
		return v
	}
}

// narrowNumber picks the smallest type that represents the value exactly:
// int32, then int64, then float64.
func narrowNumber(n json.Number) interface{} {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i)
		}
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	// Out-of-range integers keep their lexical form.
	return n
}
