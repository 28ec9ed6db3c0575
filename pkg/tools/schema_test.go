package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchToolInfo() ToolInfo {
	return ToolInfo{
		Name: "search",
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Required: true},
			{Name: "limit", Type: "integer", Required: false},
			{Name: "mode", Type: "string", Enum: []string{"fast", "deep"}},
		},
	}
}

func TestFunctionSchema(t *testing.T) {
	schema := FunctionSchema(searchToolInfo())

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"query"}, schema["required"])

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, props, "query")
	require.Contains(t, props, "limit")

	limit := props["limit"].(map[string]interface{})
	assert.Equal(t, "integer", limit["type"])
}

func TestValidateArgsMissingRequired(t *testing.T) {
	verr := ValidateArgs(searchToolInfo(), map[string]interface{}{"limit": 3})
	require.NotNil(t, verr)
	assert.Equal(t, []string{"query"}, verr.Missing)
	assert.Contains(t, verr.Error(), "query")
}

func TestValidateArgsTypeMismatch(t *testing.T) {
	verr := ValidateArgs(searchToolInfo(), map[string]interface{}{
		"query": "go concurrency",
		"limit": "ten",
	})
	require.NotNil(t, verr)
	assert.Empty(t, verr.Missing)
	require.Len(t, verr.FieldErrors, 1)
	assert.Contains(t, verr.FieldErrors[0], "limit")
}

func TestValidateArgsJSONDecodedNumbers(t *testing.T) {
	// JSON decoding yields float64 for every number; integral values must
	// pass integer parameters.
	assert.Nil(t, ValidateArgs(searchToolInfo(), map[string]interface{}{
		"query": "x",
		"limit": float64(10),
	}))

	verr := ValidateArgs(searchToolInfo(), map[string]interface{}{
		"query": "x",
		"limit": float64(10.5),
	})
	require.NotNil(t, verr)
}

func TestValidateArgsEnum(t *testing.T) {
	assert.Nil(t, ValidateArgs(searchToolInfo(), map[string]interface{}{
		"query": "x",
		"mode":  "fast",
	}))

	verr := ValidateArgs(searchToolInfo(), map[string]interface{}{
		"query": "x",
		"mode":  "slow",
	})
	require.NotNil(t, verr)
	assert.Contains(t, verr.FieldErrors[0], "must be one of")
}

func TestValidateArgsOptionalAbsent(t *testing.T) {
	assert.Nil(t, ValidateArgs(searchToolInfo(), map[string]interface{}{"query": "x"}))
}

func TestRequiredFieldsSorted(t *testing.T) {
	info := ToolInfo{
		Name: "t",
		Parameters: []ToolParameter{
			{Name: "zeta", Required: true},
			{Name: "alpha", Required: true},
			{Name: "opt"},
		},
	}
	assert.Equal(t, []string{"alpha", "zeta"}, RequiredFields(info))
}

func TestDedupable(t *testing.T) {
	assert.True(t, ToolInfo{Name: "t"}.Dedupable())

	no := false
	assert.False(t, ToolInfo{Name: "t", AllowDedupe: &no}.Dedupable())
}
