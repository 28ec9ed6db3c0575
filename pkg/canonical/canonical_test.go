package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalOrdersObjectKeys(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"zebra": 1,
		"alpha": 2,
		"mid":   3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zebra":1}`, string(out))
}

func TestMarshalPreservesArrayOrder(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"items": []interface{}{"c", "a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"items":["c","a","b"]}`, string(out))
}

func TestMarshalNestedObjects(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"outer": map[string]interface{}{
			"b": true,
			"a": nil,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"outer":{"a":null,"b":true}}`, string(out))
}

func TestMarshalPreservesNumberLexicalForm(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"trailing zero", `{"v":1.50}`, `{"v":1.50}`},
		{"exponent", `{"v":1e3}`, `{"v":1e3}`},
		{"plain int", `{"v":42}`, `{"v":42}`},
		{"negative", `{"v":-0.5}`, `{"v":-0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestMarshalStringEscaping(t *testing.T) {
	out, err := Marshal(map[string]interface{}{"q": "line\n\"quoted\""})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "line\n\"quoted\"", decoded["q"])
}

func TestHashToolCallKeyOrderIndependent(t *testing.T) {
	h1, err := HashToolCall("add", map[string]interface{}{"a": 2, "b": 3})
	require.NoError(t, err)
	h2, err := HashToolCall("add", map[string]interface{}{"b": 3, "a": 2})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded 256 bits
}

func TestHashToolCallDistinguishesTools(t *testing.T) {
	params := map[string]interface{}{"x": 1}

	h1, err := HashToolCall("read", params)
	require.NoError(t, err)
	h2, err := HashToolCall("write", params)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestHashToolCallDistinguishesParams(t *testing.T) {
	h1, err := HashToolCall("add", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	h2, err := HashToolCall("add", map[string]interface{}{"a": 2})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestHashRawToolCallMatchesDecodedHash(t *testing.T) {
	raw, err := HashRawToolCall("add", []byte(`{"b":3,"a":2}`))
	require.NoError(t, err)

	decoded, err := HashToolCall("add", map[string]interface{}{
		"a": json.Number("2"),
		"b": json.Number("3"),
	})
	require.NoError(t, err)

	assert.Equal(t, decoded, raw)
}

func TestHashRawToolCallEmptyParams(t *testing.T) {
	h1, err := HashRawToolCall("slow", nil)
	require.NoError(t, err)
	h2, err := HashToolCall("slow", nil)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestMarshalFloatsMatchJSONNumbers(t *testing.T) {
	// Parameters arriving in-process as Go ints/floats must hash the same as
	// the identical values decoded from JSON.
	inProcess, err := Marshal(map[string]interface{}{"a": 2, "b": 3.0})
	require.NoError(t, err)
	fromJSON, err := Marshal(json.RawMessage(`{"a":2,"b":3}`))
	require.NoError(t, err)

	assert.Equal(t, string(fromJSON), string(inProcess))
}

func TestMarshalRejectsNonFinite(t *testing.T) {
	_, err := Marshal(map[string]interface{}{"v": 1.0 / zero()})
	assert.Error(t, err)
}

func zero() float64 { return 0 }
