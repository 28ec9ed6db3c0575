package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinToolSource(t *testing.T) {
	source := NewBuiltinToolSource()
	require.NoError(t, source.DiscoverTools(context.Background()))

	names := make(map[string]bool)
	for _, info := range source.ListTools() {
		names[info.Name] = true
	}
	assert.True(t, names["clock"])
	assert.True(t, names["calc"])
}

func TestLocalSourceRejectsDuplicates(t *testing.T) {
	source := NewLocalToolSource("local")
	require.NoError(t, source.RegisterTool(NewClockTool()))
	assert.Error(t, source.RegisterTool(NewClockTool()))
}

func TestClockTool(t *testing.T) {
	clock := NewClockTool()

	result, err := clock.Execute(context.Background(), map[string]interface{}{"timezone": "UTC"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Content)

	result, err = clock.Execute(context.Background(), map[string]interface{}{"timezone": "Not/AZone"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown timezone")

	// Dedupe must be disabled: the answer changes every call.
	assert.False(t, clock.GetInfo().Dedupable())
}

func TestCalcTool(t *testing.T) {
	calc := NewCalcTool()

	cases := []struct {
		expr string
		want string
	}{
		{"2+3", "5"},
		{"(2 + 3) * 4", "20"},
		{"10 / 4", "2.5"},
		{"2^10", "1024"},
		{"-3 + 1", "-2"},
		{"10 % 3", "1"},
		{"1.5e2 + 50", "200"},
	}
	for _, tc := range cases {
		result, err := calc.Execute(context.Background(), map[string]interface{}{"expression": tc.expr})
		require.NoError(t, err, tc.expr)
		require.True(t, result.Success, "%s: %s", tc.expr, result.Error)
		assert.Equal(t, tc.want, result.Content, tc.expr)
	}
}

func TestCalcToolErrors(t *testing.T) {
	calc := NewCalcTool()

	for _, expr := range []string{"", "2 +", "1 / 0", "(2 + 3", "hello"} {
		result, err := calc.Execute(context.Background(), map[string]interface{}{"expression": expr})
		require.NoError(t, err, expr)
		assert.False(t, result.Success, expr)
		assert.NotEmpty(t, result.Error, expr)
	}
}

func TestRegistryExecuteTool(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.RegisterSource(NewBuiltinToolSource()))

	result, err := reg.ExecuteTool(context.Background(), "calc", map[string]interface{}{"expression": "6*7"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "42", result.Content)

	_, err = reg.ExecuteTool(context.Background(), "unknown", nil)
	assert.Error(t, err)
}

func TestRegistryListToolsSorted(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.RegisterSource(NewBuiltinToolSource()))

	infos := reg.ListTools()
	require.Len(t, infos, 2)
	assert.Equal(t, "calc", infos[0].Name)
	assert.Equal(t, "clock", infos[1].Name)
	assert.Equal(t, "local", infos[0].ServerURL)
}
