package mcpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawArguments_Empty(t *testing.T) {
	result, err := ParseRawArguments("")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, result)
}

func TestParseRawArguments_JSONObject(t *testing.T) {
	result, err := ParseRawArguments(`{"namespace": "default", "limit": 10}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"namespace": "default", "limit": float64(10)}, result)
}

func TestParseRawArguments_JSONArrayWrapsInInput(t *testing.T) {
	result, err := ParseRawArguments(`["pod1", "pod2"]`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"input": []any{"pod1", "pod2"}}, result)
}

func TestParseRawArguments_YAMLWithNestedList(t *testing.T) {
	input := "namespaces:\n  - default\n  - kube-system\nlabel: app=nginx"
	result, err := ParseRawArguments(input)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"namespaces": []any{"default", "kube-system"},
		"label":      "app=nginx",
	}, result)
}

func TestParseRawArguments_SimpleKeyValueFallsToKeyValueNotYAML(t *testing.T) {
	result, err := ParseRawArguments("namespace: default")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"namespace": "default"}, result)
}

func TestParseRawArguments_CommaSeparatedKeyValue(t *testing.T) {
	result, err := ParseRawArguments("namespace: default, limit: 10")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"namespace": "default", "limit": int64(10)}, result)
}

func TestParseRawArguments_RawStringFallback(t *testing.T) {
	result, err := ParseRawArguments("get all pods in the default namespace")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"input": "get all pods in the default namespace"}, result)
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected any
	}{
		{"true", "true", true},
		{"False", "False", false},
		{"none", "none", nil},
		{"integer", "42", int64(42)},
		{"negative", "-5", int64(-5)},
		{"float", "3.14", 3.14},
		{"NaN stays string", "NaN", "NaN"},
		{"Inf stays string", "Inf", "Inf"},
		{"string", "hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, coerceValue(tt.input))
		})
	}
}
