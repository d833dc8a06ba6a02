package tooladapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/toolctx"
)

type failingTool struct{}

func (failingTool) Definition() morgana.ToolDefinition {
	return morgana.ToolDefinition{Name: "Boom", Parameters: nil}
}

func (failingTool) Invoke(context.Context, map[string]any) (string, error) {
	return "", errors.New("downstream exploded")
}

func TestAdapter_ToolFailureBecomesErrorString(t *testing.T) {
	a := New([]LocalTool{failingTool{}}, toolctx.New(nil, nil), DefaultNormalizationConfig())

	result := a.Invoke(context.Background(), "Boom", map[string]any{})

	assert.Equal(t, "Error: downstream exploded", result)
}

func TestAdapter_UnknownToolIsErrorString(t *testing.T) {
	a := New(nil, toolctx.New(nil, nil), DefaultNormalizationConfig())

	result := a.Invoke(context.Background(), "DoesNotExist", map[string]any{})

	assert.Contains(t, result, "Error:")
	assert.Contains(t, result, "unknown tool")
}

func TestAdapter_SetQuickRepliesThenConsumeIsIdempotent(t *testing.T) {
	a := New(nil, toolctx.New(nil, nil), DefaultNormalizationConfig())

	result := a.Invoke(context.Background(), "SetQuickReplies", map[string]any{
		"replies": `[{"id":"yes","label":"Yes","value":"yes"}]`,
	})
	require.Equal(t, "quick replies stashed", result)

	first := a.ConsumePendingQuickReplies()
	require.Len(t, first, 1)
	assert.Equal(t, "yes", first[0].ID)

	second := a.ConsumePendingQuickReplies()
	assert.Empty(t, second, "second consume call must yield empty")
}

func TestAdapter_ContextScopedParameterResolvedFromProvider(t *testing.T) {
	ctxProvider := toolctx.New(nil, nil)
	ctxProvider.Set("userId", "P994E")

	tool := contextScopedTool{}
	a := New([]LocalTool{tool}, ctxProvider, DefaultNormalizationConfig())

	result := a.Invoke(context.Background(), "WhoAmI", map[string]any{})

	assert.Equal(t, "P994E", result)
}

type contextScopedTool struct{}

func (contextScopedTool) Definition() morgana.ToolDefinition {
	return morgana.ToolDefinition{
		Name: "WhoAmI",
		Parameters: []morgana.ToolParameter{
			{Name: "userId", Required: true, Scope: morgana.ScopeContext, JSONType: "string"},
		},
	}
}

func (contextScopedTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	return args["userId"].(string), nil
}
