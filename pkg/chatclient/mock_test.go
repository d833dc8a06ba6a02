package chatclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestMockClient_ReturnsScriptedTextChunk(t *testing.T) {
	m := NewMockClient("hello there")

	ch, err := m.Generate(context.Background(), GenerateInput{}, nil)
	require.NoError(t, err)

	chunks := drain(t, ch)
	require.Len(t, chunks, 1)
	text, ok := chunks[0].(TextChunk)
	require.True(t, ok)
	assert.Equal(t, "hello there", text.Content)
}

func TestMockClient_InvokesToolCallsBeforeFinalText(t *testing.T) {
	m := &MockClient{
		Responses: []ScriptedResponse{
			{
				ToolCalls: []ToolCall{{ID: "1", Name: "SetContextVariable", Arguments: map[string]any{"key": "userId", "value": "P994E"}}},
				Text:      "done",
			},
		},
	}

	var invoked []ToolCall
	invoke := func(ctx context.Context, call ToolCall) (string, error) {
		invoked = append(invoked, call)
		return "ok", nil
	}

	ch, err := m.Generate(context.Background(), GenerateInput{}, invoke)
	require.NoError(t, err)
	chunks := drain(t, ch)

	require.Len(t, invoked, 1)
	assert.Equal(t, "SetContextVariable", invoked[0].Name)

	// The invoked tool's return value must shape the emitted text, not be
	// discarded once the callback returns.
	final, ok := chunks[len(chunks)-1].(TextChunk)
	require.True(t, ok)
	assert.Equal(t, "done ok", final.Content)
}

func TestMockClient_ToolErrorIsFoldedIntoFinalText(t *testing.T) {
	m := &MockClient{
		Responses: []ScriptedResponse{
			{ToolCalls: []ToolCall{{ID: "1", Name: "lookup_balance"}}},
		},
	}
	invoke := func(ctx context.Context, call ToolCall) (string, error) {
		return "", assert.AnError
	}

	ch, err := m.Generate(context.Background(), GenerateInput{}, invoke)
	require.NoError(t, err)
	chunks := drain(t, ch)

	final, ok := chunks[len(chunks)-1].(TextChunk)
	require.True(t, ok)
	assert.Contains(t, final.Content, "Error:")
	assert.Contains(t, final.Content, assert.AnError.Error())
}

func TestMockClient_FallsBackAfterResponsesExhausted(t *testing.T) {
	m := &MockClient{
		Responses: []ScriptedResponse{{Text: "first"}},
		Fallback:  ScriptedResponse{Text: "fallback"},
	}

	ch1, _ := m.Generate(context.Background(), GenerateInput{}, nil)
	first := drain(t, ch1)[0].(TextChunk)
	assert.Equal(t, "first", first.Content)

	ch2, _ := m.Generate(context.Background(), GenerateInput{}, nil)
	second := drain(t, ch2)[0].(TextChunk)
	assert.Equal(t, "fallback", second.Content)
}
