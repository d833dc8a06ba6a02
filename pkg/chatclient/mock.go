package chatclient

import (
	"context"
	"fmt"
	"strings"
)

// ScriptedResponse is one canned reply a MockClient returns for the Nth call
// to Generate on that client (one call count shared by every conversation
// ID), or the catch-all fallback when Responses is exhausted.
type ScriptedResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// MockClient is a deterministic, in-process ChatClient used by unit and
// integration tests in place of a real LLM/gRPC sidecar — the same role the
// teacher's test/e2e/mock_llm.go fake plays for controller-level tests.
type MockClient struct {
	// Responses, if set, is consumed one entry per call to Generate
	// (FIFO); once exhausted, Fallback is used for all further calls.
	Responses []ScriptedResponse
	Fallback  ScriptedResponse

	calls int
}

// NewMockClient builds a MockClient that always returns a single scripted
// text response.
func NewMockClient(text string) *MockClient {
	return &MockClient{Fallback: ScriptedResponse{Text: text}}
}

func (m *MockClient) next() ScriptedResponse {
	if m.calls < len(m.Responses) {
		r := m.Responses[m.calls]
		m.calls++
		return r
	}
	m.calls++
	return m.Fallback
}

// Generate streams the next scripted response as a sequence of ToolCallChunk
// (one per ToolCall, invoking each through invoke) followed by a single
// TextChunk, then closes the channel. Each invoked tool's result is folded
// into the emitted text — the same round-trip the real sidecar performs by
// feeding the result back into the conversation before replying — so a test
// that forgets to react to a tool's output fails instead of passing silently.
func (m *MockClient) Generate(ctx context.Context, input GenerateInput, invoke ToolInvoker) (<-chan Chunk, error) {
	resp := m.next()
	ch := make(chan Chunk, len(resp.ToolCalls)+1)

	var results []string
	for _, call := range resp.ToolCalls {
		if invoke != nil {
			result, err := invoke(ctx, call)
			if err != nil {
				result = fmt.Sprintf("Error: %s", err.Error())
			}
			results = append(results, result)
		}
		ch <- ToolCallChunk{CallID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}

	text := resp.Text
	if len(results) > 0 {
		joined := strings.Join(results, "; ")
		if text != "" {
			text = text + " " + joined
		} else {
			text = joined
		}
	}
	ch <- TextChunk{Content: text}
	close(ch)
	return ch, nil
}

// Close is a no-op for MockClient.
func (m *MockClient) Close() error { return nil }
