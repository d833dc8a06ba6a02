package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morgana-run/morgana/pkg/chatclient"
)

func newRunning(t *testing.T, g *Guard) func() {
	t.Helper()
	g.Start(context.Background())
	return g.Stop
}

func TestGuard_TermFilterBlocksWithoutCallingLLM(t *testing.T) {
	mock := chatclient.NewMockClient(`{"compliant":true}`)
	g := New(mock, []string{"forbidden-phrase"}, "policy", time.Second)
	defer newRunning(t, g)()

	verdict, err := g.Check(context.Background(), "this contains a Forbidden-Phrase right here")
	require.NoError(t, err)
	assert.False(t, verdict.Compliant)
	assert.Equal(t, "forbidden-phrase", verdict.Violation)
}

func TestGuard_PolicyCheckParsesCompliantJSON(t *testing.T) {
	mock := chatclient.NewMockClient(`{"compliant":true}`)
	g := New(mock, nil, "policy", time.Second)
	defer newRunning(t, g)()

	verdict, err := g.Check(context.Background(), "hello there")
	require.NoError(t, err)
	assert.True(t, verdict.Compliant)
}

func TestGuard_PolicyCheckParsesViolationJSON(t *testing.T) {
	mock := chatclient.NewMockClient("```json\n" + `{"compliant":false,"violation":"harassment"}` + "\n```")
	g := New(mock, nil, "policy", time.Second)
	defer newRunning(t, g)()

	verdict, err := g.Check(context.Background(), "hello there")
	require.NoError(t, err)
	assert.False(t, verdict.Compliant)
	assert.Equal(t, "harassment", verdict.Violation)
}

func TestGuard_PolicyCheckFailsOpenOnUnparseableResponse(t *testing.T) {
	mock := chatclient.NewMockClient("not json at all")
	g := New(mock, nil, "policy", time.Second)
	defer newRunning(t, g)()

	verdict, err := g.Check(context.Background(), "hello there")
	require.NoError(t, err)
	assert.True(t, verdict.Compliant)
}

func TestGuard_NilChatClientFailsOpen(t *testing.T) {
	g := New(nil, nil, "policy", time.Second)
	defer newRunning(t, g)()

	verdict, err := g.Check(context.Background(), "hello there")
	require.NoError(t, err)
	assert.True(t, verdict.Compliant)
}

func TestGuard_RequestsSerializeThroughMailbox(t *testing.T) {
	mock := chatclient.NewMockClient(`{"compliant":true}`)
	g := New(mock, []string{"banned"}, "policy", time.Second)
	defer newRunning(t, g)()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, err := g.Check(context.Background(), "clean message")
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("guard checks did not complete in time")
	}
}
