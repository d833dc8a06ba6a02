package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morgana-run/morgana/pkg/agentactor"
	"github.com/morgana-run/morgana/pkg/chatclient"
	"github.com/morgana-run/morgana/pkg/classifier"
	"github.com/morgana-run/morgana/pkg/guard"
	"github.com/morgana-run/morgana/pkg/manager"
	"github.com/morgana-run/morgana/pkg/persistence"
	"github.com/morgana-run/morgana/pkg/pushbridge"
	"github.com/morgana-run/morgana/pkg/router"
	"github.com/morgana-run/morgana/pkg/supervisor"
	"github.com/morgana-run/morgana/pkg/tooladapter"
)

func testFactory() ConversationFactory {
	return func(conversationID string) manager.Deps {
		guardMock := chatclient.NewMockClient(`{"compliant":true}`)
		classifyMock := chatclient.NewMockClient(`{"intent":"billing","confidence":0.9}`)
		g := guard.New(guardMock, nil, "policy", time.Second)
		c := classifier.New(classifyMock, []classifier.IntentDescriptor{{Name: "billing", Description: "billing questions"}})
		reg := router.NewRegistry([]agentactor.Spec{{Intent: "billing", Prompt: "you are a billing agent"}})
		rt := router.New(reg, chatclient.NewMockClient("Here are your invoices"), tooladapter.DefaultNormalizationConfig())
		sup := supervisor.New(g, c, rt, time.Second)
		return manager.Deps{Guard: g, Classifier: c, Router: rt, Supervisor: sup}
	}
}

func newTestServer(t *testing.T) (*Server, persistence.Store) {
	t.Helper()
	store := persistence.NewMemoryStore()
	push := pushbridge.New(store, time.Second, 30*time.Second)
	reg := manager.NewRegistry()
	s := NewServer(reg, testFactory(), push, store, time.Hour)
	require.NoError(t, s.ValidateWiring())
	return s, store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestServer_ValidateWiringFailsWhenDepsMissing(t *testing.T) {
	s := &Server{}
	err := s.ValidateWiring()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manager registry not set")
	assert.Contains(t, err.Error(), "conversation factory not set")
}

func TestServer_CreateConversationReturns202(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/conversations", CreateConversationRequest{ConversationID: "c1"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_SendMessageOnUnknownConversationStartsIt(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/conversations/missing/messages", SendMessageRequest{Text: "hi"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	_, ok := s.registry.Get("missing")
	assert.True(t, ok)
}

func TestServer_CreateThenSendMessageThenHistory(t *testing.T) {
	s, store := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/conversations", CreateConversationRequest{ConversationID: "c1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/conversations/c1/messages", SendMessageRequest{Text: "show my invoices"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		h, _ := store.History(context.Background(), "c1", 0)
		return len(h) == 1
	}, time.Second, 10*time.Millisecond)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/conversations/c1/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_TerminateStopsConversation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/conversations", CreateConversationRequest{ConversationID: "c1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/conversations/c1/terminate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		_, ok := s.registry.Get("c1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestServer_HealthReportsActiveConversationCount(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/conversations", CreateConversationRequest{ConversationID: "c1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["activeConversations"])
}
