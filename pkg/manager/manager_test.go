package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morgana-run/morgana/pkg/agentactor"
	"github.com/morgana-run/morgana/pkg/chatclient"
	"github.com/morgana-run/morgana/pkg/classifier"
	"github.com/morgana-run/morgana/pkg/guard"
	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/persistence"
	"github.com/morgana-run/morgana/pkg/router"
	"github.com/morgana-run/morgana/pkg/supervisor"
	"github.com/morgana-run/morgana/pkg/tooladapter"
)

type recordingPublisher struct {
	mu   sync.Mutex
	resp []morgana.ConversationResponse
}

func (p *recordingPublisher) PublishResponse(resp morgana.ConversationResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resp = append(p.resp, resp)
}

func (p *recordingPublisher) last() (morgana.ConversationResponse, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.resp) == 0 {
		return morgana.ConversationResponse{}, false
	}
	return p.resp[len(p.resp)-1], true
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resp)
}

func buildTestManager(t *testing.T, conversationID string, idleTimeout time.Duration, store persistence.Store, push Publisher, onStopped func(string)) *Manager {
	t.Helper()
	guardMock := chatclient.NewMockClient(`{"compliant":true}`)
	classifyMock := chatclient.NewMockClient(`{"intent":"billing","confidence":0.9}`)
	g := guard.New(guardMock, nil, "policy", time.Second)
	c := classifier.New(classifyMock, []classifier.IntentDescriptor{{Name: "billing", Description: "billing questions"}})
	reg := router.NewRegistry([]agentactor.Spec{{Intent: "billing", Prompt: "you are a billing agent"}})
	rt := router.New(reg, chatclient.NewMockClient("Here are your invoices"), tooladapter.DefaultNormalizationConfig())
	sup := supervisor.New(g, c, rt, time.Second)

	return New(conversationID, Deps{Guard: g, Classifier: c, Router: rt, Supervisor: sup}, push, store, idleTimeout, onStopped)
}

func TestManager_UserMessagePublishesAndPersistsTurn(t *testing.T) {
	push := &recordingPublisher{}
	store := persistence.NewMemoryStore()
	m := buildTestManager(t, "c1", time.Hour, store, push, nil)
	m.Start(context.Background())
	defer m.Stop()

	require.NoError(t, m.UserMessage(context.Background(), morgana.Turn{ConversationID: "c1", Text: "show my invoices"}))

	require.Eventually(t, func() bool { return push.count() == 1 }, time.Second, 10*time.Millisecond)
	resp, ok := push.last()
	require.True(t, ok)
	assert.Equal(t, "billing", resp.AgentName)

	require.Eventually(t, func() bool {
		h, _ := store.History(context.Background(), "c1", 0)
		return len(h) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManager_IdleTimeoutTearsDownAndRemovesFromRegistry(t *testing.T) {
	reg := NewRegistry()
	push := &recordingPublisher{}

	mgr, created := reg.GetOrCreate("c1", func() *Manager {
		return buildTestManager(t, "c1", 30*time.Millisecond, persistence.NewMemoryStore(), push, reg.Remove)
	})
	require.True(t, created)
	mgr.Start(context.Background())

	require.Eventually(t, func() bool {
		_, ok := reg.Get("c1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "manager should remove itself from the registry after idle timeout")
}

func TestManager_CreateConversationPublishesPresentation(t *testing.T) {
	push := &recordingPublisher{}
	m := buildTestManager(t, "c1", time.Hour, persistence.NewMemoryStore(), push, nil)
	m.Start(context.Background())
	defer m.Stop()

	require.NoError(t, m.CreateConversation(context.Background(), false))
	require.Eventually(t, func() bool { return push.count() == 1 }, time.Second, 10*time.Millisecond)

	resp, _ := push.last()
	assert.Equal(t, morgana.MessagePresentation, resp.MessageType)
}

func TestManager_CreateConversationResumeRestoresActiveSlot(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.AppendTurn(context.Background(), persistence.TurnRecord{
		ConversationID: "c1", ActiveAgentAfter: "billing", CreatedAt: time.Now(),
	}))

	push := &recordingPublisher{}
	m := buildTestManager(t, "c1", time.Hour, store, push, nil)
	m.Start(context.Background())
	defer m.Stop()

	require.NoError(t, m.CreateConversation(context.Background(), true))

	require.Eventually(t, func() bool {
		intent, ok := m.deps.Supervisor.ActiveAgentSlot()
		return ok && intent == "billing"
	}, time.Second, 10*time.Millisecond)
}
