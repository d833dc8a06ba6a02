// Package manager implements the Manager component (SPEC_FULL.md § 4.1):
// conversation lifecycle, idle-timeout teardown, and the process-wide
// ManagerRegistry tracking the live Manager for each conversation. Grounded
// on the teacher's pkg/session/manager.go collection pattern for the
// registry. The idle timer is a single-shot time.AfterFunc.
package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/morgana-run/morgana/pkg/actor"
	"github.com/morgana-run/morgana/pkg/classifier"
	"github.com/morgana-run/morgana/pkg/guard"
	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/persistence"
	"github.com/morgana-run/morgana/pkg/router"
	"github.com/morgana-run/morgana/pkg/supervisor"
)

// Publisher is the subset of pushbridge.Hub the Manager depends on.
type Publisher interface {
	PublishResponse(resp morgana.ConversationResponse)
}

// Deps bundles the per-conversation actor tree a Manager constructs and
// owns: Supervisor plus the Guard/Classifier/Router it wraps with timeouts.
// Built by the caller (typically the API layer via a factory closure) so
// the Manager package itself does not need to know how to build a
// ChatClient, MCP pool, or AgentRegistry.
type Deps struct {
	Guard      *guard.Guard
	Classifier *classifier.Classifier
	Router     *router.Router
	Supervisor *supervisor.Supervisor
}

// Manager owns one conversation's Supervisor (and, transitively, its
// Guard/Classifier/Router/Agent subtree), the idle timer that tears it all
// down, and hands finished turns to PushBridge and PersistenceStore.
type Manager struct {
	conversationID string
	deps           Deps
	push           Publisher
	store          persistence.Store
	idleTimeout    time.Duration

	mailbox *actor.Mailbox

	mu        sync.Mutex
	idleTimer *time.Timer

	onStopped func(conversationID string)
}

// New constructs a Manager for one conversation; it does not start it (call
// Start). onStopped is invoked (typically Registry.Remove) once the Manager
// finishes stopping.
func New(conversationID string, deps Deps, push Publisher, store persistence.Store, idleTimeout time.Duration, onStopped func(string)) *Manager {
	m := &Manager{
		conversationID: conversationID,
		deps:           deps,
		push:           push,
		store:          store,
		idleTimeout:    idleTimeout,
		mailbox:        actor.New("manager:"+conversationID, 64),
		onStopped:      onStopped,
	}
	return m
}

// Start begins the actor tree: the Manager's own mailbox, then its Guard,
// Classifier, Router, and Supervisor, in that order, so every stage is
// running before the Supervisor can send to it.
func (m *Manager) Start(ctx context.Context) {
	m.mailbox.Start(ctx)
	m.deps.Guard.Start(ctx)
	m.deps.Classifier.Start(ctx)
	m.deps.Router.Start(ctx)
	m.deps.Supervisor.Start(ctx)
	m.armIdleTimer()
}

// Stop tears the whole subtree down in reverse order, per § 4.1
// "TerminateConversation or IdleTimeout: stop Supervisor (which stops its
// subtree), then stop self."
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.mu.Unlock()

	m.deps.Supervisor.Stop()
	m.deps.Router.Stop()
	m.deps.Classifier.Stop()
	m.deps.Guard.Stop()
	m.mailbox.Stop()

	if m.onStopped != nil {
		m.onStopped(m.conversationID)
	}
}

// CreateConversation runs the create-time side effect: a presentation
// message for a fresh conversation, or (resume=true) restoring the last
// active agent slot from PersistenceStore.
func (m *Manager) CreateConversation(ctx context.Context, resume bool) error {
	return m.mailbox.Tell(func(ctx context.Context) {
		if !resume {
			m.push.PublishResponse(morgana.ConversationResponse{
				ConversationID: m.conversationID,
				Text:           "Hi! How can I help you today?",
				Timestamp:      timeNow(),
				MessageType:    morgana.MessagePresentation,
			})
			return
		}
		if m.store == nil {
			return
		}
		active, ok, err := m.store.LastActiveAgent(ctx, m.conversationID)
		if err != nil {
			slog.Error("manager: resume lookup failed", "conversation", m.conversationID, "error", err)
			return
		}
		if ok && active != "" {
			m.deps.Supervisor.RestoreActiveAgent(active)
		}
	})
}

// UserMessage resets the idle timer and runs turn through the Supervisor,
// publishing the resulting ConversationResponse to PushBridge and appending
// it to PersistenceStore.
func (m *Manager) UserMessage(ctx context.Context, turn morgana.Turn) error {
	m.armIdleTimer()

	return m.mailbox.Tell(func(ctx context.Context) {
		resp, err := m.deps.Supervisor.HandleUserMessage(ctx, turn)
		if err != nil {
			slog.Error("manager: turn failed", "conversation", m.conversationID, "error", err)
			resp = morgana.ConversationResponse{
				ConversationID: m.conversationID,
				Text:           "Something went wrong handling your request. Please try again.",
				Timestamp:      timeNow(),
				MessageType:    morgana.MessageError,
				ErrorReason:    err.Error(),
			}
		}

		m.push.PublishResponse(resp)

		if m.store != nil {
			activeAfter := ""
			if slot, ok := m.deps.Supervisor.ActiveAgentSlot(); ok {
				activeAfter = slot
			}
			if err := m.store.AppendTurn(ctx, persistence.TurnRecord{
				ConversationID:   m.conversationID,
				UserText:         turn.Text,
				AgentText:        resp.Text,
				ActiveAgentAfter: activeAfter,
				CreatedAt:        timeNow(),
			}); err != nil {
				slog.Error("manager: persist turn failed", "conversation", m.conversationID, "error", err)
			}
		}
	})
}

// armIdleTimer (re)starts the single-shot idle timer; on expiry it calls
// Stop, tearing the whole conversation down (§ 4.1 "Idle timer").
func (m *Manager) armIdleTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleTimer = time.AfterFunc(m.idleTimeout, func() {
		slog.Info("manager: idle timeout, tearing down conversation", "conversation", m.conversationID)
		m.Stop()
	})
}

// timeNow is indirected so it can be overridden in deterministic tests if
// ever needed; defaults to wall-clock time.
var timeNow = time.Now
