// Package supervisor implements the per-conversation turn state machine
// (SPEC_FULL.md § 4.2): Guard → Classifier → Router → Agent, with an
// ActiveAgentSlot fast path for multi-turn interactive agents. Because each
// stage send is a synchronous actor.Mailbox.Ask, the state machine collapses
// into a straight-line handler per turn — the mailbox's FIFO ordering is
// what actually delivers the "at most one in-flight turn per conversation"
// guarantee the spec describes as explicit states, grounded on the teacher's
// queue/worker.go per-session context.WithTimeout + errors.Is(DeadlineExceeded)
// pattern for the timeout wiring.
package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/morgana-run/morgana/pkg/actor"
	"github.com/morgana-run/morgana/pkg/classifier"
	"github.com/morgana-run/morgana/pkg/guard"
	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/router"
)

// GuardChecker is the subset of guard.Guard the Supervisor depends on.
type GuardChecker interface {
	Check(ctx context.Context, text string) (guard.Verdict, error)
}

// IntentClassifier is the subset of classifier.Classifier the Supervisor
// depends on.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (morgana.Classification, error)
}

// TurnRouter is the subset of router.Router the Supervisor depends on.
type TurnRouter interface {
	Route(ctx context.Context, turn morgana.Turn, c morgana.Classification) (morgana.AgentResponse, error)
}

var (
	_ GuardChecker     = (*guard.Guard)(nil)
	_ IntentClassifier = (*classifier.Classifier)(nil)
	_ TurnRouter       = (*router.Router)(nil)
)

// Supervisor runs the turn pipeline for one conversation. It is itself
// Mailbox-driven so concurrent UserMessage sends queue strictly in arrival
// order (the ordering guarantee in § 4.2), and ActiveAgentSlot is only ever
// read/written from within that single goroutine.
type Supervisor struct {
	mailbox *actor.Mailbox

	guard      GuardChecker
	classifier IntentClassifier
	router     TurnRouter

	turnTimeout time.Duration

	activeAgentSlot string // empty means no active agent
}

// New builds a Supervisor for one conversation.
func New(g GuardChecker, c IntentClassifier, r TurnRouter, turnTimeout time.Duration) *Supervisor {
	return &Supervisor{
		mailbox:     actor.New("supervisor", 64),
		guard:       g,
		classifier:  c,
		router:      r,
		turnTimeout: turnTimeout,
	}
}

// Start begins draining the Supervisor's mailbox.
func (s *Supervisor) Start(ctx context.Context) { s.mailbox.Start(ctx) }

// Stop drains and stops the Supervisor's mailbox.
func (s *Supervisor) Stop() { s.mailbox.Stop() }

// HandleUserMessage runs turn through the full pipeline (or the
// ActiveAgentSlot fast path) and returns the resulting ConversationResponse.
func (s *Supervisor) HandleUserMessage(ctx context.Context, turn morgana.Turn) (morgana.ConversationResponse, error) {
	var (
		resp morgana.ConversationResponse
		err  error
	)
	askErr := s.mailbox.Ask(ctx, func(ctx context.Context) {
		resp, err = s.handle(ctx, turn)
	})
	if askErr != nil {
		return morgana.ConversationResponse{}, askErr
	}
	return resp, err
}

// ActiveAgentSlot reports the intent of the currently active follow-up
// agent, if any, for diagnostics.
func (s *Supervisor) ActiveAgentSlot() (string, bool) {
	return s.activeAgentSlot, s.activeAgentSlot != ""
}

// RestoreActiveAgent sets the ActiveAgentSlot from a resumed conversation's
// last persisted state (§ 4.1 "CreateConversation... resume=true"). Routed
// through the mailbox like every other state mutation so it can never race
// with an in-flight HandleUserMessage.
func (s *Supervisor) RestoreActiveAgent(intent string) {
	_ = s.mailbox.Tell(func(ctx context.Context) {
		s.activeAgentSlot = intent
	})
}

func (s *Supervisor) handle(ctx context.Context, turn morgana.Turn) (morgana.ConversationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	if s.activeAgentSlot != "" {
		return s.routeAndRespond(ctx, turn, morgana.Classification{Intent: s.activeAgentSlot})
	}

	verdict, err := s.guard.Check(ctx, turn.Text)
	if err != nil {
		return s.timeoutResponse(turn, err)
	}
	if !verdict.Compliant {
		s.activeAgentSlot = ""
		return morgana.ConversationResponse{
			ConversationID: turn.ConversationID,
			Text:           guardViolationMessage(verdict),
			Timestamp:      turn.ArrivedAt,
			MessageType:    morgana.MessageSystem,
		}, nil
	}

	c, err := s.classifier.Classify(ctx, turn.Text)
	if err != nil {
		return s.timeoutResponse(turn, err)
	}

	return s.routeAndRespond(ctx, turn, c)
}

func (s *Supervisor) routeAndRespond(ctx context.Context, turn morgana.Turn, c morgana.Classification) (morgana.ConversationResponse, error) {
	agentResp, err := s.router.Route(ctx, turn, c)
	if err != nil {
		return s.timeoutResponse(turn, err)
	}

	if agentResp.IsCompleted {
		s.activeAgentSlot = ""
	} else {
		s.activeAgentSlot = c.Intent
	}

	return morgana.ConversationResponse{
		ConversationID: turn.ConversationID,
		Text:           agentResp.Text,
		Timestamp:      turn.ArrivedAt,
		MessageType:    morgana.MessageAssistant,
		QuickReplies:   agentResp.QuickReplies,
		AgentName:      agentResp.AgentName,
		AgentCompleted: agentResp.IsCompleted,
	}, nil
}

// timeoutResponse builds the templated error response for a stage timeout or
// failure, per § 4.2 "Turn timeout wiring" and § 7 (treated identically to
// an Agent/tool failure): templated message, slot cleared, state → Idle.
func (s *Supervisor) timeoutResponse(turn morgana.Turn, cause error) (morgana.ConversationResponse, error) {
	s.activeAgentSlot = ""
	text := "Something went wrong handling your request. Please try again."
	if errors.Is(cause, context.DeadlineExceeded) {
		text = "That took longer than expected. Please try again."
	}
	return morgana.ConversationResponse{
		ConversationID: turn.ConversationID,
		Text:           text,
		Timestamp:      turn.ArrivedAt,
		MessageType:    morgana.MessageError,
		ErrorReason:    cause.Error(),
	}, nil
}

func guardViolationMessage(v guard.Verdict) string {
	if v.Violation != "" {
		return "I can't help with that (" + v.Violation + "). Let's try something else."
	}
	return "I can't help with that. Let's try something else."
}
