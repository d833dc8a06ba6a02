// Package guard implements the two-stage content moderation actor described
// in SPEC_FULL.md § 4.3: a fail-closed deterministic term filter followed by
// a fail-open LLM policy check. Grounded on the teacher's pkg/masking
// compiled-pattern-group approach for the term filter's shape, and on the
// controller/react_parser.go strict-then-lenient JSON-parsing philosophy for
// the policy-check response.
package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/morgana-run/morgana/pkg/actor"
	"github.com/morgana-run/morgana/pkg/chatclient"
)

// Verdict is the Guard's synchronous reply to a GuardCheckRequest.
type Verdict struct {
	Compliant bool
	Violation string
}

// Guard is stateless aside from its compiled term list; it is still run
// behind a Mailbox so its message processing is serialized with everything
// else in the conversation's actor tree, per § 5.
type Guard struct {
	mailbox *actor.Mailbox
	chat    chatclient.Client
	terms   []string // pre-lowercased
	prompt  string
	timeout time.Duration
}

// New builds a Guard. bannedTerms and policyPrompt are fixed at construction
// time; cmd/morgana builds one Guard per conversation from the configuration
// snapshot current when that conversation starts (see pkg/config for hot
// reload of that snapshot).
func New(chat chatclient.Client, bannedTerms []string, policyPrompt string, timeout time.Duration) *Guard {
	terms := make([]string, len(bannedTerms))
	for i, t := range bannedTerms {
		terms[i] = strings.ToLower(t)
	}
	g := &Guard{
		mailbox: actor.New("guard", 16),
		chat:    chat,
		terms:   terms,
		prompt:  policyPrompt,
		timeout: timeout,
	}
	return g
}

// Start begins draining the Guard's mailbox.
func (g *Guard) Start(ctx context.Context) { g.mailbox.Start(ctx) }

// Stop drains and stops the Guard's mailbox.
func (g *Guard) Stop() { g.mailbox.Stop() }

// Check runs GuardCheckRequest synchronously (through the mailbox, so it is
// serialized with any other pending check for this conversation — Guard
// instances are per-conversation, owned by the Supervisor).
func (g *Guard) Check(ctx context.Context, text string) (Verdict, error) {
	var verdict Verdict
	err := g.mailbox.Ask(ctx, func(ctx context.Context) {
		verdict = g.check(ctx, text)
	})
	return verdict, err
}

func (g *Guard) check(ctx context.Context, text string) Verdict {
	// Stage 1: deterministic term filter. Fail-closed — any error here
	// would be a bug in the matcher itself, not a transport failure, so
	// there is no fallback path.
	if category, hit := g.matchBannedTerm(text); hit {
		return Verdict{Compliant: false, Violation: category}
	}

	// Stage 2: LLM policy check. Fail-open on parse or timeout failure —
	// LLM flakiness must not silence users (§ 4.3 rationale).
	return g.policyCheck(ctx, text)
}

// matchBannedTerm does a case-insensitive substring scan against the
// pre-lowercased banned-term list. The "category" returned is just the
// matched term itself; the Guard does not consult globalPolicies[].
func (g *Guard) matchBannedTerm(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, term := range g.terms {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

type policyResponse struct {
	Compliant bool   `json:"compliant"`
	Violation string `json:"violation,omitempty"`
}

func (g *Guard) policyCheck(ctx context.Context, text string) Verdict {
	if g.chat == nil {
		return Verdict{Compliant: true}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	input := chatclient.GenerateInput{
		Messages: []chatclient.ConversationMessage{
			{Role: "system", Content: g.prompt},
			{Role: "user", Content: text},
		},
	}

	ch, err := g.chat.Generate(ctx, input, nil)
	if err != nil {
		slog.Warn("guard policy check provider error, failing open", "error", err)
		return Verdict{Compliant: true}
	}

	var raw strings.Builder
	for chunk := range ch {
		if tc, ok := chunk.(chatclient.TextChunk); ok {
			raw.WriteString(tc.Content)
		}
	}

	if ctx.Err() != nil {
		slog.Warn("guard policy check timed out, failing open")
		return Verdict{Compliant: true}
	}

	cleaned := stripCodeFence(raw.String())
	var resp policyResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		slog.Warn("guard policy check parse failure, failing open", "error", err)
		return Verdict{Compliant: true}
	}
	return Verdict{Compliant: resp.Compliant, Violation: resp.Violation}
}

// stripCodeFence removes a wrapping ```json ... ``` or ``` ... ``` fence, if
// present, before attempting JSON parse — the strict-then-lenient parsing
// style from § 9.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
