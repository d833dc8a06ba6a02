// Package classifier implements LLM-driven intent classification
// (SPEC_FULL.md § 4.4): compose a prompt naming the registered intents,
// require a single JSON object back, and fall back to the reserved "other"
// intent on any parse failure. Grounded on the teacher's
// controller/react_parser.go strict-then-lenient philosophy, scaled down to
// a single JSON object rather than a line-by-line ReAct state machine.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morgana-run/morgana/pkg/actor"
	"github.com/morgana-run/morgana/pkg/chatclient"
	"github.com/morgana-run/morgana/pkg/morgana"
)

// OtherIntent is the reserved fallback intent name. Configuration validation
// (pkg/config) rejects any user-defined intent named "other".
const OtherIntent = "other"

// IntentDescriptor is one entry in the intent registry the classification
// prompt is built from.
type IntentDescriptor struct {
	Name        string
	Description string
}

// Classifier is stateless; it reads no conversation state and is safe to
// share across conversations, but is still mailbox-owned so its calls are
// serialized per the actor model (§ 5).
type Classifier struct {
	mailbox *actor.Mailbox
	chat    chatclient.Client
	intents []IntentDescriptor
}

// New builds a Classifier over the given intent registry snapshot.
func New(chat chatclient.Client, intents []IntentDescriptor) *Classifier {
	return &Classifier{
		mailbox: actor.New("classifier", 16),
		chat:    chat,
		intents: intents,
	}
}

// Start begins draining the Classifier's mailbox.
func (c *Classifier) Start(ctx context.Context) { c.mailbox.Start(ctx) }

// Stop drains and stops the Classifier's mailbox.
func (c *Classifier) Stop() { c.mailbox.Stop() }

// Classify runs one ClassifyRequest synchronously.
func (c *Classifier) Classify(ctx context.Context, text string) (morgana.Classification, error) {
	var result morgana.Classification
	err := c.mailbox.Ask(ctx, func(ctx context.Context) {
		result = c.classify(ctx, text)
	})
	return result, err
}

type classifyResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (c *Classifier) classify(ctx context.Context, text string) morgana.Classification {
	if c.chat == nil {
		return morgana.Classification{Intent: OtherIntent}
	}

	input := chatclient.GenerateInput{
		Messages: []chatclient.ConversationMessage{
			{Role: "system", Content: c.prompt()},
			{Role: "user", Content: text},
		},
	}

	ch, err := c.chat.Generate(ctx, input, nil)
	if err != nil {
		slog.Warn("classifier provider error, falling back to other", "error", err)
		return morgana.Classification{Intent: OtherIntent}
	}

	var raw strings.Builder
	for chunk := range ch {
		if tc, ok := chunk.(chatclient.TextChunk); ok {
			raw.WriteString(tc.Content)
		}
	}

	cleaned := stripCodeFence(raw.String())
	var resp classifyResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		slog.Warn("classifier parse failure, falling back to other", "error", err, "raw", cleaned)
		return morgana.Classification{Intent: OtherIntent}
	}

	intent := c.resolveIntent(resp.Intent)
	return morgana.Classification{Intent: intent, Confidence: resp.Confidence}
}

// resolveIntent does a case-insensitive match against the registry; unknown
// or empty names fall back to "other".
func (c *Classifier) resolveIntent(name string) string {
	if name == "" {
		return OtherIntent
	}
	for _, d := range c.intents {
		if strings.EqualFold(d.Name, name) {
			return d.Name
		}
	}
	return OtherIntent
}

func (c *Classifier) prompt() string {
	var b strings.Builder
	b.WriteString("Classify the user's message into exactly one of the following intents. ")
	b.WriteString("Respond with a single JSON object: {\"intent\": string, \"confidence\": number between 0 and 1}.\n\n")
	for _, d := range c.intents {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return b.String()
}

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
