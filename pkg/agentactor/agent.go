// Package agentactor implements the Agent component (SPEC_FULL.md § 4.6): an
// actor-owned ChatClient session, chat history, ContextProvider, and
// ToolAdapter bound to one (conversation, intent) pair. Grounded on the
// teacher's pkg/agent/base_agent.go (controller delegation per turn) and
// pkg/agent/llm_grpc.go (streaming-chunk consumption loop).
package agentactor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/morgana-run/morgana/pkg/chatclient"
	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/tooladapter"
	"github.com/morgana-run/morgana/pkg/toolctx"
)

// InteractiveToken mirrors morgana.InteractiveToken. It is a package
// constant, not a field on Agent; Run matches this value and does not read
// config.RuntimeConfig.InteractiveToken.
const InteractiveToken = morgana.InteractiveToken

// Spec is the static, process-wide description of one intent's agent,
// built once at startup by cmd/morgana from configuration and the MCP tools
// discovered at startup, and held in the AgentRegistry (pkg/router) — grounded on the teacher's
// agent/factory.go ControllerFactory indirection (§ 4.5 "AgentRegistry").
type Spec struct {
	Intent     string
	Prompt     string
	Tools      []tooladapter.LocalTool
	SharedVars []string
}

// StreamFunc receives each TextChunk's content as it arrives, so the caller
// (the Router, ultimately PushBridge) can forward partial output immediately
// without waiting for the turn to finish. May be nil.
type StreamFunc func(text string)

// Agent is one live instance of a Spec, scoped to a single conversation.
// An Agent has no Mailbox of its own: everything on it is only ever touched
// from within the owning Router's Mailbox goroutine, so there is no internal
// locking.
type Agent struct {
	spec    Spec
	chat    chatclient.Client
	ctx     *toolctx.Provider
	adapter *tooladapter.Adapter
	history []chatclient.ConversationMessage

	// OnStream, if set, is invoked with each TextChunk's content as it
	// streams in (§ 4.6 "Streaming"). Left nil in most tests.
	OnStream StreamFunc
}

// New constructs a live Agent instance for spec, wiring broadcast so shared
// ContextProvider writes flow to onBroadcast (supplied by the owning
// Router, which fans them out to every other cached agent per § 4.5).
func New(spec Spec, chat chatclient.Client, cfg tooladapter.NormalizationConfig, onBroadcast toolctx.BroadcastFunc) *Agent {
	ctxProvider := toolctx.New(spec.SharedVars, onBroadcast)
	return &Agent{
		spec:    spec,
		chat:    chat,
		ctx:     ctxProvider,
		adapter: tooladapter.New(spec.Tools, ctxProvider, cfg),
	}
}

// ReceiveContextUpdate merges an inbound shared-context broadcast from a
// sibling agent into this agent's ContextProvider (first-write-wins, per
// § 4.8). Never triggers a further broadcast.
func (a *Agent) ReceiveContextUpdate(updates map[string]string) {
	a.ctx.MergeShared(updates)
}

// ContextValue exposes a read-only peek at this agent's ContextProvider, for
// diagnostics and tests — never used from the turn-handling hot path.
func (a *Agent) ContextValue(key string) (string, bool) {
	return a.ctx.Get(key)
}

// Run executes one AgentRequest to completion: appends the user turn to
// history, streams one LLM generation (with tool calls dispatched through
// the adapter), and derives the resulting AgentResponse per § 4.6's
// interactive-token / quick-replies contract.
func (a *Agent) Run(ctx context.Context, turn morgana.Turn, classification morgana.Classification) (morgana.AgentResponse, error) {
	a.history = append(a.history, chatclient.ConversationMessage{Role: "user", Content: turn.Text})

	input := chatclient.GenerateInput{
		ConversationID: turn.ConversationID,
		Messages:       a.buildMessages(),
		Tools:          a.buildToolSpecs(),
	}

	invoke := func(ctx context.Context, call chatclient.ToolCall) (string, error) {
		return a.adapter.Invoke(ctx, call.Name, call.Arguments), nil
	}

	ch, err := a.chat.Generate(ctx, input, invoke)
	if err != nil {
		// Per § 4.6 "On exceptions": a provider failure never leaves the
		// turn unanswered or the ActiveAgentSlot stuck — reply with a
		// templated generic-error message and isCompleted=true.
		return a.genericError(), nil
	}

	var text strings.Builder
	var sawError bool
	for chunk := range ch {
		switch c := chunk.(type) {
		case chatclient.TextChunk:
			text.WriteString(c.Content)
			if a.OnStream != nil {
				a.OnStream(c.Content)
			}
		case chatclient.ErrorChunk:
			sawError = true
		}
	}
	if sawError && text.Len() == 0 {
		return a.genericError(), nil
	}

	final := text.String()
	a.history = append(a.history, chatclient.ConversationMessage{Role: "assistant", Content: final})

	hasInteractiveToken := strings.Contains(strings.ToLower(final), strings.ToLower(InteractiveToken))
	if hasInteractiveToken {
		final = replaceFold(final, InteractiveToken, "")
	}
	final = strings.TrimSpace(final)
	endsWithQuestion := strings.HasSuffix(final, "?")

	quickReplies := a.adapter.ConsumePendingQuickReplies()
	isCompleted := !hasInteractiveToken && !endsWithQuestion && len(quickReplies) == 0

	return morgana.AgentResponse{
		Text:         final,
		IsCompleted:  isCompleted,
		QuickReplies: quickReplies,
		AgentName:    a.spec.Intent,
	}, nil
}

// genericError builds the templated fallback AgentResponse used whenever the
// provider call itself fails — the slot must never be left stuck (§ 4.6).
func (a *Agent) genericError() morgana.AgentResponse {
	return morgana.AgentResponse{
		Text:        "Something went wrong handling your request. Please try again.",
		IsCompleted: true,
		AgentName:   a.spec.Intent,
	}
}

// replaceFold removes every case-insensitive occurrence of old from s.
func replaceFold(s, old, _ string) string {
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	var b strings.Builder
	for {
		idx := strings.Index(lower, oldLower)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		s = s[idx+len(old):]
		lower = lower[idx+len(oldLower):]
	}
}

func (a *Agent) buildMessages() []chatclient.ConversationMessage {
	msgs := make([]chatclient.ConversationMessage, 0, len(a.history)+1)
	if a.spec.Prompt != "" {
		msgs = append(msgs, chatclient.ConversationMessage{Role: "system", Content: a.spec.Prompt})
	}
	msgs = append(msgs, a.history...)
	return msgs
}

// buildToolSpecs converts the adapter's registered tool definitions into the
// ChatClient-facing ToolSpec shape, including only request-scoped parameters
// in the generated JSON Schema — context-scoped parameters are resolved
// server-side and must never be solicited from the LLM (§ 4.7).
func (a *Agent) buildToolSpecs() []chatclient.ToolSpec {
	defs := a.adapter.Definitions()
	specs := make([]chatclient.ToolSpec, 0, len(defs))
	for _, def := range defs {
		schema, err := json.Marshal(jsonSchemaFor(def))
		if err != nil {
			continue
		}
		specs = append(specs, chatclient.ToolSpec{
			Name:             def.Name,
			Description:      def.Description,
			ParametersSchema: schema,
		})
	}
	return specs
}

func jsonSchemaFor(def morgana.ToolDefinition) map[string]any {
	properties := make(map[string]any)
	required := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		if p.Scope != morgana.ScopeRequest {
			continue
		}
		properties[p.Name] = map[string]any{
			"type":        p.JSONType,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
