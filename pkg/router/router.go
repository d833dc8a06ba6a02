// Package router implements the Router component (SPEC_FULL.md § 4.5):
// resolves a Classification to a per-conversation Agent instance, creating
// it on first use, and fans out shared-context broadcasts between sibling
// agents within the same conversation. Grounded on the teacher's
// pkg/agent/factory.go ControllerFactory indirection, used here to keep the
// Router decoupled from any specific intent's concrete tool package.
package router

import (
	"context"
	"fmt"

	"github.com/morgana-run/morgana/pkg/actor"
	"github.com/morgana-run/morgana/pkg/agentactor"
	"github.com/morgana-run/morgana/pkg/chatclient"
	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/tooladapter"
)

// Registry is the process-wide, read-only-after-init map of intent name to
// AgentSpec, built once at startup by cmd/morgana from configuration and the
// MCP tools discovered at startup (§ 4.5 "AgentRegistry"). It is safe for
// concurrent read access by every conversation's Router.
type Registry struct {
	specs map[string]agentactor.Spec
}

// NewRegistry builds a Registry from the given specs, keyed by Spec.Intent.
func NewRegistry(specs []agentactor.Spec) *Registry {
	m := make(map[string]agentactor.Spec, len(specs))
	for _, s := range specs {
		m[s.Intent] = s
	}
	return &Registry{specs: m}
}

// Lookup returns the AgentSpec for intent and whether it was registered.
func (r *Registry) Lookup(intent string) (agentactor.Spec, bool) {
	s, ok := r.specs[intent]
	return s, ok
}

// Router owns every Agent instance for one conversation. It is itself
// Mailbox-driven, so RouteRequest/BroadcastContextUpdate calls from the
// Supervisor and from child agents are naturally serialized — no agent is
// ever touched by more than one goroutine at a time, satisfying § 4.8's
// single-owner invariant without a separate mailbox per agent.
type Router struct {
	mailbox  *actor.Mailbox
	registry *Registry
	chat     chatclient.Client
	normCfg  tooladapter.NormalizationConfig

	agents map[string]*agentactor.Agent
}

// New builds a Router for one conversation.
func New(registry *Registry, chat chatclient.Client, normCfg tooladapter.NormalizationConfig) *Router {
	return &Router{
		mailbox:  actor.New("router", 32),
		registry: registry,
		chat:     chat,
		normCfg:  normCfg,
		agents:   make(map[string]*agentactor.Agent),
	}
}

// Start begins draining the Router's mailbox.
func (r *Router) Start(ctx context.Context) { r.mailbox.Start(ctx) }

// Stop drains and stops the Router's mailbox.
func (r *Router) Stop() { r.mailbox.Stop() }

// NotFoundResponse is returned by Route when the classified intent has no
// registered AgentSpec — a capability-unknown response, per § 4.2 scenario S5.
func NotFoundResponse(intent string) morgana.AgentResponse {
	return morgana.AgentResponse{
		Text:        fmt.Sprintf("I don't have a way to help with %q yet.", intent),
		IsCompleted: true,
	}
}

// Route resolves c.Intent to an Agent instance (creating it on first use),
// runs the turn, and returns the resulting AgentResponse.
func (r *Router) Route(ctx context.Context, turn morgana.Turn, c morgana.Classification) (morgana.AgentResponse, error) {
	var (
		resp morgana.AgentResponse
		err  error
	)
	askErr := r.mailbox.Ask(ctx, func(ctx context.Context) {
		resp, err = r.route(ctx, turn, c)
	})
	if askErr != nil {
		return morgana.AgentResponse{}, askErr
	}
	return resp, err
}

func (r *Router) route(ctx context.Context, turn morgana.Turn, c morgana.Classification) (morgana.AgentResponse, error) {
	spec, ok := r.registry.Lookup(c.Intent)
	if !ok {
		return NotFoundResponse(c.Intent), nil
	}

	agent, ok := r.agents[c.Intent]
	if !ok {
		agent = agentactor.New(spec, r.chat, r.normCfg, r.broadcastFrom(c.Intent))
		// Seed the new agent with the shared values its siblings already
		// hold, so a shared write made before it existed still reaches it.
		seed := make(map[string]string)
		for intent, other := range r.agents {
			otherSpec, _ := r.registry.Lookup(intent)
			for _, name := range otherSpec.SharedVars {
				if v, found := other.ContextValue(name); found {
					seed[name] = v
				}
			}
		}
		agent.ReceiveContextUpdate(seed)
		r.agents[c.Intent] = agent
	}

	return agent.Run(ctx, turn, c)
}

// broadcastFrom returns a BroadcastFunc bound to sourceIntent, used as the
// onBroadcast callback wired into that agent's ContextProvider.
func (r *Router) broadcastFrom(sourceIntent string) func(updates map[string]string) {
	return func(updates map[string]string) {
		// Safe to call synchronously: ContextProvider.Set runs from within
		// this same Router-owned goroutine (the agent.Run call above is
		// already executing inside the Router's mailbox), so this is not a
		// re-entrant Ask — it's a direct call, matching Tell's fire-and-forget
		// fan-out semantics without risking deadlock against the mailbox.
		r.broadcast(sourceIntent, updates)
	}
}

func (r *Router) broadcast(sourceIntent string, updates map[string]string) {
	for intent, agent := range r.agents {
		if intent == sourceIntent {
			continue
		}
		agent.ReceiveContextUpdate(updates)
	}
}

// ActiveIntents returns the intents with a live cached agent instance, for
// diagnostics/metrics.
func (r *Router) ActiveIntents() []string {
	out := make([]string, 0, len(r.agents))
	for intent := range r.agents {
		out = append(out, intent)
	}
	return out
}
