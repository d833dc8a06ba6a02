package tooladapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/toolctx"
)

// LocalTool is implemented by hand-registered, in-process tools (as opposed
// to remote MCP tools). Go has no attribute-reflection equivalent to the
// source's class-scanning discovery, so local tools are registered
// explicitly per intent in the AgentRegistry (§ 4.5, § 9).
type LocalTool interface {
	Definition() morgana.ToolDefinition
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// MCPCaller is the subset of mcpclient.Pool the adapter needs, so tests can
// substitute a fake without a real MCP server.
type MCPCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error)
}

// remoteTool wraps one discovered MCP tool as a LocalTool-shaped callable.
type remoteTool struct {
	def    morgana.MCPToolDefinition
	caller MCPCaller
}

func (r remoteTool) Definition() morgana.ToolDefinition { return r.def.AsToolDefinition() }

func (r remoteTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return r.caller.CallTool(ctx, r.def.Server, r.def.Name, args)
}

// Adapter is the per-agent uniform tool-calling surface presented to the
// ChatClient. It owns the normalization cascade, the context-scoped
// parameter resolution, the quick-replies sink, and the catch-all
// error-to-string failure semantics of § 4.7.
type Adapter struct {
	tools map[string]LocalTool
	ctx   *toolctx.Provider
	cfg   NormalizationConfig
}

// New builds an Adapter over a fixed tool set for one agent instance. Local
// tools and wrapped MCP tools are both just LocalTool implementations by
// this point — the adapter itself does not distinguish them.
func New(tools []LocalTool, ctxProvider *toolctx.Provider, cfg NormalizationConfig) *Adapter {
	m := make(map[string]LocalTool, len(tools)+2)
	for _, t := range tools {
		m[t.Definition().Name] = t
	}
	a := &Adapter{tools: m, ctx: ctxProvider, cfg: cfg}
	a.registerBuiltins()
	return a
}

// WrapMCPTools converts discovered remote tool definitions into LocalTool
// values bound to caller, for inclusion in an agent's tool set.
func WrapMCPTools(defs []morgana.MCPToolDefinition, caller MCPCaller) []LocalTool {
	out := make([]LocalTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, remoteTool{def: d, caller: caller})
	}
	return out
}

// Definitions returns every registered tool's ToolDefinition, for prompt
// building / ChatClient registration.
func (a *Adapter) Definitions() []morgana.ToolDefinition {
	defs := make([]morgana.ToolDefinition, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Invoke runs one tool call by name with raw (un-normalized) arguments.
// Per § 4.7 failure semantics, Invoke never returns a Go error: an unknown
// tool name, an argument-resolution failure, and a tool's own execution
// error are all folded into the same "Error: <message>" string convention,
// so the LLM sees every failure uniformly and a tool failure never crashes
// the Agent.
func (a *Adapter) Invoke(ctx context.Context, name string, rawArgs map[string]any) string {
	tool, ok := a.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	def := tool.Definition()
	args, err := a.resolveArgs(def, rawArgs)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}

	result, err := tool.Invoke(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}
	return result
}

// resolveArgs normalizes raw argument keys against the tool's declared
// parameters, resolves scope=context parameters from ContextProvider rather
// than the LLM-supplied map, and type-coerces every value.
func (a *Adapter) resolveArgs(def morgana.ToolDefinition, rawArgs map[string]any) (map[string]any, error) {
	expected := make([]string, 0, len(def.Parameters))
	required := make(map[string]bool, len(def.Parameters))
	for _, p := range def.Parameters {
		if p.Scope == morgana.ScopeRequest {
			expected = append(expected, p.Name)
			required[p.Name] = p.Required
		}
	}

	normalized, err := NormalizeParameters(expected, rawArgs, required, a.cfg)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(def.Parameters))
	for _, p := range def.Parameters {
		switch p.Scope {
		case morgana.ScopeContext:
			if v, ok := a.ctx.Get(p.Name); ok {
				out[p.Name] = v
			} else if p.Required {
				return nil, &ErrMissingParameter{Expected: p.Name}
			}
		default:
			v, ok := normalized[p.Name]
			if !ok {
				continue
			}
			coerced, err := CoerceToJSONType(v, p.JSONType)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
			}
			out[p.Name] = coerced
		}
	}
	return out, nil
}

// ── Builtin tools: SetQuickReplies / GetContextVariable /
// SetContextVariable (§ 4.7). Pending quick replies are read back through
// the ConsumePendingQuickReplies method; there is no retrieval tool. ──

func (a *Adapter) registerBuiltins() {
	a.tools["SetQuickReplies"] = setQuickRepliesTool{ctx: a.ctx}
	a.tools["GetContextVariable"] = getContextVariableTool{ctx: a.ctx}
	a.tools["SetContextVariable"] = setContextVariableTool{ctx: a.ctx}
}

// ConsumePendingQuickReplies reads and removes the reserved quick-replies
// sink, per § 4.6 step 3. A second call after the first yields empty,
// satisfying the idempotence invariant in § 8.
func (a *Adapter) ConsumePendingQuickReplies() []morgana.QuickReply {
	raw, ok := a.ctx.Get(morgana.PendingQuickRepliesKey)
	a.ctx.DropRaw(morgana.PendingQuickRepliesKey)
	if !ok || raw == "" {
		return nil
	}
	var replies []morgana.QuickReply
	if err := json.Unmarshal([]byte(raw), &replies); err != nil {
		return nil
	}
	return replies
}

type setQuickRepliesTool struct{ ctx *toolctx.Provider }

func (setQuickRepliesTool) Definition() morgana.ToolDefinition {
	return morgana.ToolDefinition{
		Name:        "SetQuickReplies",
		Description: "Stash a list of quick-reply buttons to present to the user at the end of this turn.",
		Parameters: []morgana.ToolParameter{
			{Name: "replies", Description: "JSON-encoded list of {id,label,value,terminal?}", Required: true, Scope: morgana.ScopeRequest, JSONType: "string"},
		},
	}
}

func (t setQuickRepliesTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	v, _ := args["replies"].(string)
	t.ctx.SetRaw(morgana.PendingQuickRepliesKey, v)
	return "quick replies stashed", nil
}

type getContextVariableTool struct{ ctx *toolctx.Provider }

func (getContextVariableTool) Definition() morgana.ToolDefinition {
	return morgana.ToolDefinition{
		Name:        "GetContextVariable",
		Description: "Read a previously stored context variable by name.",
		Parameters: []morgana.ToolParameter{
			{Name: "key", Required: true, Scope: morgana.ScopeRequest, JSONType: "string"},
		},
	}
}

func (t getContextVariableTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	key, _ := args["key"].(string)
	v, ok := t.ctx.Get(key)
	if !ok {
		return "", nil
	}
	return v, nil
}

type setContextVariableTool struct{ ctx *toolctx.Provider }

func (setContextVariableTool) Definition() morgana.ToolDefinition {
	return morgana.ToolDefinition{
		Name:        "SetContextVariable",
		Description: "Store a context variable by name, making it available to later tool calls (and other agents, if shared-eligible).",
		Parameters: []morgana.ToolParameter{
			{Name: "key", Required: true, Scope: morgana.ScopeRequest, JSONType: "string"},
			{Name: "value", Required: true, Scope: morgana.ScopeRequest, JSONType: "string"},
		},
	}
}

func (t setContextVariableTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	t.ctx.Set(key, value)
	return "stored", nil
}
