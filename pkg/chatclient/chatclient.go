// Package chatclient defines the ChatClient capability the Agent component
// runs an LLM turn through (SPEC_FULL.md § 4.6, explicitly out of scope as a
// concrete provider SDK per § 1 — only the interface and a streaming
// transport to an out-of-process sidecar live here). The streaming Chunk
// taxonomy is grounded on the teacher's pkg/agent/llm_grpc.go.
package chatclient

import "context"

// ToolCall is one invocation the LLM asked the host to perform mid-turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ConversationMessage is one turn of chat history handed to the provider.
type ConversationMessage struct {
	Role       string // "user" | "assistant" | "tool"
	Content    string
	ToolCallID string
	ToolName   string
	ToolCalls  []ToolCall
}

// ToolSpec is the provider-facing shape of a registered tool: name,
// description, and a JSON-Schema parameters blob built from
// morgana.ToolDefinition by the Agent before each Run.
type ToolSpec struct {
	Name             string
	Description      string
	ParametersSchema []byte
}

// GenerateInput is one request to run a conversation turn through the LLM,
// with the agent's currently registered tools available for it to call.
type GenerateInput struct {
	ConversationID string
	Messages       []ConversationMessage
	Tools          []ToolSpec
}

// Chunk is the sealed interface implemented by every streamed response
// fragment. Agents forward TextChunk content to PushBridge immediately
// (§ 4.6); other chunk kinds are recorded for logging/metrics only.
type Chunk interface{ isChunk() }

type TextChunk struct{ Content string }
type ThinkingChunk struct{ Content string }
type ToolCallChunk struct {
	CallID    string
	Name      string
	Arguments map[string]any
}
type UsageChunk struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
type ErrorChunk struct {
	Message   string
	Code      string
	Retryable bool
}

func (TextChunk) isChunk()      {}
func (ThinkingChunk) isChunk()  {}
func (ToolCallChunk) isChunk()  {}
func (UsageChunk) isChunk()     {}
func (ErrorChunk) isChunk()     {}

// ToolInvoker is supplied by the Agent so the ChatClient can execute a tool
// call mid-stream and feed the result back into the conversation, without
// the ChatClient needing to know anything about ToolAdapter.
type ToolInvoker func(ctx context.Context, call ToolCall) (string, error)

// Client is the capability Agents depend on. A concrete implementation may
// orchestrate tool calls internally (calling back into ToolInvoker between
// provider round-trips) before closing the returned channel.
type Client interface {
	// Generate starts one conversation turn and streams back Chunks until
	// the turn is complete, at which point the channel is closed. The
	// concatenation of all TextChunk.Content values is the turn's final
	// text.
	Generate(ctx context.Context, input GenerateInput, invoke ToolInvoker) (<-chan Chunk, error)
	Close() error
}
