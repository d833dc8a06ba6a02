// Package morgana defines the data model shared across the orchestration
// core: conversations, turns, classifications, agent responses, and the
// tool/context descriptors that travel between components.
package morgana

import "time"

// InteractiveToken is the sentinel string an agent's LLM output emits to
// signal "I need another turn from the user." config.RuntimeConfig has an
// InteractiveToken field defaulting to this value, but the Agent matches
// this constant and does not read the configured value.
const InteractiveToken = "#INT#"

// OtherIntent is the reserved fallback intent for unclassified or
// unrecognized user input.
const OtherIntent = "other"

// PendingQuickRepliesKey is the reserved ContextProvider key tools write to
// via the SetQuickReplies builtin tool.
const PendingQuickRepliesKey = "__pending_quick_replies"

// Turn is one user message and its eventual response, carried through the
// pipeline unchanged aside from the response being filled in.
type Turn struct {
	ConversationID string    `json:"conversationId" yaml:"conversationId"`
	Text           string    `json:"text" yaml:"text"`
	ArrivedAt      time.Time `json:"arrivedAt" yaml:"arrivedAt"`
	TraceContext   []byte    `json:"-" yaml:"-"`
}

// Classification is the Classifier's verdict on a user turn.
type Classification struct {
	Intent     string            `json:"intent" yaml:"intent"`
	Confidence float64           `json:"confidence" yaml:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// QuickReply is a pre-labeled client-side button; clicking it submits Value
// as though the user had typed it.
type QuickReply struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	Terminal bool   `json:"terminal,omitempty"`
}

// AgentResponse is what an Agent hands back to the Router/Supervisor after
// running one AgentRequest to completion.
type AgentResponse struct {
	Text         string       `json:"text"`
	IsCompleted  bool         `json:"isCompleted"`
	QuickReplies []QuickReply `json:"quickReplies,omitempty"`
	AgentName    string       `json:"agentName"`
}

// MessageType enumerates the kinds of structured message PushBridge can
// deliver to a client (§ 6.2).
type MessageType string

const (
	MessageAssistant    MessageType = "assistant"
	MessagePresentation MessageType = "presentation"
	MessageSystem       MessageType = "system"
	MessageError        MessageType = "error"
)

// ConversationResponse is the structured message the Manager hands to
// PushBridge at the end of a turn (or for a one-off presentation/error).
type ConversationResponse struct {
	ConversationID string       `json:"conversationId"`
	Text           string       `json:"text"`
	Timestamp      time.Time    `json:"timestamp"`
	MessageType    MessageType  `json:"messageType"`
	QuickReplies   []QuickReply `json:"quickReplies,omitempty"`
	ErrorReason    string       `json:"errorReason,omitempty"`
	AgentName      string       `json:"agentName,omitempty"`
	AgentCompleted bool         `json:"agentCompleted,omitempty"`
	TraceContext   []byte       `json:"-"`
}

// ParamScope controls where a ToolParameter's value is sourced from.
type ParamScope string

const (
	// ScopeContext means the value is resolved from ContextProvider at call
	// time; the LLM never supplies it directly.
	ScopeContext ParamScope = "context"
	// ScopeRequest means the LLM must supply the value in its tool call.
	ScopeRequest ParamScope = "request"
)

// ToolParameter describes one named input to a ToolDefinition.
type ToolParameter struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Required    bool       `json:"required"`
	Scope       ParamScope `json:"scope"`
	Shared      bool       `json:"shared"`
	// JSONType is one of "string", "integer", "number", "boolean" — mirrors
	// the MCPToolDefinition type mapping so local and remote tools share one
	// normalization/coercion code path in pkg/tooladapter.
	JSONType string `json:"jsonType"`
}

// ToolDefinition is the uniform, provider-agnostic description of a callable
// tool, whether backed by a local Go type or a remote MCP server.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// MCPParamType enumerates the JSON-Schema primitive types a remote MCP tool
// parameter can declare.
type MCPParamType string

const (
	MCPString  MCPParamType = "string"
	MCPInteger MCPParamType = "integer"
	MCPNumber  MCPParamType = "number"
	MCPBoolean MCPParamType = "boolean"
)

// GoType maps an MCPParamType onto the Go value type ToolAdapter coerces
// arguments into. Unknown schema types fall back to string, per § 3.
func (t MCPParamType) GoType() string {
	switch t {
	case MCPInteger:
		return "int64"
	case MCPNumber:
		return "float64"
	case MCPBoolean:
		return "bool"
	case MCPString:
		return "string"
	default:
		return "string"
	}
}

// MCPToolDefinition is a JSON-Schema-typed remote tool description as
// discovered from an MCP server.
type MCPToolDefinition struct {
	Server      string
	Name        string
	Description string
	Parameters  []MCPParameter
}

// MCPParameter is one property of an MCPToolDefinition's JSON-Schema input.
type MCPParameter struct {
	Name        string
	Description string
	Required    bool
	Type        MCPParamType
}

// AsToolDefinition converts a discovered MCP tool into the uniform
// ToolDefinition shape so it can flow through the same registration and
// prompt-building path as local tools.
func (d MCPToolDefinition) AsToolDefinition() ToolDefinition {
	params := make([]ToolParameter, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		params = append(params, ToolParameter{
			Name:        p.Name,
			Description: p.Description,
			Required:    p.Required,
			Scope:       ScopeRequest,
			JSONType:    p.Type.GoType(),
		})
	}
	return ToolDefinition{Name: d.Name, Description: d.Description, Parameters: params}
}
