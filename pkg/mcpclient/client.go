// Package mcpclient is the remote-tool transport half of ToolAdapter
// (SPEC_FULL.md § 4.7): one persistent session per configured MCP server,
// tool discovery with partial-failure tolerance, and a retry-once-with-
// jittered-backoff policy on transport errors. Grounded on the teacher's
// pkg/mcp/client.go.
package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/morgana-run/morgana/pkg/morgana"
)

// RetryAction is the outcome of classifying a transport error: whether the
// call is worth retrying and, if so, whether the session must be recreated
// first.
type RetryAction int

const (
	NoRetry RetryAction = iota
	RetryNewSession
)

// ClassifyError decides whether a transport error is worth one retry. Mirrors
// the teacher's ClassifyError: anything that looks like a broken connection
// gets a fresh session; anything else (bad arguments, tool-side errors) is
// not retried.
func ClassifyError(err error) RetryAction {
	if err == nil {
		return NoRetry
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"eof", "connection reset", "broken pipe", "closed", "transport"} {
		if strings.Contains(msg, needle) {
			return RetryNewSession
		}
	}
	return NoRetry
}

// ServerConfig is the minimal per-server configuration the client needs;
// callers build this from config.MCPServerConfig.
type ServerConfig struct {
	Name string
	URI  string
}

// Pool manages one MCP client/session per configured server.
type Pool struct {
	mu sync.RWMutex

	servers map[string]ServerConfig
	clients map[string]*mcpsdk.Client
	sessions map[string]*mcpsdk.ClientSession

	// failedServers records the last connection error per server name, so
	// ListAllTools can report partial failures without aborting.
	failedServers map[string]string

	toolCacheMu sync.RWMutex
	toolCache   map[string][]morgana.MCPToolDefinition // keyed by server name

	// reinitMu holds one mutex per server to serialize concurrent
	// recreateSession attempts for that server.
	//
	// Lock ordering: never acquire mu while holding toolCacheMu.
	reinitMu sync.Map
}

// NewPool creates a Pool for the given server configs. It does not connect
// eagerly — InitializeServer is called lazily from ListAllTools/CallTool, or
// may be called explicitly at startup to fail fast on misconfiguration.
func NewPool(servers []ServerConfig) *Pool {
	p := &Pool{
		servers:       make(map[string]ServerConfig, len(servers)),
		clients:       make(map[string]*mcpsdk.Client),
		sessions:      make(map[string]*mcpsdk.ClientSession),
		failedServers: make(map[string]string),
		toolCache:     make(map[string][]morgana.MCPToolDefinition),
	}
	for _, s := range servers {
		p.servers[s.Name] = s
	}
	return p
}

// InitializeServer establishes (or re-establishes) the session for a single
// named server.
func (p *Pool) InitializeServer(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initializeServerLocked(ctx, name)
}

func (p *Pool) initializeServerLocked(ctx context.Context, name string) error {
	cfg, ok := p.servers[name]
	if !ok {
		return fmt.Errorf("mcpclient: unknown server %q", name)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "morgana", Version: "1.0.0"}, nil)
	transport := &mcpsdk.SSEClientTransport{Endpoint: cfg.URI}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		p.failedServers[name] = err.Error()
		return fmt.Errorf("%w: connect to mcp server %q: %v", morgana.ErrProviderUnavailable, name, err)
	}

	p.clients[name] = client
	p.sessions[name] = session
	delete(p.failedServers, name)
	slog.Info("mcp server connected", "server", name)
	return nil
}

func (p *Pool) reinitMutex(name string) *sync.Mutex {
	m, _ := p.reinitMu.LoadOrStore(name, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// recreateSession drops and rebuilds the session for one server, used when
// ClassifyError says a call failed due to a broken transport.
func (p *Pool) recreateSession(ctx context.Context, name string) error {
	mu := p.reinitMutex(name)
	mu.Lock()
	defer mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.sessions[name]; ok {
		_ = old.Close()
	}
	return p.initializeServerLocked(ctx, name)
}

// ListAllTools lists tools from every enabled server, tolerating individual
// server failures: it returns an error only if every server failed.
func (p *Pool) ListAllTools(ctx context.Context) ([]morgana.MCPToolDefinition, error) {
	var all []morgana.MCPToolDefinition
	failures := 0

	p.mu.RLock()
	names := make([]string, 0, len(p.servers))
	for name := range p.servers {
		names = append(names, name)
	}
	p.mu.RUnlock()

	for _, name := range names {
		tools, err := p.listServerTools(ctx, name)
		if err != nil {
			failures++
			slog.Warn("mcp server tool listing failed, degrading", "server", name, "error", err)
			continue
		}
		all = append(all, tools...)
	}

	if len(names) > 0 && failures == len(names) {
		return nil, fmt.Errorf("%w: all %d mcp servers failed to list tools", morgana.ErrProviderUnavailable, len(names))
	}
	return all, nil
}

func (p *Pool) listServerTools(ctx context.Context, name string) ([]morgana.MCPToolDefinition, error) {
	if cached, ok := p.cachedTools(name); ok {
		return cached, nil
	}

	p.mu.RLock()
	session, ok := p.sessions[name]
	p.mu.RUnlock()
	if !ok {
		if err := p.InitializeServer(ctx, name); err != nil {
			return nil, err
		}
		p.mu.RLock()
		session = p.sessions[name]
		p.mu.RUnlock()
	}

	result, err := session.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %q: %w", name, err)
	}

	defs := make([]morgana.MCPToolDefinition, 0, len(result.Tools))
	for _, t := range result.Tools {
		defs = append(defs, morgana.MCPToolDefinition{
			Server:      name,
			Name:        t.Name,
			Description: t.Description,
			Parameters:  paramsFromSchema(t.InputSchema),
		})
	}

	p.toolCacheMu.Lock()
	p.toolCache[name] = defs
	p.toolCacheMu.Unlock()

	return defs, nil
}

func (p *Pool) cachedTools(name string) ([]morgana.MCPToolDefinition, bool) {
	p.toolCacheMu.RLock()
	defer p.toolCacheMu.RUnlock()
	defs, ok := p.toolCache[name]
	return defs, ok
}

// CallTool invokes a tool on the named server with already-normalized and
// type-coerced arguments, retrying once with jittered backoff if the
// transport error looks recoverable.
func (p *Pool) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	text, err := p.callOnce(ctx, server, tool, args)
	if err == nil {
		return text, nil
	}

	if ClassifyError(err) != RetryNewSession {
		return "", err
	}

	backoff := 100*time.Millisecond + time.Duration(rand.IntN(200))*time.Millisecond
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if recreateErr := p.recreateSession(ctx, server); recreateErr != nil {
		return "", fmt.Errorf("retry after recreate failed: %w", recreateErr)
	}
	return p.callOnce(ctx, server, tool, args)
}

func (p *Pool) callOnce(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	p.mu.RLock()
	session, ok := p.sessions[server]
	p.mu.RUnlock()
	if !ok {
		if err := p.InitializeServer(ctx, server); err != nil {
			return "", err
		}
		p.mu.RLock()
		session = p.sessions[server]
		p.mu.RUnlock()
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call tool %q on %q: %w", tool, server, err)
	}
	return flattenContent(result), nil
}

// flattenContent joins every text content block of an MCP tool result into a
// single payload for the LLM, per § 4.7 step 4.
func flattenContent(result *mcpsdk.CallToolResult) string {
	var b strings.Builder
	for i, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// Close shuts down every live session.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for name, session := range p.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", name, err)
		}
	}
	return firstErr
}

// paramsFromSchema maps a JSON-Schema "object" input schema's properties
// onto MCPParameter, per the string|integer|number|boolean type mapping in
// SPEC_FULL.md § 3.
func paramsFromSchema(schema *mcpsdk.JSONSchema) []morgana.MCPParameter {
	if schema == nil || schema.Properties == nil {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	params := make([]morgana.MCPParameter, 0, len(schema.Properties))
	for name, prop := range schema.Properties {
		params = append(params, morgana.MCPParameter{
			Name:        name,
			Description: prop.Description,
			Required:    required[name],
			Type:        mapSchemaType(prop.Type),
		})
	}
	return params
}

func mapSchemaType(t string) morgana.MCPParamType {
	switch t {
	case "integer":
		return morgana.MCPInteger
	case "number":
		return morgana.MCPNumber
	case "boolean":
		return morgana.MCPBoolean
	case "string":
		return morgana.MCPString
	default:
		return morgana.MCPString
	}
}
