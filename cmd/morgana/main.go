// Command morgana runs the multi-agent conversational runtime's process
// entrypoint: configuration, persistence, PushBridge, MCP tool discovery,
// the LLM sidecar client, and the HTTP API server. Grounded on the teacher's
// cmd/tarsy/main.go bootstrap sequence (flag parsing, .env loading, gin
// setup, health endpoint).
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/morgana-run/morgana/pkg/agentactor"
	"github.com/morgana-run/morgana/pkg/api"
	"github.com/morgana-run/morgana/pkg/chatclient"
	"github.com/morgana-run/morgana/pkg/classifier"
	"github.com/morgana-run/morgana/pkg/config"
	"github.com/morgana-run/morgana/pkg/guard"
	"github.com/morgana-run/morgana/pkg/manager"
	"github.com/morgana-run/morgana/pkg/mcpclient"
	"github.com/morgana-run/morgana/pkg/metrics"
	"github.com/morgana-run/morgana/pkg/persistence"
	"github.com/morgana-run/morgana/pkg/pushbridge"
	"github.com/morgana-run/morgana/pkg/router"
	"github.com/morgana-run/morgana/pkg/supervisor"
	"github.com/morgana-run/morgana/pkg/tooladapter"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	httpAddr := flag.String("http-addr", getEnv("HTTP_ADDR", ":8080"), "Address to serve HTTP/WebSocket traffic on")
	flag.Parse()

	log.Printf("starting morgana (config dir: %s)", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgStore, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}
	cfg := cfgStore.Current()

	store, err := buildStore(ctx)
	if err != nil {
		log.Fatalf("failed to initialize persistence: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("error closing persistence store", "error", err)
		}
	}()

	push := pushbridge.New(store, 10*time.Second, cfg.Runtime.MaxReconnectBackoff)

	pool := mcpclient.NewPool(mcpServerConfigs(cfg))
	for _, s := range cfg.MCPServers {
		if !s.Enabled {
			continue
		}
		if err := pool.InitializeServer(ctx, s.Name); err != nil {
			slog.Warn("mcp server failed to initialize, continuing without it", "server", s.Name, "error", err)
		}
	}
	defer func() {
		if err := pool.Close(); err != nil {
			slog.Error("error closing mcp pool", "error", err)
		}
	}()

	chatClient := buildChatClient()
	defer func() {
		if err := chatClient.Close(); err != nil {
			slog.Error("error closing chat client", "error", err)
		}
	}()

	agentRegistry := buildAgentRegistry(ctx, cfg, pool)

	m := metrics.New()

	reg := manager.NewRegistry()
	factory := func(conversationID string) manager.Deps {
		return buildConversationDeps(agentRegistry, chatClient, cfgStore.Current())
	}

	srv := api.NewServer(reg, factory, push, store, cfg.Runtime.IdleTimeout)
	srv.SetMetrics(m)
	if err := srv.ValidateWiring(); err != nil {
		log.Fatalf("server wiring incomplete: %v", err)
	}

	go func() {
		log.Printf("serving HTTP on %s", *httpAddr)
		if err := srv.Start(*httpAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during http server shutdown", "error", err)
	}
}

// buildStore constructs the PersistenceStore: PostgreSQL when DATABASE_URL
// is set (running migrations first), otherwise the in-memory fallback used
// for local development, matching SPEC_FULL.md § 6.5.
func buildStore(ctx context.Context) (persistence.Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		slog.Info("DATABASE_URL not set, using in-memory persistence store")
		return persistence.NewMemoryStore(), nil
	}

	if err := persistence.Migrate(dsn); err != nil {
		return nil, err
	}

	pool, err := persistence.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return persistence.NewPostgresStore(pool), nil
}

// buildChatClient connects to the LLM sidecar when LLM_SIDECAR_ADDR is set,
// otherwise falls back to a scripted MockClient so the server is runnable
// without a sidecar process during local development.
func buildChatClient() chatclient.Client {
	addr := os.Getenv("LLM_SIDECAR_ADDR")
	if addr == "" {
		slog.Warn("LLM_SIDECAR_ADDR not set, using mock chat client")
		return chatclient.NewMockClient("I'm not connected to a real model right now.")
	}

	c, err := chatclient.NewSidecarClient(addr)
	if err != nil {
		slog.Error("failed to dial llm sidecar, falling back to mock client", "addr", addr, "error", err)
		return chatclient.NewMockClient("I'm not connected to a real model right now.")
	}
	return c
}

func mcpServerConfigs(cfg *config.MorganaYAMLConfig) []mcpclient.ServerConfig {
	out := make([]mcpclient.ServerConfig, 0, len(cfg.MCPServers))
	for _, s := range cfg.MCPServers {
		if !s.Enabled {
			continue
		}
		out = append(out, mcpclient.ServerConfig{Name: s.Name, URI: s.URI})
	}
	return out
}

// buildAgentRegistry constructs the process-wide AgentRegistry (§ 4.5) from
// the configured intents, binding every intent's Spec to the full set of
// discovered MCP tools — this repository has no per-intent local tool
// packages, so MCP is the only tool source an intent can be given (see
// DESIGN.md).
func buildAgentRegistry(ctx context.Context, cfg *config.MorganaYAMLConfig, pool *mcpclient.Pool) *router.Registry {
	defs, err := pool.ListAllTools(ctx)
	if err != nil {
		slog.Warn("mcp tool discovery failed, agents will have no remote tools", "error", err)
	}
	tools := tooladapter.WrapMCPTools(defs, pool)

	specs := make([]agentactor.Spec, 0, len(cfg.Intents))
	for _, intent := range cfg.Intents {
		prompt := cfg.Prompts.PerIntent[intent.Name]
		specs = append(specs, agentactor.Spec{
			Intent: intent.Name,
			Prompt: prompt,
			Tools:  tools,
		})
	}
	return router.NewRegistry(specs)
}

// buildConversationDeps constructs the per-conversation actor tree: a fresh
// Guard/Classifier/Router/Supervisor sharing the process-wide AgentRegistry
// and ChatClient, bundled as a manager.Deps.
func buildConversationDeps(agentRegistry *router.Registry, chat chatclient.Client, cfg *config.MorganaYAMLConfig) manager.Deps {
	intents := make([]classifier.IntentDescriptor, 0, len(cfg.Intents))
	for _, intent := range cfg.Intents {
		intents = append(intents, classifier.IntentDescriptor{Name: intent.Name, Description: intent.Description})
	}

	normCfg := tooladapter.NormalizationConfig{
		MinSubstringLength: cfg.ParameterNormalization.MinSubstringLength,
		SimilarityRatio:    cfg.ParameterNormalization.SimilarityRatio,
	}

	g := guard.New(chat, cfg.ProfanityTerms, cfg.Prompts.Guard, cfg.Runtime.TurnTimeout)
	c := classifier.New(chat, intents)
	rt := router.New(agentRegistry, chat, normCfg)
	sup := supervisor.New(g, c, rt, cfg.Runtime.TurnTimeout)

	return manager.Deps{Guard: g, Classifier: c, Router: rt, Supervisor: sup}
}
