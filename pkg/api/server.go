// Package api implements the five ingress operations of SPEC_FULL.md § 6.1
// as gin-gonic/gin HTTP handlers, grounded on the teacher's cmd/tarsy/main.go
// gin bootstrap (the teacher's go.mod-declared HTTP framework, even though
// its later pkg/api/server.go itself is written against echo) and the
// Set*-dependency-injection plus ValidateWiring (errors.Join) patterns in
// that same file.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/morgana-run/morgana/pkg/manager"
	"github.com/morgana-run/morgana/pkg/metrics"
	"github.com/morgana-run/morgana/pkg/persistence"
	"github.com/morgana-run/morgana/pkg/pushbridge"
)

// ConversationFactory builds the per-conversation actor tree (Guard,
// Classifier, Router, Supervisor) for a freshly created Manager. Supplied by
// cmd/morgana, which is the only place that knows how to construct a
// ChatClient, MCP pool, and AgentRegistry — the api package stays agnostic
// of those concerns.
type ConversationFactory func(conversationID string) manager.Deps

// Server is the HTTP API server exposing create/sendMessage/resume/
// terminate/history plus the WebSocket upgrade endpoint PushBridge serves.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	registry    *manager.Registry
	buildDeps   ConversationFactory
	push        *pushbridge.Hub
	store       persistence.Store
	idleTimeout time.Duration

	metrics *metrics.Metrics // nil disables the /metrics endpoint
}

// NewServer creates a Server and registers its routes. Call SetMetrics
// afterward if Prometheus instrumentation is wanted, then ValidateWiring
// before Start.
func NewServer(registry *manager.Registry, buildDeps ConversationFactory, push *pushbridge.Hub, store persistence.Store, idleTimeout time.Duration) *Server {
	s := &Server{
		engine:      gin.Default(),
		registry:    registry,
		buildDeps:   buildDeps,
		push:        push,
		store:       store,
		idleTimeout: idleTimeout,
	}
	s.setupRoutes()
	return s
}

// SetMetrics wires the Prometheus registry and registers its /metrics route.
// Optional — a Server with no metrics set simply omits that endpoint.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	s.engine.GET("/metrics", gin.WrapH(m.Handler()))
}

// ValidateWiring reports every required dependency left unset, mirroring the
// teacher's errors.Join-based aggregation in pkg/api/server.go so a missing
// wiring step surfaces at startup instead of as a request-time panic.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.registry == nil {
		errs = append(errs, fmt.Errorf("manager registry not set (call NewServer with a *manager.Registry)"))
	}
	if s.buildDeps == nil {
		errs = append(errs, fmt.Errorf("conversation factory not set (call NewServer with a ConversationFactory)"))
	}
	if s.push == nil {
		errs = append(errs, fmt.Errorf("pushbridge hub not set (call NewServer with a *pushbridge.Hub)"))
	}
	if s.store == nil {
		errs = append(errs, fmt.Errorf("persistence store not set (call NewServer with a persistence.Store)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// setupRoutes registers every route, static paths ahead of :id-parameterized
// ones, matching the teacher's route-table convention.
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/conversations", s.createConversationHandler)
	v1.GET("/conversations/:id/history", s.historyHandler)
	v1.POST("/conversations/:id/messages", s.sendMessageHandler)
	v1.POST("/conversations/:id/resume", s.resumeHandler)
	v1.POST("/conversations/:id/terminate", s.terminateHandler)
	v1.GET("/ws", s.websocketHandler)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"activeConversations": s.registry.Len(),
	})
}

// Start serves HTTP on addr and blocks until the server stops, returning
// ListenAndServe's error (mirroring the teacher's Server.Start); callers
// that need to keep going run it in their own goroutine.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the HTTP server down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// getOrCreateManager returns the live Manager for conversationID, or builds
// and starts a new one via the ConversationFactory — the registry's
// GetOrCreate guarantees at most one Manager is ever constructed per
// conversation even under concurrent requests.
func (s *Server) getOrCreateManager(conversationID string) *manager.Manager {
	mgr, created := s.registry.GetOrCreate(conversationID, func() *manager.Manager {
		deps := s.buildDeps(conversationID)
		return manager.New(conversationID, deps, s.push, s.store, s.idleTimeout, s.registry.Remove)
	})
	if created {
		mgr.Start(context.Background())
	}
	return mgr
}
