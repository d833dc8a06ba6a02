package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/morgana-run/morgana/pkg/morgana"
)

// CreateConversationRequest is the body for POST /api/v1/conversations.
type CreateConversationRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Resume         bool   `json:"resume"`
}

// createConversationHandler handles POST /api/v1/conversations — § 6.1
// create(conversationId, resume?).
func (s *Server) createConversationHandler(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mgr := s.getOrCreateManager(req.ConversationID)
	if err := mgr.CreateConversation(c.Request.Context(), req.Resume); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"conversationId": req.ConversationID})
}

// resumeHandler handles POST /api/v1/conversations/:id/resume — § 6.1
// resume(conversationId), equivalent to create with resume=true.
func (s *Server) resumeHandler(c *gin.Context) {
	conversationID := c.Param("id")

	mgr := s.getOrCreateManager(conversationID)
	if err := mgr.CreateConversation(c.Request.Context(), true); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"conversationId": conversationID})
}

// SendMessageRequest is the body for POST /api/v1/conversations/:id/messages.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// sendMessageHandler handles POST /api/v1/conversations/:id/messages — § 6.1
// sendMessage(conversationId, text): enqueues a UserMessage and returns 202;
// the response arrives asynchronously via PushBridge. A conversation with no
// live Manager is started implicitly, with create's resume=true semantics.
func (s *Server) sendMessageHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mgr, ok := s.registry.Get(conversationID)
	if !ok {
		mgr = s.getOrCreateManager(conversationID)
		if err := mgr.CreateConversation(c.Request.Context(), true); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
	}

	turn := morgana.Turn{
		ConversationID: conversationID,
		Text:           req.Text,
		ArrivedAt:      time.Now(),
	}
	if err := mgr.UserMessage(c.Request.Context(), turn); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"conversationId": conversationID})
}

// terminateHandler handles POST /api/v1/conversations/:id/terminate — § 6.1
// terminate(conversationId): issues a stop.
func (s *Server) terminateHandler(c *gin.Context) {
	conversationID := c.Param("id")

	mgr, ok := s.registry.Get(conversationID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	mgr.Stop()
	c.JSON(http.StatusOK, gin.H{"conversationId": conversationID, "status": "terminated"})
}

// HistoryTurn is one entry of the history response — a flattened view of
// persistence.TurnRecord for JSON transport.
type HistoryTurn struct {
	Seq              int64     `json:"seq"`
	UserText         string    `json:"userText"`
	AgentText        string    `json:"agentText"`
	ActiveAgentAfter string    `json:"activeAgentAfter,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// historyHandler handles GET /api/v1/conversations/:id/history — § 6.1
// history(conversationId): delegates to PersistenceStore.
func (s *Server) historyHandler(c *gin.Context) {
	conversationID := c.Param("id")

	limit := 200
	records, err := s.store.History(c.Request.Context(), conversationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	turns := make([]HistoryTurn, 0, len(records))
	for _, r := range records {
		turns = append(turns, HistoryTurn{
			Seq:              r.Seq,
			UserText:         r.UserText,
			AgentText:        r.AgentText,
			ActiveAgentAfter: r.ActiveAgentAfter,
			CreatedAt:        r.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversationId": conversationID, "turns": turns})
}
