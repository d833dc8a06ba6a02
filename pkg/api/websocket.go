package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// websocketHandler upgrades the HTTP connection and delegates to the
// PushBridge Hub, grounded on the teacher's handler_ws.go. Origin validation
// is intentionally left at InsecureSkipVerify — the same posture the teacher
// carries with a dated TODO to replace it with an allowlist before this
// endpoint is exposed outside a trusted network.
func (s *Server) websocketHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.push.HandleConnection(c.Request.Context(), conn)
}
