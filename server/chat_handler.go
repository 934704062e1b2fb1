package server

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Desarso/chatrelay/models"
	"github.com/Desarso/chatrelay/sessions"
)

// sendMessage relays one turn as a server-sent event stream.
// POST /api/chat/message
func (s *Server) sendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(NewValidationError("Request validation failed", err.Error()))
		return
	}
	turn := req.Turn()
	if turn.Text == "" {
		c.Error(NewValidationError("Message cannot be empty", nil))
		return
	}

	relay := s.Relay.ForRequest(uuid.NewString()[:8], "sse")
	writer := sessions.NewSSEFrameWriter(c.Writer)

	// A returned error means nothing was written yet.
	if _, err := relay.HandleTurn(c.Request.Context(), turn, writer); err != nil {
		c.Error(err)
		return
	}
}

// chatWebSocket serves turns over a WebSocket. Each text message is a
// SendMessageRequest; frames for the turn are sent back as JSON messages.
// GET /api/chat/ws
func (s *Server) chatWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()[:8]
	writer := sessions.NewWebSocketFrameWriter(sessionID, conn)
	relay := s.Relay.ForRequest(sessionID, "websocket")
	writer.Logger.Printf("Connection opened")

	for {
		var req models.SendMessageRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			switch {
			case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
				// The bad message is discarded; keep the connection.
				if werr := writer.WriteError("Request validation failed"); werr != nil {
					return
				}
				continue
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway), errors.Is(err, io.EOF):
				writer.Logger.Printf("Connection closed")
			default:
				writer.Logger.Printf("Read error: %v", err)
			}
			return
		}

		turn := req.Turn()
		if turn.Text == "" {
			if err := writer.WriteError("Message cannot be empty"); err != nil {
				return
			}
			continue
		}

		if _, err := relay.HandleTurn(c.Request.Context(), turn, writer); err != nil {
			appErr := toAppError(err)
			writer.Logger.Printf("Turn failed before streaming: %v", err)
			if werr := writer.WriteError(appErr.Message); werr != nil {
				return
			}
		}
	}
}
