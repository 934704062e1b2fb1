package sessions

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Desarso/chatrelay/models"
	"github.com/Desarso/chatrelay/stores"
)

// NewTurnRelay creates a relay for one transport. Optional fields (Traces,
// AnnounceMessageID) are set on the returned value.
func NewTurnRelay(store stores.ConversationStore, upstream models.Upstream, defaultModel string, maxTokens int) *TurnRelay {
	return &TurnRelay{
		Store:        store,
		Upstream:     upstream,
		DefaultModel: defaultModel,
		MaxTokens:    maxTokens,
		Transport:    "sse",
		Logger:       log.New(os.Stdout, "[RELAY] ", log.LstdFlags),
	}
}

// ForRequest returns a copy of the relay that logs under the given request id.
func (r *TurnRelay) ForRequest(requestID, transport string) *TurnRelay {
	cp := *r
	cp.Transport = transport
	cp.Logger = log.New(os.Stdout, fmt.Sprintf("[RELAY %s] ", requestID), log.LstdFlags)
	return &cp
}

// NewWebSocketFrameWriter creates a frame writer for a WebSocket connection.
func NewWebSocketFrameWriter(sessionID string, conn *websocket.Conn) *WebSocketFrameWriter {
	return &WebSocketFrameWriter{
		Conn:         conn,
		Logger:       log.New(os.Stdout, fmt.Sprintf("[WS %s] ", sessionID), log.LstdFlags),
		WriteTimeout: 10 * time.Second,
	}
}
