package sessions

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Desarso/chatrelay/models"
)

// WebSocketFrameWriter sends each frame as one JSON text message. A single
// connection carries many turns, so Close ends the turn, not the socket.
type WebSocketFrameWriter struct {
	Conn         *websocket.Conn
	Logger       *log.Logger
	WriteTimeout time.Duration
	mu           sync.Mutex
	open         bool
}

// Open starts a turn on the connection.
func (w *WebSocketFrameWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open {
		return fmt.Errorf("turn already in progress on this connection")
	}
	w.open = true
	return nil
}

// WriteFrame sends the frame as a JSON message.
func (w *WebSocketFrameWriter) WriteFrame(frame models.StreamFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return fmt.Errorf("no turn in progress")
	}
	if w.WriteTimeout > 0 {
		if err := w.Conn.SetWriteDeadline(time.Now().Add(w.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := w.Conn.WriteJSON(frame); err != nil {
		w.Logger.Printf("Error writing %s frame: %v", frame.Type, err)
		return err
	}
	return nil
}

// Close ends the current turn.
func (w *WebSocketFrameWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = false
	return nil
}

// WriteError sends an error frame outside of a turn, for failures that happen
// before a turn could start.
func (w *WebSocketFrameWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(models.ErrorFrame(message))
}
