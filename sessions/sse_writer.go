package sessions

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/Desarso/chatrelay/models"
)

// SSEFrameWriter writes frames as server-sent events on an HTTP response.
//
// Frames are written raw ("data: <json>\n\n") rather than through gin's
// SSEvent helper, which adds an "event:" line the client does not expect.
type SSEFrameWriter struct {
	W       http.ResponseWriter
	mu      sync.Mutex
	flusher http.Flusher
	closed  bool
}

// NewSSEFrameWriter wraps an HTTP response. gin.ResponseWriter works as is.
func NewSSEFrameWriter(w http.ResponseWriter) *SSEFrameWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEFrameWriter{W: w, flusher: flusher}
}

// Open sends the SSE headers and a 200 status.
func (w *SSEFrameWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := w.W.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.W.WriteHeader(http.StatusOK)
	w.flush()
	return nil
}

// WriteFrame writes one frame and flushes it to the client immediately.
func (w *SSEFrameWriter) WriteFrame(frame models.StreamFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("sse stream closed")
	}
	data, err := models.EncodeFrame(frame)
	if err != nil {
		return err
	}
	if _, err := w.W.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	w.flush()
	return nil
}

// Close marks the stream finished. The HTTP handler returning ends the response.
func (w *SSEFrameWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *SSEFrameWriter) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
