package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Frame kinds carried in the "type" field of a frame payload.
const (
	FrameConversationID = "conversation_id"
	FrameContent        = "content"
	FrameMessageID      = "message_id"
	FrameDone           = "done"
	FrameError          = "error"
)

// FramePrefix starts every frame line; a blank line terminates the frame.
const FramePrefix = "data: "

// DoneSentinel is the transport-level terminator. It is not a frame kind.
const DoneSentinel = "[DONE]"

var (
	// ErrIncompletePayload means the payload was cut off and more bytes may complete it.
	ErrIncompletePayload = errors.New("incomplete frame payload")
	// ErrMalformedPayload means the payload can never decode into a frame.
	ErrMalformedPayload = errors.New("malformed frame payload")
)

// StreamFrame is the atomic unit written from the relay to the client.
type StreamFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	Message        string `json:"message,omitempty"`
}

func ConversationIDFrame(id string) StreamFrame {
	return StreamFrame{Type: FrameConversationID, ConversationID: id}
}

func ContentFrame(text string) StreamFrame {
	return StreamFrame{Type: FrameContent, Content: text}
}

func MessageIDFrame(id string) StreamFrame {
	return StreamFrame{Type: FrameMessageID, MessageID: id}
}

func DoneFrame() StreamFrame {
	return StreamFrame{Type: FrameDone}
}

func ErrorFrame(message string) StreamFrame {
	return StreamFrame{Type: FrameError, Message: message}
}

// IsTerminal reports whether the frame ends the stream logically.
func (f StreamFrame) IsTerminal() bool {
	return f.Type == FrameDone || f.Type == FrameError
}

// EncodeFrame renders a frame as "data: <json>\n\n".
func EncodeFrame(f StreamFrame) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	buf := make([]byte, 0, len(FramePrefix)+len(payload)+2)
	buf = append(buf, FramePrefix...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	return buf, nil
}

// DecodePayload decodes the text after the frame prefix. Truncated JSON yields
// ErrIncompletePayload, anything else that fails yields ErrMalformedPayload.
func DecodePayload(payload []byte) (StreamFrame, error) {
	var f StreamFrame
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return StreamFrame{}, fmt.Errorf("%w: %q", ErrIncompletePayload, payload)
		}
		return StreamFrame{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// Trailing garbage after the object is not something more bytes can fix.
	if dec.More() {
		return StreamFrame{}, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}
	if f.Type == "" {
		return StreamFrame{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return f, nil
}
