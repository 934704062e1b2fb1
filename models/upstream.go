package models

import (
	"context"
	"errors"
	"fmt"
)

// Role is the author of a stored or reconstructed message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// ChatMessage is one entry of the history sent upstream.
type ChatMessage struct {
	Role    Role
	Content string
}

// UpstreamRequest seeds a single upstream streaming call.
type UpstreamRequest struct {
	Model     string
	MaxTokens int
	Messages  []ChatMessage
}

// EventKind discriminates UpstreamEvent.
type EventKind int

const (
	EventText EventKind = iota
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// UpstreamEvent is one element of an upstream stream. A stream carries any
// number of EventText events followed by exactly one EventDone or EventError.
type UpstreamEvent struct {
	Kind EventKind
	Text string
	Err  error
}

func TextEvent(text string) UpstreamEvent { return UpstreamEvent{Kind: EventText, Text: text} }
func DoneEvent() UpstreamEvent            { return UpstreamEvent{Kind: EventDone} }
func ErrorEvent(err error) UpstreamEvent  { return UpstreamEvent{Kind: EventError, Err: err} }

// Upstream opens streaming calls against a language-model service.
//
// A non-nil error means the stream could not be opened and no event will be
// produced. Otherwise the channel yields events until a terminal event and is
// then closed. Implementations stop producing when ctx is cancelled.
type Upstream interface {
	Stream(ctx context.Context, req UpstreamRequest) (<-chan UpstreamEvent, error)
}

// Upstream failure categories.
var (
	ErrRateLimit           = errors.New("rate limit exceeded")
	ErrAuthInvalid         = errors.New("authentication failed")
	ErrInsufficientBalance = errors.New("insufficient credit balance")
	ErrStreamTruncated     = errors.New("upstream stream ended without a terminal event")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// APIError is an error reported by the upstream service itself.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}
