package anthropic

// Anthropic Messages API types

// AnthropicRequest is the request body for the Messages API.
type AnthropicRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	Messages    []AnthropicMsg `json:"messages"`
	System      string         `json:"system,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
}

// AnthropicMsg is a message in the Anthropic format.
type AnthropicMsg struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// streamEvent is the envelope of every "data:" payload on the stream.
type streamEvent struct {
	Type  string         `json:"type"`
	Index int            `json:"index"`
	Delta *streamDelta   `json:"delta,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type streamDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrorResponse from the API, both as an HTTP body and as a stream event.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Type  string        `json:"type"`
	Error ErrorResponse `json:"error"`
}

// Streaming SSE event types
const (
	EventMessageStart      = "message_start"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Error types reported by the API.
const (
	errTypeRateLimit      = "rate_limit_error"
	errTypeAuthentication = "authentication_error"
	errTypePermission     = "permission_error"
	errTypeInvalidRequest = "invalid_request_error"
)
