package openrouter

// OpenRouter API Request/Response types (OpenAI-compatible format)

// Request types

type OpenRouterRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Streaming response (Server-Sent Events format)

type StreamResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"` // "chat.completion.chunk"
	Model   string           `json:"model"`
	Choices []StreamChoice   `json:"choices"`
	Error   *OpenRouterError `json:"error,omitempty"` // mid-stream failures arrive as a chunk
}

type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        *Delta  `json:"delta,omitempty"`
	FinishReason *string `json:"finish_reason,omitempty"` // "stop", "length", "error", ...
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Error response
type ErrorResponse struct {
	Error OpenRouterError `json:"error"`
}

type OpenRouterError struct {
	Message string      `json:"message"`
	Type    string      `json:"type,omitempty"`
	Code    interface{} `json:"code,omitempty"` // number on OpenRouter, string on some OpenAI-compatible APIs
}
