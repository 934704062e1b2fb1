package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/Desarso/chatrelay/models"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com/v1/messages"
	DefaultAPIVersion = "2023-06-01"
	DefaultModel      = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens  = 4096
)

// Model streams completions from the Anthropic Messages API.
type Model struct {
	APIKey       string
	BaseURL      string // Optional: custom API endpoint
	DefaultModel string
	MaxTokens    int
	SystemPrompt string
	Temperature  *float64
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// New returns a Model using the given API key and default settings.
func New(apiKey string) *Model {
	return &Model{
		APIKey:       apiKey,
		BaseURL:      DefaultBaseURL,
		DefaultModel: DefaultModel,
		MaxTokens:    DefaultMaxTokens,
		HTTPClient:   http.DefaultClient,
		Logger:       log.New(os.Stdout, "[ANTHROPIC] ", log.LstdFlags),
	}
}

// Stream implements models.Upstream. Non-200 responses are returned as open
// errors; anything after the 200 arrives on the channel.
func (a *Model) Stream(ctx context.Context, request models.UpstreamRequest) (<-chan models.UpstreamEvent, error) {
	anthropicReq, err := a.buildRequest(request)
	if err != nil {
		return nil, err
	}

	jsonBytes, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	baseURL := a.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	a.setHeaders(req)

	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, mapHTTPError(resp.StatusCode, body)
	}

	events := make(chan models.UpstreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		a.parseSSEStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// parseSSEStream reads Anthropic SSE events and forwards text deltas. It always
// ends with exactly one terminal event unless ctx is cancelled first.
func (a *Model) parseSSEStream(ctx context.Context, r io.Reader, events chan<- models.UpstreamEvent) {
	send := func(ev models.UpstreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			a.logf("Skipping undecodable stream line: %v", err)
			continue
		}

		switch ev.Type {
		case EventContentBlockDelta:
			if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				if !send(models.TextEvent(ev.Delta.Text)) {
					return
				}
			}

		case EventMessageStop:
			send(models.DoneEvent())
			return

		case EventError:
			apiErr := ErrorResponse{Type: "stream_error", Message: "unknown stream error"}
			if ev.Error != nil {
				apiErr = *ev.Error
			}
			send(models.ErrorEvent(classifyError(http.StatusOK, apiErr)))
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		send(models.ErrorEvent(fmt.Errorf("error reading stream: %w", err)))
		return
	}
	send(models.ErrorEvent(models.ErrStreamTruncated))
}

// buildRequest constructs the Anthropic API request.
func (a *Model) buildRequest(request models.UpstreamRequest) (AnthropicRequest, error) {
	messages := make([]AnthropicMsg, 0, len(request.Messages))
	for _, msg := range request.Messages {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, AnthropicMsg{Role: role, Content: msg.Content})
	}

	if len(messages) == 0 {
		return AnthropicRequest{}, fmt.Errorf("cannot create Anthropic request with no messages")
	}

	// Anthropic requires strictly alternating user/assistant roles
	messages = mergeConsecutiveMessages(messages)

	model := request.Model
	if model == "" {
		model = a.DefaultModel
	}
	if model == "" {
		model = DefaultModel
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return AnthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		System:      a.SystemPrompt,
		Stream:      true,
		Temperature: a.Temperature,
	}, nil
}

// mergeConsecutiveMessages merges consecutive messages with the same role.
// A turn whose reply failed leaves two user messages back to back.
func mergeConsecutiveMessages(messages []AnthropicMsg) []AnthropicMsg {
	if len(messages) <= 1 {
		return messages
	}

	result := make([]AnthropicMsg, 0, len(messages))
	for _, msg := range messages {
		if len(result) > 0 && result[len(result)-1].Role == msg.Role {
			prev := &result[len(result)-1]
			prev.Content = prev.Content + "\n\n" + msg.Content
			continue
		}
		result = append(result, msg)
	}
	return result
}

// setHeaders sets required headers for Anthropic API requests.
func (a *Model) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-API-Key", a.APIKey)
	req.Header.Set("anthropic-version", DefaultAPIVersion)
}

func (a *Model) logf(format string, args ...interface{}) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
	}
}

// mapHTTPError turns a non-200 response into a classified error.
func mapHTTPError(statusCode int, body []byte) error {
	var env errorEnvelope
	apiErr := ErrorResponse{Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr = env.Error
	}
	return classifyError(statusCode, apiErr)
}

// classifyError wraps an API error with the matching models sentinel so the
// relay can pick a user-facing message with errors.Is.
func classifyError(statusCode int, resp ErrorResponse) error {
	apiErr := &models.APIError{StatusCode: statusCode, Type: resp.Type, Message: resp.Message}

	switch {
	case statusCode == http.StatusTooManyRequests || resp.Type == errTypeRateLimit:
		return fmt.Errorf("%w: %w", models.ErrRateLimit, apiErr)
	case statusCode == http.StatusUnauthorized || resp.Type == errTypeAuthentication:
		return fmt.Errorf("%w: %w", models.ErrAuthInvalid, apiErr)
	case statusCode == http.StatusForbidden || resp.Type == errTypePermission:
		return fmt.Errorf("%w: %w", models.ErrAuthInvalid, apiErr)
	case (statusCode == http.StatusBadRequest || resp.Type == errTypeInvalidRequest) &&
		strings.Contains(strings.ToLower(resp.Message), "credit balance"):
		return fmt.Errorf("%w: %w", models.ErrInsufficientBalance, apiErr)
	default:
		return apiErr
	}
}
