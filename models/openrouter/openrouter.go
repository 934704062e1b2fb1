package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/Desarso/chatrelay/models"
)

const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel      = "openai/gpt-4o-mini"
)

// OpenRouter_Model streams completions from OpenRouter.
// Also supports any OpenAI-compatible API endpoint
type OpenRouter_Model struct {
	APIKey       string
	Model        string // Model identifier (e.g., "openai/gpt-4o", "anthropic/claude-3-opus")
	MaxTokens    int
	Temperature  *float64
	SiteURL      string // Optional: Your site URL for OpenRouter rankings
	SiteName     string // Optional: Your site name for OpenRouter rankings
	SystemPrompt string
	BaseURL      string // Optional: Custom API base URL (defaults to OpenRouter)
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// New returns an OpenRouter model with default settings.
func New(apiKey string) *OpenRouter_Model {
	return &OpenRouter_Model{
		APIKey:     apiKey,
		Model:      DefaultModel,
		BaseURL:    OpenRouterBaseURL,
		HTTPClient: http.DefaultClient,
		Logger:     log.New(os.Stdout, "[OPENROUTER] ", log.LstdFlags),
	}
}

// Stream implements models.Upstream.
func (o *OpenRouter_Model) Stream(ctx context.Context, request models.UpstreamRequest) (<-chan models.UpstreamEvent, error) {
	requestBody, err := o.createOpenRouterRequest(request)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter request: %w", err)
	}

	jsonBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	// Use custom base URL if provided, otherwise use OpenRouter
	baseURL := o.BaseURL
	if baseURL == "" {
		baseURL = OpenRouterBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	o.setHeaders(req)

	client := o.HTTPClient
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
		o.readStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// readStream forwards content deltas until [DONE]. A stream that ends after a
// finish_reason but without [DONE] still counts as complete.
func (o *OpenRouter_Model) readStream(ctx context.Context, r io.Reader, events chan<- models.UpstreamEvent) {
	send := func(ev models.UpstreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finished := false
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return
			}
			send(models.ErrorEvent(fmt.Errorf("error reading stream: %w", err)))
			return
		}
		eof := err != nil

		line = strings.TrimSpace(line)
		// Comments like ": OPENROUTER PROCESSING" keep the connection alive
		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				send(models.DoneEvent())
				return
			}

			var chunk StreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				o.logf("Warning: Failed to unmarshal stream chunk: %v", err)
			} else {
				if chunk.Error != nil {
					send(models.ErrorEvent(classifyError(http.StatusOK, *chunk.Error)))
					return
				}
				for _, choice := range chunk.Choices {
					if choice.Delta != nil && choice.Delta.Content != "" {
						if !send(models.TextEvent(choice.Delta.Content)) {
							return
						}
					}
					if choice.FinishReason != nil && *choice.FinishReason != "" {
						if *choice.FinishReason == "error" {
							send(models.ErrorEvent(&models.APIError{StatusCode: http.StatusOK, Message: "generation failed"}))
							return
						}
						finished = true
					}
				}
			}
		}

		if eof {
			break
		}
	}

	if finished {
		send(models.DoneEvent())
		return
	}
	send(models.ErrorEvent(models.ErrStreamTruncated))
}

// createOpenRouterRequest maps the history onto chat-completion messages.
func (o *OpenRouter_Model) createOpenRouterRequest(request models.UpstreamRequest) (OpenRouterRequest, error) {
	if len(request.Messages) == 0 {
		return OpenRouterRequest{}, fmt.Errorf("cannot create OpenRouter request with no messages")
	}

	messages := make([]Message, 0, len(request.Messages)+1)
	if o.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: o.SystemPrompt})
	}
	for _, msg := range request.Messages {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, Message{Role: role, Content: msg.Content})
	}

	model := request.Model
	if model == "" {
		model = o.Model
	}
	if model == "" {
		model = DefaultModel
	}

	out := OpenRouterRequest{
		Model:       model,
		Messages:    messages,
		Stream:      true,
		Temperature: o.Temperature,
	}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.MaxTokens
	}
	if maxTokens > 0 {
		out.MaxTokens = &maxTokens
	}
	return out, nil
}

// setHeaders sets the required headers for OpenRouter API requests
func (o *OpenRouter_Model) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// Optional headers for OpenRouter
	if o.SiteURL != "" {
		req.Header.Set("HTTP-Referer", o.SiteURL)
	}
	if o.SiteName != "" {
		req.Header.Set("X-Title", o.SiteName)
	}
}

func (o *OpenRouter_Model) logf(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

func mapHTTPError(statusCode int, body []byte) error {
	var errResp ErrorResponse
	apiErr := OpenRouterError{Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr = errResp.Error
	}
	return classifyError(statusCode, apiErr)
}

// classifyError wraps the API error with the matching models sentinel.
// OpenRouter reports the HTTP status in error.code for mid-stream errors.
func classifyError(statusCode int, e OpenRouterError) error {
	if code, ok := e.Code.(float64); ok && statusCode == http.StatusOK {
		statusCode = int(code)
	}
	apiErr := &models.APIError{StatusCode: statusCode, Type: e.Type, Message: e.Message}

	switch statusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", models.ErrRateLimit, apiErr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", models.ErrAuthInvalid, apiErr)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %w", models.ErrInsufficientBalance, apiErr)
	default:
		return apiErr
	}
}
