package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/Desarso/chatrelay/models"
)

const DefaultModel = "gemini-2.0-flash"

// Gemini_Model streams completions through the Gemini API.
type Gemini_Model struct {
	Model        string
	MaxTokens    int
	SystemPrompt string
	Logger       *log.Logger

	client *genai.Client
}

// New creates a Gemini client for the given API key.
func New(ctx context.Context, apiKey string) (*Gemini_Model, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini_Model{
		Model:  DefaultModel,
		Logger: log.New(os.Stdout, "[GEMINI] ", log.LstdFlags),
		client: client,
	}, nil
}

// Stream implements models.Upstream. The first response is pulled before
// returning so a refused call surfaces as an open error.
func (g *Gemini_Model) Stream(ctx context.Context, request models.UpstreamRequest) (<-chan models.UpstreamEvent, error) {
	if len(request.Messages) == 0 {
		return nil, fmt.Errorf("cannot create Gemini request with no messages")
	}

	modelToUse := request.Model
	if modelToUse == "" {
		modelToUse = g.Model
	}
	if modelToUse == "" {
		modelToUse = DefaultModel
	}

	config := &genai.GenerateContentConfig{}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.MaxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if g.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.SystemPrompt, genai.RoleUser)
	}

	seq := g.client.Models.GenerateContentStream(ctx, modelToUse, toContents(request.Messages), config)
	return pullStream(ctx, seq)
}

// pullStream adapts a response iterator to the upstream event channel.
func pullStream(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) (<-chan models.UpstreamEvent, error) {
	next, stop := iter.Pull2(seq)

	first, err, ok := next()
	if !ok {
		stop()
		events := make(chan models.UpstreamEvent, 1)
		events <- models.DoneEvent()
		close(events)
		return events, nil
	}
	if err != nil {
		stop()
		return nil, classifyError(err)
	}

	events := make(chan models.UpstreamEvent)
	go func() {
		defer close(events)
		defer stop()

		send := func(ev models.UpstreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp := first
		for {
			if text := responseText(resp); text != "" {
				if !send(models.TextEvent(text)) {
					return
				}
			}

			var ok bool
			resp, err, ok = next()
			if !ok {
				send(models.DoneEvent())
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send(models.ErrorEvent(classifyError(err)))
				return
			}
		}
	}()
	return events, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

// toContents maps history roles onto Gemini's user/model vocabulary.
func toContents(messages []models.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}
	return contents
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	wrapped := &models.APIError{StatusCode: apiErr.Code, Type: apiErr.Status, Message: apiErr.Message}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", models.ErrRateLimit, wrapped)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", models.ErrAuthInvalid, wrapped)
	case strings.Contains(strings.ToLower(apiErr.Message), "api key not valid"):
		return fmt.Errorf("%w: %w", models.ErrAuthInvalid, wrapped)
	default:
		return wrapped
	}
}
