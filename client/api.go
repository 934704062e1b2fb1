package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/Desarso/chatrelay/models"
)

// DefaultBaseURL is where the relay listens by default.
const DefaultBaseURL = "http://localhost:3001"

// Error codes produced on the client side.
const (
	CodeFetchError   = "FETCH_ERROR"
	CodeNetworkError = "NETWORK_ERROR"
	CodeStreamError  = "STREAM_ERROR"
)

// APIError is a failed API call. Server errors carry the code and message of
// the JSON error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
}

func (e *APIError) Error() string {
	return e.Message
}

// API is an HTTP client for the relay.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewAPI creates a client for the relay at baseURL.
func NewAPI(baseURL string) *API {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &API{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
		Logger:     log.New(os.Stderr, "[API] ", log.LstdFlags),
	}
}

// SendMessage starts a turn and returns the raw event stream. The caller must
// close it.
func (a *API) SendMessage(ctx context.Context, req models.SendMessageRequest) (io.ReadCloser, error) {
	resp, err := a.request(ctx, http.MethodPost, "/api/chat/message", req)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil {
		return nil, &APIError{Code: CodeStreamError, Message: "Response body is null"}
	}
	return resp.Body, nil
}

func (a *API) CreateConversation(ctx context.Context, title *string) (*models.ConversationResponse, error) {
	var out models.ConversationResponse
	if err := a.doJSON(ctx, http.MethodPost, "/api/conversations", models.CreateConversationRequest{Title: title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations returns one page of conversations, most recent first.
func (a *API) ListConversations(ctx context.Context, limit, offset int) (*models.ConversationListResponse, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))

	var out models.ConversationListResponse
	if err := a.doJSON(ctx, http.MethodGet, "/api/conversations?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) GetConversation(ctx context.Context, id string) (*models.ConversationDetailResponse, error) {
	var out models.ConversationDetailResponse
	if err := a.doJSON(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateConversation(ctx context.Context, id, title string) (*models.ConversationResponse, error) {
	var out models.ConversationResponse
	if err := a.doJSON(ctx, http.MethodPatch, "/api/conversations/"+url.PathEscape(id), models.UpdateConversationRequest{Title: title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteConversation(ctx context.Context, id string) (*models.DeleteConversationResponse, error) {
	var out models.DeleteConversationResponse
	if err := a.doJSON(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := a.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Status: resp.StatusCode, Code: CodeFetchError, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

// request sends the call and turns non-2xx responses into *APIError.
func (a *API) request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &APIError{Code: CodeNetworkError, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var envelope models.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
			return nil, &APIError{
				Status:  resp.StatusCode,
				Code:    CodeFetchError,
				Message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode),
			}
		}
		return nil, &APIError{
			Status:  resp.StatusCode,
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
			Details: envelope.Error.Details,
		}
	}
	return resp, nil
}
