package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Desarso/chatrelay/models"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *OpenRouter_Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := New("or-key")
	m.BaseURL = srv.URL
	m.Logger = log.New(io.Discard, "", 0)
	return m
}

func collect(events <-chan models.UpstreamEvent) []models.UpstreamEvent {
	var out []models.UpstreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

var userTurn = models.UpstreamRequest{Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}}

func TestStream_DeltasThenDone(t *testing.T) {
	var got OpenRouterRequest
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		io.WriteString(w, ": OPENROUTER PROCESSING\n\n")
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})
	m.SystemPrompt = "be brief"
	m.MaxTokens = 64

	events, err := m.Stream(context.Background(), userTurn)
	require.NoError(t, err)

	assert.Equal(t, []models.UpstreamEvent{
		models.TextEvent("Hel"),
		models.TextEvent("lo"),
		models.DoneEvent(),
	}, collect(events))

	assert.Equal(t, DefaultModel, got.Model)
	assert.True(t, got.Stream)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 64, *got.MaxTokens)
	assert.Equal(t, []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}}, got.Messages)
}

func TestStream_FinishReasonWithoutDoneSentinel(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}`)
	})

	events, err := m.Stream(context.Background(), userTurn)
	require.NoError(t, err)
	assert.Equal(t, []models.UpstreamEvent{models.TextEvent("ok"), models.DoneEvent()}, collect(events))
}

func TestStream_Truncated(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"cut"}}]}`+"\n\n")
	})

	events, err := m.Stream(context.Background(), userTurn)
	require.NoError(t, err)

	got := collect(events)
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[1].Err, models.ErrStreamTruncated)
}

func TestStream_MidStreamError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"par"}}]}`+"\n\n")
		io.WriteString(w, `data: {"error":{"code":429,"message":"Rate limited upstream"}}`+"\n\n")
	})

	events, err := m.Stream(context.Background(), userTurn)
	require.NoError(t, err)

	got := collect(events)
	require.Len(t, got, 2)
	assert.Equal(t, models.EventError, got[1].Kind)
	assert.ErrorIs(t, got[1].Err, models.ErrRateLimit)
}

func TestStream_OpenErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, models.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, models.ErrAuthInvalid},
		{"no credits", http.StatusPaymentRequired, models.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope"}}`, tt.status)
			})

			_, err := m.Stream(context.Background(), userTurn)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *models.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Message)
		})
	}
}

func TestStream_OtherAPIError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"model not found"}}`)
	})

	_, err := m.Stream(context.Background(), models.UpstreamRequest{Model: "missing/model", Messages: userTurn.Messages})
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "model not found", apiErr.Message)
	assert.NotErrorIs(t, err, models.ErrRateLimit)
}

func TestStream_NoMessages(t *testing.T) {
	_, err := New("k").Stream(context.Background(), models.UpstreamRequest{})
	assert.Error(t, err)
}
