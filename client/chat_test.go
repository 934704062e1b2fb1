package client

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Desarso/chatrelay/models"
)

// fakeStreamer returns a canned body for every SendMessage.
type fakeStreamer struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls []models.SendMessageRequest
}

func (f *fakeStreamer) SendMessage(ctx context.Context, req models.SendMessageRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	// One byte per read exercises every chunk boundary
	return io.NopCloser(iotest.OneByteReader(strings.NewReader(string(f.body)))), nil
}

func newTestChat(api Streamer, opts ChatOptions) *Chat {
	c := NewChat(api, opts)
	c.Logger = log.New(io.Discard, "", 0)
	return c
}

func strPtr(s string) *string { return &s }

func TestSendUserMessage_HappyPath(t *testing.T) {
	api := &fakeStreamer{body: encodeAll(t,
		models.ConversationIDFrame("conv-1"),
		models.ContentFrame("He"),
		models.ContentFrame("llo"),
		models.MessageIDFrame("msg-1"),
		models.DoneFrame(),
	)}
	c := newTestChat(api, ChatOptions{Model: "m"})

	require.NoError(t, c.SendUserMessage(context.Background(), "  hi  "))

	s := c.Snapshot()
	require.Len(t, s.Messages, 2)
	assert.Equal(t, models.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.True(t, strings.HasPrefix(s.Messages[0].ID, "temp-user-"))
	assert.Equal(t, models.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "Hello", s.Messages[1].Content)
	assert.Equal(t, "msg-1", s.Messages[1].ID)
	require.NotNil(t, s.ConversationID)
	assert.Equal(t, "conv-1", *s.ConversationID)
	assert.False(t, s.IsLoading)
	assert.False(t, s.IsStreaming)
	assert.Empty(t, s.Error)

	require.Len(t, api.calls, 1)
	assert.Nil(t, api.calls[0].ConversationID)
	assert.Equal(t, "hi", api.calls[0].Message)
	assert.Equal(t, "m", api.calls[0].Model)
}

func TestSendUserMessage_SendsConversationHandle(t *testing.T) {
	api := &fakeStreamer{body: encodeAll(t, models.ContentFrame("ok"), models.DoneFrame())}
	c := newTestChat(api, ChatOptions{ConversationID: strPtr("conv-9")})

	require.NoError(t, c.SendUserMessage(context.Background(), "hi"))
	require.Len(t, api.calls, 1)
	require.NotNil(t, api.calls[0].ConversationID)
	assert.Equal(t, "conv-9", *api.calls[0].ConversationID)
}

func TestSendUserMessage_ConversationIDFirstWriteWins(t *testing.T) {
	api := &fakeStreamer{body: encodeAll(t, models.ConversationIDFrame("other"), models.DoneFrame())}
	c := newTestChat(api, ChatOptions{ConversationID: strPtr("conv-9")})

	require.NoError(t, c.SendUserMessage(context.Background(), "hi"))
	assert.Equal(t, "conv-9", *c.Snapshot().ConversationID)
}

func TestSendUserMessage_EmptyIsNoop(t *testing.T) {
	api := &fakeStreamer{}
	changes := 0
	c := newTestChat(api, ChatOptions{OnChange: func(State) { changes++ }})

	require.NoError(t, c.SendUserMessage(context.Background(), "   "))
	assert.Empty(t, api.calls)
	assert.Empty(t, c.Snapshot().Messages)
	assert.Equal(t, 0, changes)
}

func TestSendUserMessage_ErrorFrameRollsBack(t *testing.T) {
	api := &fakeStreamer{body: encodeAll(t,
		models.ConversationIDFrame("conv-1"),
		models.ContentFrame("Sorry"),
		models.ErrorFrame("Rate limit exceeded. Please try again later."),
	)}
	earlier := []Message{{ID: "m0", Role: models.RoleUser, Content: "before"}}
	c := newTestChat(api, ChatOptions{InitialMessages: earlier})
	before := c.Snapshot()

	err := c.SendUserMessage(context.Background(), "hi")
	require.Error(t, err)

	s := c.Snapshot()
	assert.Equal(t, before.Messages, s.Messages)
	assert.Nil(t, s.ConversationID)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", s.Error)
	assert.False(t, s.IsStreaming)
	assert.False(t, s.IsLoading)
}

func TestSendUserMessage_APIErrorRollsBack(t *testing.T) {
	api := &fakeStreamer{err: &APIError{Status: 503, Code: "MODEL_API_ERROR", Message: "Model API request failed"}}
	c := newTestChat(api, ChatOptions{})

	err := c.SendUserMessage(context.Background(), "hi")
	require.Error(t, err)

	s := c.Snapshot()
	assert.Empty(t, s.Messages)
	assert.Equal(t, "API Error: Model API request failed", s.Error)
	assert.False(t, s.IsStreaming)
}

func TestSendUserMessage_StreamClosedWithoutTerminal(t *testing.T) {
	api := &fakeStreamer{body: encodeAll(t, models.ContentFrame("part"))}
	c := newTestChat(api, ChatOptions{})

	err := c.SendUserMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrStreamClosed)

	s := c.Snapshot()
	assert.Empty(t, s.Messages)
	assert.Equal(t, "stream closed before completion", s.Error)
	assert.False(t, s.IsStreaming)
}

func TestSendUserMessage_SentinelCountsAsSuccess(t *testing.T) {
	body := append(encodeAll(t, models.ContentFrame("Hi")), []byte("data: [DONE]\n\n")...)
	api := &fakeStreamer{body: body}
	c := newTestChat(api, ChatOptions{})

	require.NoError(t, c.SendUserMessage(context.Background(), "hi"))
	s := c.Snapshot()
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "Hi", s.Messages[1].Content)
	assert.False(t, s.IsStreaming)
}

func TestSendUserMessage_MalformedFrameRollsBack(t *testing.T) {
	body := append(encodeAll(t, models.ContentFrame("Hi")), []byte("data: {oops}\n\n")...)
	c := newTestChat(&fakeStreamer{body: body}, ChatOptions{})

	err := c.SendUserMessage(context.Background(), "hi")
	assert.True(t, errors.Is(err, models.ErrMalformedPayload))
	assert.Empty(t, c.Snapshot().Messages)
}

func TestSendUserMessage_FramesAfterDoneIgnored(t *testing.T) {
	api := &fakeStreamer{body: encodeAll(t,
		models.ContentFrame("a"),
		models.DoneFrame(),
		models.ContentFrame("late"),
	)}
	c := newTestChat(api, ChatOptions{})

	require.NoError(t, c.SendUserMessage(context.Background(), "hi"))
	assert.Equal(t, "a", c.Snapshot().Messages[1].Content)
}

func TestSendUserMessage_AssistantInsertedOnFirstFrame(t *testing.T) {
	api := &fakeStreamer{body: encodeAll(t, models.DoneFrame())}
	var seen []State
	c := newTestChat(api, ChatOptions{OnChange: func(s State) { seen = append(seen, s) }})

	require.NoError(t, c.SendUserMessage(context.Background(), "hi"))

	// optimistic user message first, then the empty assistant message with done
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Len(t, seen[0].Messages, 1)
	assert.True(t, seen[0].IsLoading)
	assert.True(t, seen[0].IsStreaming)
	final := c.Snapshot()
	require.Len(t, final.Messages, 2)
	assert.Equal(t, "", final.Messages[1].Content)
	assert.True(t, strings.HasPrefix(final.Messages[1].ID, "temp-"))
}

func TestStartNewConversation_Idempotent(t *testing.T) {
	c := newTestChat(&fakeStreamer{}, ChatOptions{
		ConversationID:  strPtr("c"),
		InitialMessages: []Message{{ID: "1", Role: models.RoleUser, Content: "x"}},
	})

	c.StartNewConversation()
	once := c.Snapshot()
	c.StartNewConversation()
	twice := c.Snapshot()

	assert.Equal(t, once, twice)
	assert.Empty(t, twice.Messages)
	assert.Nil(t, twice.ConversationID)
	assert.Empty(t, twice.Error)
}

func TestClearError(t *testing.T) {
	c := newTestChat(&fakeStreamer{err: errors.New("offline")}, ChatOptions{})
	require.Error(t, c.SendUserMessage(context.Background(), "hi"))
	assert.Equal(t, "offline", c.Snapshot().Error)

	c.ClearError()
	assert.Empty(t, c.Snapshot().Error)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := newTestChat(&fakeStreamer{}, ChatOptions{
		InitialMessages: []Message{{ID: "1", Content: "x"}},
	})
	s := c.Snapshot()
	s.Messages[0].Content = "changed"
	assert.Equal(t, "x", c.Snapshot().Messages[0].Content)
}
