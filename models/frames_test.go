package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame StreamFrame
		want  string
	}{
		{"conversation id", ConversationIDFrame("c1"), `data: {"type":"conversation_id","conversationId":"c1"}` + "\n\n"},
		{"content", ContentFrame("Hi"), `data: {"type":"content","content":"Hi"}` + "\n\n"},
		{"message id", MessageIDFrame("m1"), `data: {"type":"message_id","messageId":"m1"}` + "\n\n"},
		{"done", DoneFrame(), `data: {"type":"done"}` + "\n\n"},
		{"error", ErrorFrame("boom"), `data: {"type":"error","message":"boom"}` + "\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFrame(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodeFrame_EscapesNewlines(t *testing.T) {
	got, err := EncodeFrame(ContentFrame("a\n\nb"))
	require.NoError(t, err)

	// The payload must stay on one line so the blank-line terminator is unambiguous
	assert.Equal(t, `data: {"type":"content","content":"a\n\nb"}`+"\n\n", string(got))
}

func TestDecodePayload(t *testing.T) {
	f, err := DecodePayload([]byte(`{"type":"content","content":"€"}`))
	require.NoError(t, err)
	assert.Equal(t, ContentFrame("€"), f)
}

func TestDecodePayload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", ``, ErrIncompletePayload},
		{"cut in key", `{"ty`, ErrIncompletePayload},
		{"cut in value", `{"type":"content","content":"Hel`, ErrIncompletePayload},
		{"not json", `hello`, ErrMalformedPayload},
		{"trailing data", `{"type":"done"} {"type":"done"}`, ErrMalformedPayload},
		{"missing type", `{"content":"x"}`, ErrMalformedPayload},
		{"wrong type", `{"type":3}`, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, DoneFrame().IsTerminal())
	assert.True(t, ErrorFrame("x").IsTerminal())
	assert.False(t, ContentFrame("x").IsTerminal())
	assert.False(t, ConversationIDFrame("c").IsTerminal())
	assert.False(t, MessageIDFrame("m").IsTerminal())
}

func TestSendMessageRequestTurn(t *testing.T) {
	id := "c1"
	turn := SendMessageRequest{Message: "hi", ConversationID: &id, Model: "m"}.Turn()
	assert.Equal(t, "hi", turn.Text)
	require.NotNil(t, turn.ConversationID)
	assert.Equal(t, "c1", *turn.ConversationID)
	assert.Equal(t, "m", turn.Model)
}
