package models

import "strings"

// SendMessageRequest is the body of POST /api/chat/message and of every
// message sent over the chat WebSocket.
type SendMessageRequest struct {
	ConversationID *string `json:"conversationId"`
	Message        string  `json:"message" binding:"required"`
	Model          string  `json:"model,omitempty"`
}

// Turn converts the request into a relay turn. Message text is trimmed.
func (r SendMessageRequest) Turn() Turn {
	t := Turn{Text: strings.TrimSpace(r.Message), Model: r.Model}
	if r.ConversationID != nil && *r.ConversationID != "" {
		id := *r.ConversationID
		t.ConversationID = &id
	}
	return t
}

type CreateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}

type UpdateConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

// ListConversationsQuery binds ?limit=&offset= on GET /api/conversations.
type ListConversationsQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Turn is one user submission. It is not modified once handed to the relay.
type Turn struct {
	Text           string
	ConversationID *string
	Model          string
}
