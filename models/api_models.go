package models

import "time"

// MessageResponse is a stored message as returned by the conversation endpoints.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ConversationResponse struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ConversationDetailResponse struct {
	ConversationResponse
	Messages []MessageResponse `json:"messages"`
}

// ConversationPreviewResponse is one row of the conversation list.
type ConversationPreviewResponse struct {
	ConversationResponse
	MessageCount int    `json:"messageCount"`
	Preview      string `json:"preview"`
}

type ConversationListResponse struct {
	Conversations []ConversationPreviewResponse `json:"conversations"`
	Total         int64                         `json:"total"`
}

type DeleteConversationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorBody is the JSON error envelope: {"error": {...}}.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
