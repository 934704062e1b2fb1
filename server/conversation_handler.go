package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Desarso/chatrelay/models"
	"github.com/Desarso/chatrelay/stores"
)

const defaultListLimit = 50

// createConversation creates an empty conversation.
// POST /api/conversations
func (s *Server) createConversation(c *gin.Context) {
	var req models.CreateConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(NewValidationError("Request validation failed", err.Error()))
			return
		}
	}

	conv, err := s.Store.CreateConversation(c.Request.Context(), req.Title)
	if err != nil {
		c.Error(storeError(err, "Failed to create conversation"))
		return
	}
	c.JSON(http.StatusCreated, toConversationResponse(conv))
}

// listConversations returns a page of conversations with previews.
// GET /api/conversations?limit=&offset=
func (s *Server) listConversations(c *gin.Context) {
	var q models.ListConversationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Error(NewValidationError("Request validation failed", err.Error()))
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultListLimit
	}

	infos, total, err := s.Store.ListConversations(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		c.Error(storeError(err, "Failed to retrieve conversations"))
		return
	}

	resp := models.ConversationListResponse{
		Conversations: make([]models.ConversationPreviewResponse, len(infos)),
		Total:         total,
	}
	for i, info := range infos {
		resp.Conversations[i] = models.ConversationPreviewResponse{
			ConversationResponse: models.ConversationResponse{
				ID:        info.ID,
				Title:     info.Title,
				CreatedAt: info.CreatedAt,
				UpdatedAt: info.UpdatedAt,
			},
			MessageCount: info.MessageCount,
			Preview:      info.Preview,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// getConversation returns a conversation with its messages, oldest first.
// GET /api/conversations/:id
func (s *Server) getConversation(c *gin.Context) {
	conv, err := s.Store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(storeError(err, "Failed to retrieve conversation"))
		return
	}

	resp := models.ConversationDetailResponse{
		ConversationResponse: toConversationResponse(conv),
		Messages:             make([]models.MessageResponse, len(conv.Messages)),
	}
	for i, m := range conv.Messages {
		resp.Messages[i] = models.MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// updateConversation renames a conversation.
// PATCH /api/conversations/:id
func (s *Server) updateConversation(c *gin.Context) {
	var req models.UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(NewValidationError("Request validation failed", err.Error()))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.Error(NewValidationError("Title cannot be empty", nil))
		return
	}

	conv, err := s.Store.UpdateConversationTitle(c.Request.Context(), c.Param("id"), title)
	if err != nil {
		c.Error(storeError(err, "Failed to update conversation"))
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}

// deleteConversation removes a conversation, its messages and its traces.
// DELETE /api/conversations/:id
func (s *Server) deleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := s.Store.DeleteConversation(c.Request.Context(), id); err != nil {
		c.Error(storeError(err, "Failed to delete conversation"))
		return
	}
	if s.Traces != nil {
		if err := s.Traces.DeleteTracesByConversation(c.Request.Context(), id); err != nil {
			s.Logger.Printf("Error deleting traces for %s: %v", id, err)
		}
	}

	c.JSON(http.StatusOK, models.DeleteConversationResponse{
		Success: true,
		Message: "Conversation deleted successfully",
	})
}

// listTraces returns the per-turn traces of a conversation.
// GET /api/conversations/:id/traces
func (s *Server) listTraces(c *gin.Context) {
	if s.Traces == nil {
		notFound(c)
		return
	}

	id := c.Param("id")
	if _, err := s.Store.GetConversation(c.Request.Context(), id); err != nil {
		c.Error(storeError(err, "Failed to retrieve conversation"))
		return
	}

	traces, err := s.Traces.GetTracesByConversation(c.Request.Context(), id)
	if err != nil {
		c.Error(storeError(err, "Failed to retrieve traces"))
		return
	}
	if traces == nil {
		traces = []*stores.TurnTrace{}
	}
	c.JSON(http.StatusOK, gin.H{"traces": traces})
}

func toConversationResponse(conv *stores.Conversation) models.ConversationResponse {
	return models.ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}
