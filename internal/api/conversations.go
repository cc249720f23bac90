package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/models"
)

type ConversationLister interface {
	List(ctx context.Context, viewerID uuid.UUID, role models.Role) (*models.ConversationList, error)
}

// ConversationHandler serves the viewer's conversation list
type ConversationHandler struct {
	Conversations ConversationLister
}

func NewConversationHandler(conversations ConversationLister) *ConversationHandler {
	return &ConversationHandler{Conversations: conversations}
}

// GetConversations returns {conversations, potentialContacts} for the viewer
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	userID, role, ok := viewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	list, err := h.Conversations.List(c.Request.Context(), userID, role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}
