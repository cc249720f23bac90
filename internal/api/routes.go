package api

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups everything mounted under /api
type Handlers struct {
	Messages      *MessageHandler
	Conversations *ConversationHandler
	Users         *UserHandler
	WebSocket     gin.HandlerFunc
}

// Register mounts the API routes on router
func (h *Handlers) Register(router *gin.Engine) {
	// The websocket route takes its token from the query string as well
	router.GET("/api/ws", TokenAuthMiddleware(), h.WebSocket)

	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware())
	{
		authorized.GET("/me", h.Users.GetMe)
		authorized.GET("/users/:userID", h.Users.GetUser)

		authorized.POST("/messages", h.Messages.SendMessage)
		authorized.GET("/messages", h.Messages.GetMessages)
		authorized.GET("/messages/conversation/:userID", h.Messages.GetConversation)
		authorized.PUT("/messages/conversation/:userID/read", h.Messages.MarkConversationRead)

		authorized.GET("/conversations", h.Conversations.GetConversations)
	}
}
