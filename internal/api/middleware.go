package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/auth"
	"github.com/ammar1510/tutorchat/internal/models"
)

// Context keys set by the auth middleware
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(authHeader, "Bearer "), true
}

func authenticate(c *gin.Context, token string) {
	userID, role, err := auth.Identity(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		c.Abort()
		return
	}

	c.Set(ContextUserID, userID)
	c.Set(ContextRole, role)
	c.Next()
}

// AuthMiddleware validates the Bearer token and sets the viewer in context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		authenticate(c, token)
	}
}

// TokenAuthMiddleware also accepts the token as a query parameter, since
// browsers cannot set headers on websocket upgrades
func TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		authenticate(c, token)
	}
}

// viewer returns the identity set by the auth middleware
func viewer(c *gin.Context) (uuid.UUID, models.Role, bool) {
	userID, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, "", false
	}
	id, ok := userID.(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	role, _ := c.Get(ContextRole)
	r, _ := role.(models.Role)
	return id, r, true
}
