package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/database"
)

// UserHandler exposes read-only profiles from the user directory
type UserHandler struct {
	Users database.UserDirectory
}

func NewUserHandler(users database.UserDirectory) *UserHandler {
	return &UserHandler{Users: users}
}

// GetMe gets the current user profile
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, _, ok := viewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	h.respondUser(c, userID)
}

// GetUser returns another user's profile, e.g. to render a new thread
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	h.respondUser(c, userID)
}

func (h *UserHandler) respondUser(c *gin.Context, userID uuid.UUID) {
	user, err := h.Users.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(c, apperr.NotFound("User", err))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}
