package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/attachments"
	"github.com/ammar1510/tutorchat/internal/models"
	"github.com/ammar1510/tutorchat/internal/service"
)

// Messenger is the messaging service used by MessageHandler
type Messenger interface {
	Send(ctx context.Context, senderID, receiverID uuid.UUID, content string, uploads []service.Upload) (*models.MessageResponse, error)
	Thread(ctx context.Context, viewerID, otherID uuid.UUID) ([]*models.Message, error)
	MarkRead(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error)
	AllForUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)
}

// MessageHandler handles message-related routes
type MessageHandler struct {
	Messages Messenger
	// Limits caps the multipart body and how much of each file is read;
	// files over the per-file limit are rejected by the service
	Limits attachments.Limits
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages Messenger, limits attachments.Limits) *MessageHandler {
	return &MessageHandler{Messages: messages, Limits: limits}
}

// SendMessage accepts either a JSON body or a multipart form with files
func (h *MessageHandler) SendMessage(c *gin.Context) {
	senderID, _, ok := viewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var (
		receiverID uuid.UUID
		content    string
		uploads    []service.Upload
		err        error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		receiverID, content, uploads, err = h.readMultipart(c)
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		var req models.MessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		receiverID, content = req.ReceiverID, req.Content
	}

	message, err := h.Messages.Send(c.Request.Context(), senderID, receiverID, content, uploads)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) readMultipart(c *gin.Context) (uuid.UUID, string, []service.Upload, error) {
	if limit := h.Limits.MaxRequestBytes(); limit > 0 {
		if c.Request.ContentLength > limit {
			return uuid.Nil, "", nil, apperr.TooLarge(fmt.Sprintf("Request body must be at most %d bytes", limit), nil)
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return uuid.Nil, "", nil, apperr.TooLarge(fmt.Sprintf("Request body must be at most %d bytes", tooLarge.Limit), err)
		}
		return uuid.Nil, "", nil, apperr.Validation("Invalid multipart form", err)
	}

	receiverID, err := uuid.Parse(c.PostForm("receiver_id"))
	if err != nil {
		return uuid.Nil, "", nil, apperr.Validation("Invalid receiver ID", err)
	}

	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}

	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		data, err := h.readFile(fh)
		if err != nil {
			return uuid.Nil, "", nil, apperr.Validation("Failed to read "+fh.Filename, err)
		}
		uploads = append(uploads, service.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	return receiverID, c.PostForm("content"), uploads, nil
}

func (h *MessageHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if h.Limits.MaxBytes > 0 {
		// One byte over the limit is enough for the service to reject it
		r = io.LimitReader(f, h.Limits.MaxBytes+1)
	}
	return io.ReadAll(r)
}

// GetMessages returns all messages for the authenticated user
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, _, ok := viewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	messages, err := h.Messages.AllForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// GetConversation returns all messages between the authenticated user and another user
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, _, ok := viewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	otherUserID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	messages, err := h.Messages.Thread(c.Request.Context(), userID, otherUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// MarkConversationRead marks every message the other user sent to the
// authenticated user as read
func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	userID, _, ok := viewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	otherUserID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	updated, err := h.Messages.MarkRead(c.Request.Context(), userID, otherUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
