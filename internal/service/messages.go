// Package service wires the message store, attachment intake and delivery
// fan-out into the operations exposed over HTTP.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/attachments"
	"github.com/ammar1510/tutorchat/internal/database"
	"github.com/ammar1510/tutorchat/internal/logger"
	"github.com/ammar1510/tutorchat/internal/models"
	"github.com/ammar1510/tutorchat/internal/websocket"
)

var log = logger.New("service")

// Notifier pushes frames to live connections. Implementations never block
// and never report delivery failures.
type Notifier interface {
	Broadcast(frame websocket.Frame)
	SendToUser(userID uuid.UUID, frame websocket.Frame)
}

// Upload is one file received with a message
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadReceipt is pushed to a sender when the receiver reads their messages
type ReadReceipt struct {
	ReaderID uuid.UUID `json:"reader_id"`
	OtherID  uuid.UUID `json:"other_id"`
	Count    int64     `json:"count"`
}

type Options struct {
	Limits attachments.Limits
	// BroadcastAll pushes every new message to all connections instead of
	// only the two participants
	BroadcastAll bool
}

type MessageService struct {
	store    database.MessageStore
	users    database.UserDirectory
	files    attachments.Store
	notifier Notifier
	opts     Options
}

func NewMessageService(store database.MessageStore, users database.UserDirectory, files attachments.Store, notifier Notifier, opts Options) *MessageService {
	return &MessageService{
		store:    store,
		users:    users,
		files:    files,
		notifier: notifier,
		opts:     opts,
	}
}

// Send stores a message and pushes it to connected clients. Every upload is
// resolved before the store is written; any upload failure aborts the send.
// Once stored the message is delivered even if ctx has been cancelled.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uuid.UUID, content string, uploads []Upload) (*models.MessageResponse, error) {
	if err := s.validate(senderID, receiverID, content, uploads); err != nil {
		return nil, err
	}

	resolved, err := s.resolve(ctx, uploads)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, senderID, receiverID, content, resolved)
	if err != nil {
		return nil, err
	}

	resp := &models.MessageResponse{Message: msg}
	if sender, err := s.users.GetUserByID(context.WithoutCancel(ctx), senderID); err == nil {
		resp.Sender = sender.ToResponse()
	} else {
		log.Warn("Failed to load sender %s for message %s: %v", senderID, msg.ID, err)
	}

	s.deliver(resp)
	return resp, nil
}

func (s *MessageService) validate(senderID, receiverID uuid.UUID, content string, uploads []Upload) error {
	if senderID == uuid.Nil || receiverID == uuid.Nil {
		return apperr.Validation("Sender and receiver are required", nil)
	}
	if strings.TrimSpace(content) == "" && len(uploads) == 0 {
		return apperr.Validation("Message must have content or at least one attachment", nil)
	}
	sizes := make([]int64, len(uploads))
	for i, u := range uploads {
		sizes[i] = int64(len(u.Data))
	}
	return s.opts.Limits.Check(sizes)
}

// resolve uploads files one at a time, in request order
func (s *MessageService) resolve(ctx context.Context, uploads []Upload) ([]models.Attachment, error) {
	resolved := make([]models.Attachment, 0, len(uploads))
	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url, err := s.files.Store(ctx, u.Data, u.ContentType, u.Name)
		if err != nil {
			var appErr *apperr.AppError
			if !errors.As(err, &appErr) {
				err = apperr.Upload("Failed to upload "+u.Name, err)
			}
			return nil, err
		}

		size := int64(len(u.Data))
		resolved = append(resolved, models.Attachment{
			URL:  url,
			Type: attachments.ContentType(u.Data, u.ContentType),
			Name: u.Name,
			Size: &size,
		})
	}
	return resolved, nil
}

func (s *MessageService) deliver(resp *models.MessageResponse) {
	frame := websocket.Frame{Type: websocket.FrameNewMessage, Data: resp}
	if s.opts.BroadcastAll {
		s.notifier.Broadcast(frame)
		return
	}

	s.notifier.SendToUser(resp.ReceiverID, frame)
	if resp.SenderID != resp.ReceiverID {
		s.notifier.SendToUser(resp.SenderID, frame)
	}
}

// Thread returns the messages between viewerID and otherID, newest first
func (s *MessageService) Thread(ctx context.Context, viewerID, otherID uuid.UUID) ([]*models.Message, error) {
	if otherID == uuid.Nil {
		return nil, apperr.Validation("Invalid user ID", nil)
	}
	return s.store.GetThread(ctx, viewerID, otherID)
}

// MarkRead marks everything otherID sent to viewerID as read and tells
// otherID how many messages were read
func (s *MessageService) MarkRead(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error) {
	if otherID == uuid.Nil {
		return 0, apperr.Validation("Invalid user ID", nil)
	}

	updated, err := s.store.MarkThreadRead(ctx, viewerID, otherID)
	if err != nil {
		return 0, err
	}

	if updated > 0 {
		s.notifier.SendToUser(otherID, websocket.Frame{
			Type: websocket.FrameMessagesRead,
			Data: ReadReceipt{ReaderID: viewerID, OtherID: otherID, Count: updated},
		})
	}
	return updated, nil
}

// AllForUser returns every message the user sent or received, newest first
func (s *MessageService) AllForUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	return s.store.GetAllForUser(ctx, userID)
}
